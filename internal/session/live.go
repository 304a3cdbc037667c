// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/playback"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// regenerateInterval is how often the live runner looks for new beats.
const regenerateInterval = 250 * time.Millisecond

// Capture is the live audio input of a session. Its position is the
// session clock and its feed carries beats and energy.
type Capture interface {
	Feed() *analysis.LiveFeed
	Position() (float64, bool)
	StartInputStream() error
	Close() error
}

// RunLive plays a beat-driven mode against live capture. Playback starts on
// a synthetic grid; as beats arrive the script is rebuilt and swapped into
// the player without resetting its clock. The capture position is the
// session clock, so pausing does not hold the music back: after Resume the
// light picks up at the current capture position. duration <= 0 uses the
// configured live duration.
func RunLive(ctx context.Context, capture Capture, duration time.Duration, o Options) (*Result, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.Mode.Kind == light.Journey {
		return nil, fmt.Errorf("session: %s is a fixed journey and does not follow live audio", o.Mode.Name)
	}
	if duration <= 0 {
		duration = o.Config.Playback.LiveDuration
	}

	res := &Result{ID: uuid.New()}
	gen := o.generator()
	initial, err := gen.Generate(analysis.DefaultBPM, o.Mode, nil, duration.Seconds())
	if err != nil {
		return nil, err
	}

	feed := capture.Feed()
	p, err := playback.NewPlayer(o.Sink, playerOptions(o.Config, o.Mode, o, feed, capture))
	if err != nil {
		return nil, err
	}

	if err := capture.StartInputStream(); err != nil {
		return nil, fmt.Errorf("session: start capture: %w", err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			applog.Warnf("Session %s: closing capture: %v", res.ID, err)
		}
	}()

	regen := newRegenerator(gen, o.Mode, duration.Seconds(), o.Config.Analysis.RegenerateEvery, o.Metrics)
	var current atomic.Pointer[light.LightScript]
	current.Store(initial)

	g, gctx := errgroup.WithContext(ctx)
	playCtx, stopRegen := context.WithCancel(gctx)

	g.Go(func() error {
		defer stopRegen()
		state, err := play(playCtx, res.ID, p, initial, o)
		res.State = state
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(regenerateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-playCtx.Done():
				return nil
			case <-p.Done():
				return nil
			case <-ticker.C:
				script, err := regen.next(feed.Load())
				if err != nil {
					applog.Warnf("Session %s: regenerating script: %v", res.ID, err)
					continue
				}
				if script != nil {
					current.Store(script)
					p.Swap(script)
				}
			}
		}
	})

	err = g.Wait()
	res.Script = current.Load()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return res, err
}

// regenerator rebuilds the live script once enough new beats arrived.
type regenerator struct {
	gen      *light.Generator
	mode     light.ModeConfig
	duration float64
	every    int
	metrics  *metrics.Metrics

	version uint64
	count   int
}

func newRegenerator(gen *light.Generator, mode light.ModeConfig, duration float64, every int, m *metrics.Metrics) *regenerator {
	return &regenerator{
		gen:      gen,
		mode:     mode,
		duration: duration,
		every:    max(every, 1),
		metrics:  m,
	}
}

// next returns a new script for s, or nil when the beat list has not grown
// by at least every beats since the last rebuild. Pulsed scripts continue
// past the last detected beat on a grid at the estimated tempo.
func (r *regenerator) next(s *analysis.LiveSnapshot) (*light.LightScript, error) {
	if s == nil || s.Version == r.version || len(s.Beats)-r.count < r.every {
		return nil, nil
	}
	r.version = s.Version
	r.count = len(s.Beats)

	bpm := analysis.EstimateTempo(s.Beats)
	beats := s.Beats
	if r.mode.Kind == light.Pulsed {
		// Detected beats are already behind the playhead when the script
		// lands; pulses ahead of it come from the tempo grid.
		beats = analysis.ExtendBeats(s.Beats, bpm, r.duration)
	}
	script, err := r.gen.Generate(bpm, r.mode, beats, r.duration)
	if err != nil {
		return nil, err
	}
	r.metrics.IncRegenerations()
	r.metrics.SetTempo(bpm)
	applog.Debugf("Session: live script rebuilt from %d beats at %.1f BPM (%d events)", len(s.Beats), bpm, len(script.Events))
	return script, nil
}
