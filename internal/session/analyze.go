// SPDX-License-Identifier: MIT
/*
Package session runs complete entrainment sessions: offline analysis of a
track, script generation with a synthetic fallback, and playback driven by
the file clock or by live capture.
*/
package session

import (
	"context"
	"fmt"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
)

// AnalyzeOptions configures an offline analysis run.
type AnalyzeOptions struct {
	Detector    analysis.DetectorOptions
	MaxDuration float64                // Seconds; <= 0 disables the limit.
	Factory     analysis.SourceFactory // nil uses the FFT.
	Metrics     *metrics.Metrics
}

// Analysis is the result of analysing one track.
type Analysis struct {
	Outcome  analysis.Outcome
	Beats    []float64 // Seconds from track start. Nil when cancelled.
	BPM      float64
	Duration float64
	Envelope analysis.Envelope // Per-hop RMS for audio-reactive modes.
	Frames   int
	Elapsed  time.Duration
}

// Usable reports whether a script can be built from the analysis.
func (a *Analysis) Usable() bool {
	return a != nil && a.Outcome != analysis.OutcomeCancelled
}

// Analyze validates the stream, detects beats and estimates the tempo.
// Invalid input returns one of the analysis sentinel errors. Cancellation is
// reported through Outcome with a nil error.
func Analyze(ctx context.Context, stream analysis.SampleStream, opts AnalyzeOptions) (*Analysis, error) {
	if err := stream.Validate(opts.MaxDuration); err != nil {
		opts.Metrics.IncAnalysis("invalid")
		return nil, fmt.Errorf("session: analyze: %w", err)
	}

	start := time.Now()
	res := analysis.NewBeatDetector(opts.Detector, opts.Factory).Detect(ctx, stream)
	opts.Metrics.IncAnalysis(res.Outcome.String())

	a := &Analysis{
		Outcome:  res.Outcome,
		Duration: stream.Duration(),
		Frames:   res.Frames,
	}
	if res.Outcome == analysis.OutcomeCancelled {
		a.Elapsed = time.Since(start)
		applog.Infof("Analysis: cancelled after %d frames", res.Frames)
		return a, nil
	}

	a.Beats = res.Beats
	a.BPM = analysis.EstimateTempo(res.Beats)
	a.Envelope = analysis.ComputeEnvelope(stream, opts.Detector.HopSize)
	a.Elapsed = time.Since(start)

	opts.Metrics.AddBeats(len(a.Beats))
	opts.Metrics.SetTempo(a.BPM)
	applog.Infof("Analysis: %s, %d beats over %.1fs, %.1f BPM (%s)",
		a.Outcome, len(a.Beats), a.Duration, a.BPM, a.Elapsed.Round(time.Millisecond))
	return a, nil
}

// BuildScript generates the light script for an analysed track. Tracks
// without beats get a synthetic script; a cancelled analysis is an error.
func BuildScript(a *Analysis, mode light.ModeConfig, gen *light.Generator) (*light.LightScript, error) {
	if !a.Usable() {
		return nil, fmt.Errorf("session: no usable analysis for %s", mode.Name)
	}
	script, err := gen.Generate(a.BPM, mode, a.Beats, a.Duration)
	if err != nil {
		return nil, fmt.Errorf("session: build %s script: %w", mode.Name, err)
	}
	if script.Caution {
		applog.Warnf("Light: %s script enters the photosensitivity caution zone (%.1f Hz)", mode.Name, script.Frequency)
	}
	return script, nil
}
