// SPDX-License-Identifier: MIT
package session

import (
	"context"

	"entrain/internal/analysis"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/playback"

	"github.com/google/uuid"
)

// RunFile analyses a decoded track, builds the script for the selected mode
// and plays it on the wall clock. Journeys skip analysis. A cancelled
// analysis returns a Cancelled result without playing.
func RunFile(ctx context.Context, stream analysis.SampleStream, o Options) (*Result, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	res := &Result{ID: uuid.New()}
	gen := o.generator()

	var energy analysis.EnergySource
	if o.Mode.Kind == light.Journey {
		script, err := gen.Generate(0, o.Mode, nil, 0)
		if err != nil {
			return nil, err
		}
		res.Script = script
	} else {
		detector, err := DetectorOptions(o.Config.Analysis, false)
		if err != nil {
			return nil, err
		}
		a, err := Analyze(ctx, stream, AnalyzeOptions{
			Detector:    detector,
			MaxDuration: o.Config.Analysis.MaxDuration,
			Metrics:     o.Metrics,
		})
		if err != nil {
			return nil, err
		}
		res.Analysis = a
		if !a.Usable() {
			res.State = playback.StateCancelled
			return res, nil
		}
		if res.Script, err = BuildScript(a, o.Mode, gen); err != nil {
			return nil, err
		}
		energy = a.Envelope
	}

	p, err := playback.NewPlayer(o.Sink, playerOptions(o.Config, o.Mode, o, energy, nil))
	if err != nil {
		return nil, err
	}
	applog.Debugf("Session %s: file session for %s", res.ID, o.Mode.Name)
	res.State, err = play(ctx, res.ID, p, res.Script, o)
	return res, err
}
