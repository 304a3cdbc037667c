// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"fmt"

	"entrain/internal/config"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/playback"
	"entrain/internal/sink"

	"github.com/google/uuid"
)

// Options are shared by file and live sessions.
type Options struct {
	Config   *config.Config
	Mode     light.ModeConfig
	Sink     sink.LightSink
	Governor playback.ThermalGovernor // nil is unrestricted.
	Metrics  *metrics.Metrics
	// OnStart is called with the player once playback begins, for monitors.
	OnStart func(id uuid.UUID, p *playback.Player)
}

func (o Options) validate() error {
	if o.Config == nil {
		return fmt.Errorf("session: config cannot be nil")
	}
	if o.Sink == nil {
		return fmt.Errorf("session: sink cannot be nil")
	}
	return o.Mode.Validate()
}

func (o Options) generator() *light.Generator {
	return light.NewGenerator(Limits(o.Config.Safety), o.Sink.Kind())
}

// Result summarises a finished session.
type Result struct {
	ID       uuid.UUID
	Script   *light.LightScript // Last script played.
	Analysis *Analysis          // File sessions only.
	State    playback.State
}

// play runs script on p until it completes or ctx ends.
func play(ctx context.Context, id uuid.UUID, p *playback.Player, script *light.LightScript, o Options) (playback.State, error) {
	o.Metrics.SessionStarted()
	defer o.Metrics.SessionEnded()

	if o.OnStart != nil {
		o.OnStart(id, p)
	}
	applog.Infof("Session %s: playing %s (%d events, %.1fs, %.2f Hz)",
		id, script.Mode, len(script.Events), script.Duration, script.Frequency)

	state, err := p.Run(ctx, script)
	applog.Infof("Session %s: %v", id, state)
	return state, err
}
