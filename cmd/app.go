// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"entrain/internal/config"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/playback"
	"entrain/internal/server"
	"entrain/internal/session"
	"entrain/internal/sink"
	"entrain/internal/transport"
	"entrain/internal/transport/udp"
	"entrain/internal/tui"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// app owns the long-lived pieces a session plays through: the frame
// transport, the HTTP server and the shared thermal state.
type app struct {
	opts      *options
	cfg       *config.Config
	metrics   *metrics.Metrics
	thermal   *playback.ThermalState
	transport transport.Transport
	server    *server.Server
}

func newApp(opts *options) (*app, error) {
	a := &app{
		opts:    opts,
		cfg:     opts.cfg,
		metrics: metrics.New(),
		thermal: playback.NewThermalState(),
	}

	t, ws, err := newTransport(a.cfg.Transport)
	if err != nil {
		return nil, err
	}
	a.transport = t

	if addr := a.cfg.Transport.HTTPAddress; addr != "" {
		a.server = server.New(addr, ws, a.metrics, a.thermal)
		if err := a.server.Start(); err != nil {
			t.Close()
			return nil, err
		}
	}
	return a, nil
}

// newTransport builds the configured frame transport. ws is non-nil only
// for the websocket kind.
func newTransport(cfg config.TransportConfig) (transport.Transport, *transport.WebSocketTransport, error) {
	switch cfg.Kind {
	case "udp":
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			return nil, nil, err
		}
		t, err := udp.NewFrameTransport(sender)
		if err != nil {
			sender.Close()
			return nil, nil, err
		}
		return t, nil, nil
	case "websocket":
		ws := transport.NewWebSocketTransport()
		return ws, ws, nil
	case "log", "":
		return transport.NewLoggingTransport(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind '%s'", cfg.Kind)
	}
}

func (a *app) sessionOptions(mode light.ModeConfig) (session.Options, error) {
	kind, err := a.opts.sinkKind()
	if err != nil {
		return session.Options{}, err
	}
	s, err := sink.New(kind, a.transport)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		Config:   a.cfg,
		Mode:     mode,
		Sink:     s,
		Governor: a.thermal,
		Metrics:  a.metrics,
	}, nil
}

type runFunc func(ctx context.Context, o session.Options) (*session.Result, error)

// run executes a session, attaching it to the HTTP server and, with --tui,
// showing the monitor until the session ends or the user quits.
func (a *app) run(ctx context.Context, title string, o session.Options, fn runFunc) (*session.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(chan *playback.Player, 1)
	o.OnStart = func(id uuid.UUID, p *playback.Player) {
		if a.server != nil {
			a.server.Attach(id, p)
		}
		select {
		case started <- p:
		default:
		}
	}

	if !a.opts.tui {
		return fn(ctx, o)
	}

	// The monitor owns the terminal.
	applog.Configure(io.Discard, a.cfg.LogFormat)
	defer applog.Configure(os.Stderr, a.cfg.LogFormat)

	var res *session.Result
	sessionDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(sessionDone)
		var err error
		res, err = fn(gctx, o)
		return err
	})
	g.Go(func() error {
		select {
		case p := <-started:
			return tui.RunMonitor(title, p, cancel)
		case <-sessionDone:
			return nil
		}
	})
	err := g.Wait()
	return res, err
}

// Close shuts the server down and releases the transport.
func (a *app) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.transport != nil {
		errs = append(errs, a.transport.Close())
	}
	return errors.Join(errs...)
}
