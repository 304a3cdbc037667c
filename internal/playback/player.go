// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/light"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/sink"
)

// ErrPlayerUsed is returned when Start is called on a player that already ran.
var ErrPlayerUsed = errors.New("player: a player runs a single session")

// PlayerOptions configures a Player.
type PlayerOptions struct {
	Interval  time.Duration // Tick period; defaults to 4ms.
	Limits    light.SafetyLimits
	Governor  ThermalGovernor // nil is unrestricted.
	Scheduler SchedulerOptions
	// Energy and Tracker enable audio-reactive modulation. Both or neither.
	Energy  analysis.EnergySource
	Tracker *analysis.EnergyTracker
	Metrics *metrics.Metrics
}

// Report is what one tick computed.
type Report struct {
	Output
	Result TickResult
	Energy analysis.EnergyFrame
}

// Status is a lock-free view of the player for monitors.
type Status struct {
	State      State
	Elapsed    float64
	Intensity  float64
	Thermal    ThermalStatus
	Event      int
	Calibrated bool
	Script     *light.LightScript
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdSwap
	cmdLatency
)

type command struct {
	kind   commandKind
	script *light.LightScript
	value  float64
}

// Player drives one scheduler from a ticker and writes the result to a
// sink. The scheduler, tracker and sink colour state are owned by the tick
// goroutine; control calls are queued and applied at the start of the next
// tick. Stop raises a guard that makes any later tick a no-op.
type Player struct {
	opts  PlayerOptions
	sched *Scheduler
	sink  sink.LightSink

	control  chan command
	stopping atomic.Bool
	origin   time.Time
	colorSet bool
	color    light.Color
	sampled  bool // lastSeq holds the last energy sample fed to the tracker.
	lastSeq  uint64

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	used     bool

	finished   chan struct{}
	finishOnce sync.Once

	script        atomic.Pointer[light.LightScript]
	state         atomic.Int32
	elapsedBits   atomic.Uint64
	intensityBits atomic.Uint64
	thermal       atomic.Int32
	event         atomic.Int64
	calibrated    atomic.Bool
}

// NewPlayer creates a player writing to s.
func NewPlayer(s sink.LightSink, opts PlayerOptions) (*Player, error) {
	if s == nil {
		return nil, fmt.Errorf("player: sink cannot be nil")
	}
	if (opts.Energy == nil) != (opts.Tracker == nil) {
		return nil, fmt.Errorf("player: energy source and tracker must be set together")
	}
	if opts.Interval <= 0 {
		opts.Interval = 4 * time.Millisecond
		applog.Debugf("Player: no tick interval, defaulting to %s", opts.Interval)
	}
	p := &Player{
		opts:     opts,
		sched:    NewScheduler(opts.Scheduler),
		sink:     s,
		control:  make(chan command, 16),
		finished: make(chan struct{}),
	}
	p.event.Store(-1)
	return p, nil
}

// Start begins playback of script. The first tick runs one interval later.
func (p *Player) Start(script *light.LightScript) error {
	if err := p.prepare(script, time.Now()); err != nil {
		return err
	}

	p.mu.Lock()
	p.ticker = time.NewTicker(p.opts.Interval)
	p.doneChan = make(chan struct{})
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Player: tick loop started (Interval: %s, Mode: %s, Sink: %v)", p.opts.Interval, script.Mode, p.sink.Kind())
		for {
			select {
			case now := <-ticker.C:
				if r := p.Tick(now); r.Result.Complete {
					applog.Infof("Player: script complete after %.1fs", r.Result.Elapsed)
					p.finish()
					return
				}
			case <-doneChan:
				applog.Debugf("Player: tick loop received stop signal")
				return
			}
		}
	}()
	return nil
}

// prepare starts the sink and the scheduler with the session clock at origin.
func (p *Player) prepare(script *light.LightScript, origin time.Time) error {
	if script == nil {
		return fmt.Errorf("player: script cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used {
		return ErrPlayerUsed
	}
	if err := p.sink.Start(); err != nil {
		return fmt.Errorf("player: start %v sink: %w", p.sink.Kind(), err)
	}
	p.used = true
	p.origin = origin
	p.sched.Start(script, 0)
	p.script.Store(script)
	p.state.Store(int32(StateRunning))
	p.opts.Metrics.SetScriptEvents(len(script.Events))
	return nil
}

// Begin prepares a session for an external tick source, such as a display
// refresh callback, that calls Tick itself instead of using Start's loop.
func (p *Player) Begin(script *light.LightScript) error {
	return p.prepare(script, time.Now())
}

// Tick runs one scheduling step at wall time now and writes the sink. Only
// one goroutine may tick.
func (p *Player) Tick(now time.Time) Report {
	if p.stopping.Load() {
		p.opts.Metrics.IncTicksSkipped()
		return Report{}
	}

	t := now.Sub(p.origin).Seconds()
	p.drainControl(t)

	res := p.sched.Poll(t)
	var energy analysis.EnergyFrame
	modulation := 1.0
	if p.opts.Tracker != nil {
		energy = p.track(res)
		modulation = energy.Modulation()
	}

	script := p.sched.Script()
	out := Compose(script, res, ReadThermal(p.opts.Governor), modulation, p.opts.Limits)
	if out.Thermal == ThermalShutoff && res.Event != nil {
		p.opts.Metrics.IncThermalShutoffs()
	}

	if out.HasColor && (!p.colorSet || out.Color != p.color) {
		if err := p.sink.SetColor(out.Color); err == nil {
			p.color, p.colorSet = out.Color, true
		}
	}
	if err := p.sink.SetIntensity(out.Intensity); err != nil {
		p.opts.Metrics.IncSinkErrors()
		applog.Debugf("Player: sink write failed: %v", err)
	} else {
		p.opts.Metrics.ObserveTick(out.Intensity)
	}

	p.state.Store(int32(res.State))
	p.elapsedBits.Store(math.Float64bits(res.Elapsed))
	p.intensityBits.Store(math.Float64bits(out.Intensity))
	p.thermal.Store(int32(out.Thermal))
	p.event.Store(int64(res.Index))
	p.calibrated.Store(energy.Calibrated)

	return Report{Output: out, Result: res, Energy: energy}
}

func (p *Player) track(res TickResult) analysis.EnergyFrame {
	if res.State != StateRunning || res.Waiting {
		return p.opts.Tracker.Advance(res.Elapsed)
	}
	// Ticks outpace the energy source; feed each sample to the tracker once.
	s, ok := p.opts.Energy.SampleAt(res.Elapsed)
	if !ok || (p.sampled && s.Seq == p.lastSeq) {
		return p.opts.Tracker.Advance(res.Elapsed)
	}
	p.sampled, p.lastSeq = true, s.Seq
	return p.opts.Tracker.Update(res.Elapsed, s.Energy)
}

func (p *Player) drainControl(t float64) {
	for {
		select {
		case cmd := <-p.control:
			p.apply(cmd, t)
		default:
			return
		}
	}
}

func (p *Player) apply(cmd command, t float64) {
	switch cmd.kind {
	case cmdPause:
		if p.sched.Pause(t) {
			applog.Infof("Player: paused at %.2fs", p.sched.Elapsed(t))
		}
	case cmdResume:
		if p.sched.Resume(t) {
			applog.Infof("Player: resumed at %.2fs", p.sched.Elapsed(t))
		}
	case cmdSwap:
		p.sched.Swap(cmd.script)
		p.script.Store(cmd.script)
		p.opts.Metrics.SetScriptEvents(len(cmd.script.Events))
		applog.Debugf("Player: script swapped (%d events)", len(cmd.script.Events))
	case cmdLatency:
		p.sched.SetLatencyOffset(cmd.value)
	}
}

func (p *Player) send(cmd command) {
	select {
	case p.control <- cmd:
	case <-p.finished:
	}
}

// Pause freezes the session clock from the next tick.
func (p *Player) Pause() { p.send(command{kind: cmdPause}) }

// Resume restarts the session clock from the next tick.
func (p *Player) Resume() { p.send(command{kind: cmdResume}) }

// Swap replaces the script from the next tick, keeping the session clock.
func (p *Player) Swap(script *light.LightScript) {
	if script != nil {
		p.send(command{kind: cmdSwap, script: script})
	}
}

// SetLatencyOffset changes latency compensation from the next tick.
func (p *Player) SetLatencyOffset(seconds float64) {
	p.send(command{kind: cmdLatency, value: seconds})
}

// Done is closed when the script completes or the player stops.
func (p *Player) Done() <-chan struct{} {
	return p.finished
}

func (p *Player) finish() {
	p.finishOnce.Do(func() { close(p.finished) })
}

// Stop ends the session: it raises the stopping guard, waits for the tick
// loop to exit and switches the sink off. Safe to call more than once. With
// an external tick source, call Stop once that source no longer ticks.
func (p *Player) Stop() error {
	p.stopping.Store(true)
	if p.opts.Tracker != nil {
		p.opts.Tracker.Stop()
	}

	p.mu.Lock()
	used := p.used
	if p.ticker != nil {
		p.stopOnce.Do(func() {
			applog.Debugf("Player: initiating stop sequence")
			close(p.doneChan)
			p.ticker.Stop()
			p.ticker = nil
		})
	}
	p.mu.Unlock()

	p.wg.Wait()
	defer p.finish()
	if !used {
		return nil
	}

	p.sched.Stop()
	p.state.Store(int32(p.sched.State()))
	p.intensityBits.Store(0)

	if err := p.sink.Stop(); err != nil {
		return fmt.Errorf("player: stop sink: %w", err)
	}
	applog.Infof("Player: stopped (%v)", p.sched.State())
	return nil
}

// Run starts script and blocks until it completes or ctx is cancelled, then
// stops the player. The returned state is Completed or Cancelled.
func (p *Player) Run(ctx context.Context, script *light.LightScript) (State, error) {
	if err := p.Start(script); err != nil {
		return StateIdle, err
	}
	select {
	case <-ctx.Done():
	case <-p.Done():
	}
	err := p.Stop()
	return p.Status().State, err
}

// Status returns the latest tick values. Safe from any goroutine.
func (p *Player) Status() Status {
	return Status{
		State:      State(p.state.Load()),
		Elapsed:    math.Float64frombits(p.elapsedBits.Load()),
		Intensity:  math.Float64frombits(p.intensityBits.Load()),
		Thermal:    ThermalStatus(p.thermal.Load()),
		Event:      int(p.event.Load()),
		Calibrated: p.calibrated.Load(),
		Script:     p.script.Load(),
	}
}
