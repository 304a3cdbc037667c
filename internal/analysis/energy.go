// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"
	"sync/atomic"
	"time"

	applog "entrain/internal/log"

	"gonum.org/v1/gonum/stat"
)

// EnergySample is one energy reading. Reads that return the same Seq saw
// the same underlying sample.
type EnergySample struct {
	Energy float64
	Seq    uint64
}

// EnergySource yields the signal energy at a playback time.
type EnergySource interface {
	SampleAt(t float64) (EnergySample, bool)
}

// Envelope is a precomputed RMS energy curve for a file session.
type Envelope struct {
	Values []float64
	Hop    float64 // Seconds per value.
}

// ComputeEnvelope returns the RMS of consecutive hopSize blocks.
func ComputeEnvelope(stream SampleStream, hopSize int) Envelope {
	if hopSize <= 0 || stream.SampleRate <= 0 || len(stream.Samples) == 0 {
		return Envelope{}
	}
	n := (len(stream.Samples) + hopSize - 1) / hopSize
	values := make([]float64, n)
	for i := range n {
		start := i * hopSize
		end := min(start+hopSize, len(stream.Samples))
		values[i] = RMS(stream.Samples[start:end])
	}
	return Envelope{Values: values, Hop: float64(hopSize) / stream.SampleRate}
}

// SampleAt implements EnergySource. Seq is the hop index.
func (e Envelope) SampleAt(t float64) (EnergySample, bool) {
	if e.Hop <= 0 || t < 0 {
		return EnergySample{}, false
	}
	i := int(t / e.Hop)
	if i >= len(e.Values) {
		return EnergySample{}, false
	}
	return EnergySample{Energy: e.Values[i], Seq: uint64(i)}, true
}

// EnergyAt returns the envelope value at t.
func (e Envelope) EnergyAt(t float64) (float64, bool) {
	s, ok := e.SampleAt(t)
	return s.Energy, ok
}

// RMS returns the root mean square of finite samples.
func RMS(samples []float64) float64 {
	var sum float64
	var n int
	for _, v := range samples {
		if isFinite(v) {
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// CalibrationPhase is the state of the flash-threshold calibration.
type CalibrationPhase int

const (
	CalibrationNotStarted CalibrationPhase = iota
	CalibrationCollecting
	CalibrationCalibrated
)

func (p CalibrationPhase) String() string {
	switch p {
	case CalibrationNotStarted:
		return "not-started"
	case CalibrationCollecting:
		return "collecting"
	case CalibrationCalibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// Defaults used when calibration collected nothing.
const (
	DefaultCalibrationMultiplier = 1.5
	DefaultCalibrationFloor      = 0.01
)

// Calibration picks the flash threshold multiplier from the dynamic range
// seen during a fixed window. It always terminates: once the window has
// elapsed it is Calibrated, with defaults if no samples arrived.
type Calibration struct {
	phase   CalibrationPhase
	window  float64
	start   float64
	samples []float64

	Multiplier   float64
	Floor        float64
	UsedDefaults bool
}

// NewCalibration creates a calibration with a window in seconds.
func NewCalibration(window float64) *Calibration {
	return &Calibration{window: window}
}

// Phase returns the current phase.
func (c *Calibration) Phase() CalibrationPhase {
	return c.phase
}

// Calibrated reports whether thresholds are fixed.
func (c *Calibration) Calibrated() bool {
	return c.phase == CalibrationCalibrated
}

// Tick advances the state machine to now without a sample.
func (c *Calibration) Tick(now float64) {
	switch c.phase {
	case CalibrationNotStarted:
		c.phase = CalibrationCollecting
		c.start = now
		c.samples = make([]float64, 0, 256)
		fallthrough
	case CalibrationCollecting:
		if now-c.start >= c.window {
			c.finish()
		}
	}
}

// Observe advances to now and records energy while collecting.
func (c *Calibration) Observe(now, energy float64) {
	c.Tick(now)
	if c.phase == CalibrationCollecting {
		c.samples = append(c.samples, energy)
	}
}

func (c *Calibration) finish() {
	c.phase = CalibrationCalibrated
	if len(c.samples) == 0 {
		c.Multiplier = DefaultCalibrationMultiplier
		c.Floor = DefaultCalibrationFloor
		c.UsedDefaults = true
		c.samples = nil
		applog.Infof("Cinematic: calibration window elapsed with no samples, using defaults (x%.2f)", c.Multiplier)
		return
	}

	sorted := slices.Clone(c.samples)
	slices.Sort(sorted)
	p10 := stat.Quantile(0.1, stat.Empirical, sorted, nil)
	p90 := stat.Quantile(0.9, stat.Empirical, sorted, nil)
	mean := stat.Mean(sorted, nil)

	spread := 0.0
	if mean > 1e-9 {
		spread = (p90 - p10) / mean
	}
	// Compressed material needs a lower bar to flash at all; dynamic
	// material needs a higher one to avoid flashing constantly.
	switch {
	case spread < 0.5:
		c.Multiplier = 1.0
	case spread < 1.0:
		c.Multiplier = 1.5
	default:
		c.Multiplier = 2.0
	}
	c.Floor = p10
	c.samples = nil
	applog.Infof("Cinematic: calibrated from %d samples (spread %.2f, x%.2f, floor %.4f)", len(sorted), spread, c.Multiplier, c.Floor)
}

// historySlack absorbs float drift in tick times against HistoryInterval.
const historySlack = 1e-9

// TrackerOptions tunes the cinematic energy tracker. Durations are seconds.
// The normalisation history and the flash threshold's long-term window hold
// one sample per HistoryInterval, so they span HistorySize*HistoryInterval
// seconds regardless of how often energy arrives.
type TrackerOptions struct {
	SmoothingSize     int
	HistorySize       int
	HistoryInterval   float64 // 0 records every sample.
	LocalSize         int
	Exponent          float64
	CalibrationWindow float64
	PulseDuration     float64
	Cooldown          float64
	AbsoluteScale     float64 // Fallback normalisation when the history range is flat.
	MinRange          float64 // History range below this is considered flat.
}

// DefaultTrackerOptions returns the cinematic defaults.
func DefaultTrackerOptions() TrackerOptions {
	return TrackerOptions{
		SmoothingSize:     6,
		HistorySize:       150,
		HistoryInterval:   0.1,
		LocalSize:         4,
		Exponent:          0.65,
		CalibrationWindow: 3,
		PulseDuration:     0.065,
		Cooldown:          0.1,
		AbsoluteScale:     0.3,
		MinRange:          1e-3,
	}
}

// TrackerOptionsFrom converts duration-typed settings.
func TrackerOptionsFrom(smoothing, history int, interval time.Duration, exponent float64, calibration, pulse, cooldown time.Duration) TrackerOptions {
	opts := DefaultTrackerOptions()
	opts.SmoothingSize = smoothing
	opts.HistorySize = history
	opts.HistoryInterval = interval.Seconds()
	opts.Exponent = exponent
	opts.CalibrationWindow = calibration.Seconds()
	opts.PulseDuration = pulse.Seconds()
	opts.Cooldown = cooldown.Seconds()
	return opts
}

// EnergyFrame is the tracker output for one tick.
type EnergyFrame struct {
	Level      float64 // Continuous contrast-stretched level in [0,1].
	Flash      float64 // Decaying flash pulse in [0,1].
	Peak       bool    // A flash was triggered on this tick.
	Calibrated bool
}

// Modulation is the factor applied to the light output.
func (f EnergyFrame) Modulation() float64 {
	return math.Max(f.Level, f.Flash)
}

// EnergyTracker turns a stream of energy samples into a continuous level
// and discrete flashes. It is owned by the tick goroutine; Stop may be
// called from any goroutine and makes every later Update a no-op.
type EnergyTracker struct {
	opts     TrackerOptions
	smooth   *ring
	history  *ring
	local    *ring
	longTerm *ring
	calib    *Calibration

	lastLevel   float64
	lastPeak    float64
	lastHistory float64
	pulseStart  float64
	pulsing     bool

	stopping atomic.Bool
}

// NewEnergyTracker creates a tracker in the NotStarted calibration phase.
func NewEnergyTracker(opts TrackerOptions) *EnergyTracker {
	if opts.LocalSize <= 0 {
		opts.LocalSize = 4
	}
	if opts.AbsoluteScale <= 0 {
		opts.AbsoluteScale = 0.3
	}
	return &EnergyTracker{
		opts:     opts,
		smooth:   newRing(opts.SmoothingSize),
		history:  newRing(opts.HistorySize),
		local:    newRing(opts.LocalSize),
		longTerm: newRing(opts.HistorySize),
		calib:    NewCalibration(opts.CalibrationWindow),
		lastPeak: math.Inf(-1),

		lastHistory: math.Inf(-1),
	}
}

// Update ingests a new energy sample observed at session time now
// (seconds). Call it once per sample; use Advance when time moves on
// without one.
func (t *EnergyTracker) Update(now, energy float64) EnergyFrame {
	if t.stopping.Load() {
		return EnergyFrame{}
	}
	if !isFinite(energy) || energy < 0 {
		energy = 0
	}

	t.calib.Observe(now, energy)

	t.smooth.push(energy)
	smoothed := t.smooth.mean()
	if d := now - t.lastHistory; d < 0 || d >= t.opts.HistoryInterval-historySlack {
		t.history.push(smoothed)
		t.longTerm.push(energy)
		t.lastHistory = now
	}

	lo, hi := t.history.minMax()
	lo, hi = math.Min(lo, smoothed), math.Max(hi, smoothed)
	var norm float64
	if hi-lo > t.opts.MinRange {
		norm = clamp((smoothed-lo)/(hi-lo), 0, 1)
	} else {
		norm = clamp(smoothed/t.opts.AbsoluteScale, 0, 1)
	}
	t.lastLevel = ContrastStretch(math.Pow(norm, t.opts.Exponent))

	t.local.push(energy)

	peak := false
	if t.calib.Calibrated() {
		mean, std := meanStd(t.longTerm.values())
		threshold := math.Max(mean+t.calib.Multiplier*std, t.calib.Floor)
		if t.local.mean() > threshold && now-t.lastPeak >= t.opts.Cooldown {
			t.lastPeak = now
			t.pulseStart = now
			t.pulsing = true
			peak = true
		}
	}

	return EnergyFrame{
		Level:      t.lastLevel,
		Flash:      t.pulseLevel(now),
		Peak:       peak,
		Calibrated: t.calib.Calibrated(),
	}
}

// Advance moves time forward without a new sample, keeping calibration live
// and letting an active flash decay.
func (t *EnergyTracker) Advance(now float64) EnergyFrame {
	if t.stopping.Load() {
		return EnergyFrame{}
	}
	t.calib.Tick(now)
	return EnergyFrame{
		Level:      t.lastLevel,
		Flash:      t.pulseLevel(now),
		Calibrated: t.calib.Calibrated(),
	}
}

func (t *EnergyTracker) pulseLevel(now float64) float64 {
	if !t.pulsing {
		return 0
	}
	if t.opts.PulseDuration <= 0 {
		t.pulsing = false
		return 0
	}
	v := 1 - (now-t.pulseStart)/t.opts.PulseDuration
	if v <= 0 {
		t.pulsing = false
		return 0
	}
	return math.Min(v, 1)
}

// Calibration exposes the calibration state.
func (t *EnergyTracker) Calibration() *Calibration {
	return t.calib
}

// Stop raises the teardown guard.
func (t *EnergyTracker) Stop() {
	t.stopping.Store(true)
}

// Stopping reports whether Stop was called.
func (t *EnergyTracker) Stopping() bool {
	return t.stopping.Load()
}

// Reset clears all history and calibration for a new session. Only call it
// when no tick is in flight.
func (t *EnergyTracker) Reset() {
	t.smooth.reset()
	t.history.reset()
	t.local.reset()
	t.longTerm.reset()
	t.calib = NewCalibration(t.opts.CalibrationWindow)
	t.lastLevel = 0
	t.lastPeak = math.Inf(-1)
	t.lastHistory = math.Inf(-1)
	t.pulsing = false
	t.stopping.Store(false)
}

// ContrastStretch maps [0,1] through three linear segments so that quiet
// passages stay dim and loud ones are pushed towards full output.
func ContrastStretch(x float64) float64 {
	x = clamp(x, 0, 1)
	switch {
	case x < 0.3:
		return x * 0.5
	case x < 0.75:
		return 0.15 + (x-0.3)*(0.55/0.45)
	default:
		return 0.70 + (x-0.75)*1.2
	}
}
