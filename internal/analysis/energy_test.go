// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationTerminatesWithoutSamples(t *testing.T) {
	c := NewCalibration(3)
	assert.Equal(t, CalibrationNotStarted, c.Phase())

	c.Tick(0)
	assert.Equal(t, CalibrationCollecting, c.Phase())

	c.Tick(2.99)
	assert.False(t, c.Calibrated())

	c.Tick(3)
	require.True(t, c.Calibrated())
	assert.True(t, c.UsedDefaults)
	assert.Equal(t, DefaultCalibrationMultiplier, c.Multiplier)
	assert.Equal(t, DefaultCalibrationFloor, c.Floor)
}

func TestCalibrationMultiplierFollowsDynamics(t *testing.T) {
	tests := []struct {
		name   string
		energy func(i int) float64
		want   float64
	}{
		{"compressed", func(int) float64 { return 0.2 }, 1.0},
		{"dynamic", func(i int) float64 {
			if i%2 == 0 {
				return 0.01
			}
			return 1.0
		}, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCalibration(1)
			for i := 0; i <= 100; i++ {
				c.Observe(float64(i)*0.01, tt.energy(i))
			}
			require.True(t, c.Calibrated())
			assert.False(t, c.UsedDefaults)
			assert.Equal(t, tt.want, c.Multiplier)
		})
	}
}

func TestTrackerCalibratesOnAdvanceAlone(t *testing.T) {
	tr := NewEnergyTracker(DefaultTrackerOptions())
	for i := 0; i <= 300; i++ {
		tr.Advance(float64(i) * 0.01)
	}
	f := tr.Advance(3.01)
	assert.True(t, f.Calibrated)
	assert.True(t, tr.Calibration().UsedDefaults)
}

func TestTrackerFlashAndCooldown(t *testing.T) {
	tr := NewEnergyTracker(DefaultTrackerOptions())
	const quiet, loud = 0.0625, 0.9

	at := func(i int) float64 { return float64(i) * 0.01 }
	for i := range 400 {
		f := tr.Update(at(i), quiet)
		require.False(t, f.Peak, "steady input must not flash (tick %d)", i)
	}
	require.True(t, tr.Calibration().Calibrated())

	peaks := 0
	var frames []EnergyFrame
	for i := 400; i < 500; i++ {
		e := quiet
		if i < 405 {
			e = loud
		}
		f := tr.Update(at(i), e)
		frames = append(frames, f)
		if f.Peak {
			peaks++
		}
	}

	assert.Equal(t, 1, peaks)
	assert.True(t, frames[0].Peak)
	assert.InDelta(t, 1.0, frames[0].Flash, 1e-9)
	assert.InDelta(t, 1-0.03/0.065, frames[3].Flash, 1e-6)
	assert.Zero(t, frames[7].Flash)
	assert.GreaterOrEqual(t, frames[0].Modulation(), frames[0].Level)
}

func TestTrackerLevelFollowsRange(t *testing.T) {
	tr := NewEnergyTracker(DefaultTrackerOptions())
	var f EnergyFrame
	for i := range 40 {
		f = tr.Update(float64(i)*0.01, float64(i)/40)
		assert.GreaterOrEqual(t, f.Level, 0.0)
		assert.LessOrEqual(t, f.Level, 1.0)
	}
	assert.InDelta(t, 1.0, f.Level, 1e-9, "newest value is the loudest seen")
}

func TestTrackerHistorySpansSeconds(t *testing.T) {
	tr := NewEnergyTracker(DefaultTrackerOptions())
	const tick = 0.004

	now := 0.0
	for ; now < 2; now += tick {
		tr.Update(now, 0.5)
	}
	var f EnergyFrame
	for ; now < 3; now += tick {
		f = tr.Update(now, 0.05)
	}

	lo, hi := tr.history.minMax()
	assert.InDelta(t, 0.05, lo, 1e-9)
	assert.InDelta(t, 0.5, hi, 1e-9, "the loud passage a second back still bounds the range")
	assert.Less(t, f.Level, 0.01, "the quiet passage reads near the bottom of the range")
	assert.LessOrEqual(t, tr.history.len(), 31)
}

func TestTrackerStopGuard(t *testing.T) {
	tr := NewEnergyTracker(DefaultTrackerOptions())
	tr.Stop()
	assert.True(t, tr.Stopping())

	assert.Equal(t, EnergyFrame{}, tr.Update(0, 0.5))
	assert.Equal(t, EnergyFrame{}, tr.Advance(10))
	assert.Equal(t, CalibrationNotStarted, tr.Calibration().Phase(), "stopped tracker must not mutate")

	tr.Reset()
	assert.False(t, tr.Stopping())
	tr.Update(0, 0.5)
	assert.Equal(t, CalibrationCollecting, tr.Calibration().Phase())
}

func TestTrackerOptionsFrom(t *testing.T) {
	opts := TrackerOptionsFrom(8, 100, 50*time.Millisecond, 0.5, 2*time.Second, 50*time.Millisecond, 200*time.Millisecond)
	assert.Equal(t, 8, opts.SmoothingSize)
	assert.Equal(t, 100, opts.HistorySize)
	assert.InDelta(t, 0.05, opts.HistoryInterval, 1e-12)
	assert.InDelta(t, 2.0, opts.CalibrationWindow, 1e-12)
	assert.InDelta(t, 0.05, opts.PulseDuration, 1e-12)
	assert.InDelta(t, 0.2, opts.Cooldown, 1e-12)
}

func TestContrastStretch(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-1, 0},
		{0, 0},
		{0.3, 0.15},
		{0.75, 0.70},
		{1, 1},
		{2, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ContrastStretch(tt.in), 1e-9, "ContrastStretch(%v)", tt.in)
	}

	prev := -1.0
	for i := 0; i <= 100; i++ {
		v := ContrastStretch(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestEnvelope(t *testing.T) {
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = 0.5
		if i%2 == 1 {
			samples[i] = -0.5
		}
	}
	env := ComputeEnvelope(SampleStream{Samples: samples, SampleRate: 1000}, 100)
	require.Len(t, env.Values, 10)
	assert.InDelta(t, 0.1, env.Hop, 1e-12)

	e, ok := env.EnergyAt(0.55)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, e, 1e-12)

	s1, _ := env.SampleAt(0.51)
	s2, _ := env.SampleAt(0.59)
	s3, _ := env.SampleAt(0.61)
	assert.Equal(t, uint64(5), s1.Seq)
	assert.Equal(t, s1.Seq, s2.Seq, "same hop")
	assert.NotEqual(t, s2.Seq, s3.Seq)

	_, ok = env.EnergyAt(1.05)
	assert.False(t, ok)
	_, ok = env.EnergyAt(-0.1)
	assert.False(t, ok)

	assert.Empty(t, ComputeEnvelope(SampleStream{}, 100).Values)
}

func TestLiveFeed(t *testing.T) {
	var feed LiveFeed
	require.NotNil(t, feed.Load())
	_, ok := feed.EnergyAt(0)
	assert.False(t, ok)

	feed.Publish(&LiveSnapshot{Version: 2, Beats: []float64{0.5, 1.0}, Energy: 0.3, Position: 1.2})
	snap := feed.Load()
	assert.Equal(t, uint64(2), snap.Version)
	assert.Len(t, snap.Beats, 2)

	e, ok := feed.EnergyAt(99)
	assert.True(t, ok)
	assert.Equal(t, 0.3, e)

	first, _ := feed.SampleAt(0)
	again, _ := feed.SampleAt(1)
	assert.Equal(t, first.Seq, again.Seq, "no publish in between")
	feed.Publish(&LiveSnapshot{Version: 2, Energy: 0.3})
	next, _ := feed.SampleAt(2)
	assert.Equal(t, first.Seq+1, next.Seq, "equal energy is still a new sample")
}
