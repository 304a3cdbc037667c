// SPDX-License-Identifier: MIT
package playback

import (
	"testing"

	"entrain/internal/light"

	"github.com/stretchr/testify/assert"
)

func activeAt(script *light.LightScript, elapsed float64) TickResult {
	return TickResult{Event: &script.Events[0], Index: 0, Elapsed: elapsed, State: StateRunning}
}

func TestComposeSquare(t *testing.T) {
	script := squareScript(10)
	full := ThermalReading{MaxIntensity: 1, Multiplier: 1}
	limits := light.DefaultSafetyLimits()

	on := Compose(script, activeAt(script, 0.01), full, 1, limits)
	assert.InDelta(t, 0.8, on.Intensity, 1e-12)
	assert.Equal(t, 10.0, on.Frequency)
	assert.Equal(t, ThermalNormal, on.Thermal)

	off := Compose(script, activeAt(script, 0.07), full, 1, limits)
	assert.Zero(t, off.Intensity)

	none := Compose(script, TickResult{Index: -1}, full, 1, limits)
	assert.Zero(t, none.Intensity)
}

func TestComposeZeroMultiplierForcesDark(t *testing.T) {
	limits := light.DefaultSafetyLimits()
	for _, w := range []light.Waveform{light.Square, light.Sine, light.Triangle} {
		for _, f := range []float64{1, 8, 20, 40, 60} {
			script := squareScript(10)
			script.Frequency = f
			script.Events[0].Waveform = w
			script.Events[0].Intensity = 1
			for el := 0.0; el < 2; el += 0.0013 {
				out := Compose(script, activeAt(script, el), ThermalReading{MaxIntensity: 1, Multiplier: 0}, 1, limits)
				if out.Intensity != 0 {
					t.Fatalf("%v at %v Hz, t=%v: intensity %v with zero multiplier", w, f, el, out.Intensity)
				}
				assert.Equal(t, ThermalShutoff, out.Thermal)
			}
		}
	}
}

func TestComposeClamps(t *testing.T) {
	script := squareScript(10)
	limits := light.DefaultSafetyLimits()

	hot := Compose(script, activeAt(script, 0.01), ThermalReading{MaxIntensity: 0.3, Multiplier: 1}, 1, limits)
	assert.InDelta(t, 0.3, hot.Intensity, 1e-12)
	assert.Equal(t, ThermalThrottled, hot.Thermal)

	limits.MaxIntensity = 0.5
	capped := Compose(script, activeAt(script, 0.01), ThermalReading{MaxIntensity: 1, Multiplier: 1}, 1, limits)
	assert.InDelta(t, 0.5, capped.Intensity, 1e-12)
}

func TestComposeModulation(t *testing.T) {
	script := squareScript(10)
	full := ThermalReading{MaxIntensity: 1, Multiplier: 1}
	limits := light.DefaultSafetyLimits()

	half := Compose(script, activeAt(script, 0.01), full, 0.5, limits)
	assert.InDelta(t, 0.4, half.Intensity, 1e-12)

	over := Compose(script, activeAt(script, 0.01), full, 3, limits)
	assert.InDelta(t, 0.8, over.Intensity, 1e-12)

	neg := Compose(script, activeAt(script, 0.01), full, -1, limits)
	assert.Zero(t, neg.Intensity)
}

func TestComposeHotPath(t *testing.T) {
	script := squareScript(10)
	res := activeAt(script, 1.234)
	full := ThermalReading{MaxIntensity: 1, Multiplier: 0.8}
	limits := light.DefaultSafetyLimits()
	allocs := testing.AllocsPerRun(1000, func() {
		Compose(script, res, full, 0.9, limits)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Compose, got %.1f", allocs)
	}
}
