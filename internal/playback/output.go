// SPDX-License-Identifier: MIT
package playback

import (
	"math"

	"entrain/internal/light"
)

// Output is the value written to the sink for one tick.
type Output struct {
	Intensity float64
	Color     light.Color
	HasColor  bool
	Frequency float64
	Thermal   ThermalStatus
}

// Compose turns a poll result into the intensity for this tick. modulation
// scales the waveform (1 when no audio-reactive tracker runs). The thermal
// reading clamps the result and scales the duty cycle; a multiplier of 0 or
// less forces exactly 0. Compose does not allocate.
func Compose(script *light.LightScript, res TickResult, thermal ThermalReading, modulation float64, limits light.SafetyLimits) Output {
	out := Output{Thermal: thermal.Status()}
	if res.Event == nil || script == nil {
		return out
	}
	e := res.Event
	out.Color = e.Color
	out.HasColor = e.HasColor
	out.Frequency = script.FrequencyOf(e)

	if !(thermal.Multiplier > 0) {
		return out
	}

	duty := light.ScaleDuty(light.DutyCycle(out.Frequency), thermal.Multiplier)
	v := light.Intensity(e.Waveform, res.Elapsed, out.Frequency, e.Intensity, duty)

	if math.IsNaN(modulation) || modulation < 0 {
		modulation = 0
	}
	v *= math.Min(modulation, 1)

	v = math.Min(v, math.Max(0, thermal.MaxIntensity))
	out.Intensity = limits.ClampIntensity(v)
	return out
}
