// SPDX-License-Identifier: MIT
package light

import (
	"fmt"
	"math"
	"strings"
)

// Waveform selects the shape of one stimulation period.
type Waveform int

const (
	Square Waveform = iota
	Sine
	Triangle
)

func (w Waveform) String() string {
	switch w {
	case Square:
		return "square"
	case Sine:
		return "sine"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// ParseWaveform converts a case-insensitive name to a Waveform.
func ParseWaveform(name string) (Waveform, error) {
	switch strings.ToLower(name) {
	case "square":
		return Square, nil
	case "sine":
		return Sine, nil
	case "triangle":
		return Triangle, nil
	default:
		return Square, fmt.Errorf("unknown waveform: '%s'", name)
	}
}

// DutyFloor is the shortest on-fraction that still registers as a pulse.
const DutyFloor = 0.05

// Intensity returns the instantaneous output in [0,1] at absolute time t for
// a waveform pulsing at frequency Hz. Time is absolute session time, not time
// within an event, so the pulse rate follows the target frequency across
// event boundaries. A duty of 0 or less is a forced shutoff for every
// waveform; so is a non-positive frequency.
func Intensity(w Waveform, t, frequency, base, duty float64) float64 {
	if duty <= 0 || !(frequency > 0) || math.IsInf(frequency, 0) || !(base > 0) {
		return 0
	}
	base = math.Min(base, 1)
	if t < 0 || math.IsNaN(t) {
		t = 0
	}

	period := 1 / frequency
	switch w {
	case Sine:
		return base * (math.Sin(2*math.Pi*frequency*t) + 1) / 2
	case Triangle:
		phase := math.Mod(t, period) / period
		if phase < 0.5 {
			return base * phase * 2
		}
		return base * (1 - phase) * 2
	default:
		if math.Mod(t, period) < math.Min(duty, 1)*period {
			return base
		}
		return 0
	}
}

// DutyCycle returns the on-fraction for a target frequency. Higher
// frequencies get shorter pulses so edges stay sharp on slow actuators.
func DutyCycle(frequency float64) float64 {
	switch {
	case frequency <= 10:
		return 0.5
	case frequency <= 20:
		return 0.4
	case frequency <= 30:
		return 0.3
	default:
		return 0.25
	}
}

// ScaleDuty applies a thermal duty multiplier. The result never drops below
// DutyFloor, except that a multiplier of 0 or less returns exactly 0: off is
// the only safe answer when the governor asks for shutoff.
func ScaleDuty(duty, multiplier float64) float64 {
	if !(multiplier > 0) {
		return 0
	}
	d := duty * multiplier
	if math.IsInf(d, 1) || d > 1 {
		return 1
	}
	return math.Max(d, DutyFloor)
}
