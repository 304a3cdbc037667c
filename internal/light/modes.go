// SPDX-License-Identifier: MIT
package light

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidMode is returned for unknown or malformed mode configurations.
var ErrInvalidMode = errors.New("light: invalid mode")

// ModeKind controls how a script is built for a mode.
type ModeKind int

const (
	// Pulsed modes emit one full-period flash per beat; the light is off
	// between flashes.
	Pulsed ModeKind = iota
	// Continuous modes keep an event active from the start of the script to
	// its end. Any gap is a generation defect.
	Continuous
	// Journey modes ignore the audio and follow a fixed phase timeline.
	Journey
)

func (k ModeKind) String() string {
	switch k {
	case Pulsed:
		return "pulsed"
	case Continuous:
		return "continuous"
	case Journey:
		return "journey"
	default:
		return fmt.Sprintf("ModeKind(%d)", int(k))
	}
}

// Color is an 8-bit RGB value for sinks that can show colour.
type Color struct {
	R, G, B uint8
}

// Phase is one segment of a journey timeline. The frequency ramps linearly
// from StartFrequency to EndFrequency in steps of StepDuration. When
// AltIntensity is set, consecutive steps alternate between Intensity and
// AltIntensity.
type Phase struct {
	Name           string
	Duration       float64 // Seconds.
	StartFrequency float64
	EndFrequency   float64
	Intensity      float64
	AltIntensity   float64
	Waveform       Waveform
}

// ModeConfig is the immutable description of one stimulation mode.
type ModeConfig struct {
	Name            string
	Label           string
	Icon            string
	Kind            ModeKind
	BandLow         float64 // Target band in Hz.
	BandHigh        float64
	TargetFrequency float64 // Preferred frequency inside the band.
	StartFrequency  float64 // Journeys: frequency of the first step.
	RampDuration    float64 // Journeys: length of the opening ramp, seconds.
	Waveform        Waveform
	BaseIntensity   float64
	Color           Color
	HasColor        bool
	StepDuration    float64 // Journeys: seconds per emitted event.
	Phases          []Phase
	AudioReactive   bool // Output follows live audio energy.
}

// Validate checks the mode for internal consistency.
func (m ModeConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMode)
	}
	if !(m.BaseIntensity > 0 && m.BaseIntensity <= 1) && m.Kind != Journey {
		return fmt.Errorf("%w: %s base intensity %.2f outside (0,1]", ErrInvalidMode, m.Name, m.BaseIntensity)
	}
	switch m.Kind {
	case Pulsed, Continuous:
		if !(m.BandLow > 0 && m.BandLow <= m.BandHigh) {
			return fmt.Errorf("%w: %s band [%.1f, %.1f]", ErrInvalidMode, m.Name, m.BandLow, m.BandHigh)
		}
		if m.TargetFrequency < m.BandLow || m.TargetFrequency > m.BandHigh {
			return fmt.Errorf("%w: %s target %.1f Hz outside its band", ErrInvalidMode, m.Name, m.TargetFrequency)
		}
	case Journey:
		if len(m.Phases) == 0 || !(m.StepDuration > 0) {
			return fmt.Errorf("%w: %s has no timeline", ErrInvalidMode, m.Name)
		}
		for _, p := range m.Phases {
			if !(p.Duration > 0) || !(p.StartFrequency > 0) || !(p.EndFrequency > 0) {
				return fmt.Errorf("%w: %s phase %q", ErrInvalidMode, m.Name, p.Name)
			}
		}
	default:
		return fmt.Errorf("%w: %s kind %v", ErrInvalidMode, m.Name, m.Kind)
	}
	return nil
}

// Duration of a journey timeline in seconds; 0 for audio-driven modes.
func (m ModeConfig) Duration() float64 {
	var total float64
	for _, p := range m.Phases {
		total += p.Duration
	}
	return total
}

var catalogue = []ModeConfig{
	{
		Name: "alpha", Label: "Alpha · Relax", Icon: "α",
		Kind: Continuous, BandLow: 8, BandHigh: 12, TargetFrequency: 10,
		Waveform: Sine, BaseIntensity: 0.8,
		Color: Color{R: 90, G: 140, B: 255}, HasColor: true,
	},
	{
		Name: "theta", Label: "Theta · Drift", Icon: "θ",
		Kind: Continuous, BandLow: 4, BandHigh: 8, TargetFrequency: 6,
		Waveform: Sine, BaseIntensity: 0.7,
		Color: Color{R: 150, G: 90, B: 230}, HasColor: true,
	},
	{
		Name: "gamma", Label: "Gamma · Focus", Icon: "γ",
		Kind: Pulsed, BandLow: 30, BandHigh: 40, TargetFrequency: 40,
		Waveform: Square, BaseIntensity: 0.9,
		Color: Color{R: 255, G: 255, B: 255}, HasColor: true,
	},
	{
		Name: "cinematic", Label: "Cinematic", Icon: "◐",
		Kind: Continuous, BandLow: 5.5, BandHigh: 7.5, TargetFrequency: 6.5,
		Waveform: Sine, BaseIntensity: 1.0,
		Color: Color{R: 255, G: 170, B: 80}, HasColor: true,
		AudioReactive: true,
	},
	{
		Name: "journey-descent", Label: "Journey · Descent", Icon: "↓",
		Kind: Journey, StartFrequency: 12, RampDuration: 240, StepDuration: 10,
		Waveform: Sine, BaseIntensity: 0.8,
		Color: Color{R: 60, G: 120, B: 255}, HasColor: true,
		Phases: []Phase{
			{Name: "descent", Duration: 240, StartFrequency: 12, EndFrequency: 6, Intensity: 0.8, Waveform: Sine},
			{Name: "hold", Duration: 480, StartFrequency: 5, EndFrequency: 5, Intensity: 0.7, AltIntensity: 0.5, Waveform: Sine},
			{Name: "peak", Duration: 60, StartFrequency: 40, EndFrequency: 40, Intensity: 0.6, Waveform: Square},
			{Name: "return", Duration: 180, StartFrequency: 6, EndFrequency: 10, Intensity: 0.7, Waveform: Sine},
		},
	},
	{
		Name: "journey-drift", Label: "Journey · Drift", Icon: "~",
		Kind: Journey, StartFrequency: 10, RampDuration: 120, StepDuration: 5,
		Waveform: Triangle, BaseIntensity: 0.7,
		Color: Color{R: 120, G: 200, B: 180}, HasColor: true,
		Phases: []Phase{
			{Name: "descent", Duration: 120, StartFrequency: 10, EndFrequency: 7, Intensity: 0.7, Waveform: Triangle},
			{Name: "hold", Duration: 300, StartFrequency: 6, EndFrequency: 6, Intensity: 0.6, AltIntensity: 0.45, Waveform: Sine},
			{Name: "peak", Duration: 30, StartFrequency: 30, EndFrequency: 30, Intensity: 0.5, Waveform: Square},
			{Name: "return", Duration: 120, StartFrequency: 7, EndFrequency: 10, Intensity: 0.7, Waveform: Triangle},
		},
	},
}

// Modes returns the available modes in display order. The slice is a copy.
func Modes() []ModeConfig {
	out := make([]ModeConfig, len(catalogue))
	for i, m := range catalogue {
		m.Phases = slices.Clone(m.Phases)
		out[i] = m
	}
	return out
}

// LookupMode finds a mode by case-insensitive name.
func LookupMode(name string) (ModeConfig, error) {
	for _, m := range catalogue {
		if strings.EqualFold(m.Name, name) {
			m.Phases = slices.Clone(m.Phases)
			return m, nil
		}
	}
	return ModeConfig{}, fmt.Errorf("%w: unknown mode '%s'", ErrInvalidMode, name)
}
