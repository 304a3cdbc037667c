// SPDX-License-Identifier: MIT
package light

import (
	"fmt"
	"math"
	"strings"
)

// SinkKind is the class of output device. Torches cannot switch as fast as
// displays, so each kind has its own frequency ceiling.
type SinkKind int

const (
	SinkDisplay SinkKind = iota
	SinkTorch
)

func (k SinkKind) String() string {
	switch k {
	case SinkDisplay:
		return "display"
	case SinkTorch:
		return "torch"
	default:
		return fmt.Sprintf("SinkKind(%d)", int(k))
	}
}

// ParseSinkKind converts "torch" or "display".
func ParseSinkKind(name string) (SinkKind, error) {
	switch strings.ToLower(name) {
	case "display", "screen":
		return SinkDisplay, nil
	case "torch", "flashlight":
		return SinkTorch, nil
	default:
		return SinkDisplay, fmt.Errorf("unknown sink kind: '%s'", name)
	}
}

// SafetyLimits are the stimulation bounds. Min/Max and the sink ceiling are
// always enforced; the caution zone is advisory.
type SafetyLimits struct {
	MinFrequency   float64
	MaxFrequency   float64
	CautionLow     float64
	CautionHigh    float64
	TorchCeiling   float64
	DisplayCeiling float64
	MaxIntensity   float64
}

// DefaultSafetyLimits returns the built-in bounds.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MinFrequency:   1,
		MaxFrequency:   60,
		CautionLow:     3,
		CautionHigh:    30,
		TorchCeiling:   20,
		DisplayCeiling: 60,
		MaxIntensity:   1,
	}
}

// Ceiling returns the reliable maximum frequency for a sink kind.
func (l SafetyLimits) Ceiling(kind SinkKind) float64 {
	if kind == SinkTorch {
		return l.TorchCeiling
	}
	return l.DisplayCeiling
}

// Clamp bounds f to the absolute limits and the sink ceiling. When the
// ceiling is below the absolute minimum the minimum wins.
func (l SafetyLimits) Clamp(f float64, kind SinkKind) float64 {
	hi := l.MaxFrequency
	if c := l.Ceiling(kind); c > 0 && c < hi {
		hi = c
	}
	if hi < l.MinFrequency {
		hi = l.MinFrequency
	}
	if math.IsNaN(f) || f < l.MinFrequency {
		return l.MinFrequency
	}
	return math.Min(f, hi)
}

// InCautionZone reports whether f lies in the advisory range.
func (l SafetyLimits) InCautionZone(f float64) bool {
	return f >= l.CautionLow && f <= l.CautionHigh
}

// ClampIntensity bounds v to [0, MaxIntensity].
func (l SafetyLimits) ClampIntensity(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	limit := l.MaxIntensity
	if !(limit > 0) || limit > 1 {
		limit = 1
	}
	return math.Min(v, limit)
}

// FrequencyMapping is the result of mapping a tempo onto a mode's band.
type FrequencyMapping struct {
	BeatFrequency float64 // Tempo in Hz.
	Multiplier    int     // Integer harmonic of the beat; 0 when the tempo was unusable.
	Raw           float64 // BeatFrequency*Multiplier before safety clamping.
	Frequency     float64 // Final stimulation frequency.
	Clamped       bool    // Safety limits changed the frequency.
	Caution       bool    // Final frequency is in the advisory zone.
}

// MapFrequency picks the integer harmonic of the tempo that lands inside the
// mode's band, preferring the one closest to the mode's target (lowest
// harmonic on ties). When no harmonic fits, the nearest harmonic to the
// target is used. The result is then clamped to the safety limits.
func MapFrequency(bpm float64, mode ModeConfig, limits SafetyLimits, kind SinkKind) FrequencyMapping {
	m := FrequencyMapping{BeatFrequency: bpm / 60}
	target := mode.TargetFrequency
	if mode.Kind == Journey {
		target = mode.StartFrequency
	}

	beat := m.BeatFrequency
	switch {
	case !(beat > 0) || math.IsInf(beat, 0) || mode.Kind == Journey:
		m.Raw = target
	default:
		lo := int(math.Ceil(mode.BandLow / beat))
		hi := int(math.Floor(mode.BandHigh / beat))
		n := 0
		for c := max(lo, 1); c <= hi; c++ {
			if n == 0 || math.Abs(float64(c)*beat-target) < math.Abs(float64(n)*beat-target) {
				n = c
			}
		}
		if n == 0 {
			n = max(1, int(math.Round(target/beat)))
		}
		m.Multiplier = n
		m.Raw = float64(n) * beat
	}

	m.Frequency = limits.Clamp(m.Raw, kind)
	m.Clamped = m.Frequency != m.Raw
	m.Caution = limits.InCautionZone(m.Frequency)
	return m
}
