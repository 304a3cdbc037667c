// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
)

// Typed analysis failures. They are raised before any script exists; the
// caller decides whether to retry, synthesise a script or abort.
var (
	ErrEmptyInput        = errors.New("analysis: empty sample stream")
	ErrNonFiniteInput    = errors.New("analysis: sample stream contains no finite samples")
	ErrInputTooLong      = errors.New("analysis: input exceeds maximum supported duration")
	ErrInvalidSampleRate = errors.New("analysis: sample rate must be positive")
)

// Outcome describes how an analysis run ended. Cancellation is an outcome,
// not an error.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeCancelled
	OutcomeDegraded // Onset engine unavailable; the beat list is empty but valid.
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// SampleStream is mono PCM in [-1,1] at a fixed sample rate. It is owned by
// the caller and read once.
type SampleStream struct {
	Samples    []float64
	SampleRate float64
}

// Duration returns the stream length in seconds.
func (s SampleStream) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / s.SampleRate
}

// Validate reports the first analysis failure for the stream, or nil.
// maxDuration <= 0 disables the length check.
func (s SampleStream) Validate(maxDuration float64) error {
	if s.SampleRate <= 0 || math.IsNaN(s.SampleRate) || math.IsInf(s.SampleRate, 0) {
		return ErrInvalidSampleRate
	}
	if len(s.Samples) == 0 {
		return ErrEmptyInput
	}
	if maxDuration > 0 && s.Duration() > maxDuration {
		return fmt.Errorf("%w: %.1fs > %.1fs", ErrInputTooLong, s.Duration(), maxDuration)
	}
	for _, v := range s.Samples {
		if isFinite(v) {
			return nil
		}
	}
	return ErrNonFiniteInput
}

// SpectrumSource turns one time-domain frame into a magnitude spectrum.
// The returned slice is owned by the source and valid until the next call.
type SpectrumSource interface {
	Magnitudes(frame []float64) []float64
	FrameSize() int
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
