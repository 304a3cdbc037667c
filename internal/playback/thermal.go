// SPDX-License-Identifier: MIT
package playback

import (
	"math"
	"sync/atomic"
)

// ThermalGovernor limits output to protect the device. MaxIntensity is in
// [0,1]; DutyCycleMultiplier is in [0,∞) and a value of 0 or less forces the
// light off.
type ThermalGovernor interface {
	MaxIntensity() float64
	DutyCycleMultiplier() float64
}

// ThermalStatus summarises a governor reading for callers and the UI.
type ThermalStatus int

const (
	ThermalNormal ThermalStatus = iota
	ThermalThrottled
	ThermalShutoff
)

func (s ThermalStatus) String() string {
	switch s {
	case ThermalNormal:
		return "normal"
	case ThermalThrottled:
		return "throttled"
	case ThermalShutoff:
		return "shutoff"
	default:
		return "unknown"
	}
}

// ThermalReading is one snapshot of a governor.
type ThermalReading struct {
	MaxIntensity float64
	Multiplier   float64
}

// Status classifies the reading.
func (r ThermalReading) Status() ThermalStatus {
	switch {
	case !(r.Multiplier > 0) || !(r.MaxIntensity > 0):
		return ThermalShutoff
	case r.Multiplier < 1 || r.MaxIntensity < 1:
		return ThermalThrottled
	default:
		return ThermalNormal
	}
}

// ReadThermal samples g. A nil governor reads as unrestricted. Governors
// that publish whole snapshots are read in one load.
func ReadThermal(g ThermalGovernor) ThermalReading {
	if g == nil {
		return ThermalReading{MaxIntensity: 1, Multiplier: 1}
	}
	if s, ok := g.(interface{ Reading() ThermalReading }); ok {
		return s.Reading()
	}
	return ThermalReading{MaxIntensity: g.MaxIntensity(), Multiplier: g.DutyCycleMultiplier()}
}

// ThermalStatusOf reports the current status of g.
func ThermalStatusOf(g ThermalGovernor) ThermalStatus {
	return ReadThermal(g).Status()
}

// StaticGovernor returns fixed values.
type StaticGovernor struct {
	Max        float64
	Multiplier float64
}

// Unrestricted returns a governor that never limits output.
func Unrestricted() StaticGovernor {
	return StaticGovernor{Max: 1, Multiplier: 1}
}

func (g StaticGovernor) MaxIntensity() float64        { return g.Max }
func (g StaticGovernor) DutyCycleMultiplier() float64 { return g.Multiplier }

// ThermalState is a governor fed by an external thermal signal. Set may be
// called from any goroutine; readers always see a consistent pair.
type ThermalState struct {
	current atomic.Pointer[ThermalReading]
}

// NewThermalState starts unrestricted.
func NewThermalState() *ThermalState {
	s := &ThermalState{}
	s.Set(1, 1)
	return s
}

// Set publishes a new reading. Values are sanitised to their valid ranges.
func (s *ThermalState) Set(maxIntensity, multiplier float64) {
	if math.IsNaN(maxIntensity) {
		maxIntensity = 0
	}
	if math.IsNaN(multiplier) || multiplier < 0 {
		multiplier = 0
	}
	s.current.Store(&ThermalReading{
		MaxIntensity: math.Max(0, math.Min(maxIntensity, 1)),
		Multiplier:   multiplier,
	})
}

// Reading returns the latest snapshot.
func (s *ThermalState) Reading() ThermalReading {
	if r := s.current.Load(); r != nil {
		return *r
	}
	return ThermalReading{MaxIntensity: 1, Multiplier: 1}
}

func (s *ThermalState) MaxIntensity() float64        { return s.Reading().MaxIntensity }
func (s *ThermalState) DutyCycleMultiplier() float64 { return s.Reading().Multiplier }

var (
	_ ThermalGovernor = StaticGovernor{}
	_ ThermalGovernor = (*ThermalState)(nil)
)
