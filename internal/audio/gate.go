// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// noiseGate silences capture buffers whose peak stays at or below a
// threshold, so room noise does not feed the beat detector. Settings are
// atomic: the HTTP and CLI goroutines change them while the capture
// callback reads them.
type noiseGate struct {
	enabled atomic.Bool
	peak    atomic.Int32 // Threshold as an absolute sample amplitude.
}

// open reports whether buffer's peak amplitude passes the gate. The peak
// search is branchless.
func (g *noiseGate) open(buffer []int32) bool {
	if !g.enabled.Load() {
		return true
	}
	var peak int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - peak
		peak += (diff & (diff >> 31)) ^ diff
	}
	return peak > g.peak.Load()
}

// peakFor converts a [0,1] threshold to a sample amplitude. NaN and
// negative values open the gate fully.
func peakFor(threshold float64) int32 {
	switch {
	case !(threshold > 0):
		return 0
	case threshold >= 1:
		return math.MaxInt32
	}
	return int32(threshold * math.MaxInt32)
}

// EnableGate turns the noise gate on.
func (e *Engine) EnableGate() { e.gate.enabled.Store(true) }

// DisableGate lets every buffer through to analysis.
func (e *Engine) DisableGate() { e.gate.enabled.Store(false) }

// GateEnabled reports whether the gate is on.
func (e *Engine) GateEnabled() bool { return e.gate.enabled.Load() }

// SetGateThreshold sets the peak level, as a fraction of full scale, a
// buffer must exceed to reach analysis. 0 passes everything but digital
// silence; 1 blocks everything.
func (e *Engine) SetGateThreshold(threshold float64) {
	e.gate.peak.Store(peakFor(threshold))
}

// GateThreshold returns the threshold as a fraction of full scale.
func (e *Engine) GateThreshold() float64 {
	return float64(e.gate.peak.Load()) / math.MaxInt32
}
