// SPDX-License-Identifier: MIT
package analysis

import (
	"sync/atomic"
)

// LiveSnapshot is an immutable view of live analysis state. The capture
// goroutine publishes a fresh snapshot; readers never see a partial update.
type LiveSnapshot struct {
	Version  uint64    // Incremented whenever Beats changes.
	Beats    []float64 // Read-only. Seconds since capture start.
	Energy   float64   // RMS of the latest capture buffer.
	Position float64   // Seconds of audio captured so far.
	Seq      uint64    // Set by Publish; increments on every publish.
}

var emptySnapshot = &LiveSnapshot{}

// LiveFeed hands live analysis results from the capture goroutine to the
// playback tick by atomically swapping snapshot pointers.
type LiveFeed struct {
	current atomic.Pointer[LiveSnapshot]
	seq     atomic.Uint64
}

// Publish stamps s with the next sequence number and makes it current. s
// must not be modified afterwards. Publish has a single caller, the
// capture goroutine.
func (f *LiveFeed) Publish(s *LiveSnapshot) {
	s.Seq = f.seq.Add(1)
	f.current.Store(s)
}

// Load returns the latest snapshot, never nil.
func (f *LiveFeed) Load() *LiveSnapshot {
	if s := f.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// SampleAt returns the most recent live energy; t is ignored because live
// energy is always "now". Seq is the snapshot sequence number.
func (f *LiveFeed) SampleAt(float64) (EnergySample, bool) {
	s := f.current.Load()
	if s == nil {
		return EnergySample{}, false
	}
	return EnergySample{Energy: s.Energy, Seq: s.Seq}, true
}

// EnergyAt returns the most recent live energy.
func (f *LiveFeed) EnergyAt(t float64) (float64, bool) {
	s, ok := f.SampleAt(t)
	return s.Energy, ok
}

var _ EnergySource = (*LiveFeed)(nil)
var _ EnergySource = Envelope{}
