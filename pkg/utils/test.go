// SPDX-License-Identifier: MIT
//
// Package utils holds signal generators and doubles shared by tests.
package utils

import (
	"math"
	"sync"

	"entrain/internal/transport"
)

// MockTransport records every frame it is sent.
type MockTransport struct {
	mu     sync.Mutex
	Frames []transport.Frame
	Err    error // Returned from Send when set.
	Closed bool
}

// Send records the frame.
func (m *MockTransport) Send(frame transport.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Frames = append(m.Frames, frame)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Snapshot returns a copy of the recorded frames.
func (m *MockTransport) Snapshot() []transport.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transport.Frame, len(m.Frames))
	copy(out, m.Frames)
	return out
}

// Last returns the most recent frame and whether one exists.
func (m *MockTransport) Last() (transport.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Frames) == 0 {
		return transport.Frame{}, false
	}
	return m.Frames[len(m.Frames)-1], true
}

var _ transport.Transport = (*MockTransport)(nil)

// ClickDuration is the length of one generated click in seconds.
const ClickDuration = 0.01

// GenerateClickTrack returns duration seconds of silence with a short
// decaying 1 kHz click every 60/bpm seconds, starting at offset.
func GenerateClickTrack(duration, sampleRate, bpm, offset float64) []float64 {
	n := int(duration * sampleRate)
	buffer := make([]float64, n)
	period := 60 / bpm
	clickLen := int(ClickDuration * sampleRate)

	for beat := offset; beat < duration; beat += period {
		start := int(beat * sampleRate)
		for i := 0; i < clickLen && start+i < n; i++ {
			tm := float64(i) / sampleRate
			env := math.Exp(-tm / (ClickDuration / 4))
			buffer[start+i] = 0.9 * env * math.Sin(2*math.Pi*1000*tm)
		}
	}
	return buffer
}

// ClickTimes returns the onset times GenerateClickTrack uses.
func ClickTimes(duration, bpm, offset float64) []float64 {
	var times []float64
	for beat := offset; beat < duration; beat += 60 / bpm {
		times = append(times, beat)
	}
	return times
}

// GenerateSineWave returns size samples of a unit-amplitude-scaled sine.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz tone with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
