// SPDX-License-Identifier: MIT
/*
Package audio provides the audio inputs of a session:
- WAV file decoding into an analysis.SampleStream
- Live capture using PortAudio feeding the streaming beat detector
- Noise gate with branchless implementation
- WAV recording of the live input with atomic state management

Thread Safety:
- Capture state is owned by the PortAudio callback
- Results reach other goroutines only through analysis.LiveFeed snapshots
- Pre-allocates buffers to avoid GC in hot path
*/
package audio

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"entrain/internal/analysis"
	"entrain/internal/config"
	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/playback"

	"github.com/gordonklaus/portaudio"
)

// Engine captures microphone input and runs live beat and energy analysis.
type Engine struct {
	// Core configuration and state.
	config   config.AudioConfig
	channels int
	metrics  *metrics.Metrics

	// Audio input handling.
	inputBuffer  []int32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	running      atomic.Bool
	frames       atomic.Int64 // Mono frames captured since start.

	// Live analysis, owned by the capture callback.
	detector  *analysis.StreamingBeatDetector
	feed      *analysis.LiveFeed
	monoInput []float64
	newBeats  []float64
	beats     []float64 // Last published beat list, never mutated.
	version   uint64

	gate noiseGate

	rec recorder
}

var _ playback.AudioClock = (*Engine)(nil)

// NewEngine resolves the input device and prepares a capture engine that
// publishes to feed. PortAudio must be initialized.
func NewEngine(cfg config.AudioConfig, opts analysis.DetectorOptions, feed *analysis.LiveFeed, m *metrics.Metrics) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	if cfg.InputChannels > inputDevice.MaxInputChannels {
		return nil, fmt.Errorf("device %s has %d input channels, %d requested",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.InputChannels)
	}

	e := newEngine(cfg, opts, feed, m)
	e.inputDevice = inputDevice
	if cfg.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return e, nil
}

// newEngine builds the device-independent part of the engine.
func newEngine(cfg config.AudioConfig, opts analysis.DetectorOptions, feed *analysis.LiveFeed, m *metrics.Metrics) *Engine {
	channels := max(cfg.InputChannels, 1)
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 512
	}
	if feed == nil {
		feed = &analysis.LiveFeed{}
	}

	e := &Engine{
		config:      cfg,
		channels:    channels,
		metrics:     m,
		inputBuffer: make([]int32, cfg.FramesPerBuffer*channels),
		detector:    analysis.NewStreamingBeatDetector(opts, cfg.SampleRate, nil),
		feed:        feed,
		monoInput:   make([]float64, cfg.FramesPerBuffer),
		newBeats:    make([]float64, 0, 8),
	}
	e.EnableGate()
	e.SetGateThreshold(cfg.GateThreshold)
	return e
}

// Feed returns the snapshot feed the engine publishes to.
func (e *Engine) Feed() *analysis.LiveFeed {
	return e.feed
}

// Position reports seconds of audio captured, and whether capture is
// running. It serves as the scheduler's audio clock for live sessions and
// keeps advancing while the player is paused.
func (e *Engine) Position() (float64, bool) {
	if e.config.SampleRate <= 0 {
		return 0, false
	}
	return float64(e.frames.Load()) / e.config.SampleRate, e.running.Load()
}

// StartInputStream opens and starts the capture stream.
func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	e.running.Store(true)

	applog.Infof("Capture: started on %s (%.0f Hz, %d ch, %d frames, latency %s)",
		e.inputDevice.Name, e.config.SampleRate, e.channels, e.config.FramesPerBuffer, e.inputLatency)
	return nil
}

// StopInputStream stops and closes the capture stream.
func (e *Engine) StopInputStream() error {
	e.running.Store(false)
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
		applog.Infof("Capture: stopped after %.1fs", float64(e.frames.Load())/e.config.SampleRate)
	}

	return nil
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated sample buffers
// - Allocates one snapshot per buffer, plus a new beat list when beats arrive
func (e *Engine) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer[:n])

	e.rec.write(e.inputBuffer[:n])
}

// processBuffer downmixes one interleaved buffer, applies the gate, feeds
// the streaming detector and publishes a snapshot.
func (e *Engine) processBuffer(buffer []int32) {
	frames := len(buffer) / e.channels
	mono := e.monoInput[:frames]

	if e.gate.open(buffer) {
		for i := range mono {
			var sum int64
			for c := range e.channels {
				sum += int64(buffer[i*e.channels+c])
			}
			mono[i] = float64(sum) / float64(e.channels) / math.MaxInt32
		}
	} else {
		clear(mono)
	}

	e.newBeats = e.detector.Push(mono, e.newBeats[:0])
	position := float64(e.frames.Add(int64(frames))) / e.config.SampleRate

	if len(e.newBeats) > 0 {
		// Copy on write: readers may hold the previous slice.
		beats := make([]float64, len(e.beats), len(e.beats)+len(e.newBeats))
		copy(beats, e.beats)
		e.beats = append(beats, e.newBeats...)
		e.version++
		e.metrics.AddBeats(len(e.newBeats))
	}

	e.feed.Publish(&analysis.LiveSnapshot{
		Version:  e.version,
		Beats:    e.beats,
		Energy:   analysis.RMS(mono),
		Position: position,
	})
}

// Close stops recording and capture.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}
	return e.StopInputStream()
}
