// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"math"

	applog "entrain/internal/log"
)

// DetectorOptions tunes spectral-flux onset detection.
type DetectorOptions struct {
	FrameSize   int        // FFT frame in samples, power of 2.
	HopSize     int        // Frame advance in samples.
	Window      WindowFunc // Analysis window.
	ThresholdK  float64    // Threshold = mean(flux) + K*stddev(flux). Higher K gives fewer, surer beats.
	MinInterval float64    // Seconds between accepted beats.
	HistorySize int        // Streaming only: flux values used for the rolling threshold.
}

// DefaultDetectorOptions returns the offline defaults.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		FrameSize:   2048,
		HopSize:     512,
		Window:      Hann,
		ThresholdK:  0.3,
		MinInterval: 0.15,
		HistorySize: 50,
	}
}

// DefaultStreamingOptions returns the live-capture defaults.
func DefaultStreamingOptions() DetectorOptions {
	opts := DefaultDetectorOptions()
	opts.MinInterval = 0.10
	return opts
}

// SourceFactory builds the spectrum engine for a detector.
type SourceFactory func(frameSize int, sampleRate float64, w WindowFunc) (SpectrumSource, error)

// NewFFTSource is the default SourceFactory.
func NewFFTSource(frameSize int, sampleRate float64, w WindowFunc) (SpectrumSource, error) {
	return NewFFTProcessor(frameSize, sampleRate, w)
}

// BeatResult is the output of an offline detection run.
type BeatResult struct {
	Beats   []float64 // Seconds from stream start, strictly increasing.
	Outcome Outcome
	Frames  int // Frames analysed before completion or cancellation.
}

// BeatDetector finds onsets in a whole sample stream.
type BeatDetector struct {
	opts      DetectorOptions
	newSource SourceFactory
}

// NewBeatDetector creates an offline detector. A nil factory uses the FFT.
func NewBeatDetector(opts DetectorOptions, factory SourceFactory) *BeatDetector {
	if factory == nil {
		factory = NewFFTSource
	}
	return &BeatDetector{opts: opts, newSource: factory}
}

// Detect runs onset detection over the whole stream. Empty or all-non-finite
// input yields no beats. An unavailable spectrum engine yields no beats with
// OutcomeDegraded. ctx is checked once per frame; cancellation returns
// OutcomeCancelled and no beats.
func (d *BeatDetector) Detect(ctx context.Context, stream SampleStream) BeatResult {
	n := len(stream.Samples)
	if n == 0 || stream.SampleRate <= 0 {
		return BeatResult{Outcome: OutcomeComplete}
	}

	src, err := d.newSource(d.opts.FrameSize, stream.SampleRate, d.opts.Window)
	if err != nil || src == nil {
		applog.Warnf("Analysis: onset engine unavailable, continuing without beats: %v", err)
		return BeatResult{Outcome: OutcomeDegraded}
	}

	frameSize := src.FrameSize()
	hop := d.opts.HopSize
	if hop <= 0 || hop > frameSize {
		hop = frameSize / 4
	}

	frameCount := 1
	if n > frameSize {
		frameCount += (n - frameSize + hop - 1) / hop
	}
	flux := make([]float64, 0, frameCount)
	times := make([]float64, 0, frameCount)
	frame := make([]float64, frameSize)
	var tracker fluxTracker

	for start := 0; start < n; start += hop {
		if ctx.Err() != nil {
			applog.Infof("Analysis: detection cancelled after %d frames", len(flux))
			return BeatResult{Outcome: OutcomeCancelled, Frames: len(flux)}
		}

		end := min(start+frameSize, n)
		copied := copy(frame, stream.Samples[start:end])
		clear(frame[copied:])

		flux = append(flux, tracker.next(src.Magnitudes(frame)))
		times = append(times, float64(start)/stream.SampleRate)
		if end == n {
			break
		}
	}

	beats := pickPeaks(flux, times, d.opts.ThresholdK, d.opts.MinInterval)
	applog.Debugf("Analysis: %d frames, %d beats", len(flux), len(beats))
	return BeatResult{Beats: beats, Outcome: OutcomeComplete, Frames: len(flux)}
}

// fluxTracker computes half-wave rectified spectral flux between
// consecutive magnitude spectra. The first frame has zero flux.
type fluxTracker struct {
	prev   []float64
	primed bool
}

func (f *fluxTracker) next(mags []float64) float64 {
	if len(f.prev) != len(mags) {
		f.prev = make([]float64, len(mags))
		f.primed = false
	}
	var sum float64
	if f.primed {
		for i, m := range mags {
			if diff := m - f.prev[i]; diff > 0 {
				sum += diff
			}
		}
	}
	copy(f.prev, mags)
	f.primed = true
	return sum
}

func (f *fluxTracker) reset() {
	f.primed = false
}

// pickPeaks accepts local maxima above mean+k*std that are at least
// minInterval after the previous accepted peak.
func pickPeaks(flux, times []float64, k, minInterval float64) []float64 {
	if len(flux) < 2 {
		return nil
	}
	mean, std := meanStd(flux)
	threshold := mean + k*std

	var beats []float64
	last := math.Inf(-1)
	for i, v := range flux {
		if v <= 0 || v <= threshold {
			continue
		}
		if i > 0 && flux[i-1] >= v {
			continue
		}
		if i+1 < len(flux) && flux[i+1] > v {
			continue
		}
		if times[i]-last < minInterval {
			continue
		}
		beats = append(beats, times[i])
		last = times[i]
	}
	return beats
}

// StreamingBeatDetector finds onsets in a live stream fed in arbitrary chunks.
// The threshold is computed over a rolling window of recent flux values, and
// a candidate is confirmed one hop later once it is known to be a local
// maximum. Not safe for concurrent use.
type StreamingBeatDetector struct {
	opts       DetectorOptions
	src        SpectrumSource
	sampleRate float64
	hop        int

	frame   []float64
	fill    int
	frames  int64
	tracker fluxTracker
	history *ring

	prevFlux, prevPrevFlux float64
	prevTime               float64
	seen                   int
	lastBeat               float64
}

// NewStreamingBeatDetector creates a live detector. If the spectrum engine
// cannot be built the detector is degraded and never reports beats.
func NewStreamingBeatDetector(opts DetectorOptions, sampleRate float64, factory SourceFactory) *StreamingBeatDetector {
	if factory == nil {
		factory = NewFFTSource
	}
	if opts.HistorySize < 3 {
		opts.HistorySize = 50
	}

	s := &StreamingBeatDetector{
		opts:       opts,
		sampleRate: sampleRate,
		history:    newRing(opts.HistorySize),
		lastBeat:   math.Inf(-1),
	}

	src, err := factory(opts.FrameSize, sampleRate, opts.Window)
	if err != nil || src == nil {
		applog.Warnf("Analysis: streaming onset engine unavailable: %v", err)
		return s
	}
	s.src = src
	s.frame = make([]float64, src.FrameSize())
	s.hop = opts.HopSize
	if s.hop <= 0 || s.hop > len(s.frame) {
		s.hop = len(s.frame) / 4
	}
	return s
}

// Degraded reports whether the detector has no spectrum engine.
func (s *StreamingBeatDetector) Degraded() bool {
	return s.src == nil
}

// Push feeds samples and appends newly confirmed beat times (seconds since
// the first pushed sample) to dst.
func (s *StreamingBeatDetector) Push(samples []float64, dst []float64) []float64 {
	if s.src == nil {
		return dst
	}
	for len(samples) > 0 {
		n := copy(s.frame[s.fill:], samples)
		s.fill += n
		samples = samples[n:]
		if s.fill < len(s.frame) {
			break
		}

		flux := s.tracker.next(s.src.Magnitudes(s.frame))
		t := float64(s.frames*int64(s.hop)) / s.sampleRate
		s.frames++
		dst = s.observe(flux, t, dst)

		copy(s.frame, s.frame[s.hop:])
		s.fill -= s.hop
	}
	return dst
}

func (s *StreamingBeatDetector) observe(flux, t float64, dst []float64) []float64 {
	s.history.push(flux)
	if s.seen >= 2 {
		p := s.prevFlux
		mean, std := meanStd(s.history.values())
		threshold := mean + s.opts.ThresholdK*std
		isPeak := p > 0 && p > threshold && p > s.prevPrevFlux && p >= flux
		if isPeak && s.prevTime-s.lastBeat >= s.opts.MinInterval {
			dst = append(dst, s.prevTime)
			s.lastBeat = s.prevTime
		}
	}
	s.prevPrevFlux = s.prevFlux
	s.prevFlux = flux
	s.prevTime = t
	s.seen++
	return dst
}

// Reset clears all stream state; beat times restart from zero.
func (s *StreamingBeatDetector) Reset() {
	clear(s.frame)
	s.fill = 0
	s.frames = 0
	s.tracker.reset()
	s.history.reset()
	s.prevFlux, s.prevPrevFlux, s.prevTime = 0, 0, 0
	s.seen = 0
	s.lastBeat = math.Inf(-1)
}
