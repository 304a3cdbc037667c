// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"
)

// Tempo bounds and fallbacks.
const (
	MinBPM     = 60.0
	MaxBPM     = 200.0
	DefaultBPM = 120.0

	// DefaultSyntheticDuration is used for the synthetic beat grid when the
	// track length is unknown.
	DefaultSyntheticDuration = 60.0
)

// EstimateTempo returns a BPM in [MinBPM, MaxBPM] for ordered beat times.
// The result depends only on the input: intervals are IQR-filtered, folded
// into range by octave, and voted into 1-BPM bins. Equal-count bins resolve
// to the lowest BPM. It never fails.
func EstimateTempo(beats []float64) float64 {
	intervals := make([]float64, 0, len(beats))
	for i := 1; i < len(beats); i++ {
		d := beats[i] - beats[i-1]
		if d > 0 && isFinite(d) {
			intervals = append(intervals, d)
		}
	}

	switch len(intervals) {
	case 0:
		return DefaultBPM
	case 1:
		return clampBPM(foldBPM(60 / intervals[0]))
	}

	slices.Sort(intervals)
	kept := filterIQR(intervals)

	votes := make(map[int]int, len(kept))
	for _, iv := range kept {
		bpm := foldBPM(60 / iv)
		if !isFinite(bpm) {
			continue
		}
		votes[int(math.Round(bpm))]++
	}
	if len(votes) == 0 {
		return clampBPM(foldBPM(60 / median(intervals)))
	}

	bins := make([]int, 0, len(votes))
	for b := range votes {
		bins = append(bins, b)
	}
	slices.Sort(bins)

	best, bestCount := bins[0], votes[bins[0]]
	for _, b := range bins[1:] {
		if votes[b] > bestCount {
			best, bestCount = b, votes[b]
		}
	}
	return clampBPM(float64(best))
}

// filterIQR drops sorted intervals outside [Q1-1.5·IQR, Q3+1.5·IQR]. If that
// would drop everything, the input is returned.
func filterIQR(sorted []float64) []float64 {
	half := len(sorted) / 2
	lower := sorted[:half]
	upper := sorted[half:]
	if len(sorted)%2 == 1 {
		upper = sorted[half+1:]
	}
	q1, q3 := median(lower), median(upper)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	kept := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return sorted
	}
	return kept
}

// median of a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// foldBPM doubles or halves bpm until it lies in [MinBPM, MaxBPM], which
// corrects half- and double-tempo detections.
func foldBPM(bpm float64) float64 {
	if !isFinite(bpm) || bpm <= 0 {
		return math.NaN()
	}
	for bpm < MinBPM {
		bpm *= 2
	}
	for bpm > MaxBPM {
		bpm /= 2
	}
	return bpm
}

func clampBPM(bpm float64) float64 {
	if !isFinite(bpm) {
		return DefaultBPM
	}
	return clamp(bpm, MinBPM, MaxBPM)
}

// ExtendBeats returns beats followed by a grid at bpm, phase-aligned to the
// last beat, up to but excluding until. beats is not modified. With no
// beats, or no room before until, a copy of beats is returned.
func ExtendBeats(beats []float64, bpm, until float64) []float64 {
	out := slices.Clone(beats)
	if len(beats) == 0 || !isFinite(until) {
		return out
	}
	if bpm <= 0 || !isFinite(bpm) {
		bpm = DefaultBPM
	}
	period := 60 / bpm
	last := beats[len(beats)-1]
	for k := 1; ; k++ {
		t := last + float64(k)*period
		if t >= until {
			break
		}
		out = append(out, t)
	}
	return out
}

// UniformBeats returns a beat grid at bpm covering [0, duration). It is the
// deterministic fallback when detection finds nothing.
func UniformBeats(duration, bpm float64) []float64 {
	if duration <= 0 || !isFinite(duration) {
		duration = DefaultSyntheticDuration
	}
	if bpm <= 0 || !isFinite(bpm) {
		bpm = DefaultBPM
	}
	period := 60 / bpm
	n := int(math.Ceil(duration / period))
	beats := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) * period
		if t >= duration {
			break
		}
		beats = append(beats, t)
	}
	return beats
}
