// SPDX-License-Identifier: MIT
package light

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"entrain/internal/analysis"
	applog "entrain/internal/log"
)

// ErrScriptGap marks a continuous script whose events do not tile its timeline.
var ErrScriptGap = errors.New("light: gap between events in continuous script")

// gapTolerance absorbs float rounding where one event ends and the next begins.
const gapTolerance = 1e-9

// LightEvent is one immutable entry of a script.
type LightEvent struct {
	Timestamp float64 // Seconds from script start.
	Duration  float64 // Seconds, > 0.
	Intensity float64 // Base intensity in [0,1].
	Waveform  Waveform
	Color     Color
	HasColor  bool
	Frequency float64 // Override in Hz; 0 uses the script frequency.
}

// End returns the time at which the event stops being active.
func (e LightEvent) End() float64 {
	return e.Timestamp + e.Duration
}

// LightScript is the immutable output of the generator. It is shared
// read-only between the session and its scheduler.
type LightScript struct {
	Mode      string
	Kind      ModeKind
	Events    []LightEvent // Ordered by Timestamp.
	Duration  float64      // Seconds.
	Frequency float64      // Stimulation frequency in Hz.
	BPM       float64      // 0 for journeys.
	Mapping   FrequencyMapping
	Synthetic bool // Beats came from the uniform fallback grid.
	Caution   bool // Some event runs in the advisory frequency zone.
}

// Continuous reports whether the script must have no gaps.
func (s *LightScript) Continuous() bool {
	return s.Kind != Pulsed
}

// FrequencyOf returns the frequency an event pulses at.
func (s *LightScript) FrequencyOf(e *LightEvent) float64 {
	if e.Frequency > 0 {
		return e.Frequency
	}
	return s.Frequency
}

// Check verifies the structural invariants: non-decreasing timestamps,
// positive durations, intensities in [0,1], and for continuous scripts full
// coverage of [0, Duration).
func (s *LightScript) Check() error {
	var prevEnd float64
	for i, e := range s.Events {
		if !(e.Duration > 0) {
			return fmt.Errorf("light: event %d has duration %v", i, e.Duration)
		}
		if e.Intensity < 0 || e.Intensity > 1 {
			return fmt.Errorf("light: event %d intensity %v outside [0,1]", i, e.Intensity)
		}
		if i > 0 && e.Timestamp < s.Events[i-1].Timestamp {
			return fmt.Errorf("light: event %d at %.3fs precedes event %d", i, e.Timestamp, i-1)
		}
		if s.Continuous() && e.Timestamp > prevEnd+gapTolerance {
			return fmt.Errorf("%w: [%.3fs, %.3fs)", ErrScriptGap, prevEnd, e.Timestamp)
		}
		prevEnd = math.Max(prevEnd, e.End())
	}
	if s.Continuous() && len(s.Events) > 0 && prevEnd < s.Duration-gapTolerance {
		return fmt.Errorf("%w: [%.3fs, %.3fs)", ErrScriptGap, prevEnd, s.Duration)
	}
	return nil
}

// Generator builds light scripts for one output sink.
type Generator struct {
	limits SafetyLimits
	sink   SinkKind
}

// NewGenerator creates a generator bound to safety limits and a sink kind.
func NewGenerator(limits SafetyLimits, sink SinkKind) *Generator {
	return &Generator{limits: limits, sink: sink}
}

// Generate builds the script for a mode. Beat-driven modes use beats (seconds
// from track start) and bpm; when beats is empty a uniform grid at the
// default tempo covering duration is used instead, so a script is always
// produced for a valid mode. duration <= 0 means unknown. Journeys ignore
// bpm, beats and duration.
func (g *Generator) Generate(bpm float64, mode ModeConfig, beats []float64, duration float64) (*LightScript, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.Kind == Journey {
		return g.journey(mode), nil
	}

	if math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = 0
	}
	clean := cleanBeats(beats, duration)
	synthetic := len(clean) == 0
	if synthetic {
		bpm = analysis.DefaultBPM
		if !(duration > 0) {
			duration = analysis.DefaultSyntheticDuration
		}
		clean = analysis.UniformBeats(duration, bpm)
		applog.Infof("Light: no beats for %s, using a synthetic %.0f BPM grid (%d beats)", mode.Name, bpm, len(clean))
	}

	mapping := MapFrequency(bpm, mode, g.limits, g.sink)
	if mapping.Clamped {
		applog.Infof("Light: %s frequency %.2f Hz clamped to %.2f Hz for %v sink", mode.Name, mapping.Raw, mapping.Frequency, g.sink)
	}

	s := &LightScript{
		Mode:      mode.Name,
		Kind:      mode.Kind,
		Frequency: mapping.Frequency,
		BPM:       bpm,
		Mapping:   mapping,
		Synthetic: synthetic,
		Caution:   mapping.Caution,
	}
	period := 1 / mapping.Frequency
	proto := LightEvent{
		Intensity: g.limits.ClampIntensity(mode.BaseIntensity),
		Waveform:  mode.Waveform,
		Color:     mode.Color,
		HasColor:  mode.HasColor,
	}

	if mode.Kind == Pulsed {
		s.Events = make([]LightEvent, len(clean))
		for i, b := range clean {
			e := proto
			e.Timestamp = b
			e.Duration = period
			s.Events[i] = e
		}
		s.Duration = math.Max(duration, clean[len(clean)-1]+period)
	} else {
		s.Events, s.Duration = tile(proto, clean, period, duration)
	}

	applog.Debugf("Light: %s script, %d events, %.1fs at %.2f Hz (x%d of %.1f BPM)",
		mode.Name, len(s.Events), s.Duration, s.Frequency, mapping.Multiplier, bpm)
	return s, nil
}

// tile builds continuous events: a leading event up to the first beat, then
// each beat lasting until the next. Beats closer than one period to the
// previous kept beat are merged so every event spans at least a full period.
func tile(proto LightEvent, beats []float64, period, duration float64) ([]LightEvent, float64) {
	starts := make([]float64, 0, len(beats)+1)
	if beats[0] > 0 {
		starts = append(starts, 0)
	}
	for _, b := range beats {
		if len(starts) > 0 && b-starts[len(starts)-1] < period {
			continue
		}
		starts = append(starts, b)
	}

	last := starts[len(starts)-1]
	total := math.Max(duration, last+period)

	events := make([]LightEvent, len(starts))
	for i, ts := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		e := proto
		e.Timestamp = ts
		e.Duration = end - ts
		events[i] = e
	}
	return events, total
}

// journey lays out the fixed phase timeline in StepDuration events.
func (g *Generator) journey(mode ModeConfig) *LightScript {
	s := &LightScript{
		Mode:      mode.Name,
		Kind:      Journey,
		Frequency: g.limits.Clamp(mode.StartFrequency, g.sink),
		Mapping:   MapFrequency(0, mode, g.limits, g.sink),
	}

	var phaseStart float64
	for _, p := range mode.Phases {
		steps := int(math.Ceil(p.Duration/mode.StepDuration - gapTolerance))
		phaseEnd := phaseStart + p.Duration
		for k := range steps {
			ts := phaseStart + float64(k)*mode.StepDuration
			end := phaseEnd
			if k+1 < steps {
				end = phaseStart + float64(k+1)*mode.StepDuration
			}

			f := p.StartFrequency
			if steps > 1 {
				f += (p.EndFrequency - p.StartFrequency) * float64(k) / float64(steps-1)
			}
			f = g.limits.Clamp(f, g.sink)

			intensity := p.Intensity
			if p.AltIntensity > 0 && k%2 == 1 {
				intensity = p.AltIntensity
			}

			s.Events = append(s.Events, LightEvent{
				Timestamp: ts,
				Duration:  end - ts,
				Intensity: g.limits.ClampIntensity(intensity),
				Waveform:  p.Waveform,
				Color:     mode.Color,
				HasColor:  mode.HasColor,
				Frequency: f,
			})
			s.Caution = s.Caution || g.limits.InCautionZone(f)
		}
		phaseStart = phaseEnd
	}
	s.Duration = phaseStart

	applog.Debugf("Light: journey %s, %d events over %.0fs", mode.Name, len(s.Events), s.Duration)
	return s
}

// cleanBeats drops non-finite, negative and out-of-track beats, and returns
// the rest sorted without duplicates.
func cleanBeats(beats []float64, duration float64) []float64 {
	out := make([]float64, 0, len(beats))
	for _, b := range beats {
		if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
			continue
		}
		if duration > 0 && b >= duration {
			continue
		}
		out = append(out, b)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
