// SPDX-License-Identifier: MIT
package playback

import (
	"fmt"
	"math"
	"sort"

	"entrain/internal/light"
	applog "entrain/internal/log"
)

// State is the lifecycle of one playback session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ClockSource tells which clock produced an elapsed value.
type ClockSource int

const (
	ClockNone ClockSource = iota
	ClockWall
	ClockAudio
)

func (c ClockSource) String() string {
	switch c {
	case ClockWall:
		return "wall"
	case ClockAudio:
		return "audio"
	default:
		return "none"
	}
}

// AudioClock reports the rendering position of the audio the light follows.
// ok is false while no position is available. The scheduler uses the
// position as reported: pausing the light does not subtract the paused span.
// A clock whose audio pauses with the light must stop advancing itself; a
// clock that keeps running, such as live capture, makes a resumed session
// rejoin the audio where it is now.
type AudioClock interface {
	Position() (seconds float64, ok bool)
}

// TickResult is the outcome of one poll. Event points into the script and
// is nil when the light should be off.
type TickResult struct {
	Event    *light.LightEvent
	Index    int
	Elapsed  float64 // Latency-compensated session time, seconds.
	Complete bool
	State    State
	Clock    ClockSource
	Waiting  bool // The audio clock exists but is not yet trusted.
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	LatencyOffset   float64    // Seconds subtracted from the raw clock.
	AudioClock      AudioClock // Optional high-precision clock.
	AudioStableTime float64    // Seconds the audio clock must be available before it is used.
}

// Scheduler maps a clock position to the active event of a script. It has a
// single owner: every method must be called from the same goroutine.
type Scheduler struct {
	opts SchedulerOptions

	script      *light.LightScript
	state       State
	startTime   float64
	pausedTotal float64
	pauseStart  float64
	cursor      int
	last        float64 // Most recent compensated elapsed.

	audioSeen  bool
	audioSince float64
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	if opts.LatencyOffset < 0 || math.IsNaN(opts.LatencyOffset) {
		opts.LatencyOffset = 0
	}
	return &Scheduler{opts: opts}
}

// Start begins playback of script with the wall clock at clockStart seconds.
func (s *Scheduler) Start(script *light.LightScript, clockStart float64) {
	s.script = script
	s.state = StateRunning
	s.startTime = clockStart
	s.pausedTotal = 0
	s.cursor = 0
	s.last = 0
	s.audioSeen = false
	if script != nil {
		applog.Debugf("Player: scheduler started, %d events over %.1fs (latency %.3fs)",
			len(script.Events), script.Duration, s.opts.LatencyOffset)
	}
}

// Poll returns the event active at wall-clock time now. It never fails:
// without a script it returns an empty result that is not complete.
func (s *Scheduler) Poll(now float64) TickResult {
	if s.script == nil || s.state == StateIdle {
		return TickResult{Index: -1, State: s.state}
	}
	switch s.state {
	case StatePaused:
		return TickResult{Index: -1, Elapsed: s.last, State: s.state}
	case StateCompleted, StateCancelled:
		return TickResult{Index: -1, Elapsed: s.last, Complete: s.state == StateCompleted, State: s.state}
	}

	raw, clock := s.rawElapsed(now)
	if clock == ClockNone {
		return TickResult{Index: -1, State: s.state, Waiting: true}
	}
	elapsed := math.Max(0, raw-s.opts.LatencyOffset)
	s.last = elapsed
	if raw < s.opts.LatencyOffset {
		// The output device has not rendered the session start yet.
		return TickResult{Index: -1, State: s.state, Clock: clock}
	}

	if elapsed >= s.script.Duration {
		s.state = StateCompleted
		return TickResult{Index: -1, Elapsed: elapsed, Complete: true, State: s.state, Clock: clock}
	}

	res := TickResult{Index: -1, Elapsed: elapsed, State: s.state, Clock: clock}
	events := s.script.Events
	if len(events) == 0 {
		return res
	}
	for s.cursor+1 < len(events) && events[s.cursor+1].Timestamp <= elapsed {
		s.cursor++
	}
	if e := &events[s.cursor]; elapsed >= e.Timestamp && elapsed < e.End() {
		res.Event = e
		res.Index = s.cursor
	}
	return res
}

// rawElapsed picks the clock. A stable audio clock wins; an audio clock that
// is reporting but not yet stable yields ClockNone so the light never runs
// ahead of the audio; otherwise wall time minus pauses is used.
func (s *Scheduler) rawElapsed(now float64) (float64, ClockSource) {
	if s.opts.AudioClock != nil {
		if pos, ok := s.opts.AudioClock.Position(); ok && !math.IsNaN(pos) {
			if !s.audioSeen {
				s.audioSeen = true
				s.audioSince = now
			}
			if now-s.audioSince >= s.opts.AudioStableTime {
				return pos, ClockAudio
			}
			return 0, ClockNone
		}
		s.audioSeen = false
	}
	return s.Elapsed(now), ClockWall
}

// Elapsed returns wall-clock session time at now with paused time removed
// and before latency compensation.
func (s *Scheduler) Elapsed(now float64) float64 {
	end := now
	if s.state == StatePaused {
		end = s.pauseStart
	}
	return end - s.startTime - s.pausedTotal
}

// Pause stops the session clock at now. It reports whether the state changed.
func (s *Scheduler) Pause(now float64) bool {
	if s.state != StateRunning {
		return false
	}
	s.last = math.Max(0, s.Elapsed(now)-s.opts.LatencyOffset)
	s.pauseStart = now
	s.state = StatePaused
	return true
}

// Resume restarts the session clock, excluding the paused span.
func (s *Scheduler) Resume(now float64) bool {
	if s.state != StatePaused {
		return false
	}
	s.pausedTotal += math.Max(0, now-s.pauseStart)
	s.state = StateRunning
	return true
}

// Stop cancels the session. Completed sessions stay completed.
func (s *Scheduler) Stop() {
	if s.state == StateRunning || s.state == StatePaused {
		s.state = StateCancelled
	}
}

// Swap replaces the script without touching the session clock, for live
// sessions whose script is regenerated as beats arrive. The cursor is
// re-found in the new script at the last polled position.
func (s *Scheduler) Swap(script *light.LightScript) {
	if script == nil {
		return
	}
	s.script = script
	if s.state == StateCompleted && s.last < script.Duration {
		s.state = StateRunning
	}
	events := script.Events
	i := sort.Search(len(events), func(i int) bool { return events[i].Timestamp > s.last })
	s.cursor = max(0, i-1)
}

// SetLatencyOffset changes the compensation applied from the next poll.
func (s *Scheduler) SetLatencyOffset(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	s.opts.LatencyOffset = seconds
}

// State returns the lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Cursor returns the index of the last event the cursor reached.
func (s *Scheduler) Cursor() int { return s.cursor }

// Script returns the active script.
func (s *Scheduler) Script() *light.LightScript { return s.script }
