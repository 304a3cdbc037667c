// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
	"testing"

	"entrain/internal/audio"
	"entrain/internal/light"
	"entrain/internal/playback"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	status  playback.Status
	pauses  int
	resumes int
	done    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		done: make(chan struct{}),
		status: playback.Status{
			State:     playback.StateRunning,
			Elapsed:   65,
			Intensity: 0.5,
			Script: &light.LightScript{
				Mode: "gamma", Duration: 600, Frequency: 40, BPM: 120,
				Mapping: light.FrequencyMapping{Multiplier: 20}, Caution: true,
			},
		},
	}
}

func (f *fakeSession) Status() playback.Status { return f.status }
func (f *fakeSession) Pause()                   { f.pauses++ }
func (f *fakeSession) Resume()                  { f.resumes++ }
func (f *fakeSession) Done() <-chan struct{}    { return f.done }

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMonitorView(t *testing.T) {
	m := NewMonitorModel("Entrain", newFakeSession(), nil)
	view := m.View()

	for _, want := range []string{"running", "gamma", "01:05 / 10:00", "40.00 Hz (120.0 BPM x20)", "50%", "Caution"} {
		assert.Contains(t, view, want)
	}
}

func TestMonitorPauseToggle(t *testing.T) {
	s := newFakeSession()
	m := NewMonitorModel("Entrain", s, nil)

	next, _ := m.Update(keyMsg("p"))
	assert.Equal(t, 1, s.pauses)

	s.status.State = playback.StatePaused
	next, _ = next.Update(refreshMsg{})
	next.Update(keyMsg(" "))
	assert.Equal(t, 1, s.resumes)
}

func TestMonitorQuitStopsSession(t *testing.T) {
	stopped := false
	m := NewMonitorModel("Entrain", newFakeSession(), func() { stopped = true })

	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.True(t, stopped)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMonitorDone(t *testing.T) {
	s := newFakeSession()
	m := NewMonitorModel("Entrain", s, nil)

	close(s.done)
	assert.Equal(t, doneMsg{}, m.waitDone()())

	next, cmd := m.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, next.View(), "Session finished.")
}

func TestMeter(t *testing.T) {
	tests := []struct {
		v    float64
		full int
		pct  string
	}{
		{0, 0, "  0%"},
		{0.5, 5, " 50%"},
		{1, 10, "100%"},
		{3, 10, "100%"},
		{-1, 0, "  0%"},
	}
	for _, tt := range tests {
		got := Meter(tt.v, 10)
		assert.Equal(t, tt.full, strings.Count(got, "█"), "v=%v", tt.v)
		assert.Equal(t, 10-tt.full, strings.Count(got, "░"), "v=%v", tt.v)
		assert.True(t, strings.HasSuffix(got, tt.pct), "v=%v: %q", tt.v, got)
	}
	assert.Empty(t, Meter(0.5, 0))
}

func TestDevicePicker(t *testing.T) {
	var m tea.Model = NewDeviceListModel()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m, _ = m.Update(devicesMsg{devices: []audio.Device{
		{ID: 0, Name: "Built-in Microphone", MaxInputChannels: 1, DefaultSampleRate: 48000},
		{ID: 3, Name: "Interface", MaxInputChannels: 2, DefaultSampleRate: 96000},
	}})
	assert.Contains(t, m.View(), "Built-in Microphone")

	m, _ = m.Update(keyMsg("down"))
	m, _ = m.Update(keyMsg("enter"))
	assert.Contains(t, m.View(), "Configure Device: Interface")

	m, _ = m.Update(keyMsg("up"))
	m, cmd := m.Update(keyMsg("enter"))
	require.NotNil(t, cmd)

	choice, ok := m.(DeviceListModel).Choice()
	require.True(t, ok)
	assert.Equal(t, 3, choice.Device.ID)
	assert.Equal(t, 88200.0, choice.SampleRate)
}

func TestDevicePickerQuitWithoutChoice(t *testing.T) {
	var m tea.Model = NewDeviceListModel()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m, _ = m.Update(devicesMsg{})
	assert.Contains(t, m.View(), "No input devices found.")

	m, _ = m.Update(keyMsg("q"))
	_, ok := m.(DeviceListModel).Choice()
	assert.False(t, ok)
}
