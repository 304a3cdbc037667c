// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"entrain/internal/playback"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 50 * time.Millisecond
	meterWidth      = 40
)

var (
	meterOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5C542"))
	meterOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	labelStyle    = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("#A0A0A0"))
)

// Session is what the monitor observes and controls.
type Session interface {
	Status() playback.Status
	Pause()
	Resume()
	Done() <-chan struct{}
}

var _ Session = (*playback.Player)(nil)

type monitorKeys struct {
	Pause key.Binding
	Quit  key.Binding
}

var defaultMonitorKeys = monitorKeys{
	Pause: key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "pause/resume")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "stop")),
}

type refreshMsg time.Time

type doneMsg struct{}

// MonitorModel shows the live state of one session.
type MonitorModel struct {
	title   string
	session Session
	stop    func()
	keys    monitorKeys
	status  playback.Status
	done    bool
	width   int
}

// NewMonitorModel creates a monitor for session. stop is called when the
// user quits; it should cancel the session.
func NewMonitorModel(title string, session Session, stop func()) MonitorModel {
	return MonitorModel{
		title:   title,
		session: session,
		stop:    stop,
		keys:    defaultMonitorKeys,
		status:  session.Status(),
		width:   meterWidth,
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m MonitorModel) waitDone() tea.Cmd {
	done := m.session.Done()
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

// Init starts polling the session.
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(refresh(), m.waitDone())
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.status = m.session.Status()
		return m, refresh()

	case doneMsg:
		m.status = m.session.Status()
		m.done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width-20, 10), meterWidth)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			if m.status.State == playback.StatePaused {
				m.session.Resume()
			} else {
				m.session.Pause()
			}
		}
	}
	return m, nil
}

// View renders the monitor.
func (m MonitorModel) View() string {
	st := m.status
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	row("State", st.State.String())
	if s := st.Script; s != nil {
		row("Mode", s.Mode)
		row("Elapsed", fmt.Sprintf("%s / %s", formatSeconds(st.Elapsed), formatSeconds(s.Duration)))
		freq := fmt.Sprintf("%.2f Hz", s.Frequency)
		if s.BPM > 0 {
			freq += fmt.Sprintf(" (%.1f BPM x%d)", s.BPM, s.Mapping.Multiplier)
		}
		row("Frequency", freq)
		if s.Synthetic {
			row("Beats", dimStyle.Render("synthetic grid"))
		}
	}
	row("Intensity", Meter(st.Intensity, m.width))

	thermal := st.Thermal.String()
	if st.Thermal != playback.ThermalNormal {
		thermal = warnStyle.Render(thermal)
	}
	row("Thermal", thermal)
	if st.Script != nil && st.Script.Mode == "cinematic" {
		calib := "calibrating"
		if st.Calibrated {
			calib = "calibrated"
		}
		row("Energy", calib)
	}
	if st.Script != nil && st.Script.Caution {
		sb.WriteString("\n")
		sb.WriteString(warnStyle.Render("Caution: this frequency range can trigger photosensitive reactions."))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.done {
		sb.WriteString(infoStyle.Render("Session finished."))
	} else {
		sb.WriteString(infoStyle.Render(fmt.Sprintf("%s: %s • %s: %s",
			m.keys.Pause.Help().Key, m.keys.Pause.Help().Desc,
			m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc)))
	}
	sb.WriteString("\n")
	return sb.String()
}

// Meter renders v in [0,1] as a bar of width cells.
func Meter(v float64, width int) string {
	if width <= 0 {
		return ""
	}
	if !(v > 0) {
		v = 0
	}
	filled := int(min(v, 1)*float64(width) + 0.5)
	return meterOnStyle.Render(strings.Repeat("█", filled)) +
		meterOffStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3.0f%%", min(v, 1)*100)
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// RunMonitor shows the monitor until the session ends or the user quits.
func RunMonitor(title string, session Session, stop func()) error {
	p := tea.NewProgram(NewMonitorModel(title, session, stop))
	_, err := p.Run()
	return err
}
