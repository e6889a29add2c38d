// Package tui renders a live posture session in the terminal.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/teslashibe/posture-guard/pkg/posture"
	"github.com/teslashibe/posture-guard/pkg/protocol"
	"github.com/teslashibe/posture-guard/pkg/session"
)

// Controller steers the session being displayed.
type Controller interface {
	Settings() protocol.SettingsState
	Apply(update protocol.SettingsData) error
	Restart() error
}

// LocalController adapts an in-process session.
type LocalController struct {
	Session *session.Session
}

// Settings implements Controller.
func (c LocalController) Settings() protocol.SettingsState {
	return protocol.SettingsStateFrom(c.Session.Settings())
}

// Apply implements Controller.
func (c LocalController) Apply(update protocol.SettingsData) error {
	cfg, err := update.Apply(c.Session.Settings())
	if err != nil {
		return err
	}
	_, err = c.Session.Configure(cfg)
	return err
}

// Restart implements Controller.
func (c LocalController) Restart() error {
	c.Session.Restart()
	return nil
}

// StatusMsg carries one status to display.
type StatusMsg struct{ Status protocol.StatusData }

// ClosedMsg reports that the status feed ended.
type ClosedMsg struct{}

// ErrMsg reports a non-fatal error to display.
type ErrMsg struct{ Err error }

// Model is the bubbletea model for the posture monitor.
type Model struct {
	title   string
	ctrl    Controller
	updates <-chan protocol.StatusData

	status    protocol.StatusData
	hasStatus bool
	frames    int

	errorMessage string
	closed       bool
	width        int
}

// New creates a model that renders statuses from updates.
func New(title string, ctrl Controller, updates <-chan protocol.StatusData) Model {
	return Model{
		title:   title,
		ctrl:    ctrl,
		updates: updates,
	}
}

// Init starts listening for statuses.
func (m Model) Init() tea.Cmd {
	return waitForStatus(m.updates)
}

func waitForStatus(updates <-chan protocol.StatusData) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return ClosedMsg{}
		}
		return StatusMsg{Status: st}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		m.hasStatus = true
		m.frames++
		return m, waitForStatus(m.updates)

	case ErrMsg:
		m.errorMessage = msg.Err.Error()
		return m, nil

	case ClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cur := m.ctrl.Settings()
	var err error

	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		return m, tea.Quit

	case "r", "R":
		err = m.ctrl.Restart()

	case "+", "=", "up":
		err = m.ctrl.Apply(protocol.SettingsData{Threshold: ptr(cur.Threshold + 1)})

	case "-", "_", "down":
		err = m.ctrl.Apply(protocol.SettingsData{Threshold: ptr(cur.Threshold - 1)})

	case "]", "right":
		err = m.ctrl.Apply(protocol.SettingsData{Smoothing: ptr(cur.Smoothing + 1)})

	case "[", "left":
		err = m.ctrl.Apply(protocol.SettingsData{Smoothing: ptr(cur.Smoothing - 1)})

	case "m", "M":
		next := string(posture.MetricOffset)
		if cur.Metric == string(posture.MetricOffset) {
			next = string(posture.MetricAngle)
		}
		err = m.ctrl.Apply(protocol.SettingsData{Metric: &next})

	default:
		return m, nil
	}

	m.errorMessage = ""
	if err != nil {
		m.errorMessage = err.Error()
	}
	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder
	settings := m.ctrl.Settings()

	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(field("metric", settings.Metric))
	b.WriteString(field("threshold", fmt.Sprintf("%.0f", settings.Threshold)))
	b.WriteString(field("smoothing", fmt.Sprintf("%d", settings.Smoothing)))
	b.WriteString(field("frames", fmt.Sprintf("%d", m.frames)))
	b.WriteString("\n")

	if !m.hasStatus {
		b.WriteString(HeadlineStyle.Foreground(ColorGray).Render("Waiting for camera..."))
	} else {
		var state posture.State
		if err := state.UnmarshalText([]byte(m.status.State)); err != nil {
			state = posture.StateNoData
		}
		b.WriteString(HeadlineStyle.Foreground(StateColor(state)).Render(m.status.Text))
		if m.status.Readout != "" {
			b.WriteString("\n")
			b.WriteString(ReadoutStyle.Render(m.status.Readout))
		}
	}
	b.WriteString("\n")

	if m.errorMessage != "" {
		b.WriteString(ErrorStyle.Render(m.errorMessage))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footer(
		"r", "restart",
		"+/-", "threshold",
		"[/]", "smoothing",
		"m", "metric",
		"q", "quit",
	))

	out := b.String()
	if m.width > 0 {
		out = lipgloss.NewStyle().MaxWidth(m.width).Render(out)
	}
	return out
}

// Status returns the last displayed status.
func (m Model) Status() (protocol.StatusData, bool) {
	return m.status, m.hasStatus
}

func field(label, value string) string {
	return LabelStyle.Render(label+" ") + ValueStyle.Render(value) + "  "
}

func footer(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, FooterKeyStyle.Render(pairs[i])+" "+FooterDescStyle.Render(pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

func ptr[T any](v T) *T {
	return &v
}
