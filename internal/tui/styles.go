package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/teslashibe/posture-guard/pkg/posture"
)

// Colors used throughout the TUI.
var (
	ColorRed    = lipgloss.Color("#FF0000")
	ColorGreen  = lipgloss.Color("#00FF00")
	ColorYellow = lipgloss.Color("#FFFF00")
	ColorOrange = lipgloss.Color("#FFA500")
	ColorCyan   = lipgloss.Color("#00FFFF")
	ColorGray   = lipgloss.Color("#666666")
	ColorWhite  = lipgloss.Color("#FFFFFF")
)

// Base styles reused by the view.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	HeadlineStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 2)

	ReadoutStyle = lipgloss.NewStyle().
			Foreground(ColorWhite).
			PaddingLeft(2)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)

// StateColor returns the headline color for a state.
func StateColor(s posture.State) lipgloss.Color {
	switch s {
	case posture.StateCalibrating:
		return ColorYellow
	case posture.StateGood:
		return ColorGreen
	case posture.StateWarning:
		return ColorOrange
	case posture.StateBad, posture.StateCalibrationFailed:
		return ColorRed
	default:
		return ColorGray
	}
}
