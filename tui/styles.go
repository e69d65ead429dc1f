// ABOUTME: lipgloss styles for the generation progress view: step states, log lines and the status bar.
// ABOUTME: StyleForStatus maps a StepStatus to its display style.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette, 256-color codes.
const (
	colorInk    = lipgloss.Color("252")
	colorMuted  = lipgloss.Color("243")
	colorFaint  = lipgloss.Color("238")
	colorAccent = lipgloss.Color("33")
	colorBusy   = lipgloss.Color("220")
	colorGood   = lipgloss.Color("35")
	colorBad    = lipgloss.Color("160")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorAccent)

	PendingStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	RunningStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBusy)
	CompletedStyle = lipgloss.NewStyle().Foreground(colorGood)
	FailedStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	SkippedStyle   = PendingStyle.Italic(true)

	LogTimestampStyle = lipgloss.NewStyle().Foreground(colorMuted)
	LogEventStyle     = lipgloss.NewStyle().Foreground(colorAccent)
	LogErrorStyle     = lipgloss.NewStyle().Foreground(colorBad)
	LogSuccessStyle   = lipgloss.NewStyle().Foreground(colorGood)
	LogBorderStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorFaint)

	StatusBarStyle = lipgloss.NewStyle().Foreground(colorInk).Background(colorFaint).Padding(0, 1)
)

// StyleForStatus returns the style a step line is drawn with.
func StyleForStatus(status StepStatus) lipgloss.Style {
	switch status {
	case StepRunning:
		return RunningStyle
	case StepCompleted:
		return CompletedStyle
	case StepFailed:
		return FailedStyle
	case StepSkipped:
		return SkippedStyle
	}
	return PendingStyle
}
