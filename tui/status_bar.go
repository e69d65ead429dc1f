// ABOUTME: Single-line status bar for the bottom of the progress view.
// ABOUTME: Shows the keyword, elapsed time, finished step count and the active step.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBarModel displays run status in a single line.
type StatusBarModel struct {
	title     string
	startTime time.Time
	total     int
	finished  int
	active    string
	width     int
}

// NewStatusBarModel creates a status bar for a run of total steps.
func NewStatusBarModel(title string, total int) StatusBarModel {
	return StatusBarModel{title: title, total: total}
}

// Start records the run start time.
func (m *StatusBarModel) Start(at time.Time) { m.startTime = at }

// SetFinished updates the count of steps that are completed or skipped.
func (m *StatusBarModel) SetFinished(n int) { m.finished = n }

// SetActive sets the label of the running step.
func (m *StatusBarModel) SetActive(label string) { m.active = label }

// SetWidth sets the bar width.
func (m *StatusBarModel) SetWidth(w int) { m.width = w }

// Elapsed returns the time since Start, or zero before it.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed renders under a minute as "12s" and longer as "2m30s".
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	return fmt.Sprintf("%dm%ds", minutes, int(d.Seconds())-minutes*60)
}

// View renders the bar.
func (m StatusBarModel) View() string {
	active := m.active
	if active == "" {
		active = "idle"
	}
	content := fmt.Sprintf("%s | %s | %d/%d steps | %s",
		m.title, formatElapsed(m.Elapsed()), m.finished, m.total, active)
	if m.width <= 0 {
		return StatusBarStyle.Render(content)
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, StatusBarStyle.Width(m.width).Render(content))
}
