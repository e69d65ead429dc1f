// ABOUTME: Scrollable event log panel built on the bubbles viewport component.
// ABOUTME: Shows each progress protocol event with a timestamp, color-coded by event type.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/pressroom/pipeline"
)

type logEntry struct {
	at time.Time
	ev pipeline.Event
}

// LogPanelModel keeps the most recent events and renders them in a viewport.
type LogPanelModel struct {
	entries  []logEntry
	max      int
	viewport viewport.Model
	width    int
	height   int
}

// NewLogPanelModel creates a log keeping at most maxEntries events. If
// maxEntries is <= 0 it defaults to 100.
func NewLogPanelModel(maxEntries int) LogPanelModel {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return LogPanelModel{
		entries:  make([]logEntry, 0, maxEntries),
		max:      maxEntries,
		viewport: viewport.New(78, 6),
		width:    80,
		height:   8,
	}
}

// Append adds an event, evicting the oldest when full.
func (m *LogPanelModel) Append(ev pipeline.Event, at time.Time) {
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, logEntry{at: at, ev: ev})
	m.syncViewport()
}

// Len returns the number of retained events.
func (m LogPanelModel) Len() int { return len(m.entries) }

// SetSize sets the outer dimensions including the border.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-2, 1)
	m.syncViewport()
}

// View renders the bordered panel.
func (m LogPanelModel) View() string {
	content := "No events yet"
	if len(m.entries) > 0 {
		content = m.viewport.View()
	}
	return LogBorderStyle.Width(max(m.width-2, 1)).Render(content)
}

func (m *LogPanelModel) syncViewport() {
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		lines = append(lines, formatEntry(e))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func formatEntry(e logEntry) string {
	parts := []string{
		LogTimestampStyle.Render(e.at.Format("15:04:05")),
		eventStyle(e.ev.Type).Render(string(e.ev.Type)),
	}
	switch e.ev.Type {
	case pipeline.EventProgress:
		if e.ev.Step != nil {
			parts = append(parts, fmt.Sprintf("[%d]", *e.ev.Step))
		}
		parts = append(parts, e.ev.Message)
	case pipeline.EventError:
		parts = append(parts, e.ev.Error)
	case pipeline.EventComplete:
		parts = append(parts, "article ready")
	}
	return strings.Join(parts, " ")
}

func eventStyle(t pipeline.EventType) lipgloss.Style {
	switch t {
	case pipeline.EventComplete:
		return LogSuccessStyle
	case pipeline.EventError:
		return LogErrorStyle
	default:
		return LogEventStyle
	}
}
