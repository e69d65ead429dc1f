// ABOUTME: StreamModel is the inline Bubble Tea view of one article generation.
// ABOUTME: Lists every step with its state and duration, a recent event log, and a status bar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pressroom/pipeline"
)

const logHeight = 8

// StreamModel renders progress for a fixed list of steps. Step indexes match
// the step numbers carried by progress events.
type StreamModel struct {
	title     string
	labels    []string
	statuses  []StepStatus
	startedAt []time.Time
	durations []time.Duration
	current   int

	spinner spinner.Model
	log     LogPanelModel
	status  StatusBarModel
	cancel  context.CancelFunc
	now     func() time.Time

	started  bool
	done     bool
	canceled bool
	err      error
	errText  string
	width    int
}

// NewStreamModel creates a model for the given step labels. cancel is called
// when the user quits early.
func NewStreamModel(title string, labels []string, cancel context.CancelFunc) StreamModel {
	if cancel == nil {
		cancel = func() {}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle
	return StreamModel{
		title:     title,
		labels:    labels,
		statuses:  make([]StepStatus, len(labels)),
		startedAt: make([]time.Time, len(labels)),
		durations: make([]time.Duration, len(labels)),
		current:   -1,
		spinner:   sp,
		log:       NewLogPanelModel(100),
		status:    NewStatusBarModel(title, len(labels)),
		cancel:    cancel,
		now:       time.Now,
	}
}

// Init starts the spinner.
func (m StreamModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update routes messages to their handlers.
func (m StreamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.log.SetSize(msg.Width, logHeight)
		m.status.SetWidth(msg.Width)
		return m, nil

	case EventMsg:
		return m.handleEvent(msg), nil

	case ResultMsg:
		m.done = true
		m.err = msg.Err
		m.status.SetActive("")
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.canceled = true
			m.cancel()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m StreamModel) handleEvent(msg EventMsg) StreamModel {
	at := msg.At
	if at.IsZero() {
		at = m.now()
	}
	if !m.started {
		m.started = true
		m.status.Start(at)
	}
	m.log.Append(msg.Event, at)

	switch msg.Event.Type {
	case pipeline.EventProgress:
		if msg.Event.Step == nil {
			break
		}
		i := *msg.Event.Step
		if i < 0 || i >= len(m.labels) || i == m.current {
			break
		}
		m.finishCurrent(StepCompleted, at)
		m.skipPendingBefore(i)
		m.statuses[i] = StepRunning
		m.startedAt[i] = at
		m.current = i
		m.status.SetActive(m.labels[i])

	case pipeline.EventComplete:
		m.finishCurrent(StepCompleted, at)
		m.skipPendingBefore(len(m.labels))
		m.status.SetActive("")

	case pipeline.EventError:
		m.finishCurrent(StepFailed, at)
		m.errText = msg.Event.Error
	}
	m.status.SetFinished(m.finished())
	return m
}

func (m *StreamModel) finishCurrent(status StepStatus, at time.Time) {
	if m.current < 0 || m.statuses[m.current] != StepRunning {
		return
	}
	m.statuses[m.current] = status
	m.durations[m.current] = at.Sub(m.startedAt[m.current])
}

func (m *StreamModel) skipPendingBefore(end int) {
	for j := 0; j < end && j < len(m.statuses); j++ {
		if m.statuses[j] == StepPending {
			m.statuses[j] = StepSkipped
		}
	}
}

func (m StreamModel) finished() int {
	n := 0
	for _, s := range m.statuses {
		if s == StepCompleted || s == StepSkipped {
			n++
		}
	}
	return n
}

// Status returns the state of step i.
func (m StreamModel) Status(i int) StepStatus {
	if i < 0 || i >= len(m.statuses) {
		return StepPending
	}
	return m.statuses[i]
}

// View renders the step list, the event log and the status bar.
func (m StreamModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("pressroom: " + m.title))
	b.WriteString("\n\n")
	for i, label := range m.labels {
		b.WriteString(m.renderStep(i, label))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.log.View())
	b.WriteString("\n")
	b.WriteString(m.renderOutcome())
	b.WriteString("\n")
	return b.String()
}

func (m StreamModel) renderStep(i int, label string) string {
	status := m.statuses[i]
	style := StyleForStatus(status)
	switch status {
	case StepRunning:
		return style.Render(fmt.Sprintf("  %s %s", m.spinner.View(), label))
	case StepCompleted, StepFailed:
		return style.Render(fmt.Sprintf("  %s %s  %s", status.Icon(), label, formatDuration(m.durations[i])))
	case StepSkipped:
		return style.Render(fmt.Sprintf("  %s %s  skipped", status.Icon(), label))
	default:
		return style.Render("    " + label)
	}
}

func (m StreamModel) renderOutcome() string {
	switch {
	case m.canceled && !m.done:
		return FailedStyle.Render("  canceled")
	case m.done && m.errText != "":
		return FailedStyle.Render("  ✗ " + m.errText)
	case m.done && m.err != nil:
		return FailedStyle.Render(fmt.Sprintf("  ✗ %v", m.err))
	case m.done:
		return CompletedStyle.Render(fmt.Sprintf("  ✓ article ready in %s", formatElapsed(m.status.Elapsed())))
	}
	return m.status.View()
}

// formatDuration renders "0.1s" under ten seconds, "42s" under a minute and
// "2m05s" beyond.
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 10 {
		return fmt.Sprintf("%.1fs", secs)
	}
	if secs < 60 {
		return fmt.Sprintf("%.0fs", secs)
	}
	return fmt.Sprintf("%dm%02ds", int(secs)/60, int(secs)%60)
}
