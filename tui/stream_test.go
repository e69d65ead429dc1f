// ABOUTME: Tests for the progress view: step state transitions, skipped steps, failures, quitting, and rendering.
// ABOUTME: Drives StreamModel.Update directly with pipeline events and inspects the resulting model.
package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pressroom/pipeline"
)

var testLabels = []string{"Research", "Headings", "Tool analysis", "Content"}

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func feed(t *testing.T, m StreamModel, msgs ...tea.Msg) StreamModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(StreamModel)
	}
	return m
}

func progress(step int, sec int) EventMsg {
	return EventMsg{Event: pipeline.ProgressEvent(step, testLabels[step]), At: t0.Add(time.Duration(sec) * time.Second)}
}

func TestStreamModelProgress(t *testing.T) {
	m := NewStreamModel("vector databases", testLabels, nil)
	m = feed(t, m, progress(0, 0))
	if got := m.Status(0); got != StepRunning {
		t.Fatalf("step 0 = %v, want running", got)
	}

	m = feed(t, m, progress(1, 3))
	if got := m.Status(0); got != StepCompleted {
		t.Errorf("step 0 = %v, want completed", got)
	}
	if m.durations[0] != 3*time.Second {
		t.Errorf("step 0 duration = %v, want 3s", m.durations[0])
	}

	// Step 2 is never announced: its condition was false.
	m = feed(t, m, progress(3, 5))
	if got := m.Status(2); got != StepSkipped {
		t.Errorf("step 2 = %v, want skipped", got)
	}
	if got := m.Status(3); got != StepRunning {
		t.Errorf("step 3 = %v, want running", got)
	}

	m = feed(t, m, EventMsg{Event: pipeline.CompleteEvent(map[string]any{"title": "x"}), At: t0.Add(9 * time.Second)})
	for i := range testLabels {
		if s := m.Status(i); s != StepCompleted && s != StepSkipped {
			t.Errorf("step %d = %v after completion", i, s)
		}
	}
	if m.finished() != len(testLabels) {
		t.Errorf("finished = %d, want %d", m.finished(), len(testLabels))
	}
}

func TestStreamModelRepeatedProgressKeepsStart(t *testing.T) {
	m := NewStreamModel("k", testLabels, nil)
	m = feed(t, m, progress(0, 0), progress(0, 4), progress(1, 6))
	if m.durations[0] != 6*time.Second {
		t.Errorf("duration = %v, want 6s", m.durations[0])
	}
}

func TestStreamModelIgnoresOutOfRangeSteps(t *testing.T) {
	m := NewStreamModel("k", testLabels, nil)
	bad := 99
	m = feed(t, m, EventMsg{Event: pipeline.Event{Type: pipeline.EventProgress, Step: &bad}, At: t0})
	if m.current != -1 {
		t.Errorf("current = %d, want -1", m.current)
	}
	if m.log.Len() != 1 {
		t.Errorf("log len = %d, want 1", m.log.Len())
	}
}

func TestStreamModelError(t *testing.T) {
	m := NewStreamModel("k", testLabels, nil)
	m = feed(t, m,
		progress(0, 0),
		progress(1, 1),
		EventMsg{Event: pipeline.ErrorEvent("quota exhausted"), At: t0.Add(2 * time.Second)},
	)
	if got := m.Status(1); got != StepFailed {
		t.Errorf("step 1 = %v, want failed", got)
	}
	if got := m.Status(3); got != StepPending {
		t.Errorf("step 3 = %v, want pending", got)
	}

	next, cmd := m.Update(ResultMsg{Err: errors.New("run failed")})
	m = next.(StreamModel)
	if !m.done {
		t.Error("done should be set after ResultMsg")
	}
	if cmd == nil {
		t.Error("ResultMsg should quit the program")
	}
	if !strings.Contains(m.View(), "quota exhausted") {
		t.Error("view should show the error message")
	}
}

func TestStreamModelQuitCancels(t *testing.T) {
	canceled := false
	m := NewStreamModel("k", testLabels, context.CancelFunc(func() { canceled = true }))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(StreamModel)
	if !canceled {
		t.Error("ctrl+c should cancel the run")
	}
	if cmd == nil {
		t.Error("ctrl+c should quit")
	}
	if !strings.Contains(m.View(), "canceled") {
		t.Error("view should say canceled")
	}
}

func TestStreamModelView(t *testing.T) {
	m := NewStreamModel("vector databases", testLabels, nil)
	m = feed(t, m, tea.WindowSizeMsg{Width: 100, Height: 40}, progress(0, 0), progress(1, 2))
	view := m.View()
	for _, want := range []string{"vector databases", "Research", "Headings", "Content", "1/4 steps"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m = feed(t, m, EventMsg{Event: pipeline.CompleteEvent(nil), At: t0.Add(3 * time.Second)}, ResultMsg{})
	if !strings.Contains(m.View(), "article ready") {
		t.Error("view should report the finished article")
	}
}

func TestSinkForwardsUntilClosed(t *testing.T) {
	var got []tea.Msg
	s := NewSink(func(msg tea.Msg) { got = append(got, msg) })
	if err := s.Emit(pipeline.ProgressEvent(0, "Research")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	ev, ok := got[0].(EventMsg)
	if !ok || ev.Event.Type != pipeline.EventProgress || ev.At.IsZero() {
		t.Errorf("unexpected message %#v", got[0])
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Emit(pipeline.ErrorEvent("late")); !errors.Is(err, pipeline.ErrSinkClosed) {
		t.Errorf("emit after close = %v, want ErrSinkClosed", err)
	}
}

func TestStepStatusStrings(t *testing.T) {
	cases := map[StepStatus]string{
		StepPending:    "pending",
		StepRunning:    "running",
		StepCompleted:  "completed",
		StepFailed:     "failed",
		StepSkipped:    "skipped",
		StepStatus(42): "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestFormatting(t *testing.T) {
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatDuration(125 * time.Second); got != "2m05s" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatElapsed(150 * time.Second); got != "2m30s" {
		t.Errorf("formatElapsed = %q", got)
	}
}
