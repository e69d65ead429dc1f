// ABOUTME: Bridge between a generation run and the Bubble Tea program.
// ABOUTME: Sink forwards pipeline events as messages; Run drives a run under the inline progress view.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pressroom/pipeline"
)

// Sink is a pipeline.Sink that injects events into a tea.Program.
type Sink struct {
	send func(tea.Msg)
	now  func() time.Time

	mu     sync.Mutex
	closed bool
}

var _ pipeline.Sink = (*Sink)(nil)

// NewSink sends through send, typically program.Send.
func NewSink(send func(tea.Msg)) *Sink {
	return &Sink{send: send, now: time.Now}
}

// Emit forwards ev as an EventMsg.
func (s *Sink) Emit(ev pipeline.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return pipeline.ErrSinkClosed
	}
	s.send(EventMsg{Event: ev, At: s.now()})
	return nil
}

// Close stops forwarding. The program learns the outcome from ResultMsg.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// RunFunc performs one generation, reporting progress to sink.
type RunFunc func(ctx context.Context, sink pipeline.Sink) error

// Run executes fn while the progress view renders its events and returns fn's
// error. Quitting the view cancels fn's context and waits for it to return.
func Run(ctx context.Context, title string, labels []string, fn RunFunc, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewStreamModel(title, labels, cancel), opts...)
	sink := NewSink(p.Send)

	done := make(chan error, 1)
	go func() {
		err := fn(ctx, sink)
		done <- err
		p.Send(ResultMsg{Err: err})
	}()

	_, perr := p.Run()
	cancel()
	err := <-done
	if perr != nil {
		return fmt.Errorf("progress view: %w", perr)
	}
	return err
}
