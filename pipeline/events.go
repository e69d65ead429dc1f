// ABOUTME: Progress event union and the Sink abstraction that receives a run's ordered events.
// ABOUTME: Includes an NDJSON sink for streams, an in-memory recorder, and a fan-out tee.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrSinkClosed is returned by Emit after Close.
var ErrSinkClosed = errors.New("sink closed")

// EventType tags an Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one line of the progress protocol:
//
//	{"type":"progress","step":N,"message":"..."}
//	{"type":"complete","data":{...}}
//	{"type":"error","error":"..."}
type Event struct {
	Type    EventType `json:"type"`
	Step    *int      `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// ProgressEvent announces that step ordinal is starting.
func ProgressEvent(step int, message string) Event {
	return Event{Type: EventProgress, Step: &step, Message: message}
}

// CompleteEvent carries the run's final result.
func CompleteEvent(data any) Event {
	return Event{Type: EventComplete, Data: data}
}

// ErrorEvent carries the run's terminal failure message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Error: message}
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Sink receives a run's events in emission order. Close is idempotent and
// nothing is delivered after it.
type Sink interface {
	Emit(Event) error
	Close() error
}

// NDJSONSink writes one JSON object per line to w, flushing after each line
// when w supports it (http.Flusher, bufio.Writer).
type NDJSONSink struct {
	w      io.Writer
	closer io.Closer

	mu          sync.Mutex
	closed      bool
	WriteErrors int
}

// NewNDJSONSink wraps w. If w is also an io.Closer it is not closed; use
// NewNDJSONFileSink for sinks that own their writer.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w}
}

// NewNDJSONFileSink returns a sink that closes wc on Close.
func NewNDJSONFileSink(wc io.WriteCloser) *NDJSONSink {
	return &NDJSONSink{w: wc, closer: wc}
}

// Emit marshals e and writes it as a single line.
func (s *NDJSONSink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	line, err := json.Marshal(e)
	if err != nil {
		s.WriteErrors++
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		s.WriteErrors++
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	switch f := s.w.(type) {
	case http.Flusher:
		f.Flush()
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			s.WriteErrors++
			return fmt.Errorf("flush %s event: %w", e.Type, err)
		}
	}
	return nil
}

// Close marks the sink closed. Only the first call has any effect.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// MemorySink records events in order.
type MemorySink struct {
	mu         sync.Mutex
	events     []Event
	closeCalls int
}

// Emit appends e unless the sink is closed.
func (m *MemorySink) Emit(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeCalls > 0 {
		return ErrSinkClosed
	}
	m.events = append(m.events, e)
	return nil
}

// Close marks the sink closed.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// Events returns a copy of everything emitted.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Closed reports whether Close has been called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls > 0
}

// Last returns the final event, if any.
func (m *MemorySink) Last() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return Event{}, false
	}
	return m.events[len(m.events)-1], true
}

// TeeSink forwards every event to each sink in order. A failing sink does not
// stop delivery to the others; the first error is returned.
type TeeSink []Sink

// Emit forwards e to every sink.
func (t TeeSink) Emit(e Event) error {
	var first error
	for _, s := range t {
		if err := s.Emit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (t TeeSink) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
