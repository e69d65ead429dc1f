// ABOUTME: Bubble Tea message types used by the progress view.
// ABOUTME: Each wraps a pipeline event or the run's final outcome for the tea.Msg loop.
package tui

import (
	"time"

	"github.com/2389-research/pressroom/pipeline"
)

// EventMsg carries one progress protocol event into the message loop.
type EventMsg struct {
	Event pipeline.Event
	At    time.Time
}

// ResultMsg signals that the run has returned.
type ResultMsg struct {
	Err error
}
