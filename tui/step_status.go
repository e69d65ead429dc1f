// ABOUTME: StepStatus enum for the state of one generation step in the progress view.
// ABOUTME: Provides String and Icon for rendering.
package tui

// StepStatus is the display state of a step.
type StepStatus int

const (
	StepPending   StepStatus = iota // not reached yet
	StepRunning                     // progress event seen, no later step started
	StepCompleted                   // a later step started or the run completed
	StepFailed                      // the run failed while this step was active
	StepSkipped                     // the run moved past it without starting it
)

// String returns the lowercase name of the status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Icon returns the marker drawn before the step label. Running steps use the
// spinner instead.
func (s StepStatus) Icon() string {
	switch s {
	case StepCompleted:
		return "✓"
	case StepFailed:
		return "✗"
	case StepSkipped:
		return "–"
	default:
		return " "
	}
}
