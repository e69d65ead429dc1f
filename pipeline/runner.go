// ABOUTME: Runner executes an ordered list of steps, streaming progress and exactly one terminal event to a Sink.
// ABOUTME: Tracks an explicit Pending/Running/Completed/Aborted state and recovers panics into error events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/2389-research/pressroom/keypool"
)

// State is a run's lifecycle position.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateCompleted || s == StateAborted }

// Transition is reported to RunnerConfig.OnTransition. Step is the ordinal of
// the running step, or -1.
type Transition struct {
	State State
	Step  int
	Err   error
}

// Pools resolves the credential pool for a provider. *keypool.Registry
// satisfies it.
type Pools interface {
	Pool(keypool.Provider) (*keypool.Pool, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Steps        []Step
	Pools        Pools
	Executor     *Executor                   // nil = NewExecutor()
	Finish       func(*Outputs) (any, error) // builds the Complete payload; nil = map of outputs
	ErrorMessage func(error) string          // maps a failure to the client-facing message
	StepPause    time.Duration               // pause between steps
	Sleep        Sleeper                     // nil = SleepContext
	OnTransition func(Transition)            // optional state observer
	Logger       *slog.Logger
}

// Runner drives a fixed pipeline. It is safe to call Run concurrently; each
// call has its own Outputs and state.
type Runner struct {
	cfg RunnerConfig
	log *slog.Logger
}

// NewRunner validates the step list and returns a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Steps) == 0 {
		return nil, errors.New("pipeline has no steps")
	}
	if cfg.Pools == nil {
		return nil, errors.New("pipeline has no credential pools")
	}
	seen := make(map[string]bool, len(cfg.Steps))
	for i, s := range cfg.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step %d has no ID", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate step ID %q", s.ID)
		}
		seen[s.ID] = true
		if s.Work == nil {
			return nil, fmt.Errorf("step %q has no work function", s.ID)
		}
		if _, err := cfg.Pools.Pool(s.Provider); err != nil {
			return nil, fmt.Errorf("step %q: %w", s.ID, err)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(WithExecutorLogger(log))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.ErrorMessage == nil {
		cfg.ErrorMessage = func(err error) string { return err.Error() }
	}
	return &Runner{cfg: cfg, log: log.With("component", "pipeline")}, nil
}

// Steps returns the configured steps.
func (r *Runner) Steps() []Step { return r.cfg.Steps }

// run is the per-call state machine.
type run struct {
	r     *Runner
	sink  Sink
	state State
	step  int
}

func (x *run) transition(to State, step int, err error) {
	x.state, x.step = to, step
	if x.r.cfg.OnTransition != nil {
		x.r.cfg.OnTransition(Transition{State: to, Step: step, Err: err})
	}
}

func (x *run) emit(e Event) {
	if err := x.sink.Emit(e); err != nil {
		x.r.log.Debug("event dropped", "type", string(e.Type), "error", err)
	}
}

func (x *run) abort(err error) error {
	if x.state.Terminal() {
		return err
	}
	x.transition(StateAborted, x.step, err)
	x.emit(ErrorEvent(x.r.cfg.ErrorMessage(err)))
	return err
}

// Run executes every step in order with input as the request, emitting one
// progress event per executed step and then exactly one complete or error
// event. The sink is closed before Run returns. The returned error is the
// cause of an aborted run.
func (r *Runner) Run(ctx context.Context, input map[string]any, sink Sink) (result any, err error) {
	x := &run{r: r, sink: sink, state: StatePending, step: -1}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panic", "panic", rec, "stack", string(debug.Stack()))
			result = nil
			err = x.abort(fmt.Errorf("%w: %v", ErrStepPanic, rec))
		}
		if cerr := sink.Close(); cerr != nil {
			r.log.Warn("closing sink", "error", cerr)
		}
	}()

	out := NewOutputs(input)
	last := len(r.cfg.Steps) - 1
	started := time.Now()

	for i, step := range r.cfg.Steps {
		if cerr := ctx.Err(); cerr != nil {
			return nil, x.abort(cerr)
		}
		if step.When != nil {
			ok, cerr := step.When.Eval(out)
			if cerr != nil {
				return nil, x.abort(fmt.Errorf("step %q: %w", step.label(), cerr))
			}
			if !ok {
				r.log.Info("step skipped", "step", step.ID, "condition", step.When.String())
				continue
			}
		}

		x.transition(StateRunning, i, nil)
		x.emit(ProgressEvent(i, step.label()))

		pool, perr := r.cfg.Pools.Pool(step.Provider)
		if perr != nil {
			return nil, x.abort(fmt.Errorf("step %q: %w", step.label(), perr))
		}
		value, serr := r.cfg.Executor.Run(ctx, i, step, pool, out)
		if serr != nil && step.Fallback != nil && Classify(serr) != ClassCanceled {
			r.log.Warn("step failed, using fallback", "step", step.ID, "error", serr)
			value, serr = step.Fallback(out, serr)
		}
		if serr != nil {
			r.log.Error("pipeline aborted", "step", step.ID, "ordinal", i, "error", serr)
			return nil, x.abort(serr)
		}
		out.Set(step.ID, value)

		if i < last && r.cfg.StepPause > 0 {
			if cerr := r.cfg.Sleep(ctx, r.cfg.StepPause); cerr != nil {
				return nil, x.abort(cerr)
			}
		}
	}

	if r.cfg.Finish != nil {
		result, err = r.cfg.Finish(out)
		if err != nil {
			return nil, x.abort(fmt.Errorf("finish: %w", err))
		}
	} else {
		result = out.snapshot()
	}

	x.transition(StateCompleted, x.step, nil)
	x.emit(CompleteEvent(result))
	r.log.Info("pipeline completed", "steps", len(out.IDs()), "duration", time.Since(started))
	return result, nil
}
