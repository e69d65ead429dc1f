// ABOUTME: Executor runs one step's work against a credential pool, rotating keys and retrying in rounds.
// ABOUTME: Fatal errors stop immediately; retryable ones back off and move on to the next key.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389-research/pressroom/keypool"
)

// DefaultMaxRetryRounds is the number of passes over the pool a step gets.
const DefaultMaxRetryRounds = 3

// ErrStepPanic wraps a panic recovered from step work.
var ErrStepPanic = errors.New("step panicked")

// maxReportedError bounds the error text stored on a credential.
const maxReportedError = 300

// WorkFunc performs one attempt of a step with the given credential.
type WorkFunc func(ctx context.Context, in *Outputs, cred *keypool.Credential) (any, error)

// FallbackFunc produces a substitute output when a step exhausts its retries.
type FallbackFunc func(in *Outputs, err error) (any, error)

// Step is one unit of pipeline work.
type Step struct {
	ID             string
	Name           string // progress message shown when the step starts
	Provider       keypool.Provider
	MaxRetryRounds int
	Work           WorkFunc
	When           *Condition
	Fallback       FallbackFunc
}

func (s Step) rounds() int {
	if s.MaxRetryRounds > 0 {
		return s.MaxRetryRounds
	}
	return DefaultMaxRetryRounds
}

func (s Step) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// StepError reports a step that could not produce an output.
type StepError struct {
	Step     string
	Attempts int
	PoolSize int
	Class    ErrorClass
	Err      error
}

func (e *StepError) Error() string {
	switch e.Class {
	case ClassCanceled:
		return fmt.Sprintf("step %q canceled after %d attempts: %v", e.Step, e.Attempts, e.Err)
	case ClassFatal:
		return fmt.Sprintf("step %q failed after %d attempts with a non-retryable error: %v", e.Step, e.Attempts, e.Err)
	}
	return fmt.Sprintf("step %q failed after %d attempts across %d credentials: %v", e.Step, e.Attempts, e.PoolSize, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Attempt describes a single failed try, passed to the attempt hook.
type Attempt struct {
	Step     string
	Number   int // 1-based across all rounds
	Round    int
	KeyIndex int
	Key      string // redacted
	Class    ErrorClass
	Err      error
}

// Executor drives step attempts. The zero value is not usable; call NewExecutor.
type Executor struct {
	backoff   Backoff
	sleep     Sleeper
	logger    *slog.Logger
	onAttempt func(Attempt)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBackoff replaces the default backoff policy.
func WithBackoff(b Backoff) ExecutorOption {
	return func(e *Executor) { e.backoff = b }
}

// WithSleeper replaces the context-aware sleep between attempts.
func WithSleeper(s Sleeper) ExecutorOption {
	return func(e *Executor) { e.sleep = s }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithAttemptHook registers a callback invoked after every failed attempt.
func WithAttemptHook(fn func(Attempt)) ExecutorOption {
	return func(e *Executor) { e.onAttempt = fn }
}

// NewExecutor creates an Executor with DefaultBackoff and SleepContext.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		backoff: DefaultBackoff(),
		sleep:   SleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes step, starting at credential ordinal mod pool size and walking
// the pool for up to step.MaxRetryRounds rounds. On success the credential is
// reported healthy; every non-canceled failure is reported against the key
// that produced it.
func (e *Executor) Run(ctx context.Context, ordinal int, step Step, pool *keypool.Pool, in *Outputs) (any, error) {
	name := step.label()
	size := pool.Size()
	if size == 0 {
		return nil, &StepError{Step: name, Class: ClassFatal, Err: fmt.Errorf("%s: %w", pool.Provider(), keypool.ErrNoCredentials)}
	}

	primary := ordinal % size
	if primary < 0 {
		primary += size
	}
	rounds := step.rounds()
	log := e.logger.With("step", step.ID, "provider", string(pool.Provider()))

	attempts := 0
	lastClass := ClassUnknown
	var lastErr error

	for round := 0; round < rounds; round++ {
		for offset := 0; offset < size; offset++ {
			if err := ctx.Err(); err != nil {
				return nil, &StepError{Step: name, Attempts: attempts, PoolSize: size, Class: ClassCanceled, Err: err}
			}
			attempts++
			if d := e.backoff.Delay(attempts, round, lastClass); d > 0 {
				log.Debug("backing off", "attempt", attempts, "round", round, "delay", d)
				if err := e.sleep(ctx, d); err != nil {
					return nil, &StepError{Step: name, Attempts: attempts - 1, PoolSize: size, Class: ClassCanceled, Err: err}
				}
			}

			cred, err := pool.At(primary + offset)
			if err != nil {
				return nil, &StepError{Step: name, Attempts: attempts - 1, PoolSize: size, Class: ClassFatal, Err: err}
			}

			start := time.Now()
			out, err := e.attempt(ctx, step, in, cred)
			if err == nil {
				pool.ReportSuccess(cred)
				log.Info("step attempt succeeded", "attempt", attempts, "key_index", cred.Index(), "duration", time.Since(start))
				return out, nil
			}

			class := Classify(err)
			if class == ClassCanceled {
				return nil, &StepError{Step: name, Attempts: attempts, PoolSize: size, Class: class, Err: err}
			}
			if !errors.Is(err, ErrStepPanic) {
				pool.ReportFailure(cred, truncate(err.Error(), maxReportedError))
			}
			log.Warn("step attempt failed",
				"attempt", attempts, "round", round, "key_index", cred.Index(),
				"key", cred.Redacted(), "class", class.String(), "error", err)
			if e.onAttempt != nil {
				e.onAttempt(Attempt{
					Step: step.ID, Number: attempts, Round: round,
					KeyIndex: cred.Index(), Key: cred.Redacted(), Class: class, Err: err,
				})
			}

			if class == ClassFatal {
				return nil, &StepError{Step: name, Attempts: attempts, PoolSize: size, Class: class, Err: err}
			}
			lastErr, lastClass = err, class
		}
	}
	return nil, &StepError{Step: name, Attempts: attempts, PoolSize: size, Class: lastClass, Err: lastErr}
}

// attempt invokes step.Work, converting a panic into an ErrStepPanic error.
func (e *Executor) attempt(ctx context.Context, step Step, in *Outputs, cred *keypool.Credential) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	return step.Work(ctx, in, cred)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
