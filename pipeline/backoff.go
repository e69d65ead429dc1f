// ABOUTME: Backoff policy for step retries: steep exponential delays after overload, linear otherwise.
// ABOUTME: Also defines the Sleeper used between attempts so tests can run without real delays.
package pipeline

import (
	"context"
	"time"
)

// Backoff computes the pause before an attempt.
type Backoff struct {
	OverloadBase time.Duration // doubled per retry round
	OverloadMax  time.Duration
	LinearBase   time.Duration // plus LinearStep per attempt
	LinearStep   time.Duration
	LinearMax    time.Duration
}

// DefaultBackoff returns 5s·2^round capped at 60s after overload, and
// 3s + attempt·1s capped at 15s for everything else.
func DefaultBackoff() Backoff {
	return Backoff{
		OverloadBase: 5 * time.Second,
		OverloadMax:  60 * time.Second,
		LinearBase:   3 * time.Second,
		LinearStep:   time.Second,
		LinearMax:    15 * time.Second,
	}
}

// Delay returns the pause before attempt (1-based) in the given retry round,
// given the class of the previous failure. The first attempt never waits.
func (b Backoff) Delay(attempt, round int, prev ErrorClass) time.Duration {
	if attempt <= 1 {
		return 0
	}
	if prev == ClassOverload {
		d := b.OverloadBase
		for i := 0; i < round && d < b.OverloadMax; i++ {
			d *= 2
		}
		return min(d, b.OverloadMax)
	}
	return min(b.LinearBase+time.Duration(attempt)*b.LinearStep, b.LinearMax)
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep records nothing and never waits; handy for tests and dry runs.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
