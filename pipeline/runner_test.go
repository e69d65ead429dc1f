// ABOUTME: Tests for the pipeline runner: event ordering, abort on step failure, conditions, fallbacks, and cancellation.
// ABOUTME: Event streams are compared structurally with go-cmp against the expected protocol lines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
)

type poolSet map[keypool.Provider]*keypool.Pool

func (p poolSet) Pool(provider keypool.Provider) (*keypool.Pool, error) {
	pool, ok := p[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", keypool.ErrUnknownProvider, provider)
	}
	return pool, nil
}

func testPools(generation ...string) poolSet {
	return poolSet{
		keypool.ProviderGeneration: keypool.New(keypool.ProviderGeneration, keypool.GenerationPolicy(), generation),
		keypool.ProviderSearch:     keypool.New(keypool.ProviderSearch, keypool.SearchPolicy(), []string{"news-1"}),
	}
}

func constStep(id, name string, value any) Step {
	return Step{
		ID: id, Name: name, Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) { return value, nil },
	}
}

func newTestRunner(t *testing.T, cfg RunnerConfig) *Runner {
	t.Helper()
	if cfg.Pools == nil {
		cfg.Pools = testPools("A", "B")
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(WithSleeper(NoSleep))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = NoSleep
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestRunnerCompletesWithFinishPayload(t *testing.T) {
	read := Step{
		ID: "combine", Name: "Combining", Provider: keypool.ProviderGeneration,
		Work: func(_ context.Context, in *Outputs, _ *keypool.Credential) (any, error) {
			first, err := Output[string](in, "first")
			if err != nil {
				return nil, err
			}
			return first + "+" + in.Input()["keyword"].(string), nil
		},
	}
	r := newTestRunner(t, RunnerConfig{
		Steps: []Step{constStep("first", "First", "one"), constStep("second", "Second", 2), read},
		Finish: func(o *Outputs) (any, error) {
			return map[string]any{"combined": OutputOr(o, "combine", "")}, nil
		},
	})
	sink := &MemorySink{}

	result, err := r.Run(context.Background(), map[string]any{"keyword": "go"}, sink)

	require.NoError(t, err)
	want := []Event{
		ProgressEvent(0, "First"),
		ProgressEvent(1, "Second"),
		ProgressEvent(2, "Combining"),
		CompleteEvent(map[string]any{"combined": "one+go"}),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]any{"combined": "one+go"}, result)
	assert.True(t, sink.Closed())
}

func TestRunnerAbortsOnStepFailure(t *testing.T) {
	thirdCalled := false
	failing := Step{
		ID: "second", Name: "Second", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			return nil, llm.ErrorFromStatusCode("gemini", 503, "", "overloaded")
		},
	}
	third := Step{
		ID: "third", Name: "Third", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			thirdCalled = true
			return nil, nil
		},
	}
	var transitions []Transition
	r := newTestRunner(t, RunnerConfig{
		Steps:        []Step{constStep("first", "First", 1), failing, third},
		OnTransition: func(tr Transition) { transitions = append(transitions, tr) },
	})
	sink := &MemorySink{}

	_, err := r.Run(context.Background(), nil, sink)

	require.Error(t, err)
	assert.False(t, thirdCalled)
	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, ProgressEvent(0, "First"), events[0])
	assert.Equal(t, ProgressEvent(1, "Second"), events[1])
	assert.Equal(t, EventError, events[2].Type)
	assert.Contains(t, events[2].Error, `step "Second" failed after 6 attempts across 2 credentials`)
	assert.True(t, sink.Closed())

	require.NotEmpty(t, transitions)
	lastTr := transitions[len(transitions)-1]
	assert.Equal(t, StateAborted, lastTr.State)
	assert.Equal(t, 1, lastTr.Step)
}

func TestRunnerErrorMessageMapping(t *testing.T) {
	failing := Step{
		ID: "s", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			return nil, errors.New("API_KEY_INVALID")
		},
	}
	r := newTestRunner(t, RunnerConfig{
		Steps:        []Step{failing},
		ErrorMessage: func(err error) string { return "invalid key: " + Classify(err).String() },
	})
	sink := &MemorySink{}

	_, err := r.Run(context.Background(), nil, sink)

	require.Error(t, err)
	last, ok := sink.Last()
	require.True(t, ok)
	assert.Equal(t, ErrorEvent("invalid key: fatal"), last)
}

func TestRunnerSkipsStepsWhoseConditionIsFalse(t *testing.T) {
	called := false
	tool := Step{
		ID: "tool", Name: "Tool analysis", Provider: keypool.ProviderGeneration,
		When: MustCondition(`input.category == "AI Tools"`),
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			called = true
			return "tool", nil
		},
	}
	r := newTestRunner(t, RunnerConfig{
		Steps: []Step{constStep("a", "A", 1), tool, constStep("b", "B", 2)},
	})
	sink := &MemorySink{}

	result, err := r.Run(context.Background(), map[string]any{"category": "Blog"}, sink)

	require.NoError(t, err)
	assert.False(t, called)
	want := []Event{
		ProgressEvent(0, "A"),
		ProgressEvent(2, "B"),
		CompleteEvent(map[string]any{"a": 1, "b": 2}),
	}
	if diff := cmp.Diff(want, sink.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, result, "tool")
}

func TestRunnerUsesFallbackOnExhaustion(t *testing.T) {
	failing := Step{
		ID: "structure", Name: "Structure", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			return nil, llm.ErrorFromStatusCode("gemini", 429, "", "quota exceeded")
		},
		Fallback: func(in *Outputs, err error) (any, error) {
			return "fallback structure", nil
		},
	}
	r := newTestRunner(t, RunnerConfig{Steps: []Step{failing, constStep("next", "Next", "done")}})
	sink := &MemorySink{}

	result, err := r.Run(context.Background(), nil, sink)

	require.NoError(t, err)
	assert.Equal(t, "fallback structure", result.(map[string]any)["structure"])
	last, _ := sink.Last()
	assert.Equal(t, EventComplete, last.Type)
}

func TestRunnerEmptyPoolAbortsRun(t *testing.T) {
	empty := poolSet{
		keypool.ProviderGeneration: keypool.New(keypool.ProviderGeneration, keypool.GenerationPolicy(), []string{"A"}),
		keypool.ProviderSearch:     keypool.New(keypool.ProviderSearch, keypool.SearchPolicy(), nil),
	}
	research := constStep("research", "Research", nil)
	research.Provider = keypool.ProviderSearch
	r := newTestRunner(t, RunnerConfig{Pools: empty, Steps: []Step{research}})
	sink := &MemorySink{}

	_, err := r.Run(context.Background(), nil, sink)

	require.ErrorIs(t, err, keypool.ErrNoCredentials)
	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
}

func TestRunnerCancellationStopsBeforeNextStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	secondCalled := false
	first := Step{
		ID: "first", Name: "First", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			cancel()
			return "done", nil
		},
	}
	second := Step{
		ID: "second", Name: "Second", Provider: keypool.ProviderGeneration,
		Work: func(context.Context, *Outputs, *keypool.Credential) (any, error) {
			secondCalled = true
			return nil, nil
		},
	}
	r := newTestRunner(t, RunnerConfig{Steps: []Step{first, second}, StepPause: 2 * time.Second})
	sink := &MemorySink{}

	_, err := r.Run(ctx, nil, sink)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, secondCalled)
	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.True(t, sink.Closed())
}

func TestRunnerRecoversFinishPanic(t *testing.T) {
	r := newTestRunner(t, RunnerConfig{
		Steps:  []Step{constStep("a", "A", 1)},
		Finish: func(*Outputs) (any, error) { panic("bad finish") },
	})
	sink := &MemorySink{}

	_, err := r.Run(context.Background(), nil, sink)

	require.ErrorIs(t, err, ErrStepPanic)
	terminal := 0
	for _, e := range sink.Events() {
		if e.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	last, _ := sink.Last()
	assert.True(t, strings.Contains(last.Error, "bad finish"))
	assert.True(t, sink.Closed())
}

func TestRunnerSpreadsStepsAcrossKeys(t *testing.T) {
	var used []string
	step := func(id string) Step {
		return Step{
			ID: id, Provider: keypool.ProviderGeneration,
			Work: func(_ context.Context, _ *Outputs, cred *keypool.Credential) (any, error) {
				used = append(used, cred.Value())
				return nil, nil
			},
		}
	}
	r := newTestRunner(t, RunnerConfig{
		Pools: testPools("A", "B", "C"),
		Steps: []Step{step("s0"), step("s1"), step("s2"), step("s3")},
	})

	_, err := r.Run(context.Background(), nil, &MemorySink{})

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "A"}, used)
}

func TestNewRunnerValidation(t *testing.T) {
	work := func(context.Context, *Outputs, *keypool.Credential) (any, error) { return nil, nil }
	tests := []struct {
		name  string
		steps []Step
		want  string
	}{
		{"empty", nil, "no steps"},
		{"missing id", []Step{{Provider: keypool.ProviderGeneration, Work: work}}, "has no ID"},
		{"duplicate", []Step{
			{ID: "a", Provider: keypool.ProviderGeneration, Work: work},
			{ID: "a", Provider: keypool.ProviderGeneration, Work: work},
		}, "duplicate"},
		{"no work", []Step{{ID: "a", Provider: keypool.ProviderGeneration}}, "no work"},
		{"unknown provider", []Step{{ID: "a", Provider: "images", Work: work}}, "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(RunnerConfig{Steps: tt.steps, Pools: testPools("A")})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
