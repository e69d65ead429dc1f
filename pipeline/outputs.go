// ABOUTME: Outputs holds the run's request input and every completed step's result keyed by step ID.
// ABOUTME: Later steps read any earlier output, not just the previous one.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Outputs is the shared state threaded through a run.
type Outputs struct {
	mu     sync.RWMutex
	input  map[string]any
	values map[string]any
	order  []string
}

// NewOutputs creates an Outputs seeded with the run input.
func NewOutputs(input map[string]any) *Outputs {
	if input == nil {
		input = map[string]any{}
	}
	return &Outputs{input: input, values: make(map[string]any)}
}

// Input returns the run input.
func (o *Outputs) Input() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.input
}

// Set stores the output of stepID.
func (o *Outputs) Set(stepID string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.values[stepID]; !ok {
		o.order = append(o.order, stepID)
	}
	o.values[stepID] = v
}

// Get returns the output of stepID.
func (o *Outputs) Get(stepID string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[stepID]
	return v, ok
}

// Has reports whether stepID produced an output.
func (o *Outputs) Has(stepID string) bool {
	_, ok := o.Get(stepID)
	return ok
}

// IDs returns step IDs in completion order.
func (o *Outputs) IDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

// Output fetches a typed step output.
func Output[T any](o *Outputs, stepID string) (T, error) {
	var zero T
	v, ok := o.Get(stepID)
	if !ok {
		return zero, fmt.Errorf("no output for step %q", stepID)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("output of step %q is %T, want %T", stepID, v, zero)
	}
	return t, nil
}

// OutputOr fetches a typed output, returning def when the step was skipped.
func OutputOr[T any](o *Outputs, stepID string, def T) T {
	v, err := Output[T](o, stepID)
	if err != nil {
		return def
	}
	return v
}

// plain converts outputs to JSON-shaped maps for expression evaluation.
func (o *Outputs) plain() (map[string]any, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any, len(o.values))
	for id, v := range o.values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode output %q: %w", id, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("decode output %q: %w", id, err)
		}
		out[id] = generic
	}
	return out, nil
}

// snapshot returns a shallow copy of all outputs.
func (o *Outputs) snapshot() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}
