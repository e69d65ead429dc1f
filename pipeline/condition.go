// ABOUTME: CEL step conditions evaluated against the run input and prior step outputs.
// ABOUTME: Expressions are compiled when the pipeline is built so typos fail fast.
package pipeline

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Condition gates a step. Variables: input (the run request) and outputs
// (completed step results keyed by step ID), both map(string, dyn).
type Condition struct {
	expr    string
	program cel.Program
}

// NewCondition parses, type-checks and compiles expr.
func NewCondition(expr string) (*Condition, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("outputs", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	ast, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error parsing condition %q: %w", expr, issues.Err())
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error type-checking condition %q: %w", expr, issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("error compiling condition %q: %w", expr, err)
	}
	return &Condition{expr: expr, program: program}, nil
}

// MustCondition is NewCondition for package-level literals.
func MustCondition(expr string) *Condition {
	c, err := NewCondition(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the source expression.
func (c *Condition) String() string { return c.expr }

// Eval runs the condition against o.
func (c *Condition) Eval(o *Outputs) (bool, error) {
	outputs, err := o.plain()
	if err != nil {
		return false, err
	}
	result, _, err := c.program.Eval(map[string]any{
		"input":   o.Input(),
		"outputs": outputs,
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating condition %q: %w", c.expr, err)
	}
	if result.Type() != types.BoolType {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean", c.expr)
	}
	return result.Value().(bool), nil
}
