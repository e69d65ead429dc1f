// ABOUTME: Tests for CEL step conditions over the run input and prior outputs.
// ABOUTME: Covers compile-time rejection and non-boolean results.
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolInfo struct {
	Pricing string   `json:"pricing"`
	Pros    []string `json:"advantages"`
}

func TestConditionEval(t *testing.T) {
	out := NewOutputs(map[string]any{"category": "AI Tools", "affiliate_link": ""})
	out.Set("tool", toolInfo{Pricing: "free", Pros: []string{"fast", "cheap"}})

	tests := []struct {
		expr string
		want bool
	}{
		{`input.category == "AI Tools"`, true},
		{`input.category == "Blog"`, false},
		{`input.affiliate_link != ""`, false},
		{`"tool" in outputs`, true},
		{`"missing" in outputs`, false},
		{`size(outputs.tool.advantages) == 2`, true},
		{`outputs.tool.pricing.startsWith("fr")`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := NewCondition(tt.expr)
			require.NoError(t, err)
			got, err := c.Eval(out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionRejectsBadSyntax(t *testing.T) {
	_, err := NewCondition(`input.category ==`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestConditionRejectsUnknownVariable(t *testing.T) {
	_, err := NewCondition(`request.category == "x"`)
	require.Error(t, err)
}

func TestConditionNonBoolean(t *testing.T) {
	c, err := NewCondition(`input.category`)
	require.NoError(t, err)
	_, err = c.Eval(NewOutputs(map[string]any{"category": "Blog"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestMustConditionPanics(t *testing.T) {
	assert.Panics(t, func() { MustCondition(`(`) })
}
