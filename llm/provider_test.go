// ABOUTME: Tests for backend selection by name and the per-call timeout helper.
// ABOUTME: Constructors only; the backends themselves are exercised against httptest servers elsewhere.

package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	for name, want := range map[string]string{"": "gemini", "gemini": "gemini", "openai": "openai"} {
		g, err := NewGenerator(name, "", "", time.Minute)
		require.NoError(t, err, name)
		assert.Equal(t, want, g.Name())
	}

	g, err := NewGenerator("openai", "gpt-4o", "https://llm.example.com/v1", 0)
	require.NoError(t, err)
	oa, ok := g.(*OpenAIGenerator)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", oa.model)

	_, err = NewGenerator("anthropic", "", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestWithCallTimeout(t *testing.T) {
	ctx, cancel := withCallTimeout(context.Background(), 0)
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.Error(t, ctx.Err())

	ctx, cancel = withCallTimeout(context.Background(), time.Hour)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
}
