// ABOUTME: Generator interface shared by the text/JSON generation backends.
// ABOUTME: Keys are supplied per call so one generator serves every credential in a pool.

package llm

import (
	"context"
	"fmt"
	"time"
)

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	JSON        bool     // ask for a JSON document instead of prose
	Temperature *float64 // nil uses the generator default
	MaxTokens   int      // zero uses the generator default
}

// Generator produces text for a prompt using the supplied API key. It does not
// retry: retries, key rotation and backoff belong to the caller.
type Generator interface {
	Name() string
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}

// Float is a helper for Request.Temperature.
func Float(v float64) *float64 { return &v }

// DefaultCallTimeout bounds one upstream call so a hung provider cannot stall a run.
const DefaultCallTimeout = 3 * time.Minute

// NewGenerator picks a backend by name.
func NewGenerator(name, model, baseURL string, timeout time.Duration) (Generator, error) {
	switch name {
	case "", "gemini":
		opts := []GeminiOption{WithGeminiTimeout(timeout)}
		if model != "" {
			opts = append(opts, WithGeminiModel(model))
		}
		if baseURL != "" {
			opts = append(opts, WithGeminiBaseURL(baseURL))
		}
		return NewGeminiGenerator(opts...), nil
	case "openai":
		opts := []OpenAIOption{WithOpenAITimeout(timeout)}
		if model != "" {
			opts = append(opts, WithOpenAIModel(model))
		}
		if baseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(baseURL))
		}
		return NewOpenAIGenerator(opts...), nil
	}
	return nil, fmt.Errorf("unknown generation provider %q", name)
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
