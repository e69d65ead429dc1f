// ABOUTME: OpenAI Chat Completions generator with base URL support for compatible providers.
// ABOUTME: SDK retries are disabled so key rotation and backoff stay with the step executor.

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator implements Generator using the Chat Completions API, which is
// the endpoint OpenAI-compatible services (OpenRouter, Cerebras, gateways) share.
type OpenAIGenerator struct {
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// OpenAIOption is a functional option for configuring an OpenAIGenerator.
type OpenAIOption func(*OpenAIGenerator)

// WithOpenAIModel overrides the model name.
func WithOpenAIModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) { g.model = model }
}

// WithOpenAIBaseURL targets an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(g *OpenAIGenerator) { g.baseURL = url }
}

// WithOpenAITimeout sets the per-call timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithOpenAIHTTPClient sets the HTTP client used by the SDK.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(g *OpenAIGenerator) { g.httpClient = c }
}

// NewOpenAIGenerator creates an OpenAIGenerator.
func NewOpenAIGenerator(opts ...OpenAIOption) *OpenAIGenerator {
	g := &OpenAIGenerator{model: defaultOpenAIModel, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "openai".
func (g *OpenAIGenerator) Name() string { return "openai" }

// Generate sends one chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	ctx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if g.baseURL != "" {
		opts = append(opts, option.WithBaseURL(g.baseURL))
	}
	if g.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(g.httpClient))
	}
	client := openai.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return "", g.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: g.Name(), Retryable: true, Cause: ErrEmptyResponse}
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &ProviderError{Provider: g.Name(), Status: "content_filter", Retryable: true, Cause: ErrBlocked}
	}
	out := strings.TrimSpace(choice.Message.Content)
	if out == "" {
		return "", &ProviderError{Provider: g.Name(), Retryable: true, Cause: ErrEmptyResponse}
	}
	return out, nil
}

func (g *OpenAIGenerator) params(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))
	params.Messages = messages
	return params
}

func (g *OpenAIGenerator) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := ErrorFromStatusCode(g.Name(), apiErr.StatusCode, apiErr.Code, apiErr.Message)
		if apiErr.Response != nil {
			pe.RetryAfter = ParseRetryAfter(apiErr.Response.Header)
		}
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: g.Name(), Retryable: true, Cause: err}
}
