// ABOUTME: Gemini generator built on the google.golang.org/genai SDK.
// ABOUTME: Maps genai API errors and blocked/empty candidates onto ProviderError.

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator implements Generator against the Gemini API. A genai client is
// built per call because the API key changes with every credential.
type GeminiGenerator struct {
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	maxTokens  int32
}

// GeminiOption is a functional option for configuring a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithGeminiModel overrides the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiGenerator) { g.model = model }
}

// WithGeminiBaseURL points the SDK at a different endpoint (tests, proxies).
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *GeminiGenerator) { g.baseURL = url }
}

// WithGeminiTimeout sets the per-call timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGeminiHTTPClient sets the HTTP client handed to the SDK.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiGenerator) { g.httpClient = c }
}

// NewGeminiGenerator creates a GeminiGenerator with the given options.
func NewGeminiGenerator(opts ...GeminiOption) *GeminiGenerator {
	g := &GeminiGenerator{
		model:     defaultGeminiModel,
		timeout:   DefaultCallTimeout,
		maxTokens: 65536,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *GeminiGenerator) Name() string { return "gemini" }

// Generate runs one generateContent call.
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	ctx, cancel := withCallTimeout(ctx, g.timeout)
	defer cancel()

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions.BaseURL = g.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", &ProviderError{Provider: g.Name(), Message: "client setup failed", Cause: err}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), g.config(req))
	if err != nil {
		return "", g.mapError(err)
	}
	return g.text(resp)
}

func (g *GeminiGenerator) config(req Request) *genai.GenerateContentConfig {
	temp := 0.7
	mime := "text/plain"
	if req.JSON {
		temp = 0.5
		mime = "application/json"
	}
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(temp)),
		TopP:             genai.Ptr[float32](0.95),
		TopK:             genai.Ptr[float32](40),
		MaxOutputTokens:  maxTokens,
		ResponseMIMEType: mime,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func (g *GeminiGenerator) text(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", &ProviderError{Provider: g.Name(), Retryable: true, Cause: ErrEmptyResponse}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &ProviderError{Provider: g.Name(), Status: string(fb.BlockReason), Retryable: true, Cause: ErrBlocked}
	}
	if len(resp.Candidates) > 0 {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation:
			return "", &ProviderError{
				Provider:  g.Name(),
				Status:    string(resp.Candidates[0].FinishReason),
				Retryable: true,
				Cause:     ErrBlocked,
			}
		}
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", &ProviderError{Provider: g.Name(), Retryable: true, Cause: ErrEmptyResponse}
	}
	return out, nil
}

func (g *GeminiGenerator) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := ErrorFromStatusCode(g.Name(), apiErr.Code, apiErr.Status, apiErr.Message)
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: g.Name(), Message: "request timed out", Retryable: true, Cause: err}
	}
	return &ProviderError{Provider: g.Name(), Retryable: true, Cause: err}
}
