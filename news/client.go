// ABOUTME: NewsAPI client that runs several query variants for a keyword and merges them into a Digest.
// ABOUTME: Non-2xx responses become llm.ProviderError so the step executor can classify and rotate keys.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/2389-research/pressroom/llm"
)

const (
	// DefaultBaseURL is the public NewsAPI endpoint.
	DefaultBaseURL = "https://newsapi.org"

	defaultPageSize = 10
	defaultLookback = 30 * 24 * time.Hour
	maxArticles     = 25
	providerName    = "newsapi"
)

// Article is one news item.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      string    `json:"source"`
}

// Client queries NewsAPI's /v2/everything endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	lookback   time.Duration
	now        func() time.Time
	converter  *md.Converter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithPageSize sets how many articles each query variant requests.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLookback limits results to articles newer than now minus d.
func WithLookback(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.lookback = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pageSize:   defaultPageSize,
		lookback:   defaultLookback,
		now:        time.Now,
		converter:  md.NewConverter("", true, nil),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Queries returns the query variants searched for keyword, one of them pinned
// to year.
func Queries(keyword string, year int) []string {
	return []string{
		keyword,
		keyword + " " + strconv.Itoa(year),
		keyword + " latest",
		keyword + " news",
		keyword + " trends",
	}
}

// Search runs every query variant with apiKey and merges the results. An
// authentication or rate-limit failure on any variant fails the search so
// the caller can move to another key; other variant failures are skipped as
// long as at least one variant succeeds.
func (c *Client) Search(ctx context.Context, apiKey, keyword string) (*Digest, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("news search: empty keyword")
	}

	var (
		all       []Article
		failures  []error
		succeeded int
	)
	for _, q := range Queries(keyword, c.now().Year()) {
		articles, err := c.query(ctx, apiKey, q, c.pageSize)
		if err != nil {
			if abortsSearch(err) || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("news query failed", "query", q, "error", err)
			failures = append(failures, fmt.Errorf("query %q: %w", q, err))
			continue
		}
		succeeded++
		all = append(all, articles...)
	}
	if succeeded == 0 {
		return nil, errors.Join(failures...)
	}
	return NewDigest(keyword, all, maxArticles), nil
}

// Probe makes a single minimal request to check that apiKey is accepted.
func (c *Client) Probe(ctx context.Context, apiKey string) error {
	_, err := c.query(ctx, apiKey, "technology", 1)
	return err
}

func abortsSearch(err error) bool {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

type everythingResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (c *Client) query(ctx context.Context, apiKey, q string, pageSize int) ([]Article, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("from", c.now().Add(-c.lookback).UTC().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", apiKey)
	req.Header.Set("User-Agent", "pressroom/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request news: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read news response: %w", err)
	}

	var parsed everythingResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && parsed.Message != "" {
			msg = parsed.Message
		}
		pe := llm.ErrorFromStatusCode(providerName, resp.StatusCode, parsed.Code, msg)
		pe.RetryAfter = llm.ParseRetryAfter(resp.Header)
		return nil, pe
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode news response: %w", decodeErr)
	}
	if parsed.Status == "error" {
		return nil, &llm.ProviderError{Provider: providerName, Status: parsed.Code, Message: parsed.Message, Retryable: true}
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || a.Description == "" || title == "[Removed]" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		source := a.Source.Name
		if source == "" {
			source = "Unknown"
		}
		articles = append(articles, Article{
			Title:       title,
			Description: c.clean(a.Description),
			URL:         a.URL,
			PublishedAt: published,
			Source:      source,
		})
	}
	return articles, nil
}

// clean converts descriptions that carry HTML markup into plain markdown text.
func (c *Client) clean(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	text, err := c.converter.ConvertString(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(text)
}
