// ABOUTME: Error types for upstream provider calls (generation, news search, image fetch).
// ABOUTME: ProviderError carries status metadata so the executor can classify failures.

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrEmptyResponse means the provider answered without usable text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrBlocked means the provider refused to produce content (safety or recitation).
	ErrBlocked = errors.New("response blocked by provider")
)

// ProviderError represents an error returned by an upstream API. StatusCode is
// the HTTP status when one was observed, zero otherwise. Status is the
// provider's symbolic code (RESOURCE_EXHAUSTED, UNAVAILABLE, invalid_api_key).
type ProviderError struct {
	Provider   string
	StatusCode int
	Status     string
	Message    string
	Retryable  bool
	RetryAfter *time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ":"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Status != "" {
		msg += " " + e.Status
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether a different attempt could succeed.
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// ErrorFromStatusCode builds a ProviderError for an HTTP status. 4xx codes other
// than 408 and 429 are not retryable; everything else, unknown codes included, is.
func ErrorFromStatusCode(provider string, statusCode int, status, message string) *ProviderError {
	retryable := true
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		retryable = true
	case statusCode >= 400 && statusCode < 500:
		retryable = false
	}
	if status == "" && statusCode != 0 {
		status = http.StatusText(statusCode)
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Status:     status,
		Message:    message,
		Retryable:  retryable,
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds.
func ParseRetryAfter(h http.Header) *time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return nil
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
