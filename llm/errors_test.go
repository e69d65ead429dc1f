// ABOUTME: Tests for ProviderError formatting, status mapping, and Retry-After parsing.
// ABOUTME: Table-driven over the status codes the pipeline distinguishes.

package llm

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
		{0, true},
	}
	for _, tt := range tests {
		err := ErrorFromStatusCode("gemini", tt.status, "", "boom")
		if err.IsRetryable() != tt.retryable {
			t.Errorf("status %d: IsRetryable() = %v, want %v", tt.status, err.IsRetryable(), tt.retryable)
		}
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := ErrorFromStatusCode("newsapi", 429, "rateLimited", "You have made too many requests")
	want := "newsapi: 429 rateLimited: You have made too many requests"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = ErrorFromStatusCode("gemini", 503, "", "")
	if err.Error() != "gemini: 503 Service Unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	err := &ProviderError{Provider: "gemini", Retryable: true, Cause: ErrEmptyResponse}
	if !errors.Is(err, ErrEmptyResponse) {
		t.Error("errors.Is should see the cause")
	}
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	if ParseRetryAfter(h) != nil {
		t.Error("missing header should be nil")
	}
	h.Set("Retry-After", "12")
	got := ParseRetryAfter(h)
	if got == nil || *got != 12*time.Second {
		t.Errorf("ParseRetryAfter = %v", got)
	}
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if ParseRetryAfter(h) != nil {
		t.Error("HTTP-date form is not supported and should be nil")
	}
}
