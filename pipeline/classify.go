// ABOUTME: Classifies upstream failures into fatal, overload, rate-limit, server, or unknown.
// ABOUTME: Status codes from ProviderError win; otherwise message heuristics decide.
package pipeline

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
)

// ErrorClass is the executor's view of a failed attempt.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassFatal
	ClassOverload
	ClassRateLimit
	ClassServer
	ClassCanceled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassOverload:
		return "overload"
	case ClassRateLimit:
		return "rate_limit"
	case ClassServer:
		return "server"
	case ClassCanceled:
		return "canceled"
	}
	return "unknown"
}

// Retryable reports whether another credential or round may succeed.
func (c ErrorClass) Retryable() bool {
	return c != ClassFatal && c != ClassCanceled
}

var (
	fatalMarkers     = []string{"API_KEY_INVALID", "Unauthorized", "PERMISSION_DENIED", "API key not valid", "apiKeyInvalid", "invalid_api_key"}
	overloadMarkers  = []string{"overloaded", "Service Unavailable", "UNAVAILABLE"}
	rateLimitMarkers = []string{"RESOURCE_EXHAUSTED", "quota", "Quota", "Rate limit", "rate limit", "rateLimited", "Too Many Requests"}
	serverMarkers    = []string{"Internal", "Bad Gateway", "Gateway Timeout"}
)

// statusPattern finds an HTTP status code named as such in an error message,
// as in "HTTP 401", "status code: 503" or "Error 429:".
var statusPattern = regexp.MustCompile(`(?i)\b(?:status|code|http(?:/\d(?:\.\d)?)?|error)\W{0,3}(?:code\W{0,3})?([45]\d\d)\b`)

// messageStatus returns the first status code statusPattern finds, or 0.
func messageStatus(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// Classify maps an error onto an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, keypool.ErrNoCredentials) || errors.Is(err, ErrStepPanic) {
		return ClassFatal
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		if c := classifyStatus(pe.StatusCode); c != ClassUnknown {
			return c
		}
	}
	return classifyMessage(err.Error())
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == 400, code == 401, code == 403:
		return ClassFatal
	case code == 503:
		return ClassOverload
	case code == 429:
		return ClassRateLimit
	case code >= 500:
		return ClassServer
	}
	return ClassUnknown
}

func classifyMessage(msg string) ErrorClass {
	// Fatal markers take precedence over retryable ones.
	if containsAny(msg, fatalMarkers) {
		return ClassFatal
	}
	if code := messageStatus(msg); code != 0 {
		if c := classifyStatus(code); c != ClassUnknown {
			return c
		}
	}
	switch {
	case containsAny(msg, overloadMarkers):
		return ClassOverload
	case containsAny(msg, rateLimitMarkers):
		return ClassRateLimit
	case containsAny(msg, serverMarkers):
		return ClassServer
	}
	return ClassUnknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
