// ABOUTME: FriendlyError maps pipeline failures onto the operator-facing messages sent in error events.
// ABOUTME: Uses the executor's error classification rather than string matching where it can.
package article

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
	"github.com/2389-research/pressroom/pipeline"
)

// Messages sent to clients when a run aborts.
const (
	MsgFormatting   = "AI response formatting error. Please try again."
	MsgQuota        = "All API keys have exceeded quota. Please wait a few minutes or add more keys in Settings."
	MsgAllKeys      = "All API keys failed. This could be due to rate limits or quota. Please wait 5 minutes and try again, or add more API keys in Settings."
	MsgInvalidKey   = "One or more API keys appear invalid. Please verify your keys in Settings."
	MsgNoKeys       = "No API keys configured. Please add at least one API key in Settings."
	MsgCanceled     = "Generation was canceled."
	MsgGenericAbort = "Auto-generation failed"
)

// FriendlyError returns the client-facing message for a failed run. When a
// step failed, the message names the step and its attempt count.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	msg, canned := friendlyText(err)
	var stepErr *pipeline.StepError
	if canned && errors.As(err, &stepErr) && stepErr.Step != "" {
		return msg + stepContext(stepErr)
	}
	return msg
}

func stepContext(se *pipeline.StepError) string {
	if se.Attempts == 0 {
		return fmt.Sprintf(" (step %q)", se.Step)
	}
	return fmt.Sprintf(" (step %q, %d attempts)", se.Step, se.Attempts)
}

// friendlyText reports whether it chose a canned message; otherwise it returns
// the error text, which already names the step.
func friendlyText(err error) (string, bool) {
	var schemaErr *llm.SchemaError
	switch {
	case errors.Is(err, keypool.ErrNoCredentials):
		return MsgNoKeys, true
	case errors.Is(err, context.Canceled), pipeline.Classify(err) == pipeline.ClassCanceled:
		return MsgCanceled, true
	case errors.Is(err, llm.ErrInvalidJSON), errors.As(err, &schemaErr):
		return MsgFormatting, true
	}

	var stepErr *pipeline.StepError
	exhausted := errors.As(err, &stepErr)
	switch pipeline.Classify(err) {
	case pipeline.ClassRateLimit:
		return MsgQuota, true
	case pipeline.ClassFatal:
		if invalidKey(err) {
			return MsgInvalidKey, true
		}
	case pipeline.ClassOverload, pipeline.ClassServer, pipeline.ClassUnknown:
		if exhausted {
			return MsgAllKeys, true
		}
	}
	if msg := err.Error(); msg != "" {
		return msg, false
	}
	return MsgGenericAbort, true
}

func invalidKey(err error) bool {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && (pe.StatusCode == 401 || pe.StatusCode == 403) {
		return true
	}
	msg := err.Error()
	for _, m := range []string{"API_KEY_INVALID", "API key not valid", "invalid_api_key", "apiKeyInvalid", "Unauthorized"} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
