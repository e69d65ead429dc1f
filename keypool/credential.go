// ABOUTME: Credential type holding one API key plus its in-memory health state.
// ABOUTME: Provides redaction helpers so key material never reaches logs or diagnostics.
package keypool

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Provider identifies which upstream service a pool of credentials authenticates against.
type Provider string

const (
	ProviderGeneration Provider = "generation"
	ProviderSearch     Provider = "search"
)

// Providers lists every known provider in a stable order.
func Providers() []Provider {
	return []Provider{ProviderGeneration, ProviderSearch}
}

// ParseProvider accepts the canonical names plus the vendor aliases used by the
// settings store ("gemini", "newsapi").
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "generation", "gemini", "openai":
		return ProviderGeneration, nil
	case "search", "news", "newsapi":
		return ProviderSearch, nil
	}
	return "", ErrUnknownProvider
}

// Credential is one secret plus its health counters. All mutable fields are
// guarded by the owning Pool's mutex; callers only read Value.
type Credential struct {
	value string
	index int

	failureCount  int
	lastFailureAt time.Time
	lastError     string
	lastUsedAt    time.Time
}

// Value returns the raw secret for use in an outbound request.
func (c *Credential) Value() string { return c.value }

// Index is the credential's position in its pool at the time it was dispensed.
func (c *Credential) Index() int { return c.index }

// Fingerprint is a short non-reversible identifier safe for logs.
func (c *Credential) Fingerprint() string {
	return Fingerprint(c.value)
}

// Redacted shows the first four characters only.
func (c *Credential) Redacted() string {
	return Redact(c.value)
}

// Fingerprint hashes a key and keeps the first 8 hex characters.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:8]
}

// Redact keeps a four character prefix of a key.
func Redact(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + "…"
}

func (c *Credential) clearFailures() {
	c.failureCount = 0
	c.lastError = ""
	c.lastFailureAt = time.Time{}
}

// CredentialStatus is a redacted, point-in-time view of one credential.
type CredentialStatus struct {
	Index         int        `json:"index"`
	Key           string     `json:"key"`
	Fingerprint   string     `json:"fingerprint"`
	FailureCount  int        `json:"failure_count"`
	Healthy       bool       `json:"healthy"`
	LastError     string     `json:"last_error,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

func (c *Credential) status(threshold int) CredentialStatus {
	st := CredentialStatus{
		Index:        c.index,
		Key:          c.Redacted(),
		Fingerprint:  c.Fingerprint(),
		FailureCount: c.failureCount,
		Healthy:      c.failureCount < threshold,
		LastError:    c.lastError,
	}
	if !c.lastFailureAt.IsZero() {
		t := c.lastFailureAt
		st.LastFailureAt = &t
	}
	if !c.lastUsedAt.IsZero() {
		t := c.lastUsedAt
		st.LastUsedAt = &t
	}
	return st
}
