// ABOUTME: CredentialPool: rotation, failure tracking, cooldown rehabilitation, and bulk reset.
// ABOUTME: One Pool per provider, shared by concurrent pipeline runs behind a single mutex.
package keypool

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNoCredentials means the pool is empty. It is a configuration problem, never retryable.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrUnknownProvider is returned for provider names outside Providers().
	ErrUnknownProvider = errors.New("unknown provider")
)

// SuccessMode controls how a success report offsets prior failures.
type SuccessMode int

const (
	// ResetOnSuccess forgives every recorded failure after one success.
	ResetOnSuccess SuccessMode = iota
	// DecrementOnSuccess forgives one failure per success, floored at zero.
	DecrementOnSuccess
)

// Policy holds the provider-specific health rules.
type Policy struct {
	UnhealthyThreshold int
	Cooldown           time.Duration
	OnSuccess          SuccessMode
}

// DefaultCooldown is how long after its last failure a credential is forgiven.
const DefaultCooldown = 5 * time.Minute

// GenerationPolicy is the policy for text/JSON generation keys.
func GenerationPolicy() Policy {
	return Policy{UnhealthyThreshold: 5, Cooldown: DefaultCooldown, OnSuccess: ResetOnSuccess}
}

// SearchPolicy is the stricter policy for news search keys.
func SearchPolicy() Policy {
	return Policy{UnhealthyThreshold: 3, Cooldown: DefaultCooldown, OnSuccess: DecrementOnSuccess}
}

// PolicyFor returns the default policy for a provider.
func PolicyFor(p Provider) Policy {
	if p == ProviderSearch {
		return SearchPolicy()
	}
	return GenerationPolicy()
}

// Health summarizes a pool. A credential is healthy when its failure count is
// below the unhealthy threshold.
type Health struct {
	Provider  Provider `json:"provider"`
	Total     int      `json:"total"`
	Healthy   int      `json:"healthy"`
	Unhealthy int      `json:"unhealthy"`
}

// Pool is an ordered set of credentials for one provider.
type Pool struct {
	provider Provider
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	creds  []*Credential
	cursor int // index of the last credential dispensed by Next; -1 before the first draw
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces time.Now, used by tests to move through cooldown windows.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithLogger sets the logger used for pool warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a pool for provider with the given keys in order.
func New(provider Provider, policy Policy, values []string, opts ...Option) *Pool {
	p := &Pool{
		provider: provider,
		policy:   policy,
		now:      time.Now,
		logger:   slog.Default(),
		cursor:   -1,
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("component", "keypool", "provider", string(provider))
	p.creds = build(values, nil)
	return p
}

func build(values []string, previous []*Credential) []*Credential {
	old := make(map[string]*Credential, len(previous))
	for _, c := range previous {
		old[c.value] = c
	}
	creds := make([]*Credential, 0, len(values))
	for i, v := range values {
		c := &Credential{value: v, index: i}
		if prev, ok := old[v]; ok {
			c.failureCount = prev.failureCount
			c.lastFailureAt = prev.lastFailureAt
			c.lastError = prev.lastError
			c.lastUsedAt = prev.lastUsedAt
		}
		creds = append(creds, c)
	}
	return creds
}

// Provider returns the provider this pool serves.
func (p *Pool) Provider() Provider { return p.provider }

// Policy returns the pool's health policy.
func (p *Pool) Policy() Policy { return p.policy }

// Size returns the number of credentials.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Next advances the rotation cursor to the next healthy credential. When every
// credential is unhealthy, all failure state is cleared and the first credential
// is returned so callers are never starved.
func (p *Pool) Next() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	if n == 0 {
		return nil, ErrNoCredentials
	}
	now := p.now()
	p.rehabilitate(now)

	if p.healthyLocked() == 0 {
		p.logger.Warn("all credentials unhealthy, forcing reset", "total", n)
		for _, c := range p.creds {
			c.clearFailures()
		}
		c := p.creds[0]
		c.lastUsedAt = now
		return c, nil
	}

	threshold := p.policy.UnhealthyThreshold
	p.cursor = (p.cursor + 1) % n
	for skips := 0; p.creds[p.cursor].failureCount >= threshold && skips < n; skips++ {
		p.cursor = (p.cursor + 1) % n
	}

	c := p.creds[p.cursor]
	c.lastUsedAt = now
	return c, nil
}

// At returns the credential at index modulo the pool size without touching the
// rotation cursor. The executor uses it for targeted retries.
func (p *Pool) At(index int) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	if n == 0 {
		return nil, ErrNoCredentials
	}
	now := p.now()
	p.rehabilitate(now)

	i := index % n
	if i < 0 {
		i += n
	}
	c := p.creds[i]
	c.lastUsedAt = now
	return c, nil
}

// ReportFailure records a failed call. It never fails; credentials no longer in
// the pool (after a reload) are ignored.
func (p *Pool) ReportFailure(cred *Credential, errMsg string) {
	if cred == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.lookup(cred.value)
	if c == nil {
		return
	}
	c.failureCount++
	c.lastError = errMsg
	c.lastFailureAt = p.now()
	if c.failureCount == p.policy.UnhealthyThreshold {
		p.logger.Warn("credential marked unhealthy",
			"key", c.Redacted(), "failures", c.failureCount, "error", errMsg)
	}
}

// ReportSuccess offsets past failures according to the pool's SuccessMode.
func (p *Pool) ReportSuccess(cred *Credential) {
	if cred == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.lookup(cred.value)
	if c == nil {
		return
	}
	switch p.policy.OnSuccess {
	case DecrementOnSuccess:
		if c.failureCount > 0 {
			c.failureCount--
		}
		if c.failureCount == 0 {
			c.lastError = ""
		}
	default:
		c.clearFailures()
	}
}

// ResetAll clears failure state on every credential.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		c.clearFailures()
	}
	p.logger.Info("credentials reset", "total", len(p.creds))
}

// Replace installs a new key list. Health state carries over for keys present
// in both lists.
func (p *Pool) Replace(values []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.creds = build(values, p.creds)
	if n := len(p.creds); n == 0 {
		p.cursor = -1
	} else if p.cursor >= n {
		p.cursor %= n
	}
}

// Health returns current counts.
func (p *Pool) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := p.healthyLocked()
	return Health{
		Provider:  p.provider,
		Total:     len(p.creds),
		Healthy:   healthy,
		Unhealthy: len(p.creds) - healthy,
	}
}

// Credentials returns redacted per-credential diagnostics.
func (p *Pool) Credentials() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CredentialStatus, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, c.status(p.policy.UnhealthyThreshold))
	}
	return out
}

// FailureCount reports the current failure count for a key value, or -1 if absent.
func (p *Pool) FailureCount(value string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.lookup(value); c != nil {
		return c.failureCount
	}
	return -1
}

func (p *Pool) rehabilitate(now time.Time) {
	if p.policy.Cooldown <= 0 {
		return
	}
	for _, c := range p.creds {
		if c.failureCount > 0 && !c.lastFailureAt.IsZero() && now.Sub(c.lastFailureAt) > p.policy.Cooldown {
			p.logger.Debug("credential rehabilitated", "key", c.Redacted(), "failures", c.failureCount)
			c.clearFailures()
		}
	}
}

func (p *Pool) healthyLocked() int {
	n := 0
	for _, c := range p.creds {
		if c.failureCount < p.policy.UnhealthyThreshold {
			n++
		}
	}
	return n
}

func (p *Pool) lookup(value string) *Credential {
	for _, c := range p.creds {
		if c.value == value {
			return c
		}
	}
	return nil
}
