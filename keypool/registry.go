// ABOUTME: Registry owning one Pool per provider and refreshing keys from a settings Source.
// ABOUTME: Reloads are throttled by a minimum interval and can run on a background ticker.
package keypool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultMinReloadInterval bounds how often keys are re-read from the source.
const DefaultMinReloadInterval = 60 * time.Second

// minGenerationKeyLen filters out placeholder values saved from the settings form.
const minGenerationKeyLen = 10

// Source supplies the configured key values for a provider.
type Source interface {
	Keys(ctx context.Context, provider Provider) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, provider Provider) ([]string, error)

// Keys calls f.
func (f SourceFunc) Keys(ctx context.Context, provider Provider) ([]string, error) {
	return f(ctx, provider)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Source            Source
	MinReloadInterval time.Duration
	Policies          map[Provider]Policy // nil entries fall back to PolicyFor
	Logger            *slog.Logger
	Clock             func() time.Time
}

// Registry holds the process's pools. It is constructed once and injected
// wherever credentials are needed.
type Registry struct {
	source      Source
	minInterval time.Duration
	now         func() time.Time
	logger      *slog.Logger
	pools       map[Provider]*Pool

	reloadMu   sync.Mutex
	lastReload time.Time
}

// NewRegistry builds empty pools for every provider. Call Reload to populate them.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MinReloadInterval <= 0 {
		cfg.MinReloadInterval = DefaultMinReloadInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	r := &Registry{
		source:      cfg.Source,
		minInterval: cfg.MinReloadInterval,
		now:         cfg.Clock,
		logger:      cfg.Logger.With("component", "keypool.registry"),
		pools:       make(map[Provider]*Pool),
	}
	for _, p := range Providers() {
		policy, ok := cfg.Policies[p]
		if !ok {
			policy = PolicyFor(p)
		}
		r.pools[p] = New(p, policy, nil, WithClock(cfg.Clock), WithLogger(cfg.Logger))
	}
	return r
}

// Pool returns the pool for provider.
func (r *Registry) Pool(provider Provider) (*Pool, error) {
	p, ok := r.pools[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return p, nil
}

// MustPool is Pool for callers that only pass the Provider constants.
func (r *Registry) MustPool(provider Provider) *Pool {
	p, err := r.Pool(provider)
	if err != nil {
		panic(err)
	}
	return p
}

// Reload re-reads keys for every provider. Unless force is set, a reload within
// the minimum interval of the previous successful one is a no-op and returns false.
func (r *Registry) Reload(ctx context.Context, force bool) (bool, error) {
	if r.source == nil {
		return false, nil
	}
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	now := r.now()
	if !force && !r.lastReload.IsZero() && now.Sub(r.lastReload) < r.minInterval {
		return false, nil
	}

	loaded := make(map[Provider][]string, len(r.pools))
	for _, provider := range Providers() {
		raw, err := r.source.Keys(ctx, provider)
		if err != nil {
			return false, fmt.Errorf("load %s keys: %w", provider, err)
		}
		loaded[provider] = sanitize(provider, raw)
	}
	for provider, keys := range loaded {
		r.pools[provider].Replace(keys)
		r.logger.Debug("keys loaded", "provider", string(provider), "count", len(keys))
	}
	r.lastReload = now
	return true, nil
}

// Watch reloads on every tick until ctx is cancelled. Errors are logged and the
// previous keys stay in place.
func (r *Registry) Watch(ctx context.Context, every time.Duration) {
	if every < r.minInterval {
		every = r.minInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reload(ctx, false); err != nil {
				r.logger.Warn("key reload failed", "error", err)
			}
		}
	}
}

// Snapshot returns health for every provider.
func (r *Registry) Snapshot() map[Provider]Health {
	out := make(map[Provider]Health, len(r.pools))
	for provider, pool := range r.pools {
		out[provider] = pool.Health()
	}
	return out
}

// ResetAll clears failure state for one provider.
func (r *Registry) ResetAll(provider Provider) error {
	p, err := r.Pool(provider)
	if err != nil {
		return err
	}
	p.ResetAll()
	return nil
}

func sanitize(provider Provider, raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		if provider == ProviderGeneration && len(k) <= minGenerationKeyLen {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
