// ABOUTME: Tests for Pool rotation, starvation avoidance, degradation recovery, and rehabilitation.
// ABOUTME: Uses a controllable clock so cooldown behavior is tested without sleeping.
package keypool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("key-%02d-abcdefghijkl", i)
	}
	return out
}

func failN(p *Pool, value string, n int) {
	for i := 0; i < n; i++ {
		p.ReportFailure(&Credential{value: value}, "503 overloaded")
	}
}

func TestNextRotatesThroughEveryCredential(t *testing.T) {
	values := keys(4)
	p := New(ProviderGeneration, GenerationPolicy(), values)

	var got []string
	for range values {
		c, err := p.Next()
		require.NoError(t, err)
		got = append(got, c.Value())
	}
	assert.Equal(t, values, got)

	c, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, values[0], c.Value(), "cursor wraps modulo pool size")
}

func TestNextEmptyPool(t *testing.T) {
	p := New(ProviderSearch, SearchPolicy(), nil)
	c, err := p.Next()
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = p.At(0)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestNextSkipsUnhealthy(t *testing.T) {
	values := keys(3)
	p := New(ProviderGeneration, GenerationPolicy(), values)
	failN(p, values[0], 5)
	failN(p, values[2], 5)

	for i := 0; i < 10; i++ {
		c, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, values[1], c.Value(), "draw %d", i)
	}
	assert.Equal(t, 5, p.FailureCount(values[0]))
	assert.Equal(t, 5, p.FailureCount(values[2]))
}

func TestNextForceResetsDegradedPool(t *testing.T) {
	values := keys(3)
	p := New(ProviderSearch, SearchPolicy(), values)
	for _, v := range values {
		failN(p, v, 3)
	}
	require.Equal(t, 0, p.Health().Healthy)

	c, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, values[0], c.Value())
	for _, v := range values {
		assert.Equal(t, 0, p.FailureCount(v))
	}
	assert.Equal(t, Health{Provider: ProviderSearch, Total: 3, Healthy: 3, Unhealthy: 0}, p.Health())
}

func TestNextRehabilitatesAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	values := keys(2)
	p := New(ProviderGeneration, GenerationPolicy(), values, WithClock(clock.Now))
	failN(p, values[0], 5)

	c, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, values[1], c.Value())

	clock.Advance(DefaultCooldown + time.Second)
	assert.Equal(t, 5, p.FailureCount(values[0]), "rehabilitation is lazy")

	c, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, values[0], c.Value())
	assert.Equal(t, 0, p.FailureCount(values[0]))
}

func TestNextDoesNotRehabilitateInsideCooldown(t *testing.T) {
	clock := newFakeClock()
	values := keys(2)
	p := New(ProviderGeneration, GenerationPolicy(), values, WithClock(clock.Now))
	failN(p, values[0], 5)
	clock.Advance(DefaultCooldown - time.Second)

	for i := 0; i < 4; i++ {
		c, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, values[1], c.Value())
	}
}

func TestReportSuccessModes(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		failures int
		want     int
	}{
		{"generation resets", GenerationPolicy(), 4, 0},
		{"search decrements", SearchPolicy(), 2, 1},
		{"search floors at zero", SearchPolicy(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := keys(1)
			p := New(ProviderGeneration, tt.policy, values)
			failN(p, values[0], tt.failures)
			c, err := p.At(0)
			require.NoError(t, err)
			p.ReportSuccess(c)
			assert.Equal(t, tt.want, p.FailureCount(values[0]))
		})
	}
}

func TestReportFailureRecordsState(t *testing.T) {
	clock := newFakeClock()
	values := keys(2)
	p := New(ProviderGeneration, GenerationPolicy(), values, WithClock(clock.Now))

	c, err := p.At(1)
	require.NoError(t, err)
	p.ReportFailure(c, "429 RESOURCE_EXHAUSTED")

	st := p.Credentials()[1]
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, "429 RESOURCE_EXHAUSTED", st.LastError)
	require.NotNil(t, st.LastFailureAt)
	assert.Equal(t, clock.Now(), *st.LastFailureAt)
	assert.NotContains(t, st.Key, values[1][5:])
	assert.Len(t, st.Fingerprint, 8)
}

func TestAtDoesNotMoveCursor(t *testing.T) {
	values := keys(3)
	p := New(ProviderGeneration, GenerationPolicy(), values)

	c, err := p.At(5)
	require.NoError(t, err)
	assert.Equal(t, values[2], c.Value())

	c, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, values[0], c.Value())
}

func TestResetAll(t *testing.T) {
	values := keys(2)
	p := New(ProviderGeneration, GenerationPolicy(), values)
	failN(p, values[0], 7)
	failN(p, values[1], 2)

	p.ResetAll()
	assert.Equal(t, Health{Provider: ProviderGeneration, Total: 2, Healthy: 2}, p.Health())
	for _, st := range p.Credentials() {
		assert.Empty(t, st.LastError)
		assert.Nil(t, st.LastFailureAt)
	}
}

func TestReplacePreservesSurvivingHealth(t *testing.T) {
	values := keys(3)
	p := New(ProviderGeneration, GenerationPolicy(), values)
	failN(p, values[1], 3)
	stale := &Credential{value: values[0]}

	p.Replace([]string{values[1], "brand-new-key-000000"})

	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 3, p.FailureCount(values[1]))
	assert.Equal(t, 0, p.FailureCount("brand-new-key-000000"))
	assert.Equal(t, -1, p.FailureCount(values[0]))

	p.ReportFailure(stale, "removed key")
	assert.Equal(t, -1, p.FailureCount(values[0]))
}

func TestConcurrentDrawsKeepRotationConsistent(t *testing.T) {
	values := keys(4)
	p := New(ProviderGeneration, GenerationPolicy(), values)

	const workers, draws = 8, 100
	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < draws; i++ {
				c, err := p.Next()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				counts[c.Value()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, v := range values {
		assert.Equal(t, workers*draws/len(values), counts[v], "even distribution for %s", Redact(v))
	}
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{
		"gemini": ProviderGeneration, "generation": ProviderGeneration,
		"newsapi": ProviderSearch, "search": ProviderSearch,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseProvider("together")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
