// ABOUTME: Tests for configuration loading: defaults, YAML merging, environment overrides, keys, and validation.
// ABOUTME: Also covers the no-clobber .env loader.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		t.Setenv(n, "")
		os.Unsetenv(n)
	}
}

func allEnv() []string {
	return []string{
		EnvConfigPath, EnvAddr, EnvAuthToken, EnvDatabasePath, EnvGenerationProvider,
		EnvGenerationModel, EnvGenerationBaseURL, EnvSearchBaseURL, EnvSERPEnabled,
		EnvImagesEnabled, EnvImageDir, EnvSiteURL, EnvLogLevel, EnvLogFormat,
		EnvGenerationKeys, EnvSearchKeys, EnvLegacyGenerationKey, EnvLegacySearchKey,
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Pipeline.StepPause)
	assert.Equal(t, 5, cfg.Pipeline.GenerationThreshold)
	assert.Equal(t, 3, cfg.Pipeline.SearchThreshold)
	assert.Zero(t, cfg.Server.WriteTimeout, "streams must not be cut off")
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	clearEnv(t, allEnv()...)
	path := writeFile(t, "pressroom.yaml", `
server:
  addr: ":9000"
generation:
  provider: openai
  model: gpt-4o-mini
  timeout: 90s
pipeline:
  stepPause: 500ms
  backoff:
    retryBase: 1s
    retryMax: 4s
serp:
  enabled: false
site:
  url: https://blog.example
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.Generation.Provider)
	assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.StepPause)
	assert.Equal(t, time.Second, cfg.Pipeline.Backoff.RetryBase)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Backoff.OverloadBase, "unset backoff fields keep defaults")
	assert.False(t, cfg.SERP.Enabled)
	assert.Equal(t, "https://blog.example", cfg.Site.URL)
	assert.Equal(t, 0.7, cfg.Generation.TextTemperature, "unset fields keep defaults")
	assert.True(t, cfg.Images.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t, allEnv()...)
	path := writeFile(t, "pressroom.yaml", "server:\n  addr: \":9000\"\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvAddr, ":7000")
	t.Setenv(EnvDatabasePath, "/tmp/p.db")
	t.Setenv(EnvImagesEnabled, "false")
	t.Setenv(EnvLogFormat, "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/p.db", cfg.Database.Path)
	assert.False(t, cfg.Images.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadKeysFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantGen    []string
		wantSearch []string
	}{
		{"none", nil, nil, nil},
		{"comma list", map[string]string{EnvGenerationKeys: " a , b ,,c"}, []string{"a", "b", "c"}, nil},
		{"json list", map[string]string{EnvSearchKeys: `["n1", " n2 "]`}, nil, []string{"n1", "n2"}},
		{"legacy", map[string]string{EnvLegacyGenerationKey: "g", EnvLegacySearchKey: "n"}, []string{"g"}, []string{"n"}},
		{"list wins over legacy", map[string]string{EnvGenerationKeys: "a", EnvLegacyGenerationKey: "g"}, []string{"a"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t, allEnv()...)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.wantGen, cfg.Keys.For(keypool.ProviderGeneration))
			assert.Equal(t, tt.wantSearch, cfg.Keys.For(keypool.ProviderSearch))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t, allEnv()...)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "bad.yaml", "server: [nope"))
	assert.ErrorContains(t, err, "parse config")

	t.Setenv(EnvSERPEnabled, "sometimes")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
	os.Unsetenv(EnvSERPEnabled)

	t.Setenv(EnvGenerationKeys, "[broken")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Generation.Provider = "claude"
	cfg.Images.Count = 9
	cfg.Log.Level = "loud"
	cfg.Pipeline.Cooldown = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	for _, want := range []string{"generation.provider", "images.count", "log.level", "pipeline.cooldown"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestPolicies(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.GenerationThreshold = 7
	cfg.Pipeline.Cooldown = time.Minute

	p := cfg.Policies()
	assert.Equal(t, 7, p[keypool.ProviderGeneration].UnhealthyThreshold)
	assert.Equal(t, time.Minute, p[keypool.ProviderSearch].Cooldown)
	assert.Equal(t, keypool.DecrementOnSuccess, p[keypool.ProviderSearch].OnSuccess)
	assert.Equal(t, 30*24*time.Hour, cfg.SearchLookback())
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, pipeline.DefaultBackoff(), Default().RetryBackoff())

	cfg := Default()
	cfg.Pipeline.Backoff = BackoffConfig{OverloadBase: time.Second, OverloadMax: 8 * time.Second, RetryBase: 100 * time.Millisecond, RetryStep: 50 * time.Millisecond, RetryMax: time.Second}
	b := cfg.RetryBackoff()
	assert.Equal(t, 4*time.Second, b.Delay(2, 2, pipeline.ClassOverload))
	assert.Equal(t, 250*time.Millisecond, b.Delay(3, 0, pipeline.ClassServer))

	cfg.Pipeline.Backoff.RetryMax = 10 * time.Millisecond
	assert.ErrorContains(t, cfg.Validate(), "pipeline.backoff")
}

func TestDefaultDataDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg")
	dir, err := DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "pressroom"), dir)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t, "PR_DOTENV_A", "PR_DOTENV_B", "PR_DOTENV_C", "PR_DOTENV_D")
	t.Setenv("PR_DOTENV_D", "kept")
	path := writeFile(t, ".env", `# comment
PR_DOTENV_A=hello
export PR_DOTENV_B="quoted = value"
PR_DOTENV_C='single'
PR_DOTENV_D=clobbered
not a pair
`)
	LoadDotEnv(path)
	LoadDotEnv(filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, "hello", os.Getenv("PR_DOTENV_A"))
	assert.Equal(t, "quoted = value", os.Getenv("PR_DOTENV_B"))
	assert.Equal(t, "single", os.Getenv("PR_DOTENV_C"))
	assert.Equal(t, "kept", os.Getenv("PR_DOTENV_D"))
}
