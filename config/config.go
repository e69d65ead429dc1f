// ABOUTME: Service configuration: defaults, an optional YAML file, then environment overrides.
// ABOUTME: Also carries API keys seeded from the environment for installs without stored settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/logging"
	"github.com/2389-research/pressroom/pipeline"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Environment variables read by Load.
const (
	EnvConfigPath          = "PRESSROOM_CONFIG"
	EnvAddr                = "PRESSROOM_ADDR"
	EnvAuthToken           = "PRESSROOM_AUTH_TOKEN"
	EnvDatabasePath        = "PRESSROOM_DB"
	EnvGenerationProvider  = "PRESSROOM_GENERATION_PROVIDER"
	EnvGenerationModel     = "PRESSROOM_GENERATION_MODEL"
	EnvGenerationBaseURL   = "PRESSROOM_GENERATION_BASE_URL"
	EnvSearchBaseURL       = "PRESSROOM_NEWSAPI_BASE_URL"
	EnvSERPEnabled         = "PRESSROOM_SERP_ENABLED"
	EnvImagesEnabled       = "PRESSROOM_IMAGES_ENABLED"
	EnvImageDir            = "PRESSROOM_IMAGE_DIR"
	EnvSiteURL             = "PRESSROOM_SITE_URL"
	EnvLogLevel            = "PRESSROOM_LOG_LEVEL"
	EnvLogFormat           = "PRESSROOM_LOG_FORMAT"
	EnvGenerationKeys      = "GEMINI_API_KEYS"
	EnvSearchKeys          = "NEWSAPI_KEYS"
	EnvLegacyGenerationKey = "GEMINI_API_KEY"
	EnvLegacySearchKey     = "NEWSAPI_KEY"
)

// Config is the whole service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Search     SearchConfig     `yaml:"search"`
	SERP       SERPConfig       `yaml:"serp"`
	Images     ImagesConfig     `yaml:"images"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Site       SiteConfig       `yaml:"site"`
	Log        LogConfig        `yaml:"log"`

	// Keys are seeded from the environment only. Stored settings take
	// precedence over them.
	Keys KeysConfig `yaml:"-"`
}

// ServerConfig controls the HTTP listener. WriteTimeout stays zero by default
// because generation streams run for minutes.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	AuthToken         string        `yaml:"authToken"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig locates the sqlite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GenerationConfig selects the text generation backend.
type GenerationConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"baseUrl"`
	Timeout         time.Duration `yaml:"timeout"`
	TextTemperature float64       `yaml:"textTemperature"`
	JSONTemperature float64       `yaml:"jsonTemperature"`
}

// SearchConfig configures the NewsAPI client.
type SearchConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	PageSize     int    `yaml:"pageSize"`
	LookbackDays int    `yaml:"lookbackDays"`
}

// SERPConfig configures result-page scraping.
type SERPConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseUrl"`
}

// ImagesConfig configures image generation.
type ImagesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"baseUrl"`
	Dir        string `yaml:"dir"`
	PublicPath string `yaml:"publicPath"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Count      int    `yaml:"count"`
}

// PipelineConfig tunes the runner and the key pools.
type PipelineConfig struct {
	StepPause           time.Duration `yaml:"stepPause"`
	ReloadInterval      time.Duration `yaml:"reloadInterval"`
	Cooldown            time.Duration `yaml:"cooldown"`
	GenerationThreshold int           `yaml:"generationThreshold"`
	SearchThreshold     int           `yaml:"searchThreshold"`
	Backoff             BackoffConfig `yaml:"backoff"`
}

// BackoffConfig sets the pause between step attempts. Overload failures back
// off exponentially from OverloadBase; other failures wait RetryBase plus
// RetryStep per attempt.
type BackoffConfig struct {
	OverloadBase time.Duration `yaml:"overloadBase"`
	OverloadMax  time.Duration `yaml:"overloadMax"`
	RetryBase    time.Duration `yaml:"retryBase"`
	RetryStep    time.Duration `yaml:"retryStep"`
	RetryMax     time.Duration `yaml:"retryMax"`
}

// SiteConfig describes the publication the articles are written for.
type SiteConfig struct {
	URL    string `yaml:"url"`
	Author string `yaml:"author"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KeysConfig holds API keys taken from the environment.
type KeysConfig struct {
	Generation []string
	Search     []string
}

// For returns the keys configured for provider.
func (k KeysConfig) For(provider keypool.Provider) []string {
	switch provider {
	case keypool.ProviderGeneration:
		return k.Generation
	case keypool.ProviderSearch:
		return k.Search
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	gen, search := keypool.GenerationPolicy(), keypool.SearchPolicy()
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Generation: GenerationConfig{
			Provider:        "gemini",
			Timeout:         3 * time.Minute,
			TextTemperature: 0.7,
			JSONTemperature: 0.5,
		},
		Search: SearchConfig{PageSize: 10, LookbackDays: 30},
		SERP:   SERPConfig{Enabled: true},
		Images: ImagesConfig{Enabled: true, Width: 1024, Height: 768, Count: 3},
		Pipeline: PipelineConfig{
			StepPause:           2 * time.Second,
			ReloadInterval:      keypool.DefaultMinReloadInterval,
			Cooldown:            gen.Cooldown,
			GenerationThreshold: gen.UnhealthyThreshold,
			SearchThreshold:     search.UnhealthyThreshold,
			Backoff:             backoffConfig(pipeline.DefaultBackoff()),
		},
		Site: SiteConfig{Author: "Pressroom Editorial Team"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty, in which case
// PRESSROOM_CONFIG is consulted; a missing file named by either is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvAddr:               &c.Server.Addr,
		EnvAuthToken:          &c.Server.AuthToken,
		EnvDatabasePath:       &c.Database.Path,
		EnvGenerationProvider: &c.Generation.Provider,
		EnvGenerationModel:    &c.Generation.Model,
		EnvGenerationBaseURL:  &c.Generation.BaseURL,
		EnvSearchBaseURL:      &c.Search.BaseURL,
		EnvImageDir:           &c.Images.Dir,
		EnvSiteURL:            &c.Site.URL,
		EnvLogLevel:           &c.Log.Level,
		EnvLogFormat:          &c.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		EnvSERPEnabled:   &c.SERP.Enabled,
		EnvImagesEnabled: &c.Images.Enabled,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
		*dst = b
	}

	var err error
	if c.Keys.Generation, err = envKeys(lookup, EnvGenerationKeys, EnvLegacyGenerationKey); err != nil {
		return err
	}
	if c.Keys.Search, err = envKeys(lookup, EnvSearchKeys, EnvLegacySearchKey); err != nil {
		return err
	}
	return nil
}

// envKeys reads a key list given either as a JSON array or comma separated,
// falling back to the single legacy variable.
func envKeys(lookup func(string) (string, bool), list, legacy string) ([]string, error) {
	raw, _ := lookup(list)
	raw = strings.TrimSpace(raw)
	var keys []string
	switch {
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, list, err)
		}
	case raw != "":
		keys = strings.Split(raw, ",")
	}
	out := keys[:0]
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	if v, ok := lookup(legacy); ok && strings.TrimSpace(v) != "" {
		return []string{strings.TrimSpace(v)}, nil
	}
	return nil, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		bad("server.addr is required")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		bad("database.path is required")
	}
	switch c.Generation.Provider {
	case "gemini", "openai":
	default:
		bad("generation.provider must be gemini or openai, got %q", c.Generation.Provider)
	}
	for name, t := range map[string]float64{
		"generation.textTemperature": c.Generation.TextTemperature,
		"generation.jsonTemperature": c.Generation.JSONTemperature,
	} {
		if t < 0 || t > 2 {
			bad("%s must be between 0 and 2, got %v", name, t)
		}
	}
	if c.Generation.Timeout < 0 {
		bad("generation.timeout must not be negative")
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 100 {
		bad("search.pageSize must be between 1 and 100, got %d", c.Search.PageSize)
	}
	if c.Search.LookbackDays < 1 {
		bad("search.lookbackDays must be positive, got %d", c.Search.LookbackDays)
	}
	if c.Images.Count < 0 || c.Images.Count > 3 {
		bad("images.count must be between 0 and 3, got %d", c.Images.Count)
	}
	if c.Pipeline.StepPause < 0 {
		bad("pipeline.stepPause must not be negative")
	}
	if c.Pipeline.GenerationThreshold < 1 || c.Pipeline.SearchThreshold < 1 {
		bad("pipeline thresholds must be positive")
	}
	if c.Pipeline.Cooldown <= 0 {
		bad("pipeline.cooldown must be positive")
	}
	b := c.Pipeline.Backoff
	if b.OverloadBase < 0 || b.RetryBase < 0 || b.RetryStep < 0 {
		bad("pipeline.backoff durations must not be negative")
	}
	if b.OverloadMax < b.OverloadBase || b.RetryMax < b.RetryBase {
		bad("pipeline.backoff maximums must not be below their base")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		bad("log.format must be text or json, got %q", c.Log.Format)
	}
	return errors.Join(errs...)
}

// Policies returns the key pool policies implied by the pipeline section.
func (c *Config) Policies() map[keypool.Provider]keypool.Policy {
	gen, search := keypool.GenerationPolicy(), keypool.SearchPolicy()
	gen.UnhealthyThreshold, gen.Cooldown = c.Pipeline.GenerationThreshold, c.Pipeline.Cooldown
	search.UnhealthyThreshold, search.Cooldown = c.Pipeline.SearchThreshold, c.Pipeline.Cooldown
	return map[keypool.Provider]keypool.Policy{
		keypool.ProviderGeneration: gen,
		keypool.ProviderSearch:     search,
	}
}

// RetryBackoff returns the executor backoff described by the pipeline section.
func (c *Config) RetryBackoff() pipeline.Backoff {
	b := c.Pipeline.Backoff
	return pipeline.Backoff{
		OverloadBase: b.OverloadBase,
		OverloadMax:  b.OverloadMax,
		LinearBase:   b.RetryBase,
		LinearStep:   b.RetryStep,
		LinearMax:    b.RetryMax,
	}
}

func backoffConfig(b pipeline.Backoff) BackoffConfig {
	return BackoffConfig{
		OverloadBase: b.OverloadBase,
		OverloadMax:  b.OverloadMax,
		RetryBase:    b.LinearBase,
		RetryStep:    b.LinearStep,
		RetryMax:     b.LinearMax,
	}
}

// SearchLookback is LookbackDays as a duration.
func (c *Config) SearchLookback() time.Duration {
	return time.Duration(c.Search.LookbackDays) * 24 * time.Hour
}

// DefaultDataDir returns $XDG_DATA_HOME/pressroom, or ~/.local/share/pressroom.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pressroom"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pressroom"), nil
}

func defaultDatabasePath() string {
	dir, err := DefaultDataDir()
	if err != nil {
		return "pressroom.db"
	}
	return filepath.Join(dir, "pressroom.db")
}
