// ABOUTME: SQLite-backed settings and run history for the pressroom service.
// ABOUTME: Settings hold the API key lists and implement keypool.Source; queries are built with squirrel.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/pressroom/keypool"
)

// ErrNotFound is returned when a run or setting does not exist.
var ErrNotFound = errors.New("not found")

// Setting names. The plural keys hold JSON arrays; the singular ones are
// read only as a fallback for installs that predate multiple keys.
const (
	SettingGenerationKeys = "GEMINI_API_KEYS"
	SettingSearchKeys     = "NEWSAPI_KEYS"
	LegacyGenerationKey   = "GEMINI_API_KEY"
	LegacySearchKey       = "NEWSAPI_KEY"
)

const (
	settingsTable = "settings"
	runsTable     = "runs"
	articlesTable = "articles"
	timeLayout    = "2006-01-02T15:04:05.000000000Z07:00" // fixed width so text order is time order
	busyTimeoutMS = 5000
)

const schema = `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		step INTEGER NOT NULL DEFAULT -1,
		message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);

	CREATE TABLE IF NOT EXISTS articles (
		run_id TEXT PRIMARY KEY REFERENCES runs (run_id),
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`

// Store owns the database handle.
type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ keypool.Source = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Setting returns the raw value stored under key.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	query, args, err := s.sb.Select("value").From(settingsTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build setting query: %w", err)
	}
	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query, args, err := s.sb.Insert(settingsTable).
		Columns("key", "value", "updated_at").
		Values(key, value, s.now().UTC().Format(timeLayout)).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build setting upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func settingNames(provider keypool.Provider) (list, legacy string, err error) {
	switch provider {
	case keypool.ProviderGeneration:
		return SettingGenerationKeys, LegacyGenerationKey, nil
	case keypool.ProviderSearch:
		return SettingSearchKeys, LegacySearchKey, nil
	}
	return "", "", fmt.Errorf("%w: %q", keypool.ErrUnknownProvider, provider)
}

// SetKeys stores the key list for provider as a JSON array. Blank entries are
// dropped; an empty list clears the provider's keys.
func (s *Store) SetKeys(ctx context.Context, provider keypool.Provider, keys []string) error {
	name, _, err := settingNames(provider)
	if err != nil {
		return err
	}
	valid := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, k)
		}
	}
	raw, err := json.Marshal(valid)
	if err != nil {
		return fmt.Errorf("encode %s keys: %w", provider, err)
	}
	return s.SetSetting(ctx, name, string(raw))
}

// Keys returns the stored key list for provider. When the list is missing or
// empty the legacy single-key setting is used instead.
func (s *Store) Keys(ctx context.Context, provider keypool.Provider) ([]string, error) {
	name, legacy, err := settingNames(provider)
	if err != nil {
		return nil, err
	}

	var keys []string
	raw, err := s.Setting(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	case strings.TrimSpace(raw) != "":
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	if len(keys) > 0 {
		return keys, nil
	}

	single, err := s.Setting(ctx, legacy)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if single = strings.TrimSpace(single); single == "" {
		return nil, nil
	}
	return []string{single}, nil
}
