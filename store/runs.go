// ABOUTME: Run history rows: one per generation request, tracking the current step and terminal status.
// ABOUTME: RunRecorder is a pipeline.Sink that keeps a run row in step with the event stream and keeps the finished article.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/pressroom/pipeline"
)

// RunStatus is the lifecycle state of a run row.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// Run is one row of the run history.
type Run struct {
	ID         string     `json:"id"`
	Keyword    string     `json:"keyword"`
	Category   string     `json:"category"`
	Status     RunStatus  `json:"status"`
	Step       int        `json:"step"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewRunID returns a new ULID string. ULIDs sort by creation time.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

var runColumns = []string{"run_id", "keyword", "category", "status", "step", "message", "error", "started_at", "finished_at"}

// CreateRun inserts a running row and returns it.
func (s *Store) CreateRun(ctx context.Context, keyword, category string) (*Run, error) {
	run := &Run{
		ID:        NewRunID(),
		Keyword:   keyword,
		Category:  category,
		Status:    RunRunning,
		Step:      -1,
		StartedAt: s.now().UTC(),
	}
	query, args, err := s.sb.Insert(runsTable).
		Columns("run_id", "keyword", "category", "status", "step", "started_at").
		Values(run.ID, run.Keyword, run.Category, string(run.Status), run.Step, run.StartedAt.Format(timeLayout)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRunStep records the step a running run has reached.
func (s *Store) UpdateRunStep(ctx context.Context, id string, step int, message string) error {
	return s.updateRun(ctx, id, sq.Eq{"status": string(RunRunning)}, map[string]any{
		"step":    step,
		"message": message,
	})
}

// FinishRun sets the terminal status of a run. A run that is already
// finished is left unchanged.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	return s.updateRun(ctx, id, sq.Eq{"status": string(RunRunning)}, map[string]any{
		"status":      string(status),
		"error":       errMsg,
		"finished_at": s.now().UTC().Format(timeLayout),
	})
}

func (s *Store) updateRun(ctx context.Context, id string, guard sq.Eq, set map[string]any) error {
	query, args, err := s.sb.Update(runsTable).
		SetMap(set).
		Where(sq.Eq{"run_id": id}).
		Where(guard).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, gerr := s.GetRun(ctx, id); gerr != nil {
			return gerr
		}
	}
	return nil
}

// SaveArticle stores the JSON encoding of a finished run's article,
// replacing any previous one.
func (s *Store) SaveArticle(ctx context.Context, runID string, article any) error {
	body, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("encode article: %w", err)
	}
	query, args, err := s.sb.Insert(articlesTable).
		Columns("run_id", "body", "created_at").
		Values(runID, string(body), s.now().UTC().Format(timeLayout)).
		Suffix("ON CONFLICT(run_id) DO UPDATE SET body = excluded.body, created_at = excluded.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build article insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article for run %s: %w", runID, err)
	}
	return nil
}

// Article returns the stored article JSON for a run.
func (s *Store) Article(ctx context.Context, runID string) (json.RawMessage, error) {
	query, args, err := s.sb.Select("body").From(articlesTable).Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}
	var body string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query article for run %s: %w", runID, err)
	}
	return json.RawMessage(body), nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query, args, err := s.sb.Select(runColumns...).From(runsTable).Where(sq.Eq{"run_id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit uses the
// default; limits are capped.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	limit = min(limit, maxRunLimit)

	query, args, err := s.sb.Select(runColumns...).
		From(runsTable).
		OrderBy("started_at DESC", "run_id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                 Run
		status, startedAt string
		finishedAt        sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Keyword, &r.Category, &status, &r.Step, &r.Message, &r.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	r.StartedAt = t
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// RunRecorder mirrors a run's events into its history row. Store errors are
// logged and never interrupt the run.
type RunRecorder struct {
	store  *Store
	runID  string
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	terminal bool
	closed   bool
}

var _ pipeline.Sink = (*RunRecorder)(nil)

// NewRunRecorder returns a sink for run. Writes use a context detached from
// ctx's cancellation so a disconnected client still gets its row finished.
func (s *Store) NewRunRecorder(ctx context.Context, runID string, logger *slog.Logger) *RunRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRecorder{
		store:  s,
		runID:  runID,
		ctx:    context.WithoutCancel(ctx),
		logger: logger.With("component", "store.recorder", "run_id", runID),
	}
}

// Emit records progress and terminal events.
func (r *RunRecorder) Emit(e pipeline.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return pipeline.ErrSinkClosed
	}

	var err error
	switch e.Type {
	case pipeline.EventProgress:
		step := -1
		if e.Step != nil {
			step = *e.Step
		}
		err = r.store.UpdateRunStep(r.ctx, r.runID, step, e.Message)
	case pipeline.EventComplete:
		r.terminal = true
		if serr := r.store.SaveArticle(r.ctx, r.runID, e.Data); serr != nil {
			r.logger.Warn("saving article failed", "error", serr)
		}
		err = r.store.FinishRun(r.ctx, r.runID, RunCompleted, "")
	case pipeline.EventError:
		r.terminal = true
		err = r.store.FinishRun(r.ctx, r.runID, RunFailed, e.Error)
	}
	if err != nil {
		r.logger.Warn("recording run event failed", "type", string(e.Type), "error", err)
	}
	return nil
}

// Close marks the run interrupted if no terminal event was seen.
func (r *RunRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.terminal {
		return nil
	}
	if err := r.store.FinishRun(r.ctx, r.runID, RunInterrupted, "stream closed before a terminal event"); err != nil {
		r.logger.Warn("closing run failed", "error", err)
	}
	return nil
}
