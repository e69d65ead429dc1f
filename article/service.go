// ABOUTME: Service runs one article generation end to end: validation, key reload, run history, streaming.
// ABOUTME: Shared by the HTTP handler and the CLI so both record runs and report errors the same way.
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
	"github.com/2389-research/pressroom/pipeline"
	"github.com/2389-research/pressroom/store"
)

// probeKeyword is searched when probing a search credential.
const probeKeyword = "technology"

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Pipeline *Pipeline
	Keys     *keypool.Registry
	Runs     *store.Store // nil disables run history
	Logger   *slog.Logger
	// Tune adjusts the runner configuration before it is built.
	Tune func(*pipeline.RunnerConfig)
}

// Service owns the runner built from the article steps.
type Service struct {
	pipeline *Pipeline
	keys     *keypool.Registry
	runs     *store.Store
	runner   *pipeline.Runner
	log      *slog.Logger
}

// NewService builds the runner over the registry's pools.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Pipeline == nil || cfg.Keys == nil {
		return nil, errors.New("article service needs a pipeline and a key registry")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rc := cfg.Pipeline.RunnerConfig(cfg.Keys)
	if cfg.Tune != nil {
		cfg.Tune(&rc)
	}
	runner, err := pipeline.NewRunner(rc)
	if err != nil {
		return nil, fmt.Errorf("build runner: %w", err)
	}
	return &Service{
		pipeline: cfg.Pipeline,
		keys:     cfg.Keys,
		runs:     cfg.Runs,
		runner:   runner,
		log:      cfg.Logger.With("component", "article.service"),
	}, nil
}

// Result is what Generate returns alongside the streamed events.
type Result struct {
	RunID   string
	Article *Article
}

// Generate validates req and runs the pipeline, streaming events to sink.
// An invalid request produces a single error event. The sink is always
// closed before Generate returns.
func (s *Service) Generate(ctx context.Context, req Request, sink pipeline.Sink) (*Result, error) {
	if err := req.Validate(); err != nil {
		if eerr := sink.Emit(pipeline.ErrorEvent(err.Error())); eerr != nil {
			s.log.Debug("error event dropped", "error", eerr)
		}
		_ = sink.Close()
		return nil, err
	}

	if _, err := s.keys.Reload(ctx, false); err != nil {
		s.log.Warn("key reload failed, using current keys", "error", err)
	}

	res := &Result{}
	if s.runs != nil {
		run, err := s.runs.CreateRun(ctx, req.Keyword, req.NormalizedCategory())
		if err != nil {
			s.log.Warn("run history unavailable", "error", err)
		} else {
			res.RunID = run.ID
			sink = pipeline.TeeSink{sink, s.runs.NewRunRecorder(ctx, run.ID, s.log)}
		}
	}

	log := s.log.With("run_id", res.RunID, "keyword", req.Keyword)
	log.Info("generation started", "category", req.NormalizedCategory())
	out, err := s.runner.Run(ctx, req.Input(), sink)
	if err != nil {
		log.Warn("generation aborted", "error", err)
		return res, err
	}
	a, ok := out.(*Article)
	if !ok {
		return res, fmt.Errorf("pipeline returned %T, want *Article", out)
	}
	res.Article = a
	log.Info("generation complete", "title", a.Title, "words", a.Stats.WordCount)
	return res, nil
}

// Probe makes one minimal call with the provider's next credential and
// reports the outcome to the pool. It returns the credential used.
func (s *Service) Probe(ctx context.Context, provider keypool.Provider) (*keypool.Credential, error) {
	pool, err := s.keys.Pool(provider)
	if err != nil {
		return nil, err
	}
	cred, err := pool.Next()
	if err != nil {
		return nil, err
	}

	switch provider {
	case keypool.ProviderGeneration:
		_, err = s.pipeline.cfg.Generator.Generate(ctx, cred.Value(), llm.Request{
			Prompt:    "Reply with the single word OK.",
			MaxTokens: 8,
		})
	default:
		if p, ok := s.pipeline.cfg.News.(interface {
			Probe(ctx context.Context, apiKey string) error
		}); ok {
			err = p.Probe(ctx, cred.Value())
		} else {
			_, err = s.pipeline.cfg.News.Search(ctx, cred.Value(), probeKeyword)
		}
	}

	switch {
	case err == nil:
		pool.ReportSuccess(cred)
	case pipeline.Classify(err) != pipeline.ClassCanceled:
		pool.ReportFailure(cred, err.Error())
	}
	return cred, err
}

// Keys returns the registry the service draws from.
func (s *Service) Keys() *keypool.Registry { return s.keys }

// StepLabels returns the progress message of every step in order. Index i
// matches the step number carried by progress events.
func (s *Service) StepLabels() []string {
	steps := s.pipeline.Steps()
	labels := make([]string, len(steps))
	for i, st := range steps {
		labels[i] = st.Name
	}
	return labels
}
