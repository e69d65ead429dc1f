// ABOUTME: Builds the generation service from configuration: backends, key registry and article pipeline.
// ABOUTME: Stored key settings win over keys from the environment.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389-research/pressroom/article"
	"github.com/2389-research/pressroom/config"
	"github.com/2389-research/pressroom/imagegen"
	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
	"github.com/2389-research/pressroom/news"
	"github.com/2389-research/pressroom/pipeline"
	"github.com/2389-research/pressroom/serp"
	"github.com/2389-research/pressroom/store"
)

// layeredSource reads keys from stored settings and falls back to the
// environment when nothing is stored for a provider.
type layeredSource struct {
	stored keypool.Source
	env    config.KeysConfig
}

func (s layeredSource) Keys(ctx context.Context, provider keypool.Provider) ([]string, error) {
	keys, err := s.stored.Keys(ctx, provider)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		return keys, nil
	}
	return s.env.For(provider), nil
}

// newRegistry builds the key registry over st and loads it once.
func newRegistry(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*keypool.Registry, error) {
	reg := keypool.NewRegistry(keypool.RegistryConfig{
		Source:            layeredSource{stored: st, env: cfg.Keys},
		MinReloadInterval: cfg.Pipeline.ReloadInterval,
		Policies:          cfg.Policies(),
		Logger:            logger,
	})
	if _, err := reg.Reload(ctx, true); err != nil {
		return nil, err
	}
	return reg, nil
}

// newPipeline wires the configured backends into the article steps.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*article.Pipeline, error) {
	gen, err := llm.NewGenerator(cfg.Generation.Provider, cfg.Generation.Model, cfg.Generation.BaseURL, cfg.Generation.Timeout)
	if err != nil {
		return nil, err
	}

	newsOpts := []news.Option{
		news.WithPageSize(cfg.Search.PageSize),
		news.WithLookback(cfg.SearchLookback()),
		news.WithLogger(logger),
	}
	if cfg.Search.BaseURL != "" {
		newsOpts = append(newsOpts, news.WithBaseURL(cfg.Search.BaseURL))
	}

	acfg := article.Config{
		Generator:       gen,
		News:            news.New(newsOpts...),
		TextTemperature: cfg.Generation.TextTemperature,
		JSONTemperature: cfg.Generation.JSONTemperature,
		ImageCount:      cfg.Images.Count,
		SiteURL:         cfg.Site.URL,
		Author:          cfg.Site.Author,
		Backoff:         cfg.RetryBackoff(),
		Logger:          logger,
	}
	if cfg.SERP.Enabled {
		acfg.SERP = serp.New(cfg.SERP.BaseURL, nil, logger)
	}
	if cfg.Images.Enabled {
		acfg.Images = imagegen.New(imagegen.Config{
			BaseURL:    cfg.Images.BaseURL,
			Width:      cfg.Images.Width,
			Height:     cfg.Images.Height,
			Dir:        cfg.Images.Dir,
			PublicPath: cfg.Images.PublicPath,
			Logger:     logger,
		})
	}
	return article.New(acfg)
}

// newService assembles the whole generation stack over an open store.
func newService(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*article.Service, error) {
	p, err := newPipeline(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	reg, err := newRegistry(ctx, cfg, st, logger)
	if err != nil {
		return nil, err
	}
	return article.NewService(article.ServiceConfig{
		Pipeline: p,
		Keys:     reg,
		Runs:     st,
		Logger:   logger,
		Tune: func(rc *pipeline.RunnerConfig) {
			rc.StepPause = cfg.Pipeline.StepPause
		},
	})
}
