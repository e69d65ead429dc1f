// ABOUTME: pressroom HTTP server: the streaming generation endpoint, key health and settings APIs, and run history.
// ABOUTME: chi router with request IDs, panic recovery, access logging, and optional bearer auth.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/pressroom/article"
	"github.com/2389-research/pressroom/config"
	"github.com/2389-research/pressroom/store"
)

// Config holds the server's collaborators.
type Config struct {
	HTTP    config.ServerConfig
	Service *article.Service
	Store   *store.Store
	Logger  *slog.Logger

	// ImageDir is served under ImagePath when both are set.
	ImageDir  string
	ImagePath string
}

// Server serves the pressroom API.
type Server struct {
	cfg       Config
	router    chi.Router
	templates *TemplateEngine
	log       *slog.Logger
}

// NewServer validates cfg and builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("web server needs an article service")
	}
	if cfg.Store == nil {
		return nil, errors.New("web server needs a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tmpl, err := NewTemplateEngine()
	if err != nil {
		return nil, fmt.Errorf("initializing templates: %w", err)
	}
	s := &Server{
		cfg:       cfg,
		templates: tmpl,
		log:       cfg.Logger.With("component", "web"),
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.log))
	r.Use(middleware.Recoverer)
	r.Use(bearerAuth(s.cfg.HTTP.AuthToken))

	r.Get("/", s.handleStatusPage)
	r.Get("/health", s.handleHealth)
	if s.cfg.ImageDir != "" && s.cfg.ImagePath != "" {
		prefix := "/" + strings.Trim(s.cfg.ImagePath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.ImageDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/content/generate", s.handleGenerate)

		r.Get("/keys/health", s.handleKeyHealth)
		r.Post("/keys/{provider}/reset", s.handleKeyReset)
		r.Post("/keys/{provider}/probe", s.handleKeyProbe)
		r.Put("/settings/keys", s.handleSaveKeys)

		r.Get("/runs", s.handleRunList)
		r.Get("/runs/{runID}", s.handleRunGet)
		r.Get("/runs/{runID}/article", s.handleRunArticle)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully,
// giving in-flight streams up to the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
		IdleTimeout:       s.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.log.Info("shutting down", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
