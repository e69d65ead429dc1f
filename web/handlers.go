// ABOUTME: API handlers: NDJSON generation stream, key health/reset/probe, key settings, run history and stored articles.
// ABOUTME: JSON bodies are capped; the generation stream is tied to the request context.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/2389-research/pressroom/article"
	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/pipeline"
	"github.com/2389-research/pressroom/store"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// handleGenerate streams one progress line per step followed by a complete
// or error line. The client disconnecting cancels the run.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req article.Request
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sink := pipeline.NewNDJSONSink(w)
	res, err := s.cfg.Service.Generate(r.Context(), req, sink)
	log := s.log.With("request_id", RequestID(r.Context()))
	if res != nil && res.RunID != "" {
		log = log.With("run_id", res.RunID)
	}
	if sink.WriteErrors > 0 {
		log.Warn("client stopped reading the stream", "write_errors", sink.WriteErrors)
	}
	if err != nil {
		log.Info("generation request failed", "error", err)
	}
}

type providerHealth struct {
	keypool.Health
	Keys []keypool.CredentialStatus `json:"keys"`
}

func (s *Server) handleKeyHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.keyHealth())
}

func (s *Server) keyHealth() map[keypool.Provider]providerHealth {
	reg := s.cfg.Service.Keys()
	out := make(map[keypool.Provider]providerHealth)
	for _, p := range keypool.Providers() {
		pool := reg.MustPool(p)
		out[p] = providerHealth{Health: pool.Health(), Keys: pool.Credentials()}
	}
	return out
}

func (s *Server) providerParam(w http.ResponseWriter, r *http.Request) (keypool.Provider, bool) {
	p, err := keypool.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return "", false
	}
	return p, true
}

func (s *Server) handleKeyReset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Service.Keys().ResetAll(p); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	s.log.Info("key health reset", "provider", string(p))
	writeJSON(w, http.StatusOK, s.keyHealth()[p])
}

type probeResult struct {
	Provider keypool.Provider `json:"provider"`
	Key      string           `json:"key,omitempty"`
	OK       bool             `json:"ok"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) handleKeyProbe(w http.ResponseWriter, r *http.Request) {
	p, ok := s.providerParam(w, r)
	if !ok {
		return
	}
	cred, err := s.cfg.Service.Probe(r.Context(), p)
	res := probeResult{Provider: p, OK: err == nil}
	if cred != nil {
		res.Key = cred.Redacted()
	}
	status := http.StatusOK
	if err != nil {
		res.Error = article.FriendlyError(err)
		if errors.Is(err, keypool.ErrNoCredentials) {
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, res)
}

type saveKeysRequest struct {
	GeminiAPIKeys *[]string `json:"geminiApiKeys"`
	NewsAPIKeys   *[]string `json:"newsApiKeys"`
}

// handleSaveKeys stores the submitted key lists and forces a reload. Omitted
// lists are left untouched.
func (s *Server) handleSaveKeys(w http.ResponseWriter, r *http.Request) {
	var body saveKeysRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	updates := []struct {
		provider keypool.Provider
		keys     *[]string
	}{
		{keypool.ProviderGeneration, body.GeminiAPIKeys},
		{keypool.ProviderSearch, body.NewsAPIKeys},
	}
	for _, u := range updates {
		if u.keys == nil {
			continue
		}
		if err := s.cfg.Store.SetKeys(r.Context(), u.provider, *u.keys); err != nil {
			s.log.Error("saving keys failed", "provider", string(u.provider), "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to save settings"})
			return
		}
		s.log.Info("keys saved", "provider", string(u.provider), "count", len(*u.keys))
	}
	if _, err := s.cfg.Service.Keys().Reload(r.Context(), true); err != nil {
		s.log.Error("reloading keys failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to reload keys"})
		return
	}
	writeJSON(w, http.StatusOK, s.keyHealth())
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.cfg.Store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.cfg.Store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "run not found"})
		return
	}
	if err != nil {
		s.log.Error("loading run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to load run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunArticle(w http.ResponseWriter, r *http.Request) {
	body, err := s.cfg.Store.Article(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "article not found"})
		return
	}
	if err != nil {
		s.log.Error("loading article failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to load article"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
