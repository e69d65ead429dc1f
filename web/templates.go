// ABOUTME: TemplateEngine loads embedded HTML templates and renders the operator status page.
// ABOUTME: Templates are embedded at compile time via go:embed.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// statusRuns is how many recent runs the status page lists.
const statusRuns = 20

// PageData holds all data passed to templates for rendering.
type PageData struct {
	Title string
	Keys  []ProviderView
	Runs  []store.Run
}

// ProviderView is one provider's row group on the status page.
type ProviderView struct {
	Provider keypool.Provider
	Health   keypool.Health
	Keys     []keypool.CredentialStatus
}

// TemplateEngine renders embedded pages inside the shared layout.
type TemplateEngine struct {
	templates map[string]*template.Template
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"ago": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return time.Since(*t).Round(time.Second).String() + " ago"
		},
		"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}
}

// NewTemplateEngine parses every page together with the layout.
func NewTemplateEngine() (*TemplateEngine, error) {
	funcs := templateFuncs()
	engine := &TemplateEngine{templates: make(map[string]*template.Template)}
	for _, page := range []string{"status.html"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(
			templateFS,
			"templates/layout.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		engine.templates[page] = t
	}
	return engine, nil
}

// Render writes the named page as text/html.
func (e *TemplateEngine) Render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.RenderTo(w, name, data)
}

// RenderTo writes the named page to any writer.
func (e *TemplateEngine) RenderTo(w io.Writer, name string, data any) error {
	t, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}

// handleStatusPage shows key health and recent runs. Key values are redacted.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Status"}
	for _, p := range keypool.Providers() {
		pool := s.cfg.Service.Keys().MustPool(p)
		data.Keys = append(data.Keys, ProviderView{Provider: p, Health: pool.Health(), Keys: pool.Credentials()})
	}
	runs, err := s.cfg.Store.ListRuns(r.Context(), statusRuns)
	if err != nil {
		s.log.Warn("listing runs for status page", "error", err)
	}
	data.Runs = runs

	if err := s.templates.Render(w, "status.html", data); err != nil {
		s.log.Error("rendering status page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

