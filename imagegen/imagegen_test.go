// ABOUTME: Tests for Pollinations URL construction and image download handling.
// ABOUTME: Uses httptest for the image endpoint and a temp dir for stored files.
package imagegen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestURL(t *testing.T) {
	c := New(Config{})
	got := c.URL("a cat & a dog", 42)

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "image.pollinations.ai" {
		t.Errorf("host = %q", u.Host)
	}
	if u.Path != "/prompt/a cat & a dog" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	for k, want := range map[string]string{"width": "1024", "height": "768", "nologo": "true", "enhance": "true", "seed": "42"} {
		if q.Get(k) != want {
			t.Errorf("%s = %q, want %q", k, q.Get(k), want)
		}
	}
	if strings.Contains(c.URL("x", -1), "seed=") {
		t.Error("negative seed should be omitted")
	}
}

func TestGenerateStoresImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/prompt/") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff fake jpeg"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New(Config{BaseURL: srv.URL, Dir: dir, PublicPath: "/images/articles", HTTPClient: srv.Client()})
	c.newID = func() string { return "fixed-id" }

	img, err := c.Generate(context.Background(), "a lighthouse", "Lighthouse at dusk", PositionHero, 7)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.URL != "/images/articles/fixed-id.jpg" {
		t.Errorf("URL = %q", img.URL)
	}
	if img.Path != filepath.Join(dir, "fixed-id.jpg") {
		t.Errorf("Path = %q", img.Path)
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		t.Fatalf("read stored image: %v", err)
	}
	if !strings.HasSuffix(string(data), "fake jpeg") {
		t.Errorf("stored %q", data)
	}
	if img.Alt != "Lighthouse at dusk" || img.Position != PositionHero {
		t.Errorf("unexpected image %+v", img)
	}
}

func TestGenerateWithoutDirKeepsRemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	img, err := c.Generate(context.Background(), "p", "alt", PositionInline, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(img.URL, srv.URL+"/prompt/p?") || img.Path != "" {
		t.Errorf("unexpected image %+v", img)
	}
}

func TestGenerateRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), Dir: t.TempDir()}).
		Generate(context.Background(), "p", "alt", PositionInline, 1)
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("err = %v, want ErrNotImage", err)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}).
		Generate(context.Background(), "p", "alt", PositionInline, 1)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v", err)
	}
}

func TestCannedPrompt(t *testing.T) {
	hero := CannedPrompt("Go Generics", PositionHero, 0)
	if !strings.Contains(hero, `"Go Generics"`) || !strings.Contains(hero, "featured image") {
		t.Errorf("hero = %q", hero)
	}
	if CannedPrompt("x", PositionInline, 4) != CannedPrompt("x", PositionInline, 1) {
		t.Error("variant should wrap")
	}
	if CannedPrompt("x", PositionInline, -2) == "" {
		t.Error("negative variant should still produce a prompt")
	}
}
