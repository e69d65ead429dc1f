// ABOUTME: Pollinations image client: builds prompt URLs, fetches images, and stores them under uuid file names.
// ABOUTME: Also provides canned hero and inline prompts for when prompt generation is unavailable.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the public Pollinations image endpoint.
	DefaultBaseURL = "https://image.pollinations.ai"

	defaultWidth  = 1024
	defaultHeight = 768
	maxImageBytes = 20 << 20
)

// ErrNotImage means the endpoint answered with something other than an image.
var ErrNotImage = errors.New("response is not an image")

// Position says where an image goes in the article.
type Position string

const (
	PositionHero   Position = "hero"
	PositionInline Position = "inline"
)

// Image is a generated article image.
type Image struct {
	URL      string   `json:"url"`
	Path     string   `json:"path,omitempty"`
	Alt      string   `json:"alt"`
	Prompt   string   `json:"prompt"`
	Position Position `json:"position"`
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Width      int
	Height     int
	Dir        string // where fetched images are written; empty keeps only the remote URL
	PublicPath string // URL prefix the Dir is served under, e.g. /images/articles
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client generates images from text prompts.
type Client struct {
	cfg   Config
	newID func() string
}

// New creates a Client, filling defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg, newID: uuid.NewString}
}

// URL returns the generation URL for prompt. A negative seed is omitted.
func (c *Client) URL(prompt string, seed int) string {
	q := url.Values{}
	q.Set("width", strconv.Itoa(c.cfg.Width))
	q.Set("height", strconv.Itoa(c.cfg.Height))
	q.Set("nologo", "true")
	q.Set("enhance", "true")
	if seed >= 0 {
		q.Set("seed", strconv.Itoa(seed))
	}
	return c.cfg.BaseURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

// Generate fetches the image for prompt. When a directory is configured the
// image is written there and the returned URL points at the public path;
// otherwise the remote URL is returned as-is.
func (c *Client) Generate(ctx context.Context, prompt, alt string, pos Position, seed int) (*Image, error) {
	remote := c.URL(prompt, seed)
	img := &Image{URL: remote, Alt: alt, Prompt: prompt, Position: pos}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image endpoint returned %s", resp.Status)
	}
	ctype := resp.Header.Get("Content-Type")
	ext, ok := extension(ctype)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, ctype)
	}
	if c.cfg.Dir == "" {
		return img, nil
	}

	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	name := c.newID() + ext
	full := filepath.Join(c.cfg.Dir, name)
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create image file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxImageBytes))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("write image: %w", err)
	}

	img.Path = full
	if c.cfg.PublicPath != "" {
		img.URL = path.Join(c.cfg.PublicPath, name)
	}
	c.cfg.Logger.Info("image saved", "file", name, "bytes", n, "position", string(pos))
	return img, nil
}

func extension(contentType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mt {
	case "image/png":
		return ".png", true
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/webp":
		return ".webp", true
	case "image/gif":
		return ".gif", true
	}
	if strings.HasPrefix(mt, "image/") {
		return ".img", true
	}
	return "", false
}

var heroPrompts = []string{
	"Create a professional, high-quality featured image for an article titled %q. Style: modern, clean, tech-focused design with vibrant colors. Include: abstract geometric shapes, gradient backgrounds, technology-themed elements. Requirements: professional, eye-catching, suitable for a tech blog header, 4K quality, HDR.",
	"Design a stunning featured image for a blog post about %q. Style: sleek, contemporary, minimalist with dynamic composition. Elements: futuristic tech imagery, digital patterns. Quality: high resolution, professional photography style, dramatic lighting.",
	"Generate a captivating hero image for an article on %q. Style: professional tech publication aesthetic, vibrant and modern. Include: innovative design elements, abstract tech visuals, clean composition. Requirements: magazine-quality, 4K resolution.",
}

var inlinePrompts = []string{
	"Create a supporting illustration for an article about %q. Style: informative, visually engaging, complementary to content. Include: relevant icons, diagrams, or concept visualization. Requirements: clear, professional, contextual to the topic.",
	"Design an inline content image for %q. Style: clean, modern, informative visualization. Elements: schematic representations, workflow diagrams, or conceptual imagery. Quality: professional, blog-friendly.",
	"Generate a mid-article illustration for %q. Style: supporting visual content, professional design. Include: concept visualization, process illustration, or thematic imagery. Requirements: complementary to article content, visually appealing.",
}

// CannedPrompt returns a stock prompt for title. variant selects among the
// available phrasings.
func CannedPrompt(title string, pos Position, variant int) string {
	set := inlinePrompts
	if pos == PositionHero {
		set = heroPrompts
	}
	if variant < 0 {
		variant = -variant
	}
	return fmt.Sprintf(set[variant%len(set)], title)
}
