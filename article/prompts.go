// ABOUTME: Prompt engine rendering the embedded text/template prompt files for each step.
// ABOUTME: Builds the prompt data view from the run outputs so templates never index past a slice end.
package article

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/2389-research/pressroom/news"
	"github.com/2389-research/pressroom/serp"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const (
	h2Target        = 10
	h3PerH2         = 2
	keywordTarget   = 100
	maxNewsInPrompt = 25
	maxTopInPrompt  = 10
	maxPAAInPrompt  = 15
	excerptChars    = 3000
)

var promptNames = []string{
	"headings", "semantic", "merge", "structure", "tool",
	"content", "tables", "sources", "images", "metadata",
}

// promptData is everything a prompt template may reference.
type promptData struct {
	Keyword       string
	Month         string
	Year          int
	AffiliateLink string

	H2Count      int
	H3PerH2      int
	KeywordCount int
	ImageCount   int

	NewsSummary    string
	Trends         []string
	Articles       []news.Article
	RecentFive     []news.Article
	Top            []serp.Result
	TopFive        []serp.Result
	CommonHeadings []string
	Topics         []string
	PAA            []string
	Related        []string

	Headings     *Headings
	Semantic     []string
	Merged       *Headings
	Structure    *Structure
	Tool         *ToolAnalysis
	Excerpt      string
	Title        string
	Introduction string
}

// Prompts renders step prompts.
type Prompts struct {
	templates map[string]*template.Template
}

func promptFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"inc":  func(i int) int { return i + 1 },
		"json": func(v any) (string, error) {
			b, err := json.MarshalIndent(v, "", "  ")
			return string(b), err
		},
		"truncate": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			return s[:n]
		},
	}
}

// NewPrompts parses every embedded prompt template.
func NewPrompts() (*Prompts, error) {
	p := &Prompts{templates: make(map[string]*template.Template, len(promptNames))}
	for _, name := range promptNames {
		file := name + ".tmpl"
		t, err := template.New(file).Funcs(promptFuncs()).Option("missingkey=error").ParseFS(promptFS, "prompts/"+file)
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

// Render executes the named prompt.
func (p *Prompts) Render(name string, data *promptData) (string, error) {
	t, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func newPromptData(keyword string, now time.Time) *promptData {
	return &promptData{
		Keyword:      keyword,
		Month:        now.Format("January"),
		Year:         now.Year(),
		H2Count:      h2Target,
		H3PerH2:      h3PerH2,
		KeywordCount: keywordTarget,
	}
}

// withResearch copies research fields into the view, capping list lengths.
func (d *promptData) withResearch(r *Research) *promptData {
	if r == nil {
		return d
	}
	if r.News != nil {
		d.NewsSummary = r.News.Summary
		d.Trends = r.News.Trends
		d.Articles = head(r.News.Articles, maxNewsInPrompt)
		d.RecentFive = head(r.News.Articles, 5)
	}
	if r.SERP != nil {
		d.Top = head(r.SERP.TopResults, maxTopInPrompt)
		d.TopFive = head(r.SERP.TopResults, 5)
		d.CommonHeadings = r.SERP.CommonHeadings
		d.Topics = r.SERP.CompetitorTopics
		d.PAA = head(r.SERP.PeopleAlsoAsk, maxPAAInPrompt)
		d.Related = r.SERP.RelatedSearches
	}
	return d
}

func head[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
