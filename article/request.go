// ABOUTME: Generation request accepted from HTTP and CLI callers, with validation and category normalization.
// ABOUTME: Input() produces the map seeded into the pipeline run and visible to step conditions.
package article

import (
	"errors"
	"strings"
)

// CategoryAITools is the category that enables the tool analysis step.
const CategoryAITools = "AI Tools"

const defaultCategory = "Blog"

var (
	ErrMissingKeyword  = errors.New("keyword is required")
	ErrMissingCategory = errors.New("category is required")
)

// Request asks for one article.
type Request struct {
	Keyword       string `json:"keyword"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory,omitempty"`
	AffiliateLink string `json:"affiliateLink,omitempty"`
}

// Validate checks required fields.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Keyword) == "" {
		errs = append(errs, ErrMissingKeyword)
	}
	if strings.TrimSpace(r.Category) == "" {
		errs = append(errs, ErrMissingCategory)
	}
	return errors.Join(errs...)
}

// NormalizedCategory maps the request category onto a display category.
// "ai-tools" and "AI Tools" become CategoryAITools; anything else uses the
// subcategory when present, then "Blog".
func (r Request) NormalizedCategory() string {
	c := strings.TrimSpace(r.Category)
	if strings.EqualFold(c, "ai-tools") || strings.EqualFold(c, CategoryAITools) {
		return CategoryAITools
	}
	if s := strings.TrimSpace(r.Subcategory); s != "" {
		return s
	}
	return defaultCategory
}

// IsAITool reports whether the request targets the AI Tools category.
func (r Request) IsAITool() bool { return r.NormalizedCategory() == CategoryAITools }

// Input returns the pipeline input map.
func (r Request) Input() map[string]any {
	return map[string]any{
		"keyword":       strings.TrimSpace(r.Keyword),
		"category":      r.NormalizedCategory(),
		"rawCategory":   r.Category,
		"subcategory":   r.Subcategory,
		"affiliateLink": r.AffiliateLink,
	}
}

// requestFrom rebuilds a Request from a run's input map.
func requestFrom(input map[string]any) Request {
	str := func(k string) string {
		s, _ := input[k].(string)
		return s
	}
	return Request{
		Keyword:       str("keyword"),
		Category:      str("rawCategory"),
		Subcategory:   str("subcategory"),
		AffiliateLink: str("affiliateLink"),
	}
}
