// ABOUTME: Digest merges news articles: dedupe by title, newest first, a short summary, and trending words.
// ABOUTME: The digest is what the research step hands to the prompt templates.
package news

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

const (
	summaryArticles = 5
	maxTrends       = 10
	minTrendCount   = 2
)

// Digest is the research context derived from a keyword's news coverage.
type Digest struct {
	Keyword  string    `json:"keyword"`
	Articles []Article `json:"articles"`
	Summary  string    `json:"summary"`
	Trends   []string  `json:"trends"`
}

var wordRe = regexp.MustCompile(`\b[a-z]{4,}\b`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"from": true, "as": true, "is": true, "was": true, "are": true, "were": true, "been": true,
	"be": true, "have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true, "might": true,
	"can": true, "this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "they": true, "them": true, "their": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true, "all": true,
	"each": true, "every": true, "both": true, "few": true, "more": true, "most": true,
	"other": true, "some": true, "such": true, "than": true, "too": true, "very": true,
}

// NewDigest dedupes articles by case-insensitive title, sorts them newest
// first, keeps at most limit, and derives the summary and trends.
func NewDigest(keyword string, articles []Article, limit int) *Digest {
	seen := make(map[string]bool, len(articles))
	unique := make([]Article, 0, len(articles))
	for _, a := range articles {
		key := strings.ToLower(strings.TrimSpace(a.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, a)
	}
	slices.SortStableFunc(unique, func(a, b Article) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return &Digest{
		Keyword:  keyword,
		Articles: unique,
		Summary:  summarize(unique),
		Trends:   trends(unique),
	}
}

// Empty reports whether no coverage was found.
func (d *Digest) Empty() bool { return d == nil || len(d.Articles) == 0 }

func summarize(articles []Article) string {
	parts := make([]string, 0, summaryArticles)
	for i, a := range articles {
		if i == summaryArticles {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%s): %s", a.Title, a.Source, a.Description))
	}
	return strings.Join(parts, "\n\n")
}

func trends(articles []Article) []string {
	counts := make(map[string]int)
	var order []string
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Description)
		for _, w := range wordRe.FindAllString(text, -1) {
			if stopWords[w] {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	words := make([]string, 0, len(order))
	for _, w := range order {
		if counts[w] >= minTrendCount {
			words = append(words, w)
		}
	}
	slices.SortStableFunc(words, func(a, b string) int { return counts[b] - counts[a] })
	if len(words) > maxTrends {
		words = words[:maxTrends]
	}
	return words
}
