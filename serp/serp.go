// ABOUTME: Search-results-page analysis: top results, people-also-ask, related searches, and heading patterns.
// ABOUTME: Scraping failures fall back to a keyword-derived analysis so research never blocks the pipeline.
package serp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultBaseURL is the search endpoint scraped for results.
	DefaultBaseURL = "https://www.google.com"

	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxResults     = 10
	maxTopics      = 15
	scrapedWordAvg = 2500
	fallbackWords  = 3000
)

// Result is one organic search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Analysis summarizes what currently ranks for a keyword.
type Analysis struct {
	TopResults       []Result `json:"topResults"`
	PeopleAlsoAsk    []string `json:"peopleAlsoAsk"`
	RelatedSearches  []string `json:"relatedSearches"`
	AverageWordCount int      `json:"averageWordCount"`
	CommonHeadings   []string `json:"commonHeadings"`
	CompetitorTopics []string `json:"competitorTopics"`
	Fallback         bool     `json:"fallback"`
}

// Competitor is the outline of a ranking page.
type Competitor struct {
	Headings  []string `json:"headings"`
	WordCount int      `json:"wordCount"`
}

// Client scrapes search result pages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. An empty baseURL uses DefaultBaseURL; a nil client
// gets a 10 second timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient, logger: logger}
}

// Analyze scrapes the results page for keyword. It always returns a usable
// Analysis; when scraping fails the result is Fallback(keyword) and the
// error is returned alongside it for logging.
func (c *Client) Analyze(ctx context.Context, keyword string) (*Analysis, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("num", "10")
	params.Set("hl", "en")

	doc, err := c.fetch(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		c.logger.Warn("serp analysis failed, using fallback", "keyword", keyword, "error", err)
		return Fallback(keyword), err
	}
	return Parse(doc), nil
}

// Parse extracts an Analysis from a results page.
func Parse(doc *goquery.Document) *Analysis {
	a := &Analysis{AverageWordCount: scrapedWordAvg}

	doc.Find("div.g").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		href, _ := s.Find("a").First().Attr("href")
		snippet := strings.TrimSpace(s.Find("div.VwiC3b").Text())
		if snippet == "" {
			snippet = strings.TrimSpace(s.Find("span.aCOpRe").Text())
		}
		if title != "" && href != "" {
			a.TopResults = append(a.TopResults, Result{Title: title, URL: href, Snippet: snippet})
		}
		return len(a.TopResults) < maxResults
	})

	doc.Find("div.related-question-pair").Each(func(_ int, s *goquery.Selection) {
		if q := strings.TrimSpace(s.Find("span").First().Text()); q != "" {
			a.PeopleAlsoAsk = append(a.PeopleAlsoAsk, q)
		}
	})

	doc.Find("div.s75CSd").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			a.RelatedSearches = append(a.RelatedSearches, t)
		}
	})

	a.CompetitorTopics = topics(a.TopResults)
	a.CommonHeadings = headings(a.TopResults)
	return a
}

// Fallback returns a generic analysis built from the keyword alone.
func Fallback(keyword string) *Analysis {
	return &Analysis{
		PeopleAlsoAsk: []string{
			"What is " + keyword + "?",
			"How does " + keyword + " work?",
			"What are the benefits of " + keyword + "?",
			"Is " + keyword + " worth it?",
			"How to use " + keyword + " effectively?",
			"What are the best practices for " + keyword + "?",
			"What are the common mistakes with " + keyword + "?",
			"How much does " + keyword + " cost?",
			"What are alternatives to " + keyword + "?",
			"Who should use " + keyword + "?",
		},
		RelatedSearches: []string{
			keyword + " tutorial",
			keyword + " guide",
			keyword + " review",
			keyword + " comparison",
			"best " + keyword,
			keyword + " tips",
			keyword + " features",
			keyword + " pricing",
			keyword + " alternatives",
			keyword + " vs",
			"how to " + keyword,
			keyword + " benefits",
		},
		AverageWordCount: fallbackWords,
		CommonHeadings:   []string{"introduction", "overview", "benefits", "features", "how to", "comparison", "pricing", "faq", "conclusion"},
		Fallback:         true,
	}
}

// FetchCompetitor loads a ranking page and returns its h1-h3 outline and
// body word count, ignoring scripts, styles and page chrome.
func (c *Client) FetchCompetitor(ctx context.Context, pageURL string) (*Competitor, error) {
	doc, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc.Find("script, style, nav, header, footer").Remove()

	comp := &Competitor{}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			comp.Headings = append(comp.Headings, t)
		}
	})
	comp.WordCount = len(strings.Fields(doc.Find("body").Text()))
	return comp, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

var topicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:how to|ways to|tips for|guide to|benefits of|best)\s+([^,.]{10,50})`),
	regexp.MustCompile(`(?:what is|understanding|learn about)\s+([^,.]{10,50})`),
	regexp.MustCompile(`([^,.]{10,50})\s+(?:explained|overview|comparison)`),
}

func topics(results []Result) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		text := strings.ToLower(r.Title + " " + r.Snippet)
		for _, re := range topicPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				t := strings.TrimSpace(m[1])
				if t == "" || seen[t] {
					continue
				}
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	if len(out) > maxTopics {
		out = out[:maxTopics]
	}
	return out
}

var headingPatterns = []string{
	"introduction", "overview", "what is", "how to", "benefits", "features",
	"advantages", "disadvantages", "pros and cons", "comparison", "alternatives",
	"pricing", "conclusion", "faq", "getting started", "best practices", "tips", "guide",
}

func headings(results []Result) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		title := strings.ToLower(r.Title)
		for _, p := range headingPatterns {
			if strings.Contains(title, p) && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
