// ABOUTME: Outline repair and fallbacks: structure normalization, keyword-derived structure and tool data,
// ABOUTME: plus the reader-question coverage check run on generated headings.
package article

import (
	"fmt"
	"strings"
	"time"
)

const minCoverage = 0.6

// normalizeStructure forces every section to exactly h3PerH2 subsections and
// fills missing top-level fields. It returns the number of sections changed.
func normalizeStructure(s *Structure, keyword, h1 string) int {
	if strings.TrimSpace(s.H1) == "" {
		s.H1 = h1
	}
	fixed := 0
	for i := range s.Sections {
		sec := &s.Sections[i]
		if len(sec.Subsections) == h3PerH2 {
			continue
		}
		fixed++
		for len(sec.Subsections) < h3PerH2 {
			sec.Subsections = append(sec.Subsections, Subsection{
				H3:      "Additional aspect of " + sec.H2,
				Outline: "Key points about this aspect",
			})
		}
		sec.Subsections = sec.Subsections[:h3PerH2]
	}
	if len(s.FAQ) == 0 {
		s.FAQ = []FAQ{{Question: "What is " + keyword + "?", AnswerOutline: "Brief explanation of " + keyword}}
	}
	if strings.TrimSpace(s.Conclusion) == "" {
		s.Conclusion = "Summary of key points about " + keyword
	}
	if strings.TrimSpace(s.AuthorSection) == "" {
		s.AuthorSection = "Expert insights on AI tools and technology"
	}
	return fixed
}

// fallbackStructure builds an outline directly from the merged headings.
func fallbackStructure(keyword string, h *Headings) *Structure {
	intro := fmt.Sprintf("Discover everything you need to know about %[1]s. This comprehensive guide covers all aspects of %[1]s "+
		"to help you make informed decisions. Learn about features, benefits, and best practices.", keyword)
	conclusion := keyword + " offers powerful capabilities for users. " +
		"Understanding its features and applications helps you maximize its potential."
	s := &Structure{
		H1:            h.H1,
		Introduction:  intro,
		Conclusion:    conclusion,
		AuthorSection: "Expert insights on AI tools and technology from industry professionals.",
		Fallback:      true,
		FAQ: []FAQ{
			{Question: "What is " + keyword + "?", AnswerOutline: keyword + " is explained with key features and benefits."},
			{Question: "How does " + keyword + " work?", AnswerOutline: "Explanation of how " + keyword + " functions and its core mechanisms."},
			{Question: "What are the benefits of " + keyword + "?", AnswerOutline: "Key advantages and benefits of using " + keyword + "."},
		},
	}
	for _, hd := range h.Headings {
		sec := Section{
			H2:    hd.H2,
			Intro: fmt.Sprintf("Learn about %s and how it relates to %s.", strings.ToLower(hd.H2), keyword),
		}
		for _, h3 := range hd.H3 {
			sec.Subsections = append(sec.Subsections, Subsection{
				H3:      h3,
				Outline: fmt.Sprintf("Detailed explanation of %s including key points and practical examples.", strings.ToLower(h3)),
			})
		}
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// fallbackTool is the generic tool analysis used when the model cannot
// produce one.
func fallbackTool(keyword string, now time.Time) *ToolAnalysis {
	return &ToolAnalysis{
		Pricing: Pricing{
			LastUpdated:        now.Format("January 2006"),
			Tiers:              []PricingTier{{Name: "Contact for pricing", Price: "Custom", Billing: "Contact sales", Features: []string{}}},
			FreeTrial:          "Check official website",
			MoneyBackGuarantee: "Check official website",
		},
		Advantages: []Point{
			{Title: "Powerful Features", Description: keyword + " offers comprehensive functionality"},
			{Title: "User-Friendly", Description: "Easy to use interface"},
		},
		Disadvantages: []Point{
			{Title: "Pricing", Description: "May be expensive for some users"},
		},
		HowItWorks: HowItWorks{
			Overview: keyword + " is an AI-powered tool that helps users achieve their goals",
			Steps: []WorkflowStep{
				{StepNumber: 1, Title: "Sign Up", Description: "Create an account"},
				{StepNumber: 2, Title: "Configure", Description: "Set up your preferences"},
				{StepNumber: 3, Title: "Use", Description: "Start using the tool"},
			},
			TechnicalDetails: "Powered by advanced AI technology",
			BestPractices:    []string{"Start with free trial", "Explore all features"},
		},
		Fallback: true,
	}
}

// Coverage reports how many reader questions the outline's titles touch.
type Coverage struct {
	Covered   int
	Total     int
	Uncovered []string
}

// Ratio is Covered/Total, or 1 when there are no questions.
func (c Coverage) Ratio() float64 {
	if c.Total == 0 {
		return 1
	}
	return float64(c.Covered) / float64(c.Total)
}

var questionStopWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true, "does": true,
	"the": true, "this": true, "that": true, "with": true, "from": true, "are": true,
}

// coverage treats a question as covered when any of its significant words
// appears in the H1 or any H2/H3 title.
func coverage(h Headings, questions []string) Coverage {
	titles := []string{strings.ToLower(h.H1)}
	for _, hd := range h.Headings {
		titles = append(titles, strings.ToLower(hd.H2))
		for _, h3 := range hd.H3 {
			titles = append(titles, strings.ToLower(h3))
		}
	}

	c := Coverage{Total: len(questions)}
	for _, q := range questions {
		if questionCovered(q, titles) {
			c.Covered++
		} else {
			c.Uncovered = append(c.Uncovered, q)
		}
	}
	return c
}

func questionCovered(q string, titles []string) bool {
	for _, w := range strings.Fields(strings.ToLower(strings.ReplaceAll(q, "?", ""))) {
		if len(w) <= 3 || questionStopWords[w] {
			continue
		}
		for _, t := range titles {
			if strings.Contains(t, w) {
				return true
			}
		}
	}
	return false
}
