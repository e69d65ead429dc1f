// ABOUTME: Unit tests for Markdown assembly, outline normalization, coverage, requests, and friendly errors.
// ABOUTME: Pure functions only; the end-to-end flow lives in pipeline_test.go.
package article

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/pressroom/imagegen"
	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
	"github.com/2389-research/pressroom/pipeline"
)

func between(t *testing.T, body, needle, before, after string) {
	t.Helper()
	i := strings.Index(body, needle)
	require.GreaterOrEqual(t, i, 0, "missing %q", needle)
	if before != "" {
		assert.Less(t, strings.Index(body, before), i, "%q should precede %q", before, needle)
	}
	if after != "" {
		assert.Greater(t, strings.Index(body, after), i, "%q should follow %q", after, needle)
	}
}

func TestInsertTablesBlog(t *testing.T) {
	body := articleMarkdown(10)
	tables := &Tables{
		Comparison: &Table{Title: "Compare", Headers: []string{"A", "B"}, Rows: [][]string{{"1", "2|3"}}},
		Summary:    &Table{Title: "Summary", Headers: []string{"Aspect"}, Rows: [][]string{{"x"}}},
	}
	got := insertTables(body, testKeyword, tables, nil)

	between(t, got, "### Compare", "## Section 5\n", "## Section 6\n")
	between(t, got, "### Summary", "## Section 9\n", "## Section 10\n")
	assert.Contains(t, got, "| A | B |\n| --- | --- |\n| 1 | 2\\|3 |")
	assert.Equal(t, 10, strings.Count(got, sectionSep), "no new H2 sections are created")
}

func TestInsertTablesShortArticleAppends(t *testing.T) {
	body := articleMarkdown(1)
	tables := &Tables{
		Comparison: &Table{Title: "Compare", Headers: []string{"A"}},
		Summary:    &Table{Title: "Summary", Headers: []string{"B"}},
	}
	got := insertTables(body, testKeyword, tables, nil)
	assert.True(t, strings.HasPrefix(got, body))
	between(t, got, "### Compare", "## Section 1\n", "### Summary")
}

func TestInsertTablesToolReview(t *testing.T) {
	tool := fallbackTool(testKeyword, testNow)
	tables := &Tables{
		Comparison: &Table{Title: "Compare", Headers: []string{"A"}},
		Summary:    &Table{Title: "Summary", Headers: []string{"B"}},
		Pricing:    pricingTable(testKeyword, tool),
		ProsCons:   prosConsTable(testKeyword, tool),
	}
	got := insertTables(articleMarkdown(10), testKeyword, tables, tool)

	between(t, got, "## vector databases Pricing", "## Section 2\n", "## Section 3\n")
	between(t, got, "## vector databases Pros and Cons", "## Section 6\n", "## Section 7\n")
	between(t, got, "### Compare", "## Section 10\n", "")
	assert.Contains(t, got, "| **Contact for pricing** | Custom | Contact sales | N/A |")
	assert.Contains(t, got, "| **User-Friendly**: Easy to use interface |  |")
	assert.NotContains(t, got, "### Summary", "tool reviews keep the summary table out of the body")
}

func TestInsertImages(t *testing.T) {
	images := []imagegen.Image{
		{URL: "/h.jpg", Alt: "Hero", Position: imagegen.PositionHero},
		{URL: "/m.jpg", Alt: "Middle", Position: imagegen.PositionInline},
		{URL: "/b.jpg", Alt: "Bottom", Position: imagegen.PositionInline},
		{URL: "/x.jpg", Alt: "Extra", Position: imagegen.PositionInline},
	}
	got := insertImages(articleMarkdown(10), images)

	between(t, got, "![Hero](/h.jpg)", "# Vector Databases Explained", "## Section 1\n")
	between(t, got, "![Middle](/m.jpg)", "## Section 4\n", "## Section 5\n")
	between(t, got, "![Bottom](/b.jpg)", "## Section 7\n", "## Section 8\n")
	assert.NotContains(t, got, "/x.jpg")
}

func TestInsertImagesNeedsEnoughSections(t *testing.T) {
	images := []imagegen.Image{
		{URL: "/m.jpg", Alt: "Middle", Position: imagegen.PositionInline},
		{URL: "/b.jpg", Alt: "Bottom", Position: imagegen.PositionInline},
	}
	got := insertImages(articleMarkdown(3), images)
	assert.Contains(t, got, "/m.jpg")
	assert.NotContains(t, got, "/b.jpg", "bottom image needs five parts")
}

func TestShapeOf(t *testing.T) {
	body := strings.Join([]string{
		"Intro with a [link](https://example.com) and <https://example.org>.",
		"## First",
		"### Detail",
		"| Plan | Price |\n| --- | --- |\n| Free | [$0](https://example.com/pricing) |",
		"## Second",
		"```\n## not a heading\n```",
		"#### Deep",
	}, "\n\n")
	got := shapeOf(body)
	assert.Equal(t, bodyShape{H2: 2, H3: 1, Links: 2, Tables: 1}, got)
	assert.Equal(t, bodyShape{}, shapeOf(""))
}

func TestTitleHandling(t *testing.T) {
	body := "Preamble\n# Real Title\n\nText\n## Next"
	assert.Equal(t, "Real Title", titleOf(body, "kw"))
	assert.Equal(t, "kw", titleOf("## Only H2", "kw"))
	assert.Equal(t, "Preamble\n\n\nText\n## Next", stripTitle(body))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "# T\n\nbody", stripFences("```markdown\n# T\n\nbody\n```"))
	assert.Equal(t, "# T", stripFences("```MARKDOWN\n# T```"))
	assert.Equal(t, "plain", stripFences("  plain \n"))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Vector Databases!":        "vector-databases",
		"  ChatGPT -- Alternative": "chatgpt-alternative",
		"ai_image generator":       "ai_image-generator",
		"¿Qué?":                    "qu",
		"---":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestNormalizeStructure(t *testing.T) {
	s := &Structure{Sections: []Section{
		{H2: "One", Subsections: []Subsection{{H3: "a"}}},
		{H2: "Two", Subsections: []Subsection{{H3: "a"}, {H3: "b"}, {H3: "c"}}},
		{H2: "Three", Subsections: []Subsection{{H3: "a"}, {H3: "b"}}},
	}}
	fixed := normalizeStructure(s, "rust", "Rust Guide")

	assert.Equal(t, 2, fixed)
	assert.Equal(t, "Rust Guide", s.H1)
	for _, sec := range s.Sections {
		assert.Len(t, sec.Subsections, 2, sec.H2)
	}
	assert.Equal(t, "Additional aspect of One", s.Sections[0].Subsections[1].H3)
	assert.Equal(t, "b", s.Sections[1].Subsections[1].H3)
	assert.Equal(t, []FAQ{{Question: "What is rust?", AnswerOutline: "Brief explanation of rust"}}, s.FAQ)
	assert.Equal(t, "Summary of key points about rust", s.Conclusion)
	assert.NotEmpty(t, s.AuthorSection)
}

func TestFallbackStructure(t *testing.T) {
	s := fallbackStructure("rust", &Headings{H1: "Rust", Headings: []Heading{{H2: "Memory Safety", H3: []string{"Ownership"}}}})
	require.Len(t, s.Sections, 1)
	assert.True(t, s.Fallback)
	assert.Equal(t, "Learn about memory safety and how it relates to rust.", s.Sections[0].Intro)
	assert.Equal(t, "Detailed explanation of ownership including key points and practical examples.", s.Sections[0].Subsections[0].Outline)
	assert.Len(t, s.FAQ, 3)
}

func TestCoverage(t *testing.T) {
	h := Headings{H1: "Rust Guide", Headings: []Heading{{H2: "Ownership Explained", H3: []string{"Borrowing rules"}}}}
	c := coverage(h, []string{"What is ownership?", "How does the borrow checker work?", "Is it fast today?"})

	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 2, c.Covered, "ownership and borrow match titles")
	assert.Equal(t, []string{"Is it fast today?"}, c.Uncovered)
	assert.InDelta(t, 0.667, c.Ratio(), 0.001)
	assert.Equal(t, 1.0, Coverage{}.Ratio())
}

func TestRequest(t *testing.T) {
	err := Request{}.Validate()
	assert.ErrorIs(t, err, ErrMissingKeyword)
	assert.ErrorIs(t, err, ErrMissingCategory)
	assert.NoError(t, Request{Keyword: "k", Category: "blog"}.Validate())

	assert.Equal(t, CategoryAITools, Request{Category: "ai-tools", Subcategory: "x"}.NormalizedCategory())
	assert.Equal(t, CategoryAITools, Request{Category: "AI Tools"}.NormalizedCategory())
	assert.Equal(t, "Guides", Request{Category: "blog", Subcategory: "Guides"}.NormalizedCategory())
	assert.Equal(t, "Blog", Request{Category: "blog"}.NormalizedCategory())

	req := Request{Keyword: " rust ", Category: "ai-tools", AffiliateLink: "https://a"}
	in := req.Input()
	assert.Equal(t, "rust", in["keyword"])
	assert.Equal(t, CategoryAITools, in["category"])
	back := requestFrom(in)
	assert.Equal(t, "rust", back.Keyword)
	assert.True(t, back.IsAITool())
	assert.Equal(t, "https://a", back.AffiliateLink)
}

func TestFriendlyError(t *testing.T) {
	stepErr := func(class pipeline.ErrorClass, err error) error {
		return &pipeline.StepError{Step: "Writing", Attempts: 6, PoolSize: 2, Class: class, Err: err}
	}
	inStep := func(msg string) string { return msg + ` (step "Writing", 6 attempts)` }
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no keys", stepErr(pipeline.ClassFatal, fmt.Errorf("search: %w", keypool.ErrNoCredentials)), inStep(MsgNoKeys)},
		{"no keys before any attempt", &pipeline.StepError{Step: "Research", Class: pipeline.ClassFatal, Err: keypool.ErrNoCredentials}, MsgNoKeys + ` (step "Research")`},
		{"canceled", stepErr(pipeline.ClassCanceled, context.Canceled), inStep(MsgCanceled)},
		{"bare cancel", context.Canceled, MsgCanceled},
		{"json", stepErr(pipeline.ClassUnknown, fmt.Errorf("%w: no object found", llm.ErrInvalidJSON)), inStep(MsgFormatting)},
		{"schema", stepErr(pipeline.ClassUnknown, &llm.SchemaError{Schema: "headings"}), inStep(MsgFormatting)},
		{"quota", stepErr(pipeline.ClassRateLimit, llm.ErrorFromStatusCode("gemini", 429, "", "quota")), inStep(MsgQuota)},
		{"overload", stepErr(pipeline.ClassOverload, llm.ErrorFromStatusCode("gemini", 503, "", "overloaded")), inStep(MsgAllKeys)},
		{"short", stepErr(pipeline.ClassUnknown, ErrShortContent), inStep(MsgAllKeys)},
		{"unauthorized", stepErr(pipeline.ClassFatal, llm.ErrorFromStatusCode("newsapi", 401, "apiKeyInvalid", "bad key")), inStep(MsgInvalidKey)},
		{"single attempt", &pipeline.StepError{Step: "Headings", Attempts: 1, Class: pipeline.ClassFatal, Err: llm.ErrorFromStatusCode("gemini", 401, "", "bad key")}, MsgInvalidKey + ` (step "Headings", 1 attempts)`},
		{"key failure outside a step", llm.ErrorFromStatusCode("gemini", 429, "", "quota"), MsgQuota},
		{"panic", stepErr(pipeline.ClassFatal, pipeline.ErrStepPanic), stepErr(pipeline.ClassFatal, pipeline.ErrStepPanic).Error()},
		{"other", errors.New("finish: boom"), "finish: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FriendlyError(tt.err))
		})
	}
}

func TestPromptsRenderEveryTemplate(t *testing.T) {
	p, err := NewPrompts()
	require.NoError(t, err)

	h := testHeadings()
	d := newPromptData(testKeyword, testNow)
	d.AffiliateLink = "https://go.example"
	d.ImageCount = 3
	d.Headings, d.Merged = &h, &h
	d.Semantic = []string{"embeddings"}
	d.Structure = fallbackStructure(testKeyword, &h)
	d.Tool = fallbackTool(testKeyword, testNow)
	d.Title = "Vector Databases Explained"

	for _, name := range promptNames {
		out, err := p.Render(name, d)
		require.NoError(t, err, name)
		assert.NotEmpty(t, strings.TrimSpace(out), name)
	}

	content, err := p.Render("content", d)
	require.NoError(t, err)
	assert.Contains(t, content, "https://go.example")
	assert.Contains(t, content, "Contact for pricing: Custom (Contact sales)")
	assert.Contains(t, content, "October 2026")

	_, err = p.Render("missing", d)
	assert.Error(t, err)
}
