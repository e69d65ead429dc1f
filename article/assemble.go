// ABOUTME: Final assembly of the Complete payload: tables, sources and images spliced into the Markdown body.
// ABOUTME: Sections are addressed by splitting on "\n## " so blocks land between H2 sections.
package article

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/2389-research/pressroom/imagegen"
	"github.com/2389-research/pressroom/pipeline"
)

const sectionSep = "\n## "

var (
	titleRe     = regexp.MustCompile(`(?m)^#[ \t]+(.+)$`)
	fenceOpenRe = regexp.MustCompile("(?i)```markdown\\n?")
	fenceRe     = regexp.MustCompile("```\\n?")
	slugDropRe  = regexp.MustCompile(`[^\w\s-]`)
	slugSpaceRe = regexp.MustCompile(`\s+`)
	slugDashRe  = regexp.MustCompile(`-+`)
)

// Finish builds the Article from the run outputs.
func (p *Pipeline) Finish(in *pipeline.Outputs) (any, error) {
	req := requestFrom(in.Input())
	content, err := pipeline.Output[string](in, StepContent)
	if err != nil {
		return nil, err
	}
	meta, err := pipeline.Output[*Metadata](in, StepMetadata)
	if err != nil {
		return nil, err
	}
	structure := pipeline.OutputOr(in, StepStructure, &Structure{})
	tables := pipeline.OutputOr(in, StepTables, &Tables{})
	sources := pipeline.OutputOr(in, StepSources, &Sources{})
	images := pipeline.OutputOr(in, StepImages, &ImageSet{})
	semantic := pipeline.OutputOr(in, StepSemantic, &SemanticKeywords{})
	outline := pipeline.OutputOr(in, StepMerge, &Headings{})

	var tool *ToolAnalysis
	if req.IsAITool() {
		tool = pipeline.OutputOr[*ToolAnalysis](in, StepTool, nil)
	}

	body := insertTables(content, req.Keyword, tables, tool)
	body = appendSources(body, sources.Sources)
	title := titleOf(body, req.Keyword)
	body = insertImages(body, images.Images)
	body = stripTitle(body)
	shape := shapeOf(body)

	a := &Article{
		Title:            title,
		Category:         req.NormalizedCategory(),
		Content:          body,
		Excerpt:          structure.Introduction,
		Slug:             meta.Slug,
		Metadata:         *meta,
		Author:           p.cfg.Author,
		AuthorExperience: structure.AuthorSection,
		FAQ:              structure.FAQ,
		Sources:          sources.Sources,
		Images:           images.Images,
		Tables:           Tables{Comparison: tables.Comparison, Summary: tables.Summary},
		Stats: Stats{
			WordCount:        len(strings.Fields(body)),
			H2Count:          len(outline.Headings),
			H3Count:          outline.H3Count(),
			SemanticKeywords: len(semantic.Keywords),
			ExternalSources:  len(sources.Sources),
			Images:           len(images.Images),
			WrittenH2:        shape.H2,
			WrittenH3:        shape.H3,
			Links:            shape.Links,
			Tables:           shape.Tables,
		},
	}
	if !req.IsAITool() {
		a.Subcategory = req.Subcategory
	}
	if p.cfg.SiteURL != "" {
		a.CanonicalURL = strings.TrimSuffix(p.cfg.SiteURL, "/") + "/" + meta.Slug
	}
	if hero := images.Hero(); hero != nil {
		a.FeaturedImage = hero.URL
	}
	if tool != nil {
		a.Tool = tool
		a.AffiliateLink = req.AffiliateLink
		a.Tables.Pricing = tables.Pricing
		a.Tables.ProsCons = tables.ProsCons
	}
	p.log.Info("article assembled", "title", title, "words", a.Stats.WordCount,
		"sources", a.Stats.ExternalSources, "images", a.Stats.Images)
	return a, nil
}

// insertTables places the tables between H2 sections. Tool reviews get the
// pricing table near the first quarter, pros and cons past the middle, and
// the comparison table near three quarters; other articles get comparison
// at the middle and summary near three quarters. Short articles get every
// table appended.
func insertTables(body, keyword string, t *Tables, tool *ToolAnalysis) string {
	type placed struct {
		at    int
		block string
	}
	parts := strings.Split(body, sectionSep)
	n := len(parts)
	comparison, summary := renderTable(t.Comparison, "###"), renderTable(t.Summary, "###")

	var blocks []placed
	if tool != nil {
		pricing := pricingSection(keyword, tool, t.Pricing)
		prosCons := renderTable(t.ProsCons, "##")
		if n >= 4 {
			blocks = []placed{
				{n / 4, pricing},
				{n/2 + 1, prosCons},
				{n*3/4 + 2, comparison},
			}
		} else {
			return appendBlocks(body, pricing, prosCons, comparison, summary)
		}
	} else {
		if n >= 3 {
			blocks = []placed{
				{n / 2, comparison},
				{n*3/4 + 1, summary},
			}
		} else {
			return appendBlocks(body, comparison, summary)
		}
	}
	for _, b := range blocks {
		insertAfter(parts, min(b.at, n-1), b.block)
	}
	return strings.Join(parts, sectionSep)
}

// insertAfter appends block to the end of parts[i], ahead of the next H2.
func insertAfter(parts []string, i int, block string) {
	if block == "" {
		return
	}
	parts[i] = strings.TrimRight(parts[i], "\n") + "\n\n" + block + "\n"
}

func appendBlocks(body string, blocks ...string) string {
	var b strings.Builder
	b.WriteString(body)
	for _, blk := range blocks {
		if blk == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(blk)
	}
	return b.String()
}

// renderTable renders t as a GitHub-flavored Markdown table under a heading.
func renderTable(t *Table, heading string) string {
	if t == nil || len(t.Headers) == 0 {
		return ""
	}
	var b strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&b, "%s %s\n\n", heading, t.Title)
	}
	row := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" " + strings.ReplaceAll(c, "|", `\|`) + " |")
		}
		b.WriteString("\n")
	}
	row(t.Headers)
	sep := make([]string, len(t.Headers))
	for i := range sep {
		sep[i] = "---"
	}
	row(sep)
	for _, r := range t.Rows {
		row(r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func pricingSection(keyword string, tool *ToolAnalysis, table *Table) string {
	if table == nil {
		table = pricingTable(keyword, tool)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s Pricing\n\n", keyword)
	if tool.Pricing.LastUpdated != "" {
		fmt.Fprintf(&b, "*Last Updated: %s*\n\n", tool.Pricing.LastUpdated)
	}
	b.WriteString(renderTable(&Table{Headers: table.Headers, Rows: table.Rows}, ""))
	fmt.Fprintf(&b, "\n\n**Free Trial:** %s\n\n**Money-Back Guarantee:** %s", tool.Pricing.FreeTrial, tool.Pricing.MoneyBackGuarantee)
	return b.String()
}

func pricingTable(keyword string, tool *ToolAnalysis) *Table {
	t := &Table{Title: keyword + " Pricing", Headers: []string{"Plan", "Price", "Billing", "Key Features"}}
	for _, tier := range tool.Pricing.Tiers {
		features := strings.Join(head(tier.Features, 3), ", ")
		if features == "" {
			features = "N/A"
		}
		t.Rows = append(t.Rows, []string{"**" + tier.Name + "**", tier.Price, tier.Billing, features})
	}
	return t
}

func prosConsTable(keyword string, tool *ToolAnalysis) *Table {
	t := &Table{Title: keyword + " Pros and Cons", Headers: []string{"Advantages", "Disadvantages"}}
	for i := 0; i < max(len(tool.Advantages), len(tool.Disadvantages)); i++ {
		var pro, con string
		if i < len(tool.Advantages) {
			pro = fmt.Sprintf("**%s**: %s", tool.Advantages[i].Title, tool.Advantages[i].Description)
		}
		if i < len(tool.Disadvantages) {
			con = fmt.Sprintf("**%s**: %s", tool.Disadvantages[i].Title, tool.Disadvantages[i].Description)
		}
		t.Rows = append(t.Rows, []string{pro, con})
	}
	return t
}

func appendSources(body string, sources []Source) string {
	var b strings.Builder
	b.WriteString(body)
	for _, s := range sources {
		fmt.Fprintf(&b, "\n\nSource: [%s](%s)", s.Text, s.URL)
	}
	return b.String()
}

// inlineSlots are the section fractions inline images are placed at, with
// the minimum number of split parts each needs.
var inlineSlots = []struct {
	num, den, minParts int
}{
	{1, 2, 3},
	{3, 4, 5},
}

// insertImages puts the hero image before the first H2 and inline images
// ahead of the sections at the middle and three-quarter marks.
func insertImages(body string, images []imagegen.Image) string {
	inline := 0
	for _, img := range images {
		md := fmt.Sprintf("![%s](%s)", img.Alt, img.URL)
		if img.Position == imagegen.PositionHero {
			if i := strings.Index(body, "\n##"); i > 0 {
				body = body[:i] + "\n\n" + md + "\n" + body[i:]
			}
			continue
		}
		if inline >= len(inlineSlots) {
			continue
		}
		slot := inlineSlots[inline]
		inline++
		parts := strings.Split(body, sectionSep)
		if len(parts) < slot.minParts {
			continue
		}
		at := len(parts) * slot.num / slot.den
		insertAfter(parts, at-1, md)
		body = strings.Join(parts, sectionSep)
	}
	return body
}

func defaultAlt(title string, i int) string {
	switch i {
	case 0:
		return title
	case 1:
		return title + " illustration"
	case 2:
		return title + " guide"
	}
	return fmt.Sprintf("%s image %d", title, i+1)
}

// titleOf returns the first "# " heading, or fallback.
func titleOf(body, fallback string) string {
	if m := titleRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func stripTitle(body string) string {
	if loc := titleRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]] + body[loc[1]:]
	}
	return strings.TrimSpace(body)
}

// stripFences removes Markdown code fences wrapped around a response.
func stripFences(s string) string {
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Slugify lowercases s, drops punctuation and joins words with hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugDropRe.ReplaceAllString(s, "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
