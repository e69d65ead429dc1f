// ABOUTME: Data shapes produced by each article step and the final Article assembled from them.
// ABOUTME: JSON tags match the model-facing schemas and the Complete event payload.
package article

import (
	"github.com/2389-research/pressroom/imagegen"
	"github.com/2389-research/pressroom/news"
	"github.com/2389-research/pressroom/serp"
)

// Research is the output of the research step.
type Research struct {
	News *news.Digest   `json:"news"`
	SERP *serp.Analysis `json:"serp"`
}

// Heading is an H2 with its H3 children.
type Heading struct {
	H2 string   `json:"h2"`
	H3 []string `json:"h3"`
}

// Headings is the article outline produced by the headings and keyword merge steps.
type Headings struct {
	H1       string    `json:"h1"`
	Headings []Heading `json:"headings"`
}

// H3Count returns the number of H3 titles across all headings.
func (h Headings) H3Count() int {
	n := 0
	for _, hd := range h.Headings {
		n += len(hd.H3)
	}
	return n
}

// SemanticKeywords is the keyword extraction result.
type SemanticKeywords struct {
	Keywords []string `json:"semanticKeywords"`
}

// Subsection is an H3 with its outline.
type Subsection struct {
	H3      string `json:"h3"`
	Outline string `json:"outline"`
}

// Section is an H2 with intro and subsections.
type Section struct {
	H2          string       `json:"h2"`
	Intro       string       `json:"intro"`
	Subsections []Subsection `json:"subsections"`
}

// FAQ is an outline question.
type FAQ struct {
	Question      string `json:"question"`
	AnswerOutline string `json:"answerOutline"`
}

// Structure is the full article outline.
type Structure struct {
	H1            string    `json:"h1"`
	Introduction  string    `json:"introduction"`
	Sections      []Section `json:"sections"`
	FAQ           []FAQ     `json:"faq"`
	Conclusion    string    `json:"conclusion"`
	AuthorSection string    `json:"authorSection"`
	Fallback      bool      `json:"fallback,omitempty"`
}

// PricingTier is one plan of a tool.
type PricingTier struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Billing  string   `json:"billing"`
	Features []string `json:"features"`
}

// Pricing describes a tool's plans.
type Pricing struct {
	LastUpdated        string        `json:"lastUpdated"`
	Tiers              []PricingTier `json:"tiers"`
	FreeTrial          string        `json:"freeTrial"`
	MoneyBackGuarantee string        `json:"moneyBackGuarantee"`
}

// Point is a titled advantage or disadvantage.
type Point struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// WorkflowStep is one step of how a tool is used.
type WorkflowStep struct {
	StepNumber  int    `json:"stepNumber"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HowItWorks explains a tool's workflow.
type HowItWorks struct {
	Overview         string         `json:"overview"`
	Steps            []WorkflowStep `json:"steps"`
	TechnicalDetails string         `json:"technicalDetails"`
	BestPractices    []string       `json:"bestPractices"`
}

// ToolAnalysis is the AI-tool deep dive.
type ToolAnalysis struct {
	Pricing       Pricing    `json:"pricing"`
	Advantages    []Point    `json:"advantages"`
	Disadvantages []Point    `json:"disadvantages"`
	HowItWorks    HowItWorks `json:"howItWorks"`
	Fallback      bool       `json:"fallback,omitempty"`
}

// Table is a titled grid.
type Table struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Tables groups the generated and derived tables.
type Tables struct {
	Comparison *Table `json:"comparison,omitempty"`
	Summary    *Table `json:"summary,omitempty"`
	Pricing    *Table `json:"pricing,omitempty"`
	ProsCons   *Table `json:"prosCons,omitempty"`
}

// generatedTables is the model output of the tables step.
type generatedTables struct {
	Comparison Table `json:"comparisonTable"`
	Summary    Table `json:"summaryTable"`
}

// Source is an external citation.
type Source struct {
	Text     string `json:"text"`
	URL      string `json:"url"`
	Position string `json:"position,omitempty"`
}

// Sources is the citations step result.
type Sources struct {
	Sources []Source `json:"sources"`
}

// ImagePrompt is one model-proposed image.
type ImagePrompt struct {
	Prompt string `json:"prompt"`
	Alt    string `json:"alt"`
}

// imagePrompts is the model output of the image prompt call.
type imagePrompts struct {
	Prompts []ImagePrompt `json:"prompts"`
}

// ImageSet is the images step result. It may hold fewer images than requested.
type ImageSet struct {
	Images    []imagegen.Image `json:"images"`
	Requested int              `json:"requested"`
}

// Hero returns the first hero image, if any.
func (s ImageSet) Hero() *imagegen.Image {
	for i := range s.Images {
		if s.Images[i].Position == imagegen.PositionHero {
			return &s.Images[i]
		}
	}
	return nil
}

// Metadata holds SEO and social tags.
type Metadata struct {
	MetaTitle          string   `json:"metaTitle"`
	MetaDescription    string   `json:"metaDescription"`
	MetaKeywords       []string `json:"metaKeywords"`
	OGTitle            string   `json:"ogTitle"`
	OGDescription      string   `json:"ogDescription"`
	TwitterTitle       string   `json:"twitterTitle"`
	TwitterDescription string   `json:"twitterDescription"`
	RobotsMeta         string   `json:"robotsMeta"`
	Slug               string   `json:"slug"`
}

// Stats summarizes the generated article.
type Stats struct {
	WordCount        int `json:"wordCount"`
	H2Count          int `json:"h2Count"`
	H3Count          int `json:"h3Count"`
	SemanticKeywords int `json:"semanticKeywordsUsed"`
	ExternalSources  int `json:"externalSources"`
	Images           int `json:"images"`
	WrittenH2        int `json:"writtenH2"`
	WrittenH3        int `json:"writtenH3"`
	Links            int `json:"links"`
	Tables           int `json:"tables"`
}

// Article is the Complete event payload.
type Article struct {
	Title            string           `json:"title"`
	Category         string           `json:"category"`
	Subcategory      string           `json:"subcategory,omitempty"`
	Content          string           `json:"content"`
	Excerpt          string           `json:"excerpt"`
	Slug             string           `json:"slug"`
	CanonicalURL     string           `json:"canonicalUrl,omitempty"`
	Metadata         Metadata         `json:"metadata"`
	FeaturedImage    string           `json:"featuredImage,omitempty"`
	Author           string           `json:"author"`
	AuthorExperience string           `json:"authorExperience,omitempty"`
	FAQ              []FAQ            `json:"faq,omitempty"`
	Tables           Tables           `json:"tables"`
	Sources          []Source         `json:"externalSources"`
	Images           []imagegen.Image `json:"images"`
	AffiliateLink    string           `json:"affiliateLink,omitempty"`
	Tool             *ToolAnalysis    `json:"aiToolData,omitempty"`
	Stats            Stats            `json:"stats"`
}
