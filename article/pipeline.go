// ABOUTME: Pipeline wires the article collaborators into the eleven ordered pipeline steps.
// ABOUTME: RunnerConfig returns a ready pipeline.RunnerConfig with Finish and FriendlyError attached.
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389-research/pressroom/imagegen"
	"github.com/2389-research/pressroom/keypool"
	"github.com/2389-research/pressroom/llm"
	"github.com/2389-research/pressroom/news"
	"github.com/2389-research/pressroom/pipeline"
	"github.com/2389-research/pressroom/serp"
)

// Step IDs, in execution order.
const (
	StepResearch  = "research"
	StepHeadings  = "headings"
	StepSemantic  = "semantic"
	StepMerge     = "merge"
	StepStructure = "structure"
	StepTool      = "tool"
	StepContent   = "content"
	StepTables    = "tables"
	StepSources   = "sources"
	StepImages    = "images"
	StepMetadata  = "metadata"
)

const (
	// DefaultStepPause is the pause between steps.
	DefaultStepPause = 2 * time.Second
	// DefaultImageCount is the number of images requested per article.
	DefaultImageCount = 3
	// DefaultAuthor is the byline used when none is configured.
	DefaultAuthor = "Pressroom Editorial Team"

	contentRetryRounds = 5
	minRawContent      = 100
	minCleanContent    = 500
	systemPrompt       = "You are an expert SEO researcher and writer. Follow the requested output format exactly."
)

var (
	// ErrEmptyContent means the writer returned nothing usable.
	ErrEmptyContent = errors.New("model returned an empty or very short response")
	// ErrShortContent means the article was too short once fences were stripped.
	ErrShortContent = errors.New("article content too short or empty")
)

// NewsSearcher fetches a news digest with a search credential.
type NewsSearcher interface {
	Search(ctx context.Context, apiKey, keyword string) (*news.Digest, error)
}

// SERPAnalyzer reports what ranks for a keyword.
type SERPAnalyzer interface {
	Analyze(ctx context.Context, keyword string) (*serp.Analysis, error)
}

// ImageGenerator turns a prompt into a stored image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, alt string, pos imagegen.Position, seed int) (*imagegen.Image, error)
}

var (
	_ NewsSearcher   = (*news.Client)(nil)
	_ SERPAnalyzer   = (*serp.Client)(nil)
	_ ImageGenerator = (*imagegen.Client)(nil)
)

// Config holds the article pipeline's collaborators and tunables.
type Config struct {
	Generator       llm.Generator
	News            NewsSearcher
	SERP            SERPAnalyzer   // nil uses the keyword fallback analysis
	Images          ImageGenerator // nil skips image generation
	TextTemperature float64
	JSONTemperature float64
	ImageCount      int
	SiteURL         string
	Author          string
	Now             func() time.Time
	Backoff         pipeline.Backoff // zero uses pipeline.DefaultBackoff
	Logger          *slog.Logger
}

// Pipeline builds the article steps.
type Pipeline struct {
	cfg     Config
	prompts *Prompts
	log     *slog.Logger
}

// New validates cfg and parses the prompt templates.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Generator == nil {
		return nil, errors.New("article pipeline needs a generator")
	}
	if cfg.News == nil {
		return nil, errors.New("article pipeline needs a news searcher")
	}
	if cfg.TextTemperature == 0 {
		cfg.TextTemperature = 0.7
	}
	if cfg.JSONTemperature == 0 {
		cfg.JSONTemperature = 0.5
	}
	if cfg.ImageCount < 0 {
		cfg.ImageCount = 0
	}
	if cfg.Author == "" {
		cfg.Author = DefaultAuthor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Backoff == (pipeline.Backoff{}) {
		cfg.Backoff = pipeline.DefaultBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	prompts, err := NewPrompts()
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, prompts: prompts, log: cfg.Logger.With("component", "article")}, nil
}

// RunnerConfig returns a runner configuration for the article steps. The
// caller may adjust pause, executor and observers before pipeline.NewRunner.
func (p *Pipeline) RunnerConfig(pools pipeline.Pools) pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		Steps:        p.Steps(),
		Pools:        pools,
		Finish:       p.Finish,
		ErrorMessage: FriendlyError,
		StepPause:    DefaultStepPause,
		Logger:       p.cfg.Logger,
		Executor: pipeline.NewExecutor(
			pipeline.WithBackoff(p.cfg.Backoff),
			pipeline.WithExecutorLogger(p.cfg.Logger),
		),
	}
}

// Steps returns the ordered step list.
func (p *Pipeline) Steps() []pipeline.Step {
	gen := keypool.ProviderGeneration
	return []pipeline.Step{
		{ID: StepResearch, Name: "Researching latest news and search results", Provider: keypool.ProviderSearch, Work: p.research},
		{ID: StepHeadings, Name: "Generating H2 and H3 headings", Provider: gen, Work: p.headings},
		{ID: StepSemantic, Name: "Extracting semantic keywords", Provider: gen, Work: p.semantic},
		{ID: StepMerge, Name: "Merging keywords into headings", Provider: gen, Work: p.merge},
		{ID: StepStructure, Name: "Building article structure", Provider: gen, Work: p.structure, Fallback: p.structureFallback},
		{
			ID: StepTool, Name: "Analyzing tool pricing, pros and cons", Provider: gen,
			When:     pipeline.MustCondition(fmt.Sprintf("input.category == %q", CategoryAITools)),
			Work:     p.tool,
			Fallback: p.toolFallback,
		},
		{ID: StepContent, Name: "Writing article content", Provider: gen, MaxRetryRounds: contentRetryRounds, Work: p.content},
		{ID: StepTables, Name: "Creating tables", Provider: gen, Work: p.tables},
		{ID: StepSources, Name: "Adding external sources", Provider: gen, Work: p.sources},
		{ID: StepImages, Name: "Generating images", Provider: gen, Work: p.images, Fallback: p.imagesFallback},
		{ID: StepMetadata, Name: "Generating meta tags and slug", Provider: gen, Work: p.metadata},
	}
}

// view assembles the prompt data from everything produced so far.
func (p *Pipeline) view(in *pipeline.Outputs) *promptData {
	req := requestFrom(in.Input())
	d := newPromptData(req.Keyword, p.cfg.Now()).
		withResearch(pipeline.OutputOr[*Research](in, StepResearch, nil))
	d.AffiliateLink = req.AffiliateLink
	d.ImageCount = p.cfg.ImageCount
	d.Headings = pipeline.OutputOr[*Headings](in, StepHeadings, nil)
	if sk := pipeline.OutputOr[*SemanticKeywords](in, StepSemantic, nil); sk != nil {
		d.Semantic = sk.Keywords
	}
	d.Merged = pipeline.OutputOr[*Headings](in, StepMerge, nil)
	d.Structure = pipeline.OutputOr[*Structure](in, StepStructure, nil)
	if d.Structure != nil {
		d.Introduction = d.Structure.Introduction
	}
	if req.IsAITool() {
		d.Tool = pipeline.OutputOr[*ToolAnalysis](in, StepTool, nil)
	}
	content := pipeline.OutputOr(in, StepContent, "")
	d.Excerpt = truncateRunes(content, excerptChars)
	d.Title = titleOf(content, req.Keyword)
	return d
}

func (p *Pipeline) generate(ctx context.Context, cred *keypool.Credential, prompt string, jsonMode bool) (string, error) {
	temp := p.cfg.TextTemperature
	if jsonMode {
		temp = p.cfg.JSONTemperature
	}
	return p.cfg.Generator.Generate(ctx, cred.Value(), llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		JSON:        jsonMode,
		Temperature: llm.Float(temp),
	})
}

// generateJSON renders the named prompt, calls the model in JSON mode, and
// decodes the validated reply into out.
func (p *Pipeline) generateJSON(ctx context.Context, cred *keypool.Credential, name string, d *promptData, schema *llm.Schema, out any) error {
	prompt, err := p.prompts.Render(name, d)
	if err != nil {
		return err
	}
	text, err := p.generate(ctx, cred, prompt, true)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(text, schema, out)
}

func (p *Pipeline) research(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	kw := requestFrom(in.Input()).Keyword
	digest, err := p.cfg.News.Search(ctx, cred.Value(), kw)
	if err != nil {
		return nil, err
	}
	var analysis *serp.Analysis
	if p.cfg.SERP == nil {
		analysis = serp.Fallback(kw)
	} else {
		var serr error
		analysis, serr = p.cfg.SERP.Analyze(ctx, kw)
		if serr != nil {
			p.log.Warn("serp analysis degraded", "keyword", kw, "error", serr)
		}
		if analysis == nil {
			analysis = serp.Fallback(kw)
		}
	}
	p.log.Info("research complete", "articles", len(digest.Articles), "trends", len(digest.Trends),
		"results", len(analysis.TopResults), "serp_fallback", analysis.Fallback)
	return &Research{News: digest, SERP: analysis}, nil
}

func (p *Pipeline) headings(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	d := p.view(in)
	var h Headings
	if err := p.generateJSON(ctx, cred, "headings", d, headingsSchema, &h); err != nil {
		return nil, err
	}
	p.checkShape("headings", h)
	cov := coverage(h, d.PAA)
	if cov.Total > 0 {
		p.log.Info("search intent coverage", "covered", cov.Covered, "total", cov.Total, "uncovered", len(cov.Uncovered))
		if cov.Ratio() < minCoverage {
			p.log.Warn("headings leave reader questions unanswered", "coverage", fmt.Sprintf("%.0f%%", cov.Ratio()*100))
		}
	}
	return &h, nil
}

func (p *Pipeline) semantic(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	var sk SemanticKeywords
	if err := p.generateJSON(ctx, cred, "semantic", p.view(in), semanticSchema, &sk); err != nil {
		return nil, err
	}
	sk.Keywords = dedupe(sk.Keywords)
	p.log.Info("semantic keywords extracted", "count", len(sk.Keywords))
	return &sk, nil
}

func (p *Pipeline) merge(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	d := p.view(in)
	if d.Headings == nil {
		return nil, fmt.Errorf("merge: %w", errMissingOutput(StepHeadings))
	}
	var h Headings
	if err := p.generateJSON(ctx, cred, "merge", d, headingsSchema, &h); err != nil {
		return nil, err
	}
	if strings.TrimSpace(h.H1) == "" {
		h.H1 = d.Headings.H1
	}
	p.checkShape("merged headings", h)
	return &h, nil
}

func (p *Pipeline) structure(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	d := p.view(in)
	if d.Merged == nil {
		return nil, fmt.Errorf("structure: %w", errMissingOutput(StepMerge))
	}
	var s Structure
	if err := p.generateJSON(ctx, cred, "structure", d, structureSchema, &s); err != nil {
		return nil, err
	}
	if fixed := normalizeStructure(&s, d.Keyword, d.Merged.H1); fixed > 0 {
		p.log.Warn("structure sections normalized", "sections", fixed)
	}
	return &s, nil
}

func (p *Pipeline) structureFallback(in *pipeline.Outputs, cause error) (any, error) {
	d := p.view(in)
	if d.Merged == nil {
		return nil, cause
	}
	return fallbackStructure(d.Keyword, d.Merged), nil
}

func (p *Pipeline) tool(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	var t ToolAnalysis
	if err := p.generateJSON(ctx, cred, "tool", p.view(in), toolSchema, &t); err != nil {
		return nil, err
	}
	p.log.Info("tool analysis complete", "tiers", len(t.Pricing.Tiers), "advantages", len(t.Advantages),
		"disadvantages", len(t.Disadvantages), "workflow_steps", len(t.HowItWorks.Steps))
	return &t, nil
}

func (p *Pipeline) toolFallback(in *pipeline.Outputs, _ error) (any, error) {
	return fallbackTool(requestFrom(in.Input()).Keyword, p.cfg.Now()), nil
}

func (p *Pipeline) content(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	prompt, err := p.prompts.Render("content", p.view(in))
	if err != nil {
		return nil, err
	}
	raw, err := p.generate(ctx, cred, prompt, false)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(raw)) < minRawContent {
		return nil, ErrEmptyContent
	}
	cleaned := stripFences(raw)
	if len(cleaned) < minCleanContent {
		return nil, ErrShortContent
	}
	p.log.Info("article written", "chars", len(cleaned), "words", len(strings.Fields(cleaned)))
	return cleaned, nil
}

func (p *Pipeline) tables(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	d := p.view(in)
	var g generatedTables
	if err := p.generateJSON(ctx, cred, "tables", d, tablesSchema, &g); err != nil {
		return nil, err
	}
	t := &Tables{Comparison: &g.Comparison, Summary: &g.Summary}
	if d.Tool != nil {
		t.Pricing = pricingTable(d.Keyword, d.Tool)
		t.ProsCons = prosConsTable(d.Keyword, d.Tool)
	}
	return t, nil
}

func (p *Pipeline) sources(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	var s Sources
	if err := p.generateJSON(ctx, cred, "sources", p.view(in), sourcesSchema, &s); err != nil {
		return nil, err
	}
	p.log.Info("external sources selected", "count", len(s.Sources))
	return &s, nil
}

func (p *Pipeline) images(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	set := &ImageSet{Requested: p.cfg.ImageCount}
	if p.cfg.Images == nil || p.cfg.ImageCount == 0 {
		return set, nil
	}
	d := p.view(in)

	var proposed imagePrompts
	if err := p.generateJSON(ctx, cred, "images", d, imagesSchema, &proposed); err != nil {
		var se *llm.SchemaError
		if !errors.Is(err, llm.ErrInvalidJSON) && !errors.As(err, &se) {
			return nil, err
		}
		p.log.Warn("image prompts unusable, using stock prompts", "error", err)
		proposed.Prompts = nil
	}

	seed := int(p.cfg.Now().UnixNano() % 1_000_000)
	for i := 0; i < p.cfg.ImageCount; i++ {
		pos := imagegen.PositionInline
		if i == 0 {
			pos = imagegen.PositionHero
		}
		prompt, alt := imagegen.CannedPrompt(d.Title, pos, i), defaultAlt(d.Title, i)
		if i < len(proposed.Prompts) {
			prompt = proposed.Prompts[i].Prompt
			if a := strings.TrimSpace(proposed.Prompts[i].Alt); a != "" {
				alt = a
			}
		}
		img, err := p.cfg.Images.Generate(ctx, prompt, alt, pos, seed+i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("image generation failed", "index", i, "position", string(pos), "error", err)
			continue
		}
		set.Images = append(set.Images, *img)
	}
	p.log.Info("images generated", "count", len(set.Images), "requested", set.Requested)
	return set, nil
}

func (p *Pipeline) imagesFallback(_ *pipeline.Outputs, _ error) (any, error) {
	return &ImageSet{Requested: p.cfg.ImageCount}, nil
}

func (p *Pipeline) metadata(ctx context.Context, in *pipeline.Outputs, cred *keypool.Credential) (any, error) {
	d := p.view(in)
	var m Metadata
	if err := p.generateJSON(ctx, cred, "metadata", d, metadataSchema, &m); err != nil {
		return nil, err
	}
	m.Slug = Slugify(m.Slug)
	if m.Slug == "" {
		m.Slug = Slugify(d.Keyword)
	}
	if m.OGTitle == "" {
		m.OGTitle = m.MetaTitle
	}
	if m.OGDescription == "" {
		m.OGDescription = m.MetaDescription
	}
	if m.TwitterTitle == "" {
		m.TwitterTitle = m.OGTitle
	}
	if m.TwitterDescription == "" {
		m.TwitterDescription = m.OGDescription
	}
	if m.RobotsMeta == "" {
		m.RobotsMeta = "index, follow"
	}
	return &m, nil
}

func (p *Pipeline) checkShape(what string, h Headings) {
	uneven := 0
	for _, hd := range h.Headings {
		if len(hd.H3) != h3PerH2 {
			uneven++
		}
	}
	if len(h.Headings) < h2Target || uneven > 0 {
		p.log.Warn("outline shape differs from target", "outline", what,
			"h2", len(h.Headings), "h3", h.H3Count(), "uneven_sections", uneven)
	}
}

func errMissingOutput(step string) error {
	return fmt.Errorf("no output from step %q", step)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
