package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

// continuityParagraphs is how much of the previous chunk is echoed forward.
const continuityParagraphs = 3

// BaseValues collects the request, topic and context keys shared by every
// stage prompt. Optional parts that are missing are left out so conditional
// blocks drop them.
func BaseValues(req content.Request, topic content.Topic, ectx content.EnhancedContext) Values {
	v := Values{}
	v.Set("TITLE", topic.Title)
	v.Set("DESCRIPTION", topic.Description)
	v.Set("PRIMARY_KEYWORD", topic.PrimaryKeyword())
	if len(topic.Keywords) > 1 {
		v.Set("KEYWORDS", strings.Join(topic.Keywords[1:], ", "))
	}
	v.Set("INTENT", topic.Intent)
	v.Set("OUTLINE", bulletList(topic.Outline))
	v.Set("INTERNAL_LINKS", strings.Join(topic.InternalLinks, ", "))

	v.Set("LANGUAGE", firstNonEmpty(req.Language, campaignLanguage(ectx), "English"))
	v.Set("TONE", firstNonEmpty(req.Tone, "professional"))
	if req.WordCount > 0 {
		v.Set("WORD_COUNT", strconv.Itoa(req.WordCount))
	}
	v.Set("WRITING_STYLE", req.Settings.WritingStyle)
	v.Set("READING_LEVEL", req.Settings.ReadingLevel)
	v.SetBool("INCLUDE_STATS", req.Settings.IncludeStats)
	v.SetBool("INCLUDE_INTRO", req.IncludeIntro)
	v.SetBool("INCLUDE_CONCLUSION", req.IncludeConclusion)
	v.SetBool("INCLUDE_FAQ", req.IncludeFAQ)

	if b := ectx.Brand; b != nil {
		v.Set("BRAND_NAME", b.Name)
		v.Set("WEBSITE", b.Website)
		v.Set("INDUSTRY", b.Industry)
		v.Set("BRAND_VOICE", b.Voice)
		v.Set("TARGET_AUDIENCE", b.TargetAudience)
		v.Set("SELLING_POINTS", strings.Join(b.SellingPoints, "; "))
	}
	if c := ectx.Campaign; c != nil {
		v.Set("TARGET_MARKET", c.TargetMarket)
		v.Set("COMPETITORS", strings.Join(c.Competitors, ", "))
		v.Set("CONTENT_PILLARS", strings.Join(c.ContentPillars, ", "))
		if _, ok := v["KEYWORDS"]; !ok {
			v.Set("KEYWORDS", strings.Join(c.OrganicKeywords, ", "))
		}
	}
	return v
}

// WithRefinement returns a copy of v carrying the strategy, blueprint and
// voice profile that are present in results.
func (v Values) WithRefinement(results content.StageResults) Values {
	out := v.Clone()
	out.Set("STRATEGY", results.Strategy)
	out.Set("BLUEPRINT", results.Blueprint)
	out.Set("VOICE_PROFILE", results.VoiceProfile)
	return out
}

// With returns a copy of v with key set to val.
func (v Values) With(key, val string) Values {
	out := v.Clone()
	out.Set(key, val)
	return out
}

// ChunkContext carries what a single chunk prompt needs beyond the base values.
type ChunkContext struct {
	Base             Values
	Index            int
	Total            int
	WordsPerChunk    int
	Sections         []string
	PreviousHeadings []string
	PreviousText     string
	// Custom replaces the catalog chunk body when non-empty. The formatting
	// and anti-repetition rules are always appended.
	Custom string
}

// ChunkPrompt renders the prompt for one chunk.
func (c *Catalog) ChunkPrompt(cc ChunkContext) (Rendered, error) {
	v := cc.Base.Clone()
	v.Set("CHUNK_NUMBER", strconv.Itoa(cc.Index+1))
	v.Set("TOTAL_CHUNKS", strconv.Itoa(cc.Total))
	if cc.WordsPerChunk > 0 {
		v.Set("TARGET_WORDS", strconv.Itoa(cc.WordsPerChunk))
	} else {
		v.Set("TARGET_WORDS", firstNonEmpty(v["WORD_COUNT"], "800"))
	}
	v.SetBool("IS_FIRST", cc.Index == 0)
	v.SetBool("IS_LAST", cc.Index == cc.Total-1)
	v.Set("SECTIONS", bulletList(cc.Sections))
	v.Set("PREVIOUS_HEADINGS", bulletList(cc.PreviousHeadings))
	v.Set("PREVIOUS_CONTEXT", LastParagraphs(cc.PreviousText, continuityParagraphs))

	base, err := c.Render(TemplateChunk, v)
	if err != nil {
		return Rendered{}, err
	}
	if strings.TrimSpace(cc.Custom) != "" {
		base.Prompt = tidy(Render(cc.Custom, v))
	}
	rules, err := c.Render(TemplateChunkRules, v)
	if err != nil {
		return Rendered{}, err
	}
	base.Prompt = base.Prompt + "\n\n" + rules.Prompt
	return base, nil
}

// ArticlePrompt renders a template that rewrites or summarises an article
// body (seo, humanize, meta).
func (c *Catalog) ArticlePrompt(name string, base Values, article string, metaMax int) (Rendered, error) {
	v := base.Clone()
	v.Set("ARTICLE", article)
	v.Set("EXCERPT", excerpt(article, 600))
	if metaMax > 0 {
		v.Set("META_MAX", strconv.Itoa(metaMax))
	}
	return c.Render(name, v)
}

// ImagePrompt renders the featured image prompt.
func (c *Catalog) ImagePrompt(req content.ImageRequest) (string, error) {
	v := Values{}
	v.Set("TITLE", req.Title)
	v.Set("KEYWORDS", strings.Join(req.Keywords, ", "))
	v.Set("EXCERPT", excerpt(req.Excerpt, 300))
	r, err := c.Render(TemplateImage, v)
	if err != nil {
		return "", err
	}
	return r.Prompt, nil
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(stripTags(s)), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func campaignLanguage(ectx content.EnhancedContext) string {
	if ectx.Campaign == nil {
		return ""
	}
	return ectx.Campaign.Language
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
