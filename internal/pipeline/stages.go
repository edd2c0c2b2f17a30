package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/backlink"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
	"github.com/JakeFAU/content-orchestrator/internal/prompt"
	"github.com/JakeFAU/content-orchestrator/internal/textclean"
)

// Stage progress within one topic, scaled across topics.
var stageProgress = map[string]int{
	StageContextFetch:      5,
	StageReferenceScrape:   10,
	StageContentAnalysis:   15,
	StageMultiStage:        25,
	StageArticleGeneration: 30,
	StageChunkCombination:  75,
	StageSEO:               80,
	StageHumanization:      85,
	StageMetaDescription:   90,
	StageFeaturedImage:     93,
	StageSave:              97,
}

// topicRun holds the state of one topic passing through the stages.
type topicRun struct {
	p      *Pipeline
	req    content.Request
	topic  content.Topic
	index  int
	total  int
	out    *Outcome
	logger *zap.Logger

	stage    string
	progress int
	ectx     content.EnhancedContext
	ref      *content.Reference
	research string
	refined  content.StageResults
}

func (r *topicRun) execute(ctx context.Context) (content.Article, error) {
	r.contextFetch(ctx)
	r.referenceScrape(ctx)
	r.contentAnalysis(ctx)
	mode := r.multiStage(ctx)
	r.out.Mode = mode.String()
	values := r.values(mode)

	chunks, err := r.generate(ctx, values)
	if err != nil {
		return content.Article{}, err
	}
	body, err := r.combine(chunks)
	if err != nil {
		return content.Article{}, err
	}
	body = r.rewrite(ctx, StageSEO, prompt.TemplateSEO, r.req.Settings.SEOOptimization, values, body,
		"Article kept without SEO optimization")
	body = r.rewrite(ctx, StageHumanization, prompt.TemplateHumanize, r.req.Settings.Humanize, values, body,
		"Article kept without the humanization pass")

	article := content.Article{
		TopicID:   r.topic.ID,
		Title:     r.topic.Title,
		Slug:      Slugify(r.topic.Title),
		Content:   body,
		Keywords:  r.topic.Keywords,
		WordCount: textclean.WordCount(body),
	}
	article.MetaDescription = r.metaDescription(ctx, values, body)
	article.FeaturedImage = r.featuredImage(ctx, article)

	id, err := r.save(ctx, article)
	if err != nil {
		return content.Article{}, err
	}
	article.PostID = id
	r.backlinks(ctx, article)
	return article, nil
}

func (r *topicRun) enter(ctx context.Context, stage string) {
	r.stage = stage
	pct := (r.index*100 + stageProgress[stage]) / r.total
	r.progress = pct
	r.p.report(ctx, r.req.ExecutionID, progress.Update{
		Status:   content.ExecutionProcessing,
		Stage:    stage,
		Progress: pct,
	})
}

func (r *topicRun) record(stage string, status StageStatus) {
	r.out.Results.set(stage, status)
	metrics.ObserveStage("article", stage, strings.ToLower(string(status)))
}

func (r *topicRun) warn(stage, message string, err error, impact string) {
	w := Warning{Stage: stage, Message: message, Impact: impact}
	if err != nil {
		w.Error = err.Error()
	}
	r.out.Warnings = append(r.out.Warnings, w)
	r.record(stage, StatusFailed)
	r.logger.Warn("stage degraded", zap.String("stage", stage), zap.String("message", message), zap.Error(err))
}

func (r *topicRun) contextFetch(ctx context.Context) {
	r.enter(ctx, StageContextFetch)
	store := r.p.deps.Context
	var errs []error
	if r.req.BrandID != "" {
		brand, err := store.GetBrand(ctx, r.req.BrandID)
		if err != nil {
			errs = append(errs, fmt.Errorf("brand %s: %w", r.req.BrandID, err))
		}
		r.ectx.Brand = brand
	}
	if id := r.topic.EffectiveCampaignID(); id != "" {
		campaign, err := store.GetCampaign(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("campaign %s: %w", id, err))
		}
		r.ectx.Campaign = campaign
	}
	if err := errors.Join(errs...); err != nil {
		r.warn(StageContextFetch, "Brand or campaign context could not be loaded", err,
			"Article written without brand voice and campaign targeting")
		return
	}
	if r.ectx.Empty() {
		r.record(StageContextFetch, StatusSkipped)
		return
	}
	r.record(StageContextFetch, StatusSuccess)
}

func (r *topicRun) referenceScrape(ctx context.Context) {
	url := firstSource(r.topic.Sources)
	if url == "" || r.p.deps.References == nil {
		r.record(StageReferenceScrape, StatusSkipped)
		return
	}
	r.enter(ctx, StageReferenceScrape)
	ref, err := r.p.deps.References.Reference(ctx, url)
	if err != nil {
		r.warn(StageReferenceScrape, "Reference page could not be scraped", err,
			"Article written without insights from the reference source")
		return
	}
	r.ref = &ref
	r.record(StageReferenceScrape, StatusSuccess)
}

func (r *topicRun) contentAnalysis(ctx context.Context) {
	if r.ref == nil || strings.TrimSpace(r.ref.Text) == "" {
		r.record(StageContentAnalysis, StatusSkipped)
		return
	}
	r.enter(ctx, StageContentAnalysis)
	values := r.base().With("REFERENCE", r.ref.Text)
	text, err := r.completeTemplate(ctx, StageContentAnalysis, prompt.TemplateAnalysis, values)
	if err != nil {
		r.warn(StageContentAnalysis, "Reference analysis failed", err,
			"Article written without research notes from the reference source")
		return
	}
	r.research = text
	r.record(StageContentAnalysis, StatusSuccess)
}

// multiStage runs strategy, blueprint and voice. Any failure switches the
// run to SingleStageFallback.
func (r *topicRun) multiStage(ctx context.Context) RefinementMode {
	if !r.req.Settings.MultiStage {
		r.record(StageMultiStage, StatusSkipped)
		return SingleStageFallback
	}
	r.enter(ctx, StageMultiStage)
	campaignID := r.topic.EffectiveCampaignID()
	if campaignID != "" {
		cached, err := r.p.deps.Executions.LatestStageResults(ctx, campaignID)
		switch {
		case err != nil:
			r.logger.Warn("stage results cache lookup failed", zap.String("campaign_id", campaignID), zap.Error(err))
		case cached != nil && cached.Complete():
			r.refined = *cached
			r.record(StageMultiStage, StatusSuccess)
			r.logger.Info("reusing cached stage results", zap.String("campaign_id", campaignID))
			return MultiStageActive
		}
	}

	values := r.base()
	steps := []struct {
		name     string
		template string
		key      string
		dest     *string
	}{
		{"strategy", prompt.TemplateStrategy, "STRATEGY", &r.refined.Strategy},
		{"blueprint", prompt.TemplateBlueprint, "BLUEPRINT", &r.refined.Blueprint},
		{"voice", prompt.TemplateVoice, "VOICE_PROFILE", &r.refined.VoiceProfile},
	}
	for _, step := range steps {
		text, err := r.completeTemplate(ctx, StageMultiStage+"."+step.name, step.template, values)
		if err != nil {
			r.refined = content.StageResults{}
			r.warn(StageMultiStage, fmt.Sprintf("Multi-stage %s step failed", step.name), err,
				"Article written in single-stage mode without strategy, blueprint or voice profile")
			return SingleStageFallback
		}
		*step.dest = text
		values = values.With(step.key, text)
	}

	results := r.refined
	r.p.report(ctx, r.req.ExecutionID, progress.Update{
		Status:       content.ExecutionProcessing,
		Stage:        StageMultiStage,
		Progress:     (r.index*100 + stageProgress[StageMultiStage]) / r.total,
		StageResults: &results,
		CampaignID:   campaignID,
	})
	r.record(StageMultiStage, StatusSuccess)
	return MultiStageActive
}

// values builds the prompt values later stages share. In fallback mode the
// refinement keys are left out so their template blocks disappear.
func (r *topicRun) values(mode RefinementMode) prompt.Values {
	v := r.base()
	if mode == MultiStageActive {
		v = v.WithRefinement(r.refined)
	}
	return v
}

func (r *topicRun) base() prompt.Values {
	v := prompt.BaseValues(r.req, r.topic, r.ectx)
	if r.research != "" {
		v.Set("RESEARCH", r.research)
	}
	return v
}

func (r *topicRun) generate(ctx context.Context, values prompt.Values) ([]string, error) {
	r.enter(ctx, StageArticleGeneration)
	plan := prompt.PlanChunks(r.req.WordCount)
	chunks := make([]string, 0, plan.Chunks)
	var headings []string
	previous := ""
	for i := 0; i < plan.Chunks; i++ {
		rendered, err := r.p.deps.Prompts.ChunkPrompt(prompt.ChunkContext{
			Base:             values,
			Index:            i,
			Total:            plan.Chunks,
			WordsPerChunk:    plan.WordsPerChunk,
			Sections:         prompt.PartitionOutline(r.topic.Outline, plan.Chunks, i),
			PreviousHeadings: headings,
			PreviousText:     previous,
			Custom:           r.req.CustomPrompt,
		})
		if err != nil {
			r.record(StageArticleGeneration, StatusFailed)
			return nil, apperr.Wrap(apperr.CodeInternal, StageArticleGeneration, err)
		}
		text, err := r.complete(ctx, StageArticleGeneration, rendered)
		if err != nil {
			r.record(StageArticleGeneration, StatusFailed)
			return nil, fmt.Errorf("chunk %d: %w", i+1, err)
		}
		if text == "" {
			r.record(StageArticleGeneration, StatusFailed)
			return nil, apperr.Newf(apperr.CodeExecutionFailed, StageArticleGeneration, "Chunk %d returned empty content", i+1)
		}
		chunks = append(chunks, text)
		headings = append(headings, textclean.ExtractHeadings(text)...)
		previous = text
		r.logger.Info("chunk generated",
			zap.Int("chunk", i+1),
			zap.Int("total", plan.Chunks),
			zap.Int("bytes", len(text)))
	}
	r.record(StageArticleGeneration, StatusSuccess)
	return chunks, nil
}

func (r *topicRun) combine(chunks []string) (string, error) {
	r.stage = StageChunkCombination
	body, err := textclean.Combine(chunks, r.p.cfg.MinArticleChars)
	if err != nil {
		r.record(StageChunkCombination, StatusFailed)
		return "", err
	}
	r.record(StageChunkCombination, StatusSuccess)
	return body, nil
}

// rewrite runs an optional whole-article pass. The original body is kept
// when the pass fails or returns something too short.
func (r *topicRun) rewrite(ctx context.Context, stage, template string, enabled bool, values prompt.Values, body, impact string) string {
	if !enabled {
		r.record(stage, StatusSkipped)
		return body
	}
	r.enter(ctx, stage)
	rendered, err := r.p.deps.Prompts.ArticlePrompt(template, values, body, 0)
	if err != nil {
		r.warn(stage, "Prompt could not be rendered", err, impact)
		return body
	}
	text, err := r.complete(ctx, stage, rendered)
	if err == nil && text == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		r.warn(stage, "Rewrite pass failed", err, impact)
		return body
	}
	cleaned := textclean.Clean(stripFences(text))
	if err := textclean.CheckLength(cleaned, r.p.cfg.MinArticleChars); err != nil {
		r.warn(stage, "Rewrite pass returned too little content", err, impact)
		return body
	}
	r.record(stage, StatusSuccess)
	return cleaned
}

func (r *topicRun) metaDescription(ctx context.Context, values prompt.Values, body string) string {
	r.enter(ctx, StageMetaDescription)
	limit := r.p.cfg.MetaMaxChars
	fallback := FallbackMeta(r.topic, limit)
	rendered, err := r.p.deps.Prompts.ArticlePrompt(prompt.TemplateMeta, values, body, limit)
	if err != nil {
		r.warn(StageMetaDescription, "Meta description prompt could not be rendered", err, "Meta description taken from the topic description")
		return fallback
	}
	text, err := r.complete(ctx, StageMetaDescription, rendered)
	if err == nil {
		text = cleanMeta(text)
		if text == "" {
			err = errors.New("empty response")
		}
	}
	if err != nil {
		r.warn(StageMetaDescription, "Meta description generation failed", err, "Meta description taken from the topic description")
		return fallback
	}
	r.record(StageMetaDescription, StatusSuccess)
	return TruncateMeta(text, limit)
}

func (r *topicRun) featuredImage(ctx context.Context, article content.Article) *content.FeaturedImage {
	if !r.req.FeaturedImage || r.p.deps.Images == nil {
		r.record(StageFeaturedImage, StatusSkipped)
		return nil
	}
	r.enter(ctx, StageFeaturedImage)
	img, err := r.p.deps.Images.Generate(ctx, content.ImageRequest{
		Title:    article.Title,
		Slug:     article.Slug,
		Keywords: article.Keywords,
		Excerpt:  textclean.PlainText(article.Content),
		BrandID:  r.req.BrandID,
	})
	if err != nil {
		r.warn(StageFeaturedImage, "Featured image generation failed", err, "Article saved without a featured image")
		return nil
	}
	r.record(StageFeaturedImage, StatusSuccess)
	return &img
}

func (r *topicRun) save(ctx context.Context, article content.Article) (string, error) {
	r.enter(ctx, StageSave)
	store := r.p.deps.Articles
	post := content.BlogPost{
		Title:           article.Title,
		Slug:            article.Slug,
		Content:         article.Content,
		MetaDescription: article.MetaDescription,
		Keywords:        article.Keywords,
		Status:          r.p.cfg.PostStatus,
		BrandID:         r.req.BrandID,
		UserID:          r.req.UserID,
		TopicID:         r.topic.ID,
		WordCount:       article.WordCount,
	}
	if article.FeaturedImage != nil {
		post.FeaturedImageURL = article.FeaturedImage.URL
		post.FeaturedImageAlt = article.FeaturedImage.Alt
	}

	placeholder, found, err := store.FindPlaceholder(ctx, article.Title, r.req.BrandID)
	if err != nil {
		r.record(StageSave, StatusFailed)
		return "", apperr.Wrap(apperr.CodeDatabase, StageSave, err)
	}
	var id string
	if found {
		post.ID = placeholder
		id, err = store.UpdatePost(ctx, placeholder, post)
	} else {
		id, err = store.InsertPost(ctx, post)
	}
	switch {
	case errors.Is(err, content.ErrNoRowReturned):
		r.record(StageSave, StatusFailed)
		return "", apperr.New(apperr.CodeExecutionFailed, StageSave, "Article save returned no row")
	case err != nil:
		r.record(StageSave, StatusFailed)
		return "", apperr.Wrap(apperr.CodeDatabase, StageSave, err)
	}
	r.record(StageSave, StatusSuccess)
	r.logger.Info("article saved", zap.String("post_id", id), zap.Bool("placeholder", found))

	if r.topic.ID != "" {
		if err := store.MarkTopicCompleted(ctx, r.topic.ID); err != nil {
			r.logger.Warn("topic completion not recorded", zap.String("topic_id", r.topic.ID), zap.Error(err))
			r.out.Warnings = append(r.out.Warnings, Warning{
				Stage:   StageSave,
				Message: "Topic could not be marked completed",
				Error:   err.Error(),
				Impact:  "The topic may be offered for generation again",
			})
		}
	}
	return id, nil
}

func (r *topicRun) backlinks(ctx context.Context, article content.Article) {
	if r.p.deps.Backlinks == nil {
		r.record(StageBacklinks, StatusSkipped)
		return
	}
	task := r.p.deps.Backlinks.Dispatch(ctx, backlink.Job{
		PostID:      article.PostID,
		BrandID:     r.req.BrandID,
		UserID:      r.req.UserID,
		ExecutionID: r.req.ExecutionID,
		Title:       article.Title,
		Slug:        article.Slug,
		Keywords:    article.Keywords,
	})
	r.p.track(task)
	r.record(StageBacklinks, StatusSuccess)
}

func (r *topicRun) completeTemplate(ctx context.Context, stage, template string, values prompt.Values) (string, error) {
	rendered, err := r.p.deps.Prompts.Render(template, values)
	if err != nil {
		return "", err
	}
	text, err := r.complete(ctx, stage, rendered)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

// complete calls the model and logs usage in the background. The returned
// text is trimmed and may be empty.
func (r *topicRun) complete(ctx context.Context, stage string, rendered prompt.Rendered) (string, error) {
	cfg := r.p.cfg
	completion, err := r.p.deps.Completer.Complete(ctx, content.CompletionRequest{
		Model:       cfg.Model,
		System:      rendered.System,
		Prompt:      rendered.Prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	model := completion.Model
	if model == "" {
		model = cfg.Model
	}
	metrics.ObserveTokens(model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	r.p.logUsage(ctx, content.UsageRecord{
		UserID:           r.req.UserID,
		ExecutionID:      r.req.ExecutionID,
		Stage:            stage,
		Model:            model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
		At:               time.Now().UTC(),
	})
	return strings.TrimSpace(completion.Text), nil
}

func firstSource(sources []string) string {
	for _, s := range sources {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
