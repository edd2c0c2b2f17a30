package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

// ContentStore implements the article workflow's persistence ports over the
// brands, seo_campaigns, workflow_executions, blog_posts, selected_topics and
// ai_usage_logs tables.
type ContentStore struct {
	db  DB
	now func() time.Time
}

var (
	_ content.ContextStore   = (*ContentStore)(nil)
	_ content.ExecutionStore = (*ContentStore)(nil)
	_ content.ArticleStore   = (*ContentStore)(nil)
	_ content.UsageLogger    = (*ContentStore)(nil)
)

// NewContentStore wraps a pool or pgxmock pool.
func NewContentStore(db DB) *ContentStore {
	return &ContentStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetBrand returns nil without error when the brand does not exist.
func (s *ContentStore) GetBrand(ctx context.Context, brandID string) (*content.BrandInfo, error) {
	const op = "get brand"
	query, args, err := build(op, psql.
		Select("id", "name", "website", "industry", "brand_voice", "target_audience", "unique_selling_points").
		From("brands").
		Where(sq.Eq{"id": brandID}))
	if err != nil {
		return nil, err
	}
	var b content.BrandInfo
	var website, industry, voice, audience *string
	err = s.db.QueryRow(ctx, query, args...).Scan(&b.ID, &b.Name, &website, &industry, &voice, &audience, &b.SellingPoints)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(op, err)
	}
	b.Website, b.Industry, b.Voice, b.TargetAudience = deref(website), deref(industry), deref(voice), deref(audience)
	return &b, nil
}

// GetCampaign returns nil without error when the campaign does not exist.
func (s *ContentStore) GetCampaign(ctx context.Context, campaignID string) (*content.CampaignInfo, error) {
	const op = "get campaign"
	query, args, err := build(op, psql.
		Select("id", "name", "target_market", "language", "organic_keywords", "competitors", "content_pillars").
		From("seo_campaigns").
		Where(sq.Eq{"id": campaignID}))
	if err != nil {
		return nil, err
	}
	var c content.CampaignInfo
	var market, lang *string
	err = s.db.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Name, &market, &lang, &c.OrganicKeywords, &c.Competitors, &c.ContentPillars)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(op, err)
	}
	c.TargetMarket, c.Language = deref(market), deref(lang)
	return &c, nil
}

// SaveExecution upserts an execution row. Result, error, stage results and
// campaign keep their stored values when the update leaves them unset.
func (s *ContentStore) SaveExecution(ctx context.Context, u content.ExecutionUpdate) error {
	const op = "save execution"
	if u.ID == "" {
		return fmt.Errorf("%s: execution id is required", op)
	}
	at := u.At
	if at.IsZero() {
		at = s.now()
	}
	var result, stage any
	if len(u.Result) > 0 {
		result = []byte(u.Result)
	}
	if u.StageResults != nil {
		raw, err := json.Marshal(u.StageResults)
		if err != nil {
			return fmt.Errorf("%s: marshal stage results: %w", op, err)
		}
		stage = raw
	}
	var errMsg any
	if u.Error != nil {
		errMsg = *u.Error
	}
	query, args, err := build(op, psql.
		Insert("workflow_executions").
		Columns("id", "status", "current_stage", "progress", "result", "error", "stage_results", "campaign_id", "updated_at").
		Values(u.ID, string(u.Status), u.CurrentStage, u.Progress, result, errMsg, stage, nullable(u.CampaignID), at).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	current_stage = EXCLUDED.current_stage,
	progress = EXCLUDED.progress,
	result = COALESCE(EXCLUDED.result, workflow_executions.result),
	error = COALESCE(EXCLUDED.error, workflow_executions.error),
	stage_results = COALESCE(EXCLUDED.stage_results, workflow_executions.stage_results),
	campaign_id = COALESCE(EXCLUDED.campaign_id, workflow_executions.campaign_id),
	updated_at = EXCLUDED.updated_at`))
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return dbError(op, err)
	}
	return nil
}

// GetExecution reads one execution row.
func (s *ContentStore) GetExecution(ctx context.Context, id string) (content.Execution, error) {
	const op = "get execution"
	query, args, err := build(op, psql.
		Select("id", "status", "current_stage", "progress", "result", "error", "stage_results", "campaign_id", "updated_at").
		From("workflow_executions").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return content.Execution{}, err
	}
	var (
		exec              content.Execution
		status            string
		stageName, campID *string
		result, stage     []byte
	)
	err = s.db.QueryRow(ctx, query, args...).Scan(
		&exec.ID, &status, &stageName, &exec.Progress, &result, &exec.Error, &stage, &campID, &exec.UpdatedAt,
	)
	if isNoRows(err) {
		return content.Execution{}, content.ErrNotFound
	}
	if err != nil {
		return content.Execution{}, dbError(op, err)
	}
	exec.Status = content.ExecutionStatus(status)
	exec.CurrentStage = deref(stageName)
	exec.CampaignID = deref(campID)
	if len(result) > 0 {
		exec.Result = result
	}
	if len(stage) > 0 {
		var sr content.StageResults
		if err := json.Unmarshal(stage, &sr); err != nil {
			return content.Execution{}, fmt.Errorf("%s: decode stage results: %w", op, err)
		}
		exec.StageResults = &sr
	}
	return exec, nil
}

// LatestStageResults returns the stage results of the most recent completed
// execution for the campaign, or nil when there is none.
func (s *ContentStore) LatestStageResults(ctx context.Context, campaignID string) (*content.StageResults, error) {
	const op = "latest stage results"
	query, args, err := build(op, psql.
		Select("stage_results").
		From("workflow_executions").
		Where(sq.Eq{"campaign_id": campaignID, "status": string(content.ExecutionCompleted)}).
		Where(sq.NotEq{"stage_results": nil}).
		OrderBy("updated_at DESC").
		Limit(1))
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRow(ctx, query, args...).Scan(&raw)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(op, err)
	}
	var sr content.StageResults
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("%s: decode stage results: %w", op, err)
	}
	return &sr, nil
}

// FindPlaceholder looks up a "generating" row for the title and brand.
func (s *ContentStore) FindPlaceholder(ctx context.Context, title, brandID string) (string, bool, error) {
	const op = "find placeholder post"
	query, args, err := build(op, psql.
		Select("id").
		From("blog_posts").
		Where(sq.Eq{"title": title, "brand_id": brandID, "status": content.PostStatusGenerating}).
		OrderBy("created_at DESC").
		Limit(1))
	if err != nil {
		return "", false, err
	}
	var id string
	err = s.db.QueryRow(ctx, query, args...).Scan(&id)
	if isNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, dbError(op, err)
	}
	return id, true, nil
}

// InsertPost inserts a post and returns its ID. A statement that yields no
// row returns content.ErrNoRowReturned.
func (s *ContentStore) InsertPost(ctx context.Context, post content.BlogPost) (string, error) {
	const op = "insert post"
	query, args, err := build(op, psql.
		Insert("blog_posts").
		Columns("title", "slug", "content", "meta_description", "keywords", "status",
			"brand_id", "user_id", "topic_id", "featured_image_url", "featured_image_alt", "word_count").
		Values(post.Title, post.Slug, post.Content, post.MetaDescription, post.Keywords, post.Status,
			nullable(post.BrandID), nullable(post.UserID), nullable(post.TopicID),
			nullable(post.FeaturedImageURL), nullable(post.FeaturedImageAlt), post.WordCount).
		Suffix("RETURNING id"))
	if err != nil {
		return "", err
	}
	return s.returningID(ctx, op, query, args)
}

// UpdatePost overwrites a post and returns its ID.
func (s *ContentStore) UpdatePost(ctx context.Context, id string, post content.BlogPost) (string, error) {
	const op = "update post"
	query, args, err := build(op, psql.
		Update("blog_posts").
		Set("title", post.Title).
		Set("slug", post.Slug).
		Set("content", post.Content).
		Set("meta_description", post.MetaDescription).
		Set("keywords", post.Keywords).
		Set("status", post.Status).
		Set("featured_image_url", nullable(post.FeaturedImageURL)).
		Set("featured_image_alt", nullable(post.FeaturedImageAlt)).
		Set("word_count", post.WordCount).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING id"))
	if err != nil {
		return "", err
	}
	return s.returningID(ctx, op, query, args)
}

func (s *ContentStore) returningID(ctx context.Context, op, query string, args []any) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, query, args...).Scan(&id)
	if isNoRows(err) {
		return "", fmt.Errorf("%s: %w", op, content.ErrNoRowReturned)
	}
	if err != nil {
		return "", dbError(op, err)
	}
	if id == "" {
		return "", fmt.Errorf("%s: %w", op, content.ErrNoRowReturned)
	}
	return id, nil
}

// MarkTopicCompleted flags a selected topic as written.
func (s *ContentStore) MarkTopicCompleted(ctx context.Context, topicID string) error {
	const op = "mark topic completed"
	query, args, err := build(op, psql.
		Update("selected_topics").
		Set("status", "completed").
		Set("completed_at", s.now()).
		Where(sq.Eq{"id": topicID}))
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return dbError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, topicID, content.ErrNotFound)
	}
	return nil
}

// LogUsage appends a token usage row.
func (s *ContentStore) LogUsage(ctx context.Context, r content.UsageRecord) error {
	const op = "log usage"
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	query, args, err := build(op, psql.
		Insert("ai_usage_logs").
		Columns("user_id", "execution_id", "stage", "model", "prompt_tokens", "completion_tokens", "total_tokens", "created_at").
		Values(nullable(r.UserID), nullable(r.ExecutionID), r.Stage, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, at))
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return dbError(op, err)
	}
	return nil
}
