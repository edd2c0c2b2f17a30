package content

import (
	"encoding/json"
	"strings"
	"time"
)

// Topic is one article brief selected for generation.
type Topic struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title" validate:"required"`
	Description   string   `json:"description,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Intent        string   `json:"intent,omitempty"`
	Outline       []string `json:"outline,omitempty"`
	Sources       []string `json:"sources,omitempty" validate:"omitempty,dive,url"`
	InternalLinks []string `json:"internalLinks,omitempty"`
	CampaignID    string   `json:"campaignId,omitempty"`
	SEOCampaignID string   `json:"seoCampaignId,omitempty"`
}

// PrimaryKeyword returns the first keyword, or the title when none is set.
func (t Topic) PrimaryKeyword() string {
	for _, k := range t.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return t.Title
}

// EffectiveCampaignID prefers the SEO campaign link over the plain campaign.
func (t Topic) EffectiveCampaignID() string {
	if t.SEOCampaignID != "" {
		return t.SEOCampaignID
	}
	return t.CampaignID
}

// Settings toggles optional workflow stages.
type Settings struct {
	MultiStage      bool   `json:"multiStage"`
	SEOOptimization bool   `json:"seoOptimization"`
	Humanize        bool   `json:"humanize"`
	WritingStyle    string `json:"writingStyle,omitempty"`
	ReadingLevel    string `json:"readingLevel,omitempty"`
	IncludeStats    bool   `json:"includeStats"`
}

// Request is a validated article workflow invocation.
type Request struct {
	ExecutionID       string
	UserID            string
	BrandID           string
	Topics            []Topic
	Language          string
	Tone              string
	WordCount         int
	IncludeIntro      bool
	IncludeConclusion bool
	IncludeFAQ        bool
	FeaturedImage     bool
	CustomPrompt      string
	Settings          Settings
}

// BrandInfo is the read-only brand context used to steer prompts.
type BrandInfo struct {
	ID             string
	Name           string
	Website        string
	Industry       string
	Voice          string
	TargetAudience string
	SellingPoints  []string
}

// CampaignInfo is the read-only SEO campaign context.
type CampaignInfo struct {
	ID              string
	Name            string
	TargetMarket    string
	Language        string
	OrganicKeywords []string
	Competitors     []string
	ContentPillars  []string
}

// EnhancedContext bundles optional brand and campaign context. Either part
// may be nil.
type EnhancedContext struct {
	Brand    *BrandInfo
	Campaign *CampaignInfo
}

// Empty reports whether no context was found.
func (c EnhancedContext) Empty() bool {
	return c.Brand == nil && c.Campaign == nil
}

// Reference is the extracted content of a scraped source page.
type Reference struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Headings   []string `json:"headings"`
	Paragraphs []string `json:"paragraphs"`
	Text       string   `json:"text"`
	Rendered   bool     `json:"rendered"`
}

// StageResults holds the multi-stage refinement outputs cached per campaign.
type StageResults struct {
	Strategy     string `json:"strategy,omitempty"`
	Blueprint    string `json:"blueprint,omitempty"`
	VoiceProfile string `json:"voice_profile,omitempty"`
}

// Complete reports whether all three refinement outputs are present.
func (s StageResults) Complete() bool {
	return s.Strategy != "" && s.Blueprint != "" && s.VoiceProfile != ""
}

// Chunk is one sequentially generated slice of an article.
type Chunk struct {
	Index    int
	Total    int
	Text     string
	Headings []string
}

// First reports whether the chunk opens the article.
func (c Chunk) First() bool { return c.Index == 0 }

// Last reports whether the chunk closes the article.
func (c Chunk) Last() bool { return c.Index == c.Total-1 }

// FeaturedImage is an uploaded hero image.
type FeaturedImage struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// Article is the finished output for one topic.
type Article struct {
	PostID          string         `json:"id,omitempty"`
	TopicID         string         `json:"topicId,omitempty"`
	Title           string         `json:"title"`
	Slug            string         `json:"slug"`
	Content         string         `json:"content"`
	MetaDescription string         `json:"metaDescription"`
	Keywords        []string       `json:"keywords,omitempty"`
	WordCount       int            `json:"wordCount"`
	FeaturedImage   *FeaturedImage `json:"featuredImage,omitempty"`
}

// PostStatusGenerating marks placeholder rows created before generation.
const PostStatusGenerating = "generating"

// BlogPost is the persisted row for an article.
type BlogPost struct {
	ID               string
	Title            string
	Slug             string
	Content          string
	MetaDescription  string
	Keywords         []string
	Status           string
	BrandID          string
	UserID           string
	TopicID          string
	FeaturedImageURL string
	FeaturedImageAlt string
	WordCount        int
}

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

// Execution statuses persisted in workflow_executions.
const (
	ExecutionProcessing ExecutionStatus = "processing"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
)

// Terminal reports whether the status ends the execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// Execution is the client-visible progress record of one workflow run.
type Execution struct {
	ID           string          `json:"id"`
	Status       ExecutionStatus `json:"status"`
	CurrentStage string          `json:"current_stage"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *string         `json:"error,omitempty"`
	StageResults *StageResults   `json:"stage_results,omitempty"`
	CampaignID   string          `json:"campaign_id,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExecutionUpdate is a partial write to an execution row. Nil fields keep
// their stored value.
type ExecutionUpdate struct {
	ID           string
	Status       ExecutionStatus
	CurrentStage string
	Progress     int
	Result       json.RawMessage
	Error        *string
	StageResults *StageResults
	CampaignID   string
	At           time.Time
}

// UsageRecord is one best-effort token usage log entry.
type UsageRecord struct {
	UserID           string
	ExecutionID      string
	Stage            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	At               time.Time
}

// CompletionRequest is a single LLM call.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting returned by the LLM gateway.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a successful LLM response. Text may be empty; callers decide
// whether that is a failure.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// ImageRequest describes the hero image to generate for an article.
type ImageRequest struct {
	Title    string
	Slug     string
	Keywords []string
	Excerpt  string
	BrandID  string
}
