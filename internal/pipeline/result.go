package pipeline

import (
	"github.com/JakeFAU/content-orchestrator/internal/content"
)

// Stage names as reported in workflow results and execution rows.
const (
	StageContextFetch      = "context_fetch"
	StageReferenceScrape   = "reference_scrape"
	StageContentAnalysis   = "content_analysis"
	StageMultiStage        = "multi_stage_context"
	StageArticleGeneration = "article_generation"
	StageChunkCombination  = "chunk_combination"
	StageSEO               = "seo_optimization"
	StageHumanization      = "humanization"
	StageMetaDescription   = "meta_description"
	StageFeaturedImage     = "featured_image"
	StageSave              = "save"
	StageBacklinks         = "backlink_optimization"
)

// StageStatus is the outcome of one stage.
type StageStatus string

// Stage outcomes.
const (
	StatusSuccess StageStatus = "Success"
	StatusFailed  StageStatus = "Failed"
	StatusSkipped StageStatus = "Skipped"
)

// RefinementMode says whether strategy, blueprint and voice feed later
// prompts. It is passed to every stage that renders a prompt.
type RefinementMode int

const (
	// MultiStageActive threads refinement outputs into later prompts.
	MultiStageActive RefinementMode = iota
	// SingleStageFallback omits them.
	SingleStageFallback
)

func (m RefinementMode) String() string {
	if m == MultiStageActive {
		return "multi_stage"
	}
	return "single_stage"
}

// Results maps stage name to outcome. A failure recorded for one topic is
// not overwritten by a later topic.
type Results map[string]StageStatus

func (r Results) set(stage string, status StageStatus) {
	if r[stage] == StatusFailed {
		return
	}
	r[stage] = status
}

// Warning describes a degraded stage.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Impact  string `json:"impact"`
}

// Outcome is everything a run produced, also on failure.
type Outcome struct {
	ExecutionID string            `json:"executionId,omitempty"`
	Article     *content.Article  `json:"article,omitempty"`
	Articles    []content.Article `json:"articles"`
	Results     Results           `json:"workflowResults"`
	Warnings    []Warning         `json:"warnings"`
	Mode        string            `json:"refinementMode"`
}
