package content

import (
	"context"
	"errors"
	"time"
)

// ErrNoRowReturned signals that a write succeeded without yielding the
// written row.
var ErrNoRowReturned = errors.New("write returned no row")

// ErrNotFound signals a missing record.
var ErrNotFound = errors.New("not found")

// ContextStore reads brand and campaign context.
type ContextStore interface {
	GetBrand(ctx context.Context, brandID string) (*BrandInfo, error)
	GetCampaign(ctx context.Context, campaignID string) (*CampaignInfo, error)
}

// ExecutionStore persists workflow execution progress.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, update ExecutionUpdate) error
	GetExecution(ctx context.Context, id string) (Execution, error)
	LatestStageResults(ctx context.Context, campaignID string) (*StageResults, error)
}

// ArticleStore persists generated posts and topic completion.
type ArticleStore interface {
	FindPlaceholder(ctx context.Context, title, brandID string) (string, bool, error)
	InsertPost(ctx context.Context, post BlogPost) (string, error)
	UpdatePost(ctx context.Context, id string, post BlogPost) (string, error)
	MarkTopicCompleted(ctx context.Context, topicID string) error
}

// UsageLogger records token usage. Failures never affect the caller.
type UsageLogger interface {
	LogUsage(ctx context.Context, record UsageRecord) error
}

// Completer issues LLM completions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ImageService generates and uploads a featured image.
type ImageService interface {
	Generate(ctx context.Context, req ImageRequest) (FeaturedImage, error)
}

// ReferenceFetcher scrapes a source page into a Reference.
type ReferenceFetcher interface {
	Reference(ctx context.Context, url string) (Reference, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces execution IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
