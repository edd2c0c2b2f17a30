package leads

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals a missing run or campaign.
var ErrNotFound = errors.New("run not found")

// Provider is the Lobstr.io surface used by the state machine.
type Provider interface {
	GetSquid(ctx context.Context, squidID string) (Squid, error)
	UpdateSquid(ctx context.Context, squidID string, settings SquidSettings) error
	ListTasks(ctx context.Context, squidID string) ([]string, error)
	DeleteTask(ctx context.Context, taskID string) error
	AddTasks(ctx context.Context, squidID string, tasks []TaskSpec) ([]string, error)
	LaunchRun(ctx context.Context, squidID string) (ProviderRun, error)
	GetRun(ctx context.Context, runID string) (ProviderRun, error)
	AbortRun(ctx context.Context, runID string) error
	StopRun(ctx context.Context, runID string) error
	ListResults(ctx context.Context, runID string, limit int) ([]Lead, error)
}

// RunStore persists runs and multi-search campaigns.
type RunStore interface {
	UpsertRun(ctx context.Context, run Run) (Run, error)
	InsertRun(ctx context.Context, run Run) (Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	FindRunByProviderID(ctx context.Context, providerRunID string) (Run, error)
	FindRunBySquid(ctx context.Context, userID, squidID string) (Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	CreateCampaign(ctx context.Context, campaign Campaign) (Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status RunStatus) error
}

// LeadStore appends scraped leads.
type LeadStore interface {
	InsertLeads(ctx context.Context, leads []Lead) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces lease tokens.
type IDGenerator interface {
	NewID() (string, error)
}
