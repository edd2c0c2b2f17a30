package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

// Update is one status change requested by a workflow.
type Update struct {
	Status       content.ExecutionStatus
	Stage        string
	Progress     int
	Result       json.RawMessage
	Error        *string
	StageResults *content.StageResults
	CampaignID   string
}

// Event is an Update stamped with its execution and time.
type Event struct {
	ExecutionID  string
	TS           time.Time
	Status       content.ExecutionStatus
	Stage        string
	Progress     int
	Result       json.RawMessage
	Error        *string
	StageResults *content.StageResults
	CampaignID   string
	// Dur is the time since the execution started; set on terminal events.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ExecutionID == "" {
		return errors.New("execution id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Status {
	case content.ExecutionProcessing, content.ExecutionCompleted, content.ExecutionFailed:
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	return nil
}

// Terminal reports whether the event ends the execution.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// ExecutionUpdate converts the event into a store write.
func (e Event) ExecutionUpdate() content.ExecutionUpdate {
	return content.ExecutionUpdate{
		ID:           e.ExecutionID,
		Status:       e.Status,
		CurrentStage: e.Stage,
		Progress:     e.Progress,
		Result:       e.Result,
		Error:        e.Error,
		StageResults: e.StageResults,
		CampaignID:   e.CampaignID,
		At:           e.TS,
	}
}
