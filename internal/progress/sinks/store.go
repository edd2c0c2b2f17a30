package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
)

// StoreSink persists events to workflow_executions via a content.ExecutionStore.
type StoreSink struct {
	repo content.ExecutionStore
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo content.ExecutionStore) *StoreSink {
	return &StoreSink{repo: repo}
}

// Consume writes each event in order and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.repo.SaveExecution(ctx, evt.ExecutionUpdate()); err != nil {
			return fmt.Errorf("save execution %s: %w", evt.ExecutionID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
