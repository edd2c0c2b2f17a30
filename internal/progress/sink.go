package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines and may be invoked concurrently for different executions.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Updater is the narrow surface the pipeline depends on.
type Updater interface {
	Update(ctx context.Context, executionID string, u Update)
}
