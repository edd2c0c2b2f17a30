package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/content"
)

const defaultSinkTimeout = 5 * time.Second

// Config controls the Reporter.
type Config struct {
	SinkTimeout time.Duration
	Logger      *zap.Logger
	Clock       content.Clock
}

// Reporter fans execution updates out to sinks.
type Reporter struct {
	cfg     Config
	sinks   []Sink
	logger  *zap.Logger
	mu      sync.Mutex
	started map[string]time.Time
}

var _ Updater = (*Reporter)(nil)

// NewReporter builds a Reporter for the supplied sinks.
func NewReporter(cfg Config, sinks ...Sink) *Reporter {
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		started: make(map[string]time.Time),
	}
}

// Start records the processing row for a new execution.
func (r *Reporter) Start(ctx context.Context, executionID, campaignID string) {
	r.Update(ctx, executionID, Update{
		Status:     content.ExecutionProcessing,
		Stage:      "started",
		CampaignID: campaignID,
	})
}

// Update is a no-op without an execution ID. Sink errors are logged only.
func (r *Reporter) Update(ctx context.Context, executionID string, u Update) {
	if r == nil || executionID == "" {
		return
	}
	evt := Event{
		ExecutionID:  executionID,
		TS:           r.now(),
		Status:       u.Status,
		Stage:        u.Stage,
		Progress:     u.Progress,
		Result:       u.Result,
		Error:        u.Error,
		StageResults: u.StageResults,
		CampaignID:   u.CampaignID,
	}
	if err := evt.Validate(); err != nil {
		r.logger.Warn("discarding invalid progress update", zap.String("execution_id", executionID), zap.Error(err))
		return
	}
	r.track(&evt)
	r.flush(ctx, []Event{evt})
}

func (r *Reporter) track(evt *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.started[evt.ExecutionID]
	if !ok {
		start = evt.TS
		r.started[evt.ExecutionID] = start
	}
	if evt.Terminal() {
		evt.Dur = evt.TS.Sub(start)
		delete(r.started, evt.ExecutionID)
	}
}

// flush detaches from caller cancellation so a failed status is still
// written after the request context is done.
func (r *Reporter) flush(ctx context.Context, batch []Event) {
	base := context.WithoutCancel(ctx)
	for _, sink := range r.sinks {
		if sink == nil {
			continue
		}
		sinkCtx, cancel := context.WithTimeout(base, r.cfg.SinkTimeout)
		if err := sink.Consume(sinkCtx, batch); err != nil {
			r.logger.Warn("progress sink consume failed",
				zap.String("execution_id", batch[0].ExecutionID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close closes every sink.
func (r *Reporter) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for _, sink := range r.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			r.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Reporter) now() time.Time {
	if r.cfg.Clock != nil {
		return r.cfg.Clock.Now()
	}
	return time.Now().UTC()
}
