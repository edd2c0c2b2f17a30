package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
)

// LogSink emits structured logs for each status change.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("execution_id", evt.ExecutionID),
			zap.String("status", string(evt.Status)),
			zap.String("stage", evt.Stage),
			zap.Int("progress", evt.Progress),
		}
		if evt.Error != nil {
			fields = append(fields, zap.String("error", *evt.Error))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Status == content.ExecutionFailed {
			s.logger.Warn("execution progress", fields...)
			continue
		}
		s.logger.Info("execution progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
