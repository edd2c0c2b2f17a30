package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the execution lifecycle.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{ExecutionID: "e1", TS: now, Status: content.ExecutionProcessing, Stage: "started"},
		{ExecutionID: "e1", TS: now, Status: content.ExecutionProcessing, Stage: "article_generation", Progress: 30},
		{ExecutionID: "e1", TS: now, Status: content.ExecutionCompleted, Stage: "completed", Progress: 100, Dur: 90 * time.Second},
		{ExecutionID: "e2", TS: now, Status: content.ExecutionProcessing, Stage: "started"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.started))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.finished.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.running))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.progress.WithLabelValues("article_generation")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runtime, "orchestrator_execution_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
