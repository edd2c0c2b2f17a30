package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
)

// PrometheusSink exports execution lifecycle metrics.
type PrometheusSink struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	running  prometheus.Gauge
	runtime  *prometheus.HistogramVec
	progress *prometheus.CounterVec

	tracker *executionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_executions_started_total",
			Help: "Total workflow executions that have started.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_executions_total",
			Help: "Total workflow executions finished, partitioned by status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_executions_running",
			Help: "Current number of running workflow executions.",
		}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_execution_runtime_seconds",
			Help:    "Wall time per finished workflow execution.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900, 1800},
		}, []string{"status"}),
		progress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_execution_stage_updates_total",
			Help: "Status updates partitioned by stage.",
		}, []string{"stage"}),
		tracker: newExecutionTracker(),
	}
	for _, collector := range []prometheus.Collector{s.started, s.finished, s.running, s.runtime, s.progress} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if evt.Stage != "" {
		s.progress.WithLabelValues(evt.Stage).Inc()
	}
	switch evt.Status {
	case content.ExecutionProcessing:
		if s.tracker.start(evt.ExecutionID) {
			s.started.Inc()
			s.running.Inc()
		}
	case content.ExecutionCompleted, content.ExecutionFailed:
		label := string(evt.Status)
		s.finished.WithLabelValues(label).Inc()
		if evt.Dur > 0 {
			s.runtime.WithLabelValues(label).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.ExecutionID) {
			s.running.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type executionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newExecutionTracker() *executionTracker {
	return &executionTracker{running: make(map[string]struct{})}
}

func (t *executionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *executionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
