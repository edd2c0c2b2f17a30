// Package metrics exposes Prometheus collectors for the orchestrator service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	stageOutcomesTotal         *prometheus.CounterVec
	llmTokensTotal             *prometheus.CounterVec
	leadsSavedTotal            prometheus.Counter
	scrapeAbortsTotal          *prometheus.CounterVec
	referenceFetchesTotal      *prometheus.CounterVec
	providerRequestSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		stageOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_stage_outcomes_total",
				Help: "Workflow stage outcomes, labeled by pipeline, stage and status.",
			},
			[]string{"pipeline", "stage", "status"},
		)

		llmTokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_llm_tokens_total",
				Help: "LLM tokens consumed, labeled by model and kind (prompt or completion).",
			},
			[]string{"model", "kind"},
		)

		leadsSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestrator_leads_saved_total",
				Help: "Total number of business leads persisted.",
			},
		)

		scrapeAbortsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_scrape_aborts_total",
				Help: "Scrape runs terminated on reaching their limit, labeled by method.",
			},
			[]string{"method"},
		)

		referenceFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_reference_fetches_total",
				Help: "Reference page fetches, labeled by site and mode (probe or headless).",
			},
			[]string{"site", "mode"},
		)

		providerRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_provider_request_duration_seconds",
				Help:    "Latency of outbound provider calls, labeled by provider and outcome.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180},
			},
			[]string{"provider", "outcome"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStage counts one stage outcome.
func ObserveStage(pipeline, stage, status string) {
	Init()
	stageOutcomesTotal.WithLabelValues(pipeline, stage, status).Inc()
}

// ObserveTokens adds prompt and completion token counts for model.
func ObserveTokens(model string, prompt, completion int) {
	Init()
	if prompt > 0 {
		llmTokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// ObserveLeadsSaved adds n persisted leads.
func ObserveLeadsSaved(n int) {
	Init()
	if n > 0 {
		leadsSavedTotal.Add(float64(n))
	}
}

// ObserveScrapeAbort counts a limit-triggered run termination.
func ObserveScrapeAbort(method string) {
	Init()
	scrapeAbortsTotal.WithLabelValues(method).Inc()
}

// ObserveReferenceFetch counts a reference page fetch.
func ObserveReferenceFetch(site string, headless bool) {
	Init()
	mode := "probe"
	if headless {
		mode = "headless"
	}
	referenceFetchesTotal.WithLabelValues(SanitizeSite(site), mode).Inc()
}

// ObserveProviderRequest records the latency of an outbound provider call.
func ObserveProviderRequest(provider string, err error, duration time.Duration) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerRequestSeconds.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}
