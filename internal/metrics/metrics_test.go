package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	Init()

	ObserveStage("content", "article_generation", "Success")
	if val := testutil.ToFloat64(stageOutcomesTotal.WithLabelValues("content", "article_generation", "Success")); val != 1 {
		t.Errorf("expected one stage outcome, got %f", val)
	}

	ObserveTokens("model-a", 10, 0)
	if val := testutil.ToFloat64(llmTokensTotal.WithLabelValues("model-a", "prompt")); val != 10 {
		t.Errorf("expected 10 prompt tokens, got %f", val)
	}

	before := testutil.ToFloat64(leadsSavedTotal)
	ObserveLeadsSaved(3)
	ObserveLeadsSaved(0)
	if val := testutil.ToFloat64(leadsSavedTotal) - before; val != 3 {
		t.Errorf("expected 3 leads, got %f", val)
	}

	ObserveScrapeAbort("stop")
	if val := testutil.ToFloat64(scrapeAbortsTotal.WithLabelValues("stop")); val != 1 {
		t.Errorf("expected one stop abort, got %f", val)
	}

	ObserveReferenceFetch("https://Docs.example.org/a", true)
	if val := testutil.ToFloat64(referenceFetchesTotal.WithLabelValues("docs.example.org", "headless")); val != 1 {
		t.Errorf("expected one headless fetch, got %f", val)
	}

	ObserveProviderRequest("lobstr-test", errors.New("x"), time.Second)
	if val := testutil.CollectAndCount(providerRequestSeconds); val <= 0 {
		t.Errorf("expected provider latency to be observed, got %d", val)
	}
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/ok/1", "/teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); val != 1 {
		t.Errorf("expected one 418 request, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("expected request durations to be observed, got %d", val)
	}
}
