package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

const articleHTML = `<html><head><title>Growing Tomatoes</title><script>var x=1;</script></head>
<body><nav><p>Navigation links that should never be extracted from the page body.</p></nav>
<h1>Growing Tomatoes</h1>
<h2>Soil preparation</h2>
<p>Tomatoes prefer loose, well drained soil rich in organic matter and compost.</p>
<p>Short one.</p>
<h3>Watering</h3>
<p>Water deeply twice a week rather than a little every day to build deep roots.</p>
</body></html>`

func TestProbeFetcherFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "orchestrator-test", r.UserAgent())
		assert.Equal(t, "yes", r.Header.Get("X-Probe"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewProbe(ProbeConfig{
		UserAgent: "orchestrator-test",
		Timeout:   5 * time.Second,
		Headers:   http.Header{"X-Probe": []string{"yes"}},
	})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "Soil preparation")
	require.False(t, page.Headless)
}

func TestProbeFetcherServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewProbe(ProbeConfig{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestProbeFetcherCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewProbe(ProbeConfig{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func TestConfigureHooksRecordsError(t *testing.T) {
	t.Parallel()

	var (
		page     Page
		fetchErr error
		hooks    stubHooks
	)
	NewProbe(ProbeConfig{}).configureHooks(&hooks, time.Now(), &page, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(2048)
	scripts := `<html><script>` + strings.Repeat("a", 400) + `</script><body>hi</body></html>`
	cases := []struct {
		name string
		page Page
		want bool
	}{
		{"non-200", Page{StatusCode: http.StatusNotFound}, false},
		{"empty body", Page{StatusCode: http.StatusOK}, true},
		{"script heavy", Page{StatusCode: http.StatusOK, Body: []byte(scripts)}, true},
		{"next marker", Page{StatusCode: http.StatusOK, Body: []byte(`<div id="__next"></div>` + strings.Repeat("x", 3000))}, true},
		{"static article", Page{StatusCode: http.StatusOK, Body: []byte(articleHTML)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ShouldPromote(tc.page))
		})
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	ref, err := Extract("https://example.com/tomatoes", []byte(articleHTML), 0)
	require.NoError(t, err)
	require.Equal(t, "Growing Tomatoes", ref.Title)
	require.Equal(t, []string{"Growing Tomatoes", "Soil preparation", "Watering"}, ref.Headings)
	require.Len(t, ref.Paragraphs, 2)
	require.NotContains(t, ref.Text, "Navigation")
	require.NotContains(t, ref.Text, "Short one")

	capped, err := Extract("https://example.com", []byte(articleHTML), 20)
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(capped.Text)), 20)
}

type fakeFetcher struct {
	page  Page
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.calls++
	if f.err != nil {
		return Page{}, f.err
	}
	p := f.page
	if p.URL == "" {
		p.URL = url
	}
	return p, nil
}

type fixedDetector bool

func (d fixedDetector) ShouldPromote(Page) bool { return bool(d) }

func TestServiceReference(t *testing.T) {
	t.Parallel()

	t.Run("probe only", func(t *testing.T) {
		t.Parallel()
		probe := &fakeFetcher{page: Page{StatusCode: 200, Body: []byte(articleHTML)}}
		headless := &fakeFetcher{}
		svc := NewService(probe, headless, fixedDetector(false), 0, zap.NewNop())

		ref, err := svc.Reference(context.Background(), "https://example.com/a")
		require.NoError(t, err)
		require.False(t, ref.Rendered)
		require.Equal(t, "https://example.com/a", ref.URL)
		require.Zero(t, headless.calls)
	})

	t.Run("promoted", func(t *testing.T) {
		t.Parallel()
		probe := &fakeFetcher{page: Page{StatusCode: 200, Body: []byte(`<div id="root"></div>`)}}
		headless := &fakeFetcher{page: Page{StatusCode: 200, Body: []byte(articleHTML), Headless: true}}
		svc := NewService(probe, headless, fixedDetector(true), 0, zap.NewNop())

		ref, err := svc.Reference(context.Background(), "https://spa.example.com")
		require.NoError(t, err)
		require.True(t, ref.Rendered)
		require.Equal(t, "Growing Tomatoes", ref.Title)
		require.Equal(t, 1, headless.calls)
	})

	t.Run("headless failure falls back", func(t *testing.T) {
		t.Parallel()
		probe := &fakeFetcher{page: Page{StatusCode: 200, Body: []byte(articleHTML)}}
		headless := &fakeFetcher{err: errors.New("chrome missing")}
		svc := NewService(probe, headless, fixedDetector(true), 0, zap.NewNop())

		ref, err := svc.Reference(context.Background(), "https://example.com")
		require.NoError(t, err)
		require.False(t, ref.Rendered)
	})

	t.Run("probe error", func(t *testing.T) {
		t.Parallel()
		svc := NewService(&fakeFetcher{err: fmt.Errorf("dial tcp: refused")}, nil, nil, 0, nil)
		_, err := svc.Reference(context.Background(), "https://down.example.com")
		require.Equal(t, apperr.CodeNetwork, apperr.CodeOf(err))
	})

	t.Run("bad status", func(t *testing.T) {
		t.Parallel()
		svc := NewService(&fakeFetcher{page: Page{StatusCode: 404}}, nil, nil, 0, nil)
		_, err := svc.Reference(context.Background(), "https://example.com/missing")
		require.Error(t, err)
		require.Contains(t, err.Error(), "status 404")
	})
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	m := &responseMeta{}
	status, url := m.snapshotWithFallbacks("https://a.example", "https://b.example")
	require.Equal(t, 200, status)
	require.Equal(t, "https://b.example", url)

	status, url = m.snapshotWithFallbacks("https://a.example", "")
	require.Equal(t, 200, status)
	require.Equal(t, "https://a.example", url)
}
