// Package fetch retrieves reference pages for the article workflow. A plain
// HTTP probe runs first; pages that look like client-rendered apps are
// re-fetched through headless Chrome when it is enabled. The HTML is then
// reduced to title, headings and paragraphs with goquery.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Headless   bool
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Detector decides whether a probed page needs a headless render.
type Detector interface {
	ShouldPromote(page Page) bool
}
