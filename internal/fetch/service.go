package fetch

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
)

// Service implements content.ReferenceFetcher.
type Service struct {
	probe    Fetcher
	headless Fetcher
	detector Detector
	maxChars int
	logger   *zap.Logger
}

var _ content.ReferenceFetcher = (*Service)(nil)

// NewService wires the probe, optional headless fetcher and detector.
// A nil headless fetcher disables promotion.
func NewService(probe, headless Fetcher, detector Detector, maxChars int, logger *zap.Logger) *Service {
	if detector == nil {
		detector = NewHeuristic(0)
	}
	return &Service{
		probe:    probe,
		headless: headless,
		detector: detector,
		maxChars: maxChars,
		logger:   logging.Named(logger, "fetch"),
	}
}

// Reference fetches url and extracts its content.
func (s *Service) Reference(ctx context.Context, url string) (content.Reference, error) {
	const op = "fetch reference"
	page, err := s.probe.Fetch(ctx, url)
	if err != nil {
		return content.Reference{}, apperr.Wrap(apperr.CodeNetwork, op, err)
	}

	if s.headless != nil && s.detector.ShouldPromote(page) {
		rendered, herr := s.headless.Fetch(ctx, url)
		if herr != nil {
			s.logger.Warn("headless render failed, using probe body",
				zap.String("url", url), zap.Error(herr))
		} else {
			page = rendered
		}
	}
	metrics.ObserveReferenceFetch(metrics.SanitizeSite(url), page.Headless)

	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return content.Reference{}, apperr.New(apperr.CodeNetwork, op,
			fmt.Sprintf("%s returned status %d", url, page.StatusCode))
	}

	ref, err := Extract(page.URL, page.Body, s.maxChars)
	if err != nil {
		return content.Reference{}, apperr.Wrap(apperr.CodeExecutionFailed, op, err)
	}
	if ref.URL == "" {
		ref.URL = url
	}
	ref.Rendered = page.Headless
	s.logger.Debug("reference extracted",
		zap.String("url", url),
		zap.Bool("rendered", ref.Rendered),
		zap.Int("headings", len(ref.Headings)),
		zap.Int("chars", len(ref.Text)))
	return ref, nil
}
