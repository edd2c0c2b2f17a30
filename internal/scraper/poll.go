package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// StatusReader is the part of Service a Poller needs.
type StatusReader interface {
	GetStatus(ctx context.Context, req Request) (StatusResult, error)
}

// PollResult is the last observed status. TimedOut means the ceiling passed
// while the provider run was still going; the run itself is left alone.
type PollResult struct {
	Status   StatusResult `json:"status"`
	Polls    int          `json:"polls"`
	TimedOut bool         `json:"timedOut"`
	Notice   string       `json:"notice,omitempty"`
}

// Poller waits for a provider run to finish.
type Poller struct {
	status   StatusReader
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPoller builds a Poller. Non-positive durations use 15s and 10m.
func NewPoller(status StatusReader, interval, timeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Poller{status: status, interval: interval, timeout: timeout, logger: logging.Named(logger, "scraper.poll")}
}

// Wait polls get_status until the run is done, the ceiling passes or ctx is
// cancelled. Provider errors end the wait.
func (p *Poller) Wait(ctx context.Context, req Request) (PollResult, error) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var res PollResult
	for {
		status, err := p.status.GetStatus(pctx, req)
		switch {
		case err == nil:
			res.Polls++
			res.Status = status
			p.logger.Debug("run status",
				zap.String("lobstr_run", status.LobstrRunID),
				zap.String("status", status.Status),
				zap.Int("total_results", status.TotalResults))
			if status.Done || !providerRunning(providerView(status)) {
				return res, nil
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return p.timedOut(res), nil
		default:
			return res, err
		}

		select {
		case <-ticker.C:
		case <-pctx.Done():
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return p.timedOut(res), nil
		}
	}
}

func (p *Poller) timedOut(res PollResult) PollResult {
	res.TimedOut = true
	res.Notice = "Polling stopped after " + p.timeout.String() + "; the provider run continues and can be checked with get_status"
	p.logger.Warn("poll ceiling reached", zap.Duration("timeout", p.timeout), zap.Int("polls", res.Polls))
	return res
}

func providerView(s StatusResult) leads.ProviderRun {
	return leads.ProviderRun{ID: s.LobstrRunID, Status: s.Status, TotalResults: s.TotalResults, Done: s.Done}
}
