package scraper

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
)

// StatusResult is the provider's run status with a readable message.
type StatusResult struct {
	LobstrRunID  string `json:"lobstrRunId"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Done         bool   `json:"done"`
}

// StatusMessage maps a provider run status to a fixed message.
func StatusMessage(prun leads.ProviderRun) string {
	if prun.Done {
		return "Scraping complete"
	}
	switch strings.ToLower(prun.Status) {
	case "pending", "queued", "created", "":
		return "Run is queued"
	case "running", "in_progress", "active":
		return "Scraping in progress"
	case "done", "completed", "finished", "success":
		return "Scraping complete"
	case "aborted", "stopped", "cancelled", "canceled":
		return "Run was stopped"
	case "failed", "error":
		return "Run failed"
	default:
		return "Unknown run status: " + prun.Status
	}
}

func providerRunning(prun leads.ProviderRun) bool {
	if prun.Done {
		return false
	}
	switch strings.ToLower(prun.Status) {
	case "running", "in_progress", "active", "pending", "queued", "created", "":
		return true
	default:
		return false
	}
}

func providerFinished(prun leads.ProviderRun) bool {
	if prun.Done {
		return true
	}
	switch strings.ToLower(prun.Status) {
	case "done", "completed", "finished", "success", "aborted", "stopped", "cancelled", "canceled":
		return true
	default:
		return false
	}
}

// GetStatus reads the provider run status without touching local state.
func (s *Service) GetStatus(ctx context.Context, req Request) (StatusResult, error) {
	lobstrRunID := req.LobstrRunID
	if lobstrRunID == "" {
		run, err := s.resolveRun(ctx, req)
		if err != nil {
			return StatusResult{}, err
		}
		lobstrRunID = run.RunID
	}
	if lobstrRunID == "" {
		return StatusResult{}, apperr.New(apperr.CodeInvalidInput, OpGetStatus, "run has not been launched")
	}
	prun, err := s.provider.GetRun(ctx, lobstrRunID)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		LobstrRunID:  lobstrRunID,
		Status:       prun.Status,
		Message:      StatusMessage(prun),
		TotalResults: prun.TotalResults,
		Done:         prun.Done,
	}, nil
}

// ResultsResult reports one get_results pass.
type ResultsResult struct {
	Run           leads.Run         `json:"run"`
	ProviderRun   leads.ProviderRun `json:"lobstrRun"`
	Fetched       int               `json:"fetched"`
	Saved         int               `json:"saved"`
	TargetReached bool              `json:"targetReached"`
	AbortMethod   leads.AbortMethod `json:"abortMethod,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// GetResults enforces the run limit, then saves every returned result as a
// new lead. When the provider reports total_results at or above the limit
// while still running, the run is terminated before results are read.
func (s *Service) GetResults(ctx context.Context, req Request) (ResultsResult, error) {
	run, err := s.resolveRun(ctx, req)
	if err != nil {
		return ResultsResult{}, err
	}
	if run.RunID == "" {
		return ResultsResult{}, apperr.New(apperr.CodeInvalidInput, OpGetResults, "run has not been launched")
	}
	prun, err := s.provider.GetRun(ctx, run.RunID)
	if err != nil {
		return ResultsResult{}, err
	}
	res := ResultsResult{ProviderRun: prun}
	limit := run.Limit()
	if limit <= 0 {
		limit = s.cfg.MaxPerSearch
	}

	if prun.TotalResults >= limit && providerRunning(prun) {
		res.TargetReached = true
		res.AbortMethod = s.terminate(ctx, run)
		if res.AbortMethod == leads.AbortMethodNone {
			res.Warnings = append(res.Warnings, "target reached but the provider run could not be aborted or stopped")
		}
		if err := s.update(ctx, run, leads.RunUpdate{Status: leads.StatusTargetReached}); err != nil {
			return res, err
		}
		run.Status = leads.StatusTargetReached
	} else if prun.TotalResults >= limit {
		res.TargetReached = true
	}

	batch, err := s.provider.ListResults(ctx, run.RunID, limit)
	if err != nil {
		return res, err
	}
	if len(batch) > limit {
		batch = batch[:limit]
	}
	res.Fetched = len(batch)

	now := s.clock.Now()
	for i := range batch {
		batch[i].RunID = run.RunID
		batch[i].UserID = run.UserID
		batch[i].ScrapedSequence = run.SavedCount + i + 1
		batch[i].ScrapedAt = now
	}
	saved := 0
	if len(batch) > 0 {
		saved, err = s.leads.InsertLeads(ctx, batch)
		if err != nil {
			return res, apperr.Wrap(apperr.CodeDatabase, OpGetResults, err)
		}
	}
	res.Saved = saved
	metrics.ObserveLeadsSaved(saved)

	savedCount := run.SavedCount + saved
	total := prun.TotalResults
	update := leads.RunUpdate{ResultsCount: &total, SavedCount: &savedCount}
	switch {
	case res.TargetReached || providerFinished(prun):
		update.Status = leads.StatusCompleted
		update.FinishedAt = s.now()
	case run.Status != leads.StatusRunning:
		update.Status = leads.StatusRunning
	}
	if err := s.update(ctx, run, update); err != nil {
		return res, err
	}
	run.SavedCount, run.ResultsCount = savedCount, total
	if update.Status != "" {
		run.Status = update.Status
		run.FinishedAt = update.FinishedAt
	}
	if run.Status == leads.StatusCompleted {
		s.release(run)
	}
	res.Run = run
	s.logger.Info("scrape results saved",
		zap.String("run", run.ID),
		zap.Int("fetched", res.Fetched),
		zap.Int("saved", saved),
		zap.Int("total_results", total),
		zap.String("status", string(run.Status)))
	return res, nil
}

// terminate aborts the provider run and falls back to stop.
func (s *Service) terminate(ctx context.Context, run leads.Run) leads.AbortMethod {
	method := leads.AbortMethodAbort
	if err := s.provider.AbortRun(ctx, run.RunID); err != nil {
		s.logger.Warn("abort failed, falling back to stop", zap.String("lobstr_run", run.RunID), zap.Error(err))
		method = leads.AbortMethodStop
		if err := s.provider.StopRun(ctx, run.RunID); err != nil {
			s.logger.Error("stop failed", zap.String("lobstr_run", run.RunID), zap.Error(err))
			method = leads.AbortMethodNone
		}
	}
	metrics.ObserveScrapeAbort(string(method))
	return method
}

// ControlResult reports a stop or abort.
type ControlResult struct {
	Run    leads.Run         `json:"run"`
	Method leads.AbortMethod `json:"method"`
}

// StopRun stops the provider run and marks the run stopped.
func (s *Service) StopRun(ctx context.Context, req Request) (ControlResult, error) {
	run, err := s.launchedRun(ctx, req, OpStopRun)
	if err != nil {
		return ControlResult{}, err
	}
	if err := s.provider.StopRun(ctx, run.RunID); err != nil {
		return ControlResult{}, err
	}
	metrics.ObserveScrapeAbort(string(leads.AbortMethodStop))
	return s.finish(ctx, run, leads.StatusStopped, leads.AbortMethodStop)
}

// AbortRun aborts the provider run, falling back to stop when abort errors.
func (s *Service) AbortRun(ctx context.Context, req Request) (ControlResult, error) {
	run, err := s.launchedRun(ctx, req, OpAbortRun)
	if err != nil {
		return ControlResult{}, err
	}
	method := leads.AbortMethodAbort
	if abortErr := s.provider.AbortRun(ctx, run.RunID); abortErr != nil {
		method = leads.AbortMethodStop
		if err := s.provider.StopRun(ctx, run.RunID); err != nil {
			return ControlResult{}, fmt.Errorf("abort failed (%v), stop failed: %w", abortErr, err)
		}
	}
	metrics.ObserveScrapeAbort(string(method))
	return s.finish(ctx, run, leads.StatusAborted, method)
}

func (s *Service) launchedRun(ctx context.Context, req Request, op string) (leads.Run, error) {
	run, err := s.resolveRun(ctx, req)
	if err != nil {
		return leads.Run{}, err
	}
	if run.RunID == "" {
		return leads.Run{}, apperr.New(apperr.CodeInvalidInput, op, "run has not been launched")
	}
	return run, nil
}

func (s *Service) finish(ctx context.Context, run leads.Run, status leads.RunStatus, method leads.AbortMethod) (ControlResult, error) {
	finished := s.now()
	if err := s.update(ctx, run, leads.RunUpdate{Status: status, FinishedAt: finished}); err != nil {
		return ControlResult{}, err
	}
	run.Status = status
	run.FinishedAt = finished
	s.release(run)
	s.logger.Info("scrape run ended", zap.String("run", run.ID), zap.String("status", string(status)), zap.String("method", string(method)))
	return ControlResult{Run: run, Method: method}, nil
}

// GeoResult is the parsed location and the task it would produce.
type GeoResult struct {
	Location   leads.Location `json:"location"`
	Structured bool           `json:"structured"`
	TaskMode   string         `json:"taskMode"`
	SearchURL  string         `json:"searchUrl"`
}

// GetGeolocation parses req.Location without calling the provider.
func (s *Service) GetGeolocation(_ context.Context, req Request) (GeoResult, error) {
	if strings.TrimSpace(req.Location) == "" {
		return GeoResult{}, apperr.New(apperr.CodeInvalidInput, OpGetGeolocation, "location is required")
	}
	loc := ParseLocation(req.Location)
	res := GeoResult{
		Location:   loc,
		Structured: loc.Structured(),
		TaskMode:   "url",
		SearchURL:  MapsSearchURL(req.Query, loc),
	}
	if res.Structured {
		res.TaskMode = "parameters"
	}
	return res, nil
}
