package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

// PrepareResult reports what prepare_squid cleaned up.
type PrepareResult struct {
	SquidID        string              `json:"squidId"`
	Lease          Lease               `json:"lease"`
	TasksFound     int                 `json:"tasksFound"`
	TasksDeleted   int                 `json:"tasksDeleted"`
	FailedDeletes  []string            `json:"failedDeletes,omitempty"`
	Settings       leads.SquidSettings `json:"settings"`
	Warnings       []string            `json:"warnings,omitempty"`
	SquidMaxBefore int                 `json:"squidMaxBefore"`
}

// PrepareSquid leases the squid, deletes its leftover tasks and resets its
// settings. Individual delete failures become warnings.
func (s *Service) PrepareSquid(ctx context.Context, req Request) (PrepareResult, error) {
	squidID := s.squidID(req)
	if squidID == "" {
		return PrepareResult{}, apperr.New(apperr.CodeInvalidInput, OpPrepareSquid, "squidId is required")
	}
	if err := requireFields(OpPrepareSquid, map[string]string{"userId": req.UserID}); err != nil {
		return PrepareResult{}, err
	}
	lease, err := s.leaser.Acquire(squidID, req.UserID)
	if err != nil {
		return PrepareResult{}, err
	}
	res, err := s.prepare(ctx, squidID, s.maxResults(req))
	if err != nil {
		s.leaser.Release(squidID, req.UserID)
		return PrepareResult{}, err
	}
	res.Lease = lease
	return res, nil
}

func (s *Service) prepare(ctx context.Context, squidID string, maxResults int) (PrepareResult, error) {
	res := PrepareResult{SquidID: squidID}
	squid, err := s.provider.GetSquid(ctx, squidID)
	if err != nil {
		return res, fmt.Errorf("get squid %s: %w", squidID, err)
	}
	res.SquidMaxBefore = squid.MaxResults

	tasks, err := s.provider.ListTasks(ctx, squidID)
	if err != nil {
		return res, fmt.Errorf("list squid tasks: %w", err)
	}
	res.TasksFound = len(tasks)

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DeleteParallelism)
	for _, id := range tasks {
		g.Go(func() error {
			if err := s.provider.DeleteTask(gctx, id); err != nil {
				s.logger.Warn("delete squid task", zap.String("squid", squidID), zap.String("task", id), zap.Error(err))
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	res.TasksDeleted = len(tasks) - len(failed)
	res.FailedDeletes = failed
	if len(failed) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d of %d leftover tasks could not be deleted", len(failed), len(tasks)))
	}

	res.Settings = leads.SquidSettings{MaxResults: maxResults, UniqueResults: true, Concurrency: 1}
	if err := s.provider.UpdateSquid(ctx, squidID, res.Settings); err != nil {
		return res, fmt.Errorf("update squid settings: %w", err)
	}
	s.logger.Info("squid prepared",
		zap.String("squid", squidID),
		zap.Int("tasks_deleted", res.TasksDeleted),
		zap.Int("max_results", maxResults))
	return res, nil
}

// AddTasksResult is the run created by add_tasks.
type AddTasksResult struct {
	Run      leads.Run      `json:"run"`
	TaskIDs  []string       `json:"taskIds"`
	TaskMode string         `json:"taskMode"`
	Location leads.Location `json:"location"`
	Task     taskView       `json:"task"`
}

type taskView struct {
	URL     string `json:"url,omitempty"`
	Query   string `json:"query,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

// AddTasks upserts the run for user and squid and submits its task.
func (s *Service) AddTasks(ctx context.Context, req Request) (AddTasksResult, error) {
	squidID := s.squidID(req)
	if squidID == "" {
		return AddTasksResult{}, apperr.New(apperr.CodeInvalidInput, OpAddTasks, "squidId is required")
	}
	if err := requireFields(OpAddTasks, map[string]string{"userId": req.UserID, "query": req.Query, "location": req.Location}); err != nil {
		return AddTasksResult{}, err
	}
	if err := s.leaser.Check(squidID, req.UserID, req.LeaseToken); err != nil {
		return AddTasksResult{}, err
	}
	if _, err := s.leaser.Acquire(squidID, req.UserID); err != nil {
		return AddTasksResult{}, err
	}
	id, err := s.newID()
	if err != nil {
		return AddTasksResult{}, err
	}
	limit := s.maxResults(req)
	run, err := s.runs.UpsertRun(ctx, leads.Run{
		ID:         id,
		UserID:     req.UserID,
		SquidID:    squidID,
		Query:      req.Query,
		Location:   req.Location,
		MaxResults: limit,
		AbortLimit: limit,
		Status:     leads.StatusTasksBeingAdded,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return AddTasksResult{}, apperr.Wrap(apperr.CodeDatabase, OpAddTasks, err)
	}
	return s.submitTasks(ctx, run, req.Language)
}

func (s *Service) submitTasks(ctx context.Context, run leads.Run, language string) (AddTasksResult, error) {
	if language == "" {
		language = s.cfg.Language
	}
	loc := ParseLocation(run.Location)
	task := BuildTask(run.Query, language, loc)
	res := AddTasksResult{
		Location: loc,
		TaskMode: "url",
		Task:     taskView{URL: task.URL, Query: task.Query, City: task.City, Region: task.Region, Country: task.Country},
	}
	if task.Parametric() {
		res.TaskMode = "parameters"
	}

	ids, err := s.provider.AddTasks(ctx, run.SquidID, []leads.TaskSpec{task})
	if err != nil {
		return res, s.fail(ctx, run, fmt.Errorf("add tasks: %w", err))
	}
	if run.Status != leads.StatusTasksBeingAdded {
		if err := s.update(ctx, run, leads.RunUpdate{Status: leads.StatusTasksBeingAdded}); err != nil {
			return res, err
		}
		run.Status = leads.StatusTasksBeingAdded
	}
	res.Run = run
	res.TaskIDs = ids
	s.logger.Info("squid tasks added",
		zap.String("run", run.ID),
		zap.String("mode", res.TaskMode),
		zap.Int("tasks", len(ids)))
	return res, nil
}

// LaunchResult is the run after launch.
type LaunchResult struct {
	Run         leads.Run         `json:"run"`
	ProviderRun leads.ProviderRun `json:"lobstrRun"`
}

// LaunchRun starts the provider run for the resolved local run. A planned
// multi-search child is prepared and gets its task before the launch. A
// credits error keeps its CREDITS_EXHAUSTED code.
func (s *Service) LaunchRun(ctx context.Context, req Request) (LaunchResult, error) {
	run, err := s.resolveRun(ctx, req)
	if err != nil {
		return LaunchResult{}, err
	}
	if run.ParentCampaignID != "" && run.Status == leads.StatusPlanned {
		var res MultiSearchResult
		if err := s.launchChild(ctx, req, run, &res); err != nil {
			return LaunchResult{}, err
		}
		return *res.Launched, nil
	}
	return s.launch(ctx, run, req.LeaseToken)
}

func (s *Service) launch(ctx context.Context, run leads.Run, token string) (LaunchResult, error) {
	if err := s.leaser.Check(run.SquidID, run.UserID, token); err != nil {
		return LaunchResult{}, err
	}
	prun, err := s.provider.LaunchRun(ctx, run.SquidID)
	if err != nil {
		if errors.Is(err, apperr.ErrCreditsExhausted) {
			s.logger.Warn("lobstr credits exhausted", zap.String("run", run.ID))
		}
		return LaunchResult{}, s.fail(ctx, run, err)
	}
	update := leads.RunUpdate{Status: leads.StatusRunning, RunID: &prun.ID, StartedAt: s.now()}
	if err := s.update(ctx, run, update); err != nil {
		return LaunchResult{}, err
	}
	run.Status = leads.StatusRunning
	run.RunID = prun.ID
	run.StartedAt = update.StartedAt
	s.logger.Info("scrape run launched", zap.String("run", run.ID), zap.String("lobstr_run", prun.ID))
	return LaunchResult{Run: run, ProviderRun: prun}, nil
}
