package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/logging"
)

// Operation types accepted by Handle.
const (
	OpPrepareSquid     = "prepare_squid"
	OpAddTasks         = "add_tasks"
	OpLaunchRun        = "launch_run"
	OpGetStatus        = "get_status"
	OpGetResults       = "get_results"
	OpSaveIncremental  = "save_incremental"
	OpStartMultiSearch = "start_multi_search"
	OpStopRun          = "stop_run"
	OpAbortRun         = "abort_run"
	OpGetGeolocation   = "get_geolocation"
)

const (
	defaultMaxPerSearch      = 200
	defaultDeleteParallelism = 4
)

// Config tunes the state machine.
type Config struct {
	// SquidID is used when a request names none.
	SquidID           string
	MaxPerSearch      int
	DeleteParallelism int
	Language          string
}

// Request is one scraper invocation. Type selects the operation.
type Request struct {
	Type        string `json:"type" validate:"required,oneof=prepare_squid add_tasks launch_run get_status get_results save_incremental start_multi_search stop_run abort_run get_geolocation"`
	UserID      string `json:"userId,omitempty"`
	SquidID     string `json:"squidId,omitempty"`
	RunID       string `json:"runId,omitempty"`
	LobstrRunID string `json:"lobstrRunId,omitempty"`
	Query       string `json:"query,omitempty"`
	Location    string `json:"location,omitempty"`
	MaxResults  int    `json:"maxResults,omitempty" validate:"gte=0"`
	TargetLeads int    `json:"targetLeads,omitempty" validate:"gte=0"`
	Language    string `json:"language,omitempty"`
	LeaseToken  string `json:"leaseToken,omitempty"`
}

// Service implements the scrape run operations.
type Service struct {
	cfg      Config
	provider leads.Provider
	runs     leads.RunStore
	leads    leads.LeadStore
	leaser   *Leaser
	clock    leads.Clock
	ids      leads.IDGenerator
	logger   *zap.Logger
}

// NewService wires a Service.
func NewService(cfg Config, provider leads.Provider, runs leads.RunStore, store leads.LeadStore, leaser *Leaser, clock leads.Clock, ids leads.IDGenerator, logger *zap.Logger) *Service {
	if cfg.MaxPerSearch <= 0 {
		cfg.MaxPerSearch = defaultMaxPerSearch
	}
	if cfg.DeleteParallelism <= 0 {
		cfg.DeleteParallelism = defaultDeleteParallelism
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		runs:     runs,
		leads:    store,
		leaser:   leaser,
		clock:    clock,
		ids:      ids,
		logger:   logging.Named(logger, "scraper"),
	}
}

// Handle dispatches req to its operation and returns the operation result.
func (s *Service) Handle(ctx context.Context, req Request) (any, error) {
	switch req.Type {
	case OpPrepareSquid:
		return s.PrepareSquid(ctx, req)
	case OpAddTasks:
		return s.AddTasks(ctx, req)
	case OpLaunchRun:
		return s.LaunchRun(ctx, req)
	case OpGetStatus:
		return s.GetStatus(ctx, req)
	case OpGetResults, OpSaveIncremental:
		return s.GetResults(ctx, req)
	case OpStartMultiSearch:
		return s.StartMultiSearch(ctx, req)
	case OpStopRun:
		return s.StopRun(ctx, req)
	case OpAbortRun:
		return s.AbortRun(ctx, req)
	case OpGetGeolocation:
		return s.GetGeolocation(ctx, req)
	default:
		return nil, apperr.Newf(apperr.CodeInvalidInput, "scraper", "unknown request type %q", req.Type)
	}
}

func (s *Service) squidID(req Request) string {
	if req.SquidID != "" {
		return req.SquidID
	}
	return s.cfg.SquidID
}

func (s *Service) maxResults(req Request) int {
	if req.MaxResults <= 0 || req.MaxResults > s.cfg.MaxPerSearch {
		return s.cfg.MaxPerSearch
	}
	return req.MaxResults
}

// resolveRun finds the local run named by RunID, then LobstrRunID, then the
// newest run of the user on the squid.
func (s *Service) resolveRun(ctx context.Context, req Request) (leads.Run, error) {
	var (
		run leads.Run
		err error
	)
	switch {
	case req.RunID != "":
		run, err = s.runs.GetRun(ctx, req.RunID)
	case req.LobstrRunID != "":
		run, err = s.runs.FindRunByProviderID(ctx, req.LobstrRunID)
	case s.squidID(req) != "" && req.UserID != "":
		run, err = s.runs.FindRunBySquid(ctx, req.UserID, s.squidID(req))
	default:
		return leads.Run{}, apperr.New(apperr.CodeInvalidInput, "resolve run", "runId or lobstrRunId is required")
	}
	if errors.Is(err, leads.ErrNotFound) {
		return leads.Run{}, apperr.Wrap(apperr.CodeNotFound, "resolve run", err)
	}
	if err != nil {
		return leads.Run{}, apperr.Wrap(apperr.CodeDatabase, "resolve run", err)
	}
	return run, nil
}

func (s *Service) update(ctx context.Context, run leads.Run, u leads.RunUpdate) error {
	if err := s.runs.UpdateRun(ctx, run.ID, u); err != nil {
		return apperr.Wrap(apperr.CodeDatabase, "update run", fmt.Errorf("run %s: %w", run.ID, err))
	}
	return nil
}

// fail marks run failed and releases its squid. The original error is
// returned; a failed status write is only logged.
func (s *Service) fail(ctx context.Context, run leads.Run, cause error) error {
	msg := cause.Error()
	now := s.clock.Now()
	if err := s.runs.UpdateRun(ctx, run.ID, leads.RunUpdate{Status: leads.StatusFailed, Error: &msg, FinishedAt: &now}); err != nil {
		s.logger.Error("mark run failed", zap.String("run", run.ID), zap.Error(err))
	}
	s.release(run)
	s.logger.Warn("scrape run failed", zap.String("run", run.ID), zap.Error(cause))
	return cause
}

func (s *Service) release(run leads.Run) {
	if run.SquidID == "" {
		return
	}
	if s.leaser.Release(run.SquidID, run.UserID) {
		s.logger.Info("squid lease released", zap.String("squid", run.SquidID), zap.String("run", run.ID))
	}
}

func (s *Service) newID() (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "new id", err)
	}
	return id, nil
}

func (s *Service) now() *time.Time {
	t := s.clock.Now()
	return &t
}

func requireFields(op string, fields map[string]string) error {
	var missing []string
	for _, name := range []string{"userId", "query", "location"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.CodeInvalidInput, op, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
