package scraper

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

// MultiSearchResult is the campaign, its child runs and the first launch.
type MultiSearchResult struct {
	Campaign       leads.Campaign  `json:"campaign"`
	Runs           []leads.Run     `json:"runs"`
	SearchesNeeded int             `json:"searchesNeeded"`
	Prepared       *PrepareResult  `json:"prepared,omitempty"`
	Tasks          *AddTasksResult `json:"tasks,omitempty"`
	Launched       *LaunchResult   `json:"launched,omitempty"`
}

// SearchesNeeded is ceil(target/perSearch).
func SearchesNeeded(target, perSearch int) int {
	if target <= 0 || perSearch <= 0 {
		return 0
	}
	return (target + perSearch - 1) / perSearch
}

// StartMultiSearch splits a target above the single-search ceiling into
// child runs under one campaign and launches the first child. The remaining
// children stay planned; launch_run on one of them prepares the squid and
// submits its task first.
func (s *Service) StartMultiSearch(ctx context.Context, req Request) (MultiSearchResult, error) {
	if err := requireFields(OpStartMultiSearch, map[string]string{"userId": req.UserID, "query": req.Query, "location": req.Location}); err != nil {
		return MultiSearchResult{}, err
	}
	if req.TargetLeads <= 0 {
		return MultiSearchResult{}, apperr.New(apperr.CodeInvalidInput, OpStartMultiSearch, "targetLeads must be positive")
	}
	squidID := s.squidID(req)
	if squidID == "" {
		return MultiSearchResult{}, apperr.New(apperr.CodeInvalidInput, OpStartMultiSearch, "squidId is required")
	}
	per := s.cfg.MaxPerSearch
	n := SearchesNeeded(req.TargetLeads, per)

	campaignID, err := s.newID()
	if err != nil {
		return MultiSearchResult{}, err
	}
	campaign, err := s.runs.CreateCampaign(ctx, leads.Campaign{
		ID:             campaignID,
		UserID:         req.UserID,
		Query:          req.Query,
		Location:       req.Location,
		TargetLeads:    req.TargetLeads,
		AbortLimit:     req.TargetLeads,
		SearchesNeeded: n,
		Status:         leads.StatusPlanned,
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return MultiSearchResult{}, apperr.Wrap(apperr.CodeDatabase, OpStartMultiSearch, err)
	}
	res := MultiSearchResult{Campaign: campaign, SearchesNeeded: n}

	remaining := req.TargetLeads
	for i := 0; i < n; i++ {
		limit := min(per, remaining)
		remaining -= limit
		id, err := s.newID()
		if err != nil {
			return res, err
		}
		child, err := s.runs.InsertRun(ctx, leads.Run{
			ID:               id,
			UserID:           req.UserID,
			SquidID:          squidID,
			Query:            req.Query,
			Location:         req.Location,
			MaxResults:       limit,
			AbortLimit:       limit,
			Status:           leads.StatusPlanned,
			ParentCampaignID: campaign.ID,
			CreatedAt:        s.clock.Now(),
		})
		if err != nil {
			return res, apperr.Wrap(apperr.CodeDatabase, OpStartMultiSearch, err)
		}
		res.Runs = append(res.Runs, child)
	}

	first := res.Runs[0]
	if err := s.launchChild(ctx, req, first, &res); err != nil {
		if uerr := s.runs.UpdateCampaignStatus(ctx, campaign.ID, leads.StatusFailed); uerr != nil {
			s.logger.Error("mark campaign failed", zap.String("campaign", campaign.ID), zap.Error(uerr))
		}
		res.Campaign.Status = leads.StatusFailed
		return res, err
	}
	if err := s.runs.UpdateCampaignStatus(ctx, campaign.ID, leads.StatusRunning); err != nil {
		return res, apperr.Wrap(apperr.CodeDatabase, OpStartMultiSearch, err)
	}
	res.Campaign.Status = leads.StatusRunning
	res.Runs[0] = res.Launched.Run
	s.logger.Info("multi-search started",
		zap.String("campaign", campaign.ID),
		zap.Int("target", req.TargetLeads),
		zap.Int("searches", n))
	return res, nil
}

// launchChild prepares the squid, submits the child's task and launches it.
func (s *Service) launchChild(ctx context.Context, req Request, child leads.Run, res *MultiSearchResult) error {
	if err := s.leaser.Check(child.SquidID, child.UserID, req.LeaseToken); err != nil {
		return err
	}
	lease, err := s.leaser.Acquire(child.SquidID, child.UserID)
	if err != nil {
		return err
	}
	prepared, err := s.prepare(ctx, child.SquidID, child.Limit())
	if err != nil {
		return s.fail(ctx, child, err)
	}
	res.Prepared = &prepared
	tasks, err := s.submitTasks(ctx, child, req.Language)
	if err != nil {
		return err
	}
	res.Tasks = &tasks
	launched, err := s.launch(ctx, tasks.Run, lease.Token)
	if err != nil {
		return err
	}
	res.Launched = &launched
	return nil
}
