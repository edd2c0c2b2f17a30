package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

// LeadStore is an in-memory implementation of leads.RunStore and
// leads.LeadStore.
type LeadStore struct {
	mu        sync.RWMutex
	runs      map[string]leads.Run
	campaigns map[string]leads.Campaign
	leads     []leads.Lead
}

var (
	_ leads.RunStore  = (*LeadStore)(nil)
	_ leads.LeadStore = (*LeadStore)(nil)
)

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{
		runs:      make(map[string]leads.Run),
		campaigns: make(map[string]leads.Campaign),
	}
}

// UpsertRun replaces the standalone run of the same user and squid, keeping
// its ID. Multi-search children are never matched. When several standalone
// runs exist the newest is replaced.
func (s *LeadStore) UpsertRun(_ context.Context, run leads.Run) (leads.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.SquidID == "" || run.ParentCampaignID != "" {
		return s.insertLocked(run)
	}
	var (
		match leads.Run
		found bool
	)
	for _, existing := range s.runs {
		if existing.UserID != run.UserID || existing.SquidID != run.SquidID || existing.ParentCampaignID != "" {
			continue
		}
		if !found || newer(existing, match) {
			match, found = existing, true
		}
	}
	if !found {
		return s.insertLocked(run)
	}
	run.ID = match.ID
	run.CreatedAt = match.CreatedAt
	run.RunID, run.ResultsCount, run.SavedCount = "", 0, 0
	run.Error, run.StartedAt, run.FinishedAt = "", nil, nil
	s.runs[run.ID] = run
	return run, nil
}

func newer(a, b leads.Run) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// InsertRun stores a new run.
func (s *LeadStore) InsertRun(_ context.Context, run leads.Run) (leads.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(run)
}

func (s *LeadStore) insertLocked(run leads.Run) (leads.Run, error) {
	if run.ID == "" {
		return leads.Run{}, fmt.Errorf("run id is required")
	}
	if _, exists := s.runs[run.ID]; exists {
		return leads.Run{}, fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.runs[run.ID] = run
	return run, nil
}

// GetRun fetches a run by its local ID.
func (s *LeadStore) GetRun(_ context.Context, id string) (leads.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return leads.Run{}, leads.ErrNotFound
	}
	return run, nil
}

// FindRunByProviderID fetches a run by its provider run ID.
func (s *LeadStore) FindRunByProviderID(_ context.Context, providerRunID string) (leads.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		if run.RunID == providerRunID && providerRunID != "" {
			return run, nil
		}
	}
	return leads.Run{}, leads.ErrNotFound
}

// FindRunBySquid returns the newest run of a user on a squid.
func (s *LeadStore) FindRunBySquid(_ context.Context, userID, squidID string) (leads.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  leads.Run
		found bool
	)
	for _, run := range s.runs {
		if run.UserID != userID || run.SquidID != squidID {
			continue
		}
		if !found || newer(run, best) {
			best, found = run, true
		}
	}
	if !found {
		return leads.Run{}, leads.ErrNotFound
	}
	return best, nil
}

// UpdateRun applies the non-nil fields of update.
func (s *LeadStore) UpdateRun(_ context.Context, id string, u leads.RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return leads.ErrNotFound
	}
	if u.Status != "" {
		run.Status = u.Status
	}
	if u.RunID != nil {
		run.RunID = *u.RunID
	}
	if u.ResultsCount != nil {
		run.ResultsCount = *u.ResultsCount
	}
	if u.SavedCount != nil {
		run.SavedCount = *u.SavedCount
	}
	if u.Error != nil {
		run.Error = *u.Error
	}
	if u.StartedAt != nil {
		ts := *u.StartedAt
		run.StartedAt = &ts
	}
	if u.FinishedAt != nil {
		ts := *u.FinishedAt
		run.FinishedAt = &ts
	}
	s.runs[id] = run
	return nil
}

// CreateCampaign stores a multi-search parent.
func (s *LeadStore) CreateCampaign(_ context.Context, c leads.Campaign) (leads.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.campaigns[c.ID] = c
	return c, nil
}

// UpdateCampaignStatus sets a campaign's status.
func (s *LeadStore) UpdateCampaignStatus(_ context.Context, id string, status leads.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return leads.ErrNotFound
	}
	c.Status = status
	s.campaigns[id] = c
	return nil
}

// InsertLeads appends leads.
func (s *LeadStore) InsertLeads(_ context.Context, batch []leads.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, batch...)
	return len(batch), nil
}

// Campaign returns a stored campaign.
func (s *LeadStore) Campaign(id string) (leads.Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	return c, ok
}

// Runs returns every run ordered by creation time.
func (s *LeadStore) Runs() []leads.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leads.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Leads returns the leads saved for a provider run, in insertion order.
func (s *LeadStore) Leads(runID string) []leads.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leads.Lead
	for _, l := range s.leads {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out
}
