package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

var runColumns = []string{
	"id", "user_id", "squid_id", "run_id", "query", "location", "max_results", "abort_limit",
	"status", "results_count", "saved_count", "parent_campaign_id", "error",
	"started_at", "finished_at", "created_at",
}

// LeadStore implements leads.RunStore and leads.LeadStore over lobstr_runs,
// scraping_runs and business_leads.
type LeadStore struct {
	db  DB
	now func() time.Time
}

var (
	_ leads.RunStore  = (*LeadStore)(nil)
	_ leads.LeadStore = (*LeadStore)(nil)
)

// NewLeadStore wraps a pool or pgxmock pool.
func NewLeadStore(db DB) *LeadStore {
	return &LeadStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (leads.Run, error) {
	var r leads.Run
	var status string
	var squid, runID, parent, msg *string
	err := row.Scan(
		&r.ID, &r.UserID, &squid, &runID, &r.Query, &r.Location, &r.MaxResults, &r.AbortLimit,
		&status, &r.ResultsCount, &r.SavedCount, &parent, &msg,
		&r.StartedAt, &r.FinishedAt, &r.CreatedAt,
	)
	if err != nil {
		return leads.Run{}, err
	}
	r.Status = leads.RunStatus(status)
	r.SquidID, r.RunID, r.ParentCampaignID, r.Error = deref(squid), deref(runID), deref(parent), deref(msg)
	return r, nil
}

func (s *LeadStore) queryRun(ctx context.Context, op string, b sq.SelectBuilder) (leads.Run, error) {
	query, args, err := build(op, b)
	if err != nil {
		return leads.Run{}, err
	}
	run, err := scanRun(s.db.QueryRow(ctx, query, args...))
	if isNoRows(err) {
		return leads.Run{}, fmt.Errorf("%s: %w", op, leads.ErrNotFound)
	}
	if err != nil {
		return leads.Run{}, dbError(op, err)
	}
	return run, nil
}

// UpsertRun creates the standalone run for a user and squid, or resets the
// existing row so retried add_tasks calls do not duplicate it. The conflict
// target is the partial unique index
//
//	CREATE UNIQUE INDEX lobstr_runs_standalone_squid
//	    ON lobstr_runs (user_id, squid_id) WHERE parent_campaign_id IS NULL;
//
// so multi-search children sharing the squid are inserted with InsertRun and
// never collide with it.
func (s *LeadStore) UpsertRun(ctx context.Context, run leads.Run) (leads.Run, error) {
	if run.ParentCampaignID != "" {
		return s.insertRun(ctx, "upsert run", run, "")
	}
	return s.insertRun(ctx, "upsert run", run, `ON CONFLICT (user_id, squid_id) WHERE parent_campaign_id IS NULL DO UPDATE SET
	query = EXCLUDED.query,
	location = EXCLUDED.location,
	max_results = EXCLUDED.max_results,
	abort_limit = EXCLUDED.abort_limit,
	status = EXCLUDED.status,
	run_id = NULL,
	results_count = 0,
	saved_count = 0,
	error = NULL,
	started_at = NULL,
	finished_at = NULL`)
}

// InsertRun creates a run row.
func (s *LeadStore) InsertRun(ctx context.Context, run leads.Run) (leads.Run, error) {
	return s.insertRun(ctx, "insert run", run, "")
}

func (s *LeadStore) insertRun(ctx context.Context, op string, run leads.Run, conflict string) (leads.Run, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	b := psql.
		Insert("lobstr_runs").
		Columns("id", "user_id", "squid_id", "query", "location", "max_results", "abort_limit",
			"status", "parent_campaign_id", "created_at").
		Values(run.ID, run.UserID, nullable(run.SquidID), run.Query, run.Location, run.MaxResults, run.AbortLimit,
			string(run.Status), nullable(run.ParentCampaignID), run.CreatedAt)
	if conflict != "" {
		b = b.Suffix(conflict)
	}
	b = b.Suffix("RETURNING " + strings.Join(runColumns, ", "))
	query, args, err := build(op, b)
	if err != nil {
		return leads.Run{}, err
	}
	out, err := scanRun(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return leads.Run{}, dbError(op, err)
	}
	return out, nil
}

// GetRun reads a run by its local ID.
func (s *LeadStore) GetRun(ctx context.Context, id string) (leads.Run, error) {
	return s.queryRun(ctx, "get run", psql.Select(runColumns...).From("lobstr_runs").Where(sq.Eq{"id": id}))
}

// FindRunByProviderID reads a run by its Lobstr run ID.
func (s *LeadStore) FindRunByProviderID(ctx context.Context, providerRunID string) (leads.Run, error) {
	return s.queryRun(ctx, "find run by provider id", psql.
		Select(runColumns...).From("lobstr_runs").Where(sq.Eq{"run_id": providerRunID}))
}

// FindRunBySquid returns the newest run of a user on a squid.
func (s *LeadStore) FindRunBySquid(ctx context.Context, userID, squidID string) (leads.Run, error) {
	return s.queryRun(ctx, "find run by squid", psql.
		Select(runColumns...).From("lobstr_runs").
		Where(sq.Eq{"squid_id": squidID, "user_id": userID}).
		OrderBy("created_at DESC").
		Limit(1))
}

// UpdateRun applies the non-nil fields of update.
func (s *LeadStore) UpdateRun(ctx context.Context, id string, update leads.RunUpdate) error {
	const op = "update run"
	b := psql.Update("lobstr_runs").Set("updated_at", s.now())
	if update.Status != "" {
		b = b.Set("status", string(update.Status))
	}
	if update.RunID != nil {
		b = b.Set("run_id", *update.RunID)
	}
	if update.ResultsCount != nil {
		b = b.Set("results_count", *update.ResultsCount)
	}
	if update.SavedCount != nil {
		b = b.Set("saved_count", *update.SavedCount)
	}
	if update.Error != nil {
		b = b.Set("error", *update.Error)
	}
	if update.StartedAt != nil {
		b = b.Set("started_at", *update.StartedAt)
	}
	if update.FinishedAt != nil {
		b = b.Set("finished_at", *update.FinishedAt)
	}
	query, args, err := build(op, b.Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return dbError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, id, leads.ErrNotFound)
	}
	return nil
}

// CreateCampaign inserts the parent row of a multi-search.
func (s *LeadStore) CreateCampaign(ctx context.Context, c leads.Campaign) (leads.Campaign, error) {
	const op = "create campaign"
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	query, args, err := build(op, psql.
		Insert("scraping_runs").
		Columns("id", "user_id", "query", "location", "target_leads", "abort_limit", "searches_needed", "status", "created_at").
		Values(c.ID, c.UserID, c.Query, c.Location, c.TargetLeads, c.AbortLimit, c.SearchesNeeded, string(c.Status), c.CreatedAt))
	if err != nil {
		return leads.Campaign{}, err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return leads.Campaign{}, dbError(op, err)
	}
	return c, nil
}

// UpdateCampaignStatus sets the status of a multi-search parent.
func (s *LeadStore) UpdateCampaignStatus(ctx context.Context, id string, status leads.RunStatus) error {
	const op = "update campaign status"
	query, args, err := build(op, psql.
		Update("scraping_runs").
		Set("status", string(status)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return dbError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, id, leads.ErrNotFound)
	}
	return nil
}

// InsertLeads appends leads in one statement and returns the inserted count.
func (s *LeadStore) InsertLeads(ctx context.Context, batch []leads.Lead) (int, error) {
	const op = "insert leads"
	if len(batch) == 0 {
		return 0, nil
	}
	b := psql.Insert("business_leads").Columns(
		"run_id", "user_id", "name", "address", "phone", "website", "rating", "reviews_count",
		"category", "latitude", "longitude", "place_id", "scraped_sequence", "scraped_at")
	for _, l := range batch {
		at := l.ScrapedAt
		if at.IsZero() {
			at = s.now()
		}
		b = b.Values(l.RunID, nullable(l.UserID), l.Name, nullable(l.Address), nullable(l.Phone), nullable(l.Website),
			l.Rating, l.ReviewsCount, nullable(l.Category), l.Latitude, l.Longitude, nullable(l.PlaceID),
			l.ScrapedSequence, at)
	}
	query, args, err := build(op, b)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, dbError(op, err)
	}
	return int(tag.RowsAffected()), nil
}
