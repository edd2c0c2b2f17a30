package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

func newLeadStore(t *testing.T) (*LeadStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := NewLeadStore(mock)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func runRow(mock pgxmock.PgxPoolIface, id, status string, saved int) *pgxmock.Rows {
	return mock.NewRows(runColumns).AddRow(
		id, "user-1", strPtr("squid-1"), strPtr("prov-1"), "plumbers", "Austin, US", 200, 150,
		status, 0, saved, (*string)(nil), (*string)(nil),
		(*time.Time)(nil), (*time.Time)(nil), fixedNow,
	)
}

func TestUpsertRunResetsOnConflict(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id, squid_id) WHERE parent_campaign_id IS NULL DO UPDATE")).
		WithArgs("run-1", "user-1", "squid-1", "plumbers", "Austin, US", 200, 150, "tasks_being_added", nil, fixedNow).
		WillReturnRows(runRow(mock, "run-1", "tasks_being_added", 0))

	run, err := s.UpsertRun(context.Background(), leads.Run{
		ID: "run-1", UserID: "user-1", SquidID: "squid-1", Query: "plumbers", Location: "Austin, US",
		MaxResults: 200, AbortLimit: 150, Status: leads.StatusTasksBeingAdded,
	})
	require.NoError(t, err)
	require.Equal(t, "squid-1", run.SquidID)
	require.Equal(t, "prov-1", run.RunID)
	require.Equal(t, 150, run.Limit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRunInsertsCampaignChildWithoutConflictTarget(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectQuery(`INSERT INTO lobstr_runs .* VALUES \([^)]*\) RETURNING id`).
		WithArgs("run-2", "user-1", "squid-1", "plumbers", "Austin, US", 200, 200, "planned", "camp-1", fixedNow).
		WillReturnRows(runRow(mock, "run-2", "planned", 0))

	_, err := s.UpsertRun(context.Background(), leads.Run{
		ID: "run-2", UserID: "user-1", SquidID: "squid-1", Query: "plumbers", Location: "Austin, US",
		MaxResults: 200, AbortLimit: 200, Status: leads.StatusPlanned, ParentCampaignID: "camp-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectQuery("FROM lobstr_runs").WithArgs("nope").WillReturnRows(mock.NewRows(runColumns))

	_, err := s.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, leads.ErrNotFound)
}

func TestFindRunBySquid(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT 1")).
		WithArgs("squid-1", "user-1").
		WillReturnRows(runRow(mock, "run-1", "running", 3))

	run, err := s.FindRunBySquid(context.Background(), "user-1", "squid-1")
	require.NoError(t, err)
	require.Equal(t, leads.StatusRunning, run.Status)
	require.Equal(t, 3, run.SavedCount)
}

func TestUpdateRunSetsOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	saved := 12
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lobstr_runs SET updated_at = $1, status = $2, saved_count = $3 WHERE id = $4")).
		WithArgs(fixedNow, "completed", 12, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRun(context.Background(), "run-1", leads.RunUpdate{Status: leads.StatusCompleted, SavedCount: &saved})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE lobstr_runs").WithArgs(fixedNow, "failed", "run-2").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = s.UpdateRun(context.Background(), "run-2", leads.RunUpdate{Status: leads.StatusFailed})
	require.ErrorIs(t, err, leads.ErrNotFound)
}

func TestCreateCampaign(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectExec("INSERT INTO scraping_runs").
		WithArgs("camp-1", "user-1", "plumbers", "Austin, US", 500, 500, 3, "running", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c, err := s.CreateCampaign(context.Background(), leads.Campaign{
		ID: "camp-1", UserID: "user-1", Query: "plumbers", Location: "Austin, US",
		TargetLeads: 500, AbortLimit: 500, SearchesNeeded: 3, Status: leads.StatusRunning,
	})
	require.NoError(t, err)
	require.Equal(t, fixedNow, c.CreatedAt)
}

func TestInsertLeadsBatch(t *testing.T) {
	t.Parallel()

	s, mock := newLeadStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO business_leads")).
		WithArgs(anyArgs(28)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := s.InsertLeads(context.Background(), []leads.Lead{
		{RunID: "prov-1", Name: "A", ScrapedSequence: 1},
		{RunID: "prov-1", Name: "B", ScrapedSequence: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.InsertLeads(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
