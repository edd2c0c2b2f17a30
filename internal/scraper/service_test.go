package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

// fakeProvider records calls in order and serves scripted responses.
type fakeProvider struct {
	mu        sync.Mutex
	calls     []string
	tasks     []string
	deleteErr map[string]error
	settings  leads.SquidSettings
	added     []leads.TaskSpec
	launches  int
	launchErr error
	run       leads.ProviderRun
	abortErr  error
	stopErr   error
	results   [][]leads.Lead
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) GetSquid(_ context.Context, id string) (leads.Squid, error) {
	f.record("get_squid")
	return leads.Squid{ID: id, MaxResults: 50}, nil
}

func (f *fakeProvider) UpdateSquid(_ context.Context, _ string, s leads.SquidSettings) error {
	f.record("update_squid")
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) ListTasks(context.Context, string) ([]string, error) {
	f.record("list_tasks")
	return f.tasks, nil
}

func (f *fakeProvider) DeleteTask(_ context.Context, id string) error {
	f.record("delete_task")
	return f.deleteErr[id]
}

func (f *fakeProvider) AddTasks(_ context.Context, _ string, tasks []leads.TaskSpec) ([]string, error) {
	f.record("add_tasks")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, tasks...)
	return []string{fmt.Sprintf("task-%d", len(f.added))}, nil
}

func (f *fakeProvider) LaunchRun(context.Context, string) (leads.ProviderRun, error) {
	f.record("launch_run")
	if f.launchErr != nil {
		return leads.ProviderRun{}, f.launchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	return leads.ProviderRun{ID: fmt.Sprintf("lobstr-%d", f.launches), Status: "running"}, nil
}

func (f *fakeProvider) GetRun(_ context.Context, id string) (leads.ProviderRun, error) {
	f.record("get_run")
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.run
	r.ID = id
	return r, nil
}

func (f *fakeProvider) AbortRun(context.Context, string) error {
	f.record("abort_run")
	return f.abortErr
}

func (f *fakeProvider) StopRun(context.Context, string) error {
	f.record("stop_run")
	return f.stopErr
}

func (f *fakeProvider) ListResults(_ context.Context, _ string, limit int) ([]leads.Lead, error) {
	f.record("list_results")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return nil, nil
	}
	batch := f.results[0]
	f.results = f.results[1:]
	out := append([]leads.Lead(nil), batch...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func makeLeads(n int) []leads.Lead {
	out := make([]leads.Lead, n)
	for i := range out {
		out[i] = leads.Lead{Name: fmt.Sprintf("Business %d", i+1), PlaceID: fmt.Sprintf("place-%d", i+1)}
	}
	return out
}

type fixture struct {
	svc      *Service
	provider *fakeProvider
	store    *memory.LeadStore
	leaser   *Leaser
}

func newFixture(provider *fakeProvider) *fixture {
	clock := newFakeClock()
	ids := &seqIDs{}
	store := memory.NewLeadStore()
	leaser := NewLeaser(time.Hour, clock, ids)
	svc := NewService(Config{SquidID: "squid-1", MaxPerSearch: 200, DeleteParallelism: 2, Language: "en"},
		provider, store, store, leaser, clock, ids, nil)
	return &fixture{svc: svc, provider: provider, store: store, leaser: leaser}
}

func (f *fixture) launchRun(t *testing.T, maxResults int) leads.Run {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.PrepareSquid(ctx, Request{Type: OpPrepareSquid, UserID: "user-1", MaxResults: maxResults})
	require.NoError(t, err)
	added, err := f.svc.AddTasks(ctx, Request{Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX", MaxResults: maxResults})
	require.NoError(t, err)
	launched, err := f.svc.LaunchRun(ctx, Request{Type: OpLaunchRun, RunID: added.Run.ID})
	require.NoError(t, err)
	return launched.Run
}

func TestPrepareSquidToleratesDeleteFailures(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		tasks:     []string{"t1", "t2", "t3", "t4"},
		deleteErr: map[string]error{"t3": errors.New("500")},
	}
	f := newFixture(p)

	res, err := f.svc.PrepareSquid(context.Background(), Request{Type: OpPrepareSquid, UserID: "user-1", MaxResults: 500})
	require.NoError(t, err)
	require.Equal(t, 4, res.TasksFound)
	require.Equal(t, 3, res.TasksDeleted)
	require.Equal(t, []string{"t3"}, res.FailedDeletes)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, leads.SquidSettings{MaxResults: 200, UniqueResults: true, Concurrency: 1}, p.settings)
	require.Equal(t, "user-1", res.Lease.Holder)

	_, err = f.svc.PrepareSquid(context.Background(), Request{Type: OpPrepareSquid, UserID: "user-2"})
	require.True(t, errors.Is(err, apperr.ErrConflict))
	require.Equal(t, 409, apperr.HTTPStatus(err))
}

func TestAddTasksChoosesTaskModeAndUpserts(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	f := newFixture(p)
	ctx := context.Background()

	first, err := f.svc.AddTasks(ctx, Request{Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX"})
	require.NoError(t, err)
	require.Equal(t, "parameters", first.TaskMode)
	require.Equal(t, leads.StatusTasksBeingAdded, first.Run.Status)
	require.Equal(t, 200, first.Run.AbortLimit)

	retry, err := f.svc.AddTasks(ctx, Request{Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Berlin", MaxResults: 50})
	require.NoError(t, err)
	require.Equal(t, "url", retry.TaskMode)
	require.Equal(t, first.Run.ID, retry.Run.ID)
	require.Len(t, f.store.Runs(), 1)
	require.Len(t, p.added, 2)
	require.True(t, p.added[0].Parametric())
	require.False(t, p.added[1].Parametric())

	_, err = f.svc.AddTasks(ctx, Request{Type: OpAddTasks, UserID: "user-1", Query: "dentists"})
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestLaunchRunCreditsExhausted(t *testing.T) {
	t.Parallel()

	credits := apperr.New(apperr.CodeCreditsExhausted, "launch run", "no credits left").WithDetail("type", "no_credits")
	p := &fakeProvider{launchErr: credits}
	f := newFixture(p)
	ctx := context.Background()

	added, err := f.svc.AddTasks(ctx, Request{Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX"})
	require.NoError(t, err)
	_, err = f.svc.LaunchRun(ctx, Request{Type: OpLaunchRun, RunID: added.Run.ID})
	require.True(t, errors.Is(err, apperr.ErrCreditsExhausted))
	require.Equal(t, 402, apperr.HTTPStatus(err))

	run, err := f.store.GetRun(ctx, added.Run.ID)
	require.NoError(t, err)
	require.Equal(t, leads.StatusFailed, run.Status)
	require.Contains(t, run.Error, "no credits left")
	_, held := f.leaser.Current("squid-1")
	require.False(t, held)
}

func TestGetResultsAbortsWhenTargetReached(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: [][]leads.Lead{makeLeads(60)}}
	f := newFixture(p)
	run := f.launchRun(t, 50)
	p.run = leads.ProviderRun{Status: "running", TotalResults: 57}

	res, err := f.svc.GetResults(context.Background(), Request{Type: OpGetResults, RunID: run.ID})
	require.NoError(t, err)
	require.True(t, res.TargetReached)
	require.Equal(t, leads.AbortMethodAbort, res.AbortMethod)
	require.Equal(t, 50, res.Saved)
	require.Equal(t, leads.StatusCompleted, res.Run.Status)

	calls := p.Calls()
	abortAt, listAt := indexOf(calls, "abort_run"), indexOf(calls, "list_results")
	require.GreaterOrEqual(t, abortAt, 0)
	require.Less(t, abortAt, listAt, "abort must happen before results are read")

	stored, err := f.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, leads.StatusCompleted, stored.Status)
	require.NotNil(t, stored.FinishedAt)
	require.Equal(t, 50, stored.SavedCount)
	_, held := f.leaser.Current("squid-1")
	require.False(t, held)
}

func TestGetResultsFallsBackToStop(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{abortErr: errors.New("abort unsupported"), results: [][]leads.Lead{makeLeads(5)}}
	f := newFixture(p)
	run := f.launchRun(t, 5)
	p.run = leads.ProviderRun{Status: "running", TotalResults: 5}

	res, err := f.svc.GetResults(context.Background(), Request{Type: OpGetResults, RunID: run.ID})
	require.NoError(t, err)
	require.Equal(t, leads.AbortMethodStop, res.AbortMethod)
	require.Contains(t, p.Calls(), "stop_run")
	require.NotEqual(t, leads.StatusRunning, res.Run.Status)
}

func TestSaveIncrementalSequenceIsMonotonicPerRun(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: [][]leads.Lead{makeLeads(3), makeLeads(2)}}
	f := newFixture(p)
	ctx := context.Background()
	run := f.launchRun(t, 200)
	p.run = leads.ProviderRun{Status: "running", TotalResults: 3}

	first, err := f.svc.GetResults(ctx, Request{Type: OpSaveIncremental, RunID: run.ID})
	require.NoError(t, err)
	require.Equal(t, leads.StatusRunning, first.Run.Status)
	second, err := f.svc.Handle(ctx, Request{Type: OpSaveIncremental, LobstrRunID: run.RunID})
	require.NoError(t, err)
	require.Equal(t, 5, second.(ResultsResult).Run.SavedCount)

	require.Equal(t, []int{1, 2, 3, 4, 5}, sequences(f.store.Leads(run.RunID)))

	// A second run for the same query restarts the sequence.
	p.results = [][]leads.Lead{makeLeads(2)}
	p.run = leads.ProviderRun{Status: "running"}
	next := f.launchRun(t, 200)
	require.Equal(t, run.ID, next.ID)
	require.NotEqual(t, run.RunID, next.RunID)
	p.run = leads.ProviderRun{Done: true, Status: "done", TotalResults: 2}
	done, err := f.svc.GetResults(ctx, Request{Type: OpGetResults, RunID: next.ID})
	require.NoError(t, err)
	require.Equal(t, leads.StatusCompleted, done.Run.Status)
	require.Equal(t, []int{1, 2}, sequences(f.store.Leads(next.RunID)))
}

func TestStartMultiSearchSplitsTarget(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	f := newFixture(p)

	res, err := f.svc.StartMultiSearch(context.Background(), Request{
		Type:        OpStartMultiSearch,
		UserID:      "user-1",
		Query:       "plumbers",
		Location:    "Denver, CO",
		TargetLeads: 500,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.SearchesNeeded)
	require.Equal(t, 500, res.Campaign.AbortLimit)
	require.Equal(t, leads.StatusRunning, res.Campaign.Status)

	stored, ok := f.store.Campaign(res.Campaign.ID)
	require.True(t, ok)
	require.Equal(t, 500, stored.AbortLimit)

	runs := f.store.Runs()
	require.Len(t, runs, 3)
	limits := make([]int, 0, len(runs))
	statuses := map[leads.RunStatus]int{}
	for _, r := range runs {
		require.Equal(t, res.Campaign.ID, r.ParentCampaignID)
		limits = append(limits, r.AbortLimit)
		statuses[r.Status]++
	}
	sort.Ints(limits)
	require.Equal(t, []int{100, 200, 200}, limits)
	require.Equal(t, 1, statuses[leads.StatusRunning])
	require.Equal(t, 2, statuses[leads.StatusPlanned])
	require.NotNil(t, res.Launched)
	require.Equal(t, 1, p.launches)
}

func startMultiSearch(t *testing.T, f *fixture) MultiSearchResult {
	t.Helper()
	res, err := f.svc.StartMultiSearch(context.Background(), Request{
		Type:        OpStartMultiSearch,
		UserID:      "user-1",
		Query:       "plumbers",
		Location:    "Denver, CO",
		TargetLeads: 500,
	})
	require.NoError(t, err)
	return res
}

func campaignRuns(f *fixture, campaignID string) []leads.Run {
	var out []leads.Run
	for _, r := range f.store.Runs() {
		if r.ParentCampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out
}

func TestAddTasksKeepsMultiSearchChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{})
	res := startMultiSearch(t, f)

	added, err := f.svc.AddTasks(context.Background(), Request{
		Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX",
	})
	require.NoError(t, err)
	require.Empty(t, added.Run.ParentCampaignID)

	children := campaignRuns(f, res.Campaign.ID)
	require.Len(t, children, 3)
	for _, c := range children {
		require.Equal(t, "plumbers", c.Query)
	}
	require.Len(t, f.store.Runs(), 4)
}

func TestLaunchRunPreparesPlannedChild(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	f := newFixture(p)
	res := startMultiSearch(t, f)

	var planned leads.Run
	for _, c := range campaignRuns(f, res.Campaign.ID) {
		if c.Status == leads.StatusPlanned {
			planned = c
			break
		}
	}
	require.NotEmpty(t, planned.ID)
	before := len(p.Calls())

	launched, err := f.svc.LaunchRun(context.Background(), Request{Type: OpLaunchRun, RunID: planned.ID})
	require.NoError(t, err)
	require.Equal(t, leads.StatusRunning, launched.Run.Status)
	require.Equal(t, res.Campaign.ID, launched.Run.ParentCampaignID)
	require.Equal(t, 2, p.launches)
	require.Len(t, p.added, 2)
	require.Equal(t, planned.Limit(), p.settings.MaxResults)

	calls := p.Calls()[before:]
	seq := []string{"list_tasks", "update_squid", "add_tasks", "launch_run"}
	last := -1
	for _, c := range seq {
		i := indexOf(calls, c)
		require.Greater(t, i, last, "%s out of order in %v", c, calls)
		last = i
	}

	stored, err := f.store.GetRun(context.Background(), planned.ID)
	require.NoError(t, err)
	require.Equal(t, leads.StatusRunning, stored.Status)
	require.NotEmpty(t, stored.RunID)
}

func TestLeaseTokenIsVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{})
	ctx := context.Background()
	prepared, err := f.svc.PrepareSquid(ctx, Request{Type: OpPrepareSquid, UserID: "user-1"})
	require.NoError(t, err)

	_, err = f.svc.AddTasks(ctx, Request{
		Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX", LeaseToken: "stale",
	})
	require.True(t, errors.Is(err, apperr.ErrConflict))

	added, err := f.svc.AddTasks(ctx, Request{
		Type: OpAddTasks, UserID: "user-1", Query: "dentists", Location: "Austin, TX", LeaseToken: prepared.Lease.Token,
	})
	require.NoError(t, err)

	_, err = f.svc.LaunchRun(ctx, Request{Type: OpLaunchRun, RunID: added.Run.ID, LeaseToken: "stale"})
	require.True(t, errors.Is(err, apperr.ErrConflict))
	launched, err := f.svc.LaunchRun(ctx, Request{Type: OpLaunchRun, RunID: added.Run.ID, LeaseToken: prepared.Lease.Token})
	require.NoError(t, err)
	require.Equal(t, leads.StatusRunning, launched.Run.Status)
}

func TestAbortRunFallsBackToStop(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{abortErr: errors.New("abort failed")}
	f := newFixture(p)
	run := f.launchRun(t, 100)

	res, err := f.svc.AbortRun(context.Background(), Request{Type: OpAbortRun, RunID: run.ID})
	require.NoError(t, err)
	require.Equal(t, leads.AbortMethodStop, res.Method)
	require.Equal(t, leads.StatusAborted, res.Run.Status)
	require.NotNil(t, res.Run.FinishedAt)
	_, held := f.leaser.Current("squid-1")
	require.False(t, held)

	p.stopErr = errors.New("stop failed")
	_, err = f.svc.AbortRun(context.Background(), Request{Type: OpAbortRun, RunID: run.ID})
	require.ErrorContains(t, err, "stop failed")
}

func TestStopRun(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{})
	run := f.launchRun(t, 100)

	res, err := f.svc.StopRun(context.Background(), Request{Type: OpStopRun, LobstrRunID: run.RunID})
	require.NoError(t, err)
	require.Equal(t, leads.StatusStopped, res.Run.Status)
	stored, err := f.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, leads.StatusStopped, stored.Status)
}

func TestGetStatusMessages(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{run: leads.ProviderRun{Status: "running", TotalResults: 12}}
	f := newFixture(p)

	res, err := f.svc.GetStatus(context.Background(), Request{Type: OpGetStatus, LobstrRunID: "lobstr-9"})
	require.NoError(t, err)
	require.Equal(t, "Scraping in progress", res.Message)
	require.Equal(t, 12, res.TotalResults)

	require.Equal(t, "Scraping complete", StatusMessage(leads.ProviderRun{Done: true}))
	require.Equal(t, "Run was stopped", StatusMessage(leads.ProviderRun{Status: "aborted"}))
	require.Equal(t, "Run failed", StatusMessage(leads.ProviderRun{Status: "error"}))
	require.Equal(t, "Unknown run status: weird", StatusMessage(leads.ProviderRun{Status: "weird"}))
}

func TestHandleRejectsUnknownTypeAndMissingRun(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeProvider{})
	_, err := f.svc.Handle(context.Background(), Request{Type: "explode"})
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = f.svc.Handle(context.Background(), Request{Type: OpGetResults, RunID: "missing"})
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	geo, err := f.svc.Handle(context.Background(), Request{Type: OpGetGeolocation, Query: "cafes", Location: "Lyon, France"})
	require.NoError(t, err)
	require.Equal(t, "parameters", geo.(GeoResult).TaskMode)
}

func TestSearchesNeeded(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, SearchesNeeded(500, 200))
	require.Equal(t, 1, SearchesNeeded(200, 200))
	require.Equal(t, 2, SearchesNeeded(201, 200))
	require.Equal(t, 0, SearchesNeeded(0, 200))
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

func sequences(batch []leads.Lead) []int {
	out := make([]int, len(batch))
	for i, l := range batch {
		out[i] = l.ScrapedSequence
	}
	return out
}
