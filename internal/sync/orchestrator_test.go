package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/contenthash"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/repository"
)

// --- fakes ---

type fakeSourceStore struct {
	source     *models.Source
	lockErr    error
	locked     bool
	releases   int
	watermarks []time.Time
}

func (f *fakeSourceStore) GetByKey(_ context.Context, key string) (*models.Source, error) {
	if f.source == nil || f.source.Key != key {
		return nil, repository.ErrSourceNotFound
	}
	copied := *f.source
	return &copied, nil
}

func (f *fakeSourceStore) UpdateLastSync(_ context.Context, _ string, t time.Time) error {
	f.watermarks = append(f.watermarks, t)
	f.source.LastSyncAt = &t
	return nil
}

func (f *fakeSourceStore) TryAcquireSyncLock(_ context.Context, _ string) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	if f.locked {
		return repository.ErrSyncInProgress
	}
	f.locked = true
	return nil
}

func (f *fakeSourceStore) ReleaseSyncLock(_ context.Context, _ string) error {
	f.locked = false
	f.releases++
	return nil
}

type fakeJobStore struct {
	created []*models.SyncJob
	updated []*models.SyncJob
}

func (f *fakeJobStore) Create(_ context.Context, job *models.SyncJob) error {
	job.ID = fmt.Sprintf("job-%d", len(f.created)+1)
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobStore) Update(_ context.Context, job *models.SyncJob) error {
	f.updated = append(f.updated, job)
	return nil
}

type fakeGrantStore struct {
	grants    map[string]*models.Grant
	inserts   int
	updates   int
	touches   int
	insertErr error
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{grants: make(map[string]*models.Grant)}
}

func naturalKey(sourceKey, externalID string) string {
	return sourceKey + "/" + externalID
}

func (f *fakeGrantStore) GetByNaturalKey(_ context.Context, sourceKey, externalID string) (*models.Grant, error) {
	grant, ok := f.grants[naturalKey(sourceKey, externalID)]
	if !ok {
		return nil, repository.ErrGrantNotFound
	}
	copied := *grant
	return &copied, nil
}

func (f *fakeGrantStore) Insert(_ context.Context, grant *models.Grant) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	grant.ID = fmt.Sprintf("g-%d", len(f.grants)+1)
	copied := *grant
	f.grants[naturalKey(grant.SourceKey, grant.ExternalID)] = &copied
	f.inserts++
	return nil
}

func (f *fakeGrantStore) Update(_ context.Context, grant *models.Grant) error {
	copied := *grant
	f.grants[naturalKey(grant.SourceKey, grant.ExternalID)] = &copied
	f.updates++
	return nil
}

func (f *fakeGrantStore) TouchSynced(_ context.Context, id string, t time.Time) error {
	for _, grant := range f.grants {
		if grant.ID == id {
			grant.LastSyncedAt = t
			f.touches++
			return nil
		}
	}
	return repository.ErrGrantNotFound
}

// stubRecord is the raw shape the stub adapter emits and normalizes.
type stubRecord struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Agency string     `json:"agency"`
	Close  *time.Time `json:"close"`
}

func rawRecord(t *testing.T, rec stubRecord) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	return raw
}

type stubAdapter struct {
	key       string
	pages     []adapters.Page
	fetchErr  error
	single    json.RawMessage
	singleErr error
	rate      int

	fetchedParams []adapters.FetchParams
}

func (s *stubAdapter) SourceKey() string { return s.key }

func (s *stubAdapter) FetchGrants(_ context.Context, params adapters.FetchParams) (*adapters.Page, error) {
	s.fetchedParams = append(s.fetchedParams, params)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if params.Page > len(s.pages) {
		return &adapters.Page{Page: params.Page}, nil
	}
	page := s.pages[params.Page-1]
	page.Page = params.Page
	return &page, nil
}

func (s *stubAdapter) FetchSingle(_ context.Context, _ string) (json.RawMessage, error) {
	return s.single, s.singleErr
}

func (s *stubAdapter) Normalize(raw json.RawMessage) (*models.Grant, error) {
	var rec stubRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.Title == "" {
		return nil, &adapters.ValidationError{Field: "title", Message: "required"}
	}
	return &models.Grant{
		SourceKey:   s.key,
		ExternalID:  rec.ID,
		Title:       rec.Title,
		Agency:      rec.Agency,
		CloseDate:   rec.Close,
		Status:      models.GrantStatusPosted,
		ContentHash: contenthash.Compute(rec.Title, rec.Agency, rec.Close),
	}, nil
}

func (s *stubAdapter) RateLimit() int {
	if s.rate > 0 {
		return s.rate
	}
	return 600
}

type stubFactory struct {
	adapter adapters.Adapter
	err     error
}

func (s *stubFactory) ForSource(_ *models.Source) (adapters.Adapter, error) {
	return s.adapter, s.err
}

// --- harness ---

type harness struct {
	sources *fakeSourceStore
	jobs    *fakeJobStore
	grants  *fakeGrantStore
	adapter *stubAdapter
	orch    *Orchestrator
	sleeps  []time.Duration
}

func newHarness(t *testing.T, adapter *stubAdapter) *harness {
	t.Helper()

	h := &harness{
		sources: &fakeSourceStore{source: &models.Source{
			Key:                adapter.key,
			Name:               "Test Source",
			Category:           models.CategoryFederal,
			APIEnabled:         true,
			SyncEnabled:        true,
			RateLimitPerMinute: 600,
		}},
		jobs:    &fakeJobStore{},
		grants:  newFakeGrantStore(),
		adapter: adapter,
	}

	h.orch = NewOrchestrator(
		h.sources, h.jobs, h.grants,
		&stubFactory{adapter: adapter},
		nil, nil,
		Options{PageSize: 100, MaxPages: 50},
		logger.NewNop(),
	)
	h.orch.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

// --- tests ---

func TestOrchestrator_FullSync_CreatesAll(t *testing.T) {
	close1 := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{
		Records: []json.RawMessage{
			rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA", Close: &close1}),
			rawRecord(t, stubRecord{ID: "1002", Title: "Water Systems", Agency: "EPA"}),
		},
		TotalCount: 2,
	}}}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.GrantsFetched)
	assert.Equal(t, 2, job.GrantsCreated)
	assert.Zero(t, job.GrantsUpdated)
	assert.Zero(t, job.GrantsSkipped)
	assert.Empty(t, job.Errors)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	// Watermark is the run's start time and the lock is released.
	require.Len(t, h.sources.watermarks, 1)
	assert.Equal(t, *job.StartedAt, h.sources.watermarks[0])
	assert.False(t, h.sources.locked)
	assert.Equal(t, 1, h.sources.releases)
}

func TestOrchestrator_SecondRun_SkipsUnchanged(t *testing.T) {
	record := rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA"})
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{
		Records:    []json.RawMessage{record},
		TotalCount: 1,
	}}}
	h := newHarness(t, adapter)

	first, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)
	require.Equal(t, 1, first.GrantsCreated)

	second, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Zero(t, second.GrantsCreated)
	assert.Zero(t, second.GrantsUpdated)
	assert.Equal(t, 1, second.GrantsSkipped)
	assert.Equal(t, 1, h.grants.touches)
}

func TestOrchestrator_ChangedCloseDate_Updates(t *testing.T) {
	oldClose := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	newClose := oldClose.AddDate(0, 1, 0)

	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{
		Records: []json.RawMessage{
			rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA", Close: &oldClose}),
		},
		TotalCount: 1,
	}}}
	h := newHarness(t, adapter)

	_, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)
	firstSeen := h.grants.grants["federal-registry/1001"].FirstSeenAt

	adapter.pages[0].Records = []json.RawMessage{
		rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA", Close: &newClose}),
	}

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, job.GrantsUpdated)
	assert.Zero(t, job.GrantsCreated)
	assert.Zero(t, job.GrantsSkipped)

	// Identity and first-seen survive the rewrite.
	stored := h.grants.grants["federal-registry/1001"]
	assert.Equal(t, "g-1", stored.ID)
	assert.Equal(t, firstSeen, stored.FirstSeenAt)
	assert.Equal(t, newClose, *stored.CloseDate)
}

func TestOrchestrator_PartialFailure_IsolatesBadRecord(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{
		Records: []json.RawMessage{
			rawRecord(t, stubRecord{ID: "1001", Title: "", Agency: "USDA"}),
			rawRecord(t, stubRecord{ID: "1002", Title: "Water Systems", Agency: "EPA"}),
		},
		TotalCount: 2,
	}}}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.GrantsFetched)
	assert.Equal(t, 1, job.GrantsCreated)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, models.ErrCodeNormalization, job.Errors[0].Code)
}

func TestOrchestrator_FetchFailure_MarksJobFailed(t *testing.T) {
	adapter := &stubAdapter{
		key:      "federal-registry",
		fetchErr: &adapters.SourceUnavailableError{SourceKey: "federal-registry", StatusCode: 502},
	}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.Error(t, err)
	require.NotNil(t, job)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "unavailable")
	require.Len(t, job.Errors, 1)
	assert.Equal(t, models.ErrCodeFetch, job.Errors[0].Code)

	// No watermark advance on failure, lock still released.
	assert.Empty(t, h.sources.watermarks)
	assert.False(t, h.sources.locked)
}

func TestOrchestrator_LockHeld_RefusesRun(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry"}
	h := newHarness(t, adapter)
	h.sources.locked = true

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.ErrorIs(t, err, repository.ErrSyncInProgress)
	assert.Nil(t, job)
	assert.Empty(t, h.jobs.created)
}

func TestOrchestrator_UnknownSource(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry"}
	h := newHarness(t, adapter)

	_, err := h.orch.Run(context.Background(), "no-such-source", RunOptions{JobType: models.JobTypeFull})
	require.ErrorIs(t, err, repository.ErrSourceNotFound)
}

func TestOrchestrator_Incremental_FallsBackToFullWithoutWatermark(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{TotalCount: 0}}}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeIncremental})
	require.NoError(t, err)

	assert.Equal(t, models.JobTypeFull, job.JobType)
	require.Len(t, adapter.fetchedParams, 1)
	assert.Nil(t, adapter.fetchedParams[0].ModifiedSince)
}

func TestOrchestrator_Incremental_PassesWatermark(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{TotalCount: 0}}}
	h := newHarness(t, adapter)

	watermark := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	h.sources.source.LastSyncAt = &watermark

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeIncremental})
	require.NoError(t, err)

	assert.Equal(t, models.JobTypeIncremental, job.JobType)
	require.Len(t, adapter.fetchedParams, 1)
	require.NotNil(t, adapter.fetchedParams[0].ModifiedSince)
	assert.Equal(t, watermark, *adapter.fetchedParams[0].ModifiedSince)
}

func TestOrchestrator_Pagination_WalksAllPagesAndSleeps(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", rate: 120, pages: []adapters.Page{
		{Records: []json.RawMessage{rawRecord(t, stubRecord{ID: "1", Title: "A", Agency: "X"})}, TotalCount: 3, HasMore: true},
		{Records: []json.RawMessage{rawRecord(t, stubRecord{ID: "2", Title: "B", Agency: "X"})}, TotalCount: 3, HasMore: true},
		{Records: []json.RawMessage{rawRecord(t, stubRecord{ID: "3", Title: "C", Agency: "X"})}, TotalCount: 3},
	}}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, 3, job.GrantsFetched)
	assert.Equal(t, 3, job.GrantsCreated)
	require.Len(t, adapter.fetchedParams, 3)
	assert.Equal(t, 1, adapter.fetchedParams[0].Page)
	assert.Equal(t, 3, adapter.fetchedParams[2].Page)

	// One inter-page pause per page boundary, sized off the rate ceiling.
	require.Len(t, h.sleeps, 2)
	assert.Equal(t, 500*time.Millisecond, h.sleeps[0])
}

func TestOrchestrator_Pagination_StopsAtSafetyCap(t *testing.T) {
	pages := make([]adapters.Page, 10)
	for i := range pages {
		pages[i] = adapters.Page{
			Records: []json.RawMessage{rawRecord(t, stubRecord{
				ID: fmt.Sprintf("%d", i), Title: "T", Agency: "X",
			})},
			TotalCount: 1000,
			HasMore:    true,
		}
	}
	adapter := &stubAdapter{key: "federal-registry", pages: pages}

	h := newHarness(t, adapter)
	h.orch.opts.MaxPages = 3

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.GrantsFetched)
	assert.Len(t, adapter.fetchedParams, 3)
}

func TestOrchestrator_Single_ReconcilesOneGrant(t *testing.T) {
	adapter := &stubAdapter{
		key:    "federal-registry",
		single: rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA"}),
	}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{GrantID: "1001"})
	require.NoError(t, err)

	assert.Equal(t, models.JobTypeSingle, job.JobType)
	assert.Equal(t, 1, job.GrantsFetched)
	assert.Equal(t, 1, job.GrantsCreated)
}

func TestOrchestrator_Single_NotFoundUpstream(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry"}
	h := newHarness(t, adapter)

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{
		JobType: models.JobTypeSingle,
		GrantID: "ghost",
	})
	require.NoError(t, err)

	// Upstream absence is recorded on the job, not a run failure.
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Zero(t, job.GrantsFetched)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, models.ErrCodeNotFound, job.Errors[0].Code)
	assert.Equal(t, "ghost", job.Errors[0].ExternalID)
}

func TestOrchestrator_Single_DoesNotAdvanceWatermark(t *testing.T) {
	adapter := &stubAdapter{
		key:    "federal-registry",
		single: rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA"}),
	}
	h := newHarness(t, adapter)

	watermark := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	h.sources.source.LastSyncAt = &watermark

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{GrantID: "1001"})
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, job.Status)

	// A single-grant refresh never scans the modified window, so the
	// watermark stays where the last full/incremental run left it and the
	// next incremental still covers everything changed since then.
	assert.Empty(t, h.sources.watermarks)
	require.NotNil(t, h.sources.source.LastSyncAt)
	assert.Equal(t, watermark, *h.sources.source.LastSyncAt)

	adapter.pages = []adapters.Page{{TotalCount: 0}}
	incr, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeIncremental})
	require.NoError(t, err)
	require.Equal(t, models.JobTypeIncremental, incr.JobType)
	require.NotEmpty(t, adapter.fetchedParams)
	require.NotNil(t, adapter.fetchedParams[0].ModifiedSince)
	assert.Equal(t, watermark, *adapter.fetchedParams[0].ModifiedSince)
}

func TestOrchestrator_InsertFailure_CountsProcessingError(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{
		Records: []json.RawMessage{
			rawRecord(t, stubRecord{ID: "1001", Title: "Rural Broadband", Agency: "USDA"}),
		},
		TotalCount: 1,
	}}}
	h := newHarness(t, adapter)
	h.grants.insertErr = errors.New("connection reset")

	job, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Zero(t, job.GrantsCreated)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, models.ErrCodeProcessing, job.Errors[0].Code)
	assert.Equal(t, "1001", job.Errors[0].ExternalID)
}

func TestOrchestrator_WatermarkMonotonic(t *testing.T) {
	adapter := &stubAdapter{key: "federal-registry", pages: []adapters.Page{{TotalCount: 0}}}
	h := newHarness(t, adapter)

	_, err := h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)
	_, err = h.orch.Run(context.Background(), "federal-registry", RunOptions{JobType: models.JobTypeFull})
	require.NoError(t, err)

	require.Len(t, h.sources.watermarks, 2)
	assert.False(t, h.sources.watermarks[1].Before(h.sources.watermarks[0]))
}
