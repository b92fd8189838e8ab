// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/manhwari/internal/cache"
	"github.com/taibuivan/manhwari/internal/platform/apperr"
	"github.com/taibuivan/manhwari/internal/upstream"
)

// # Test Doubles

// fakeStore is an in-memory [Store] with call counters for cache-coherence
// assertions.
type fakeStore struct {
	mutex  sync.Mutex
	rows   map[int64]*Manhwa
	genres []Genre
	nextID int64

	findByIDCalls   atomic.Int64
	fullTextCalls   atomic.Int64
	searchErr       error
	searchBlock     chan struct{}
	markFailedCalls atomic.Int64
	updateErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[int64]*Manhwa),
		nextID: 1,
		genres: []Genre{
			{ID: 1, Name: "Action", Slug: "action"},
			{ID: 2, Name: "Fantasy", Slug: "fantasy"},
		},
	}
}

func (f *fakeStore) FindByID(_ context.Context, id int64) (*Manhwa, error) {
	f.findByIDCalls.Add(1)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	row, found := f.rows[id]
	if !found {
		return nil, apperr.NotFound("Manhwa")
	}
	clone := *row
	return &clone, nil
}

func (f *fakeStore) FindByIDs(_ context.Context, ids []int64) ([]*Manhwa, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var result []*Manhwa
	for _, id := range ids {
		if row, found := f.rows[id]; found {
			clone := *row
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeStore) FindByUpstreamID(_ context.Context, upstreamID string) (*Manhwa, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, row := range f.rows {
		if row.UpstreamID != nil && *row.UpstreamID == upstreamID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Manhwa")
}

func (f *fakeStore) Insert(_ context.Context, manhwa *Manhwa, genreIDs []int64) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	id := f.nextID
	f.nextID++

	clone := *manhwa
	clone.ID = id
	for _, genreID := range genreIDs {
		for _, genre := range f.genres {
			if genre.ID == genreID {
				clone.Genres = append(clone.Genres, genre)
			}
		}
	}
	f.rows[id] = &clone
	return id, nil
}

func (f *fakeStore) Update(_ context.Context, id int64, patch UpdatePatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	row, found := f.rows[id]
	if !found {
		return apperr.NotFound("Manhwa")
	}
	if patch.TitleData != nil {
		row.TitleData = *patch.TitleData
	}
	if patch.Synopsis != nil {
		row.Synopsis = *patch.Synopsis
	}
	if patch.Status != nil {
		row.Status = *patch.Status
	}
	if patch.LastSyncedAt != nil {
		row.LastSyncedAt = patch.LastSyncedAt
	}
	if patch.SyncStatus != nil {
		row.SyncStatus = *patch.SyncStatus
	}
	if patch.BumpVersion {
		row.Version++
	}
	return nil
}

func (f *fakeStore) MarkSyncFailed(_ context.Context, id int64) error {
	f.markFailedCalls.Add(1)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if row, found := f.rows[id]; found {
		row.SyncStatus = SyncFailed
	}
	return nil
}

func (f *fakeStore) FullTextSearch(ctx context.Context, _ string, _ Filter, _, _ int) ([]SearchRow, int, error) {
	f.fullTextCalls.Add(1)
	if f.searchBlock != nil {
		select {
		case <-f.searchBlock:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var rows []SearchRow
	for _, row := range f.rows {
		clone := *row
		score := 0.5
		rows = append(rows, SearchRow{Manhwa: &clone, Score: &score})
	}
	return rows, len(rows), nil
}

func (f *fakeStore) FilterSearch(_ context.Context, _ Filter, _, _ int) ([]SearchRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) ListRecent(_ context.Context, _ int) ([]SearchRow, error) {
	return nil, nil
}

func (f *fakeStore) ListGenresBySlug(_ context.Context, slugs []string) ([]Genre, error) {
	var resolved []Genre
	for _, slug := range slugs {
		for _, genre := range f.genres {
			if genre.Slug == slug {
				resolved = append(resolved, genre)
			}
		}
	}
	return resolved, nil
}

func (f *fakeStore) ListAllGenres(_ context.Context) ([]Genre, error) {
	return f.genres, nil
}

func (f *fakeStore) ListOutdated(_ context.Context, _ int) ([]SyncCandidate, error) {
	return nil, nil
}

// fakeUpstream is a canned [UpstreamClient].
type fakeUpstream struct {
	record    *upstream.Manga
	recordErr error

	searchResults []upstream.Manga
	searchErr     error
	searchCalls   atomic.Int64

	tags []upstream.Tag
}

func (f *fakeUpstream) SearchManga(_ context.Context, _ upstream.SearchQuery) ([]upstream.Manga, int, error) {
	f.searchCalls.Add(1)
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.searchResults, len(f.searchResults), nil
}

func (f *fakeUpstream) GetManga(_ context.Context, _ string) (*upstream.Manga, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.record, nil
}

func (f *fakeUpstream) ListTags(_ context.Context) []upstream.Tag {
	return f.tags
}

func (f *fakeUpstream) CoverURL(upstreamID, fileName string, quality upstream.CoverQuality) string {
	if fileName == "" {
		return ""
	}
	return "https://covers.test/" + upstreamID + "/" + fileName + string(quality)
}

// # Test Fixtures

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCaches(t *testing.T) Caches {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	entityTier, err := cache.NewMemoryTier[*Manhwa](ctx, 100, time.Hour)
	require.NoError(t, err)
	searchTier, err := cache.NewMemoryTier[*SearchResponse](ctx, 100, time.Hour)
	require.NoError(t, err)
	tagTier, err := cache.NewMemoryTier[map[string]string](ctx, 100, time.Hour)
	require.NoError(t, err)

	return Caches{Entity: entityTier, Search: searchTier, Tags: tagTier}
}

func newTestService(t *testing.T, store *fakeStore, client *fakeUpstream) *Service {
	t.Helper()
	logger := testLogger()
	return NewService(store, NewEngine(store, logger), client, newTestCaches(t), logger)
}

func seedRow(store *fakeStore, upstreamID string) int64 {
	row := &Manhwa{
		DataSource: SourceLocal,
		TitleData:  TitleData{Primary: "Tower of God"},
		Synopsis:   "A boy enters the tower.",
		Status:     StatusOngoing,
		SyncStatus: SyncCurrent,
		Version:    1,
	}
	if upstreamID != "" {
		row.UpstreamID = &upstreamID
		row.DataSource = SourceUpstream
		now := time.Now()
		row.LastSyncedAt = &now
	}
	id, _ := store.Insert(context.Background(), row, nil)
	return id
}

// # Read Path

/*
TestService_GetByID_ReadThrough verifies that the second lookup is served
from the entity cache without touching the store.
*/
func TestService_GetByID_ReadThrough(t *testing.T) {
	store := newFakeStore()
	id := seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	first, err := service.GetByID(context.Background(), id, false)
	require.NoError(t, err)
	storeCalls := store.findByIDCalls.Load()

	second, err := service.GetByID(context.Background(), id, false)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, storeCalls, store.findByIDCalls.Load())
}

/*
TestService_GetByID_NotFound verifies the not-found error surfaces.
*/
func TestService_GetByID_NotFound(t *testing.T) {
	service := newTestService(t, newFakeStore(), &fakeUpstream{})

	_, err := service.GetByID(context.Background(), 999, false)
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestService_BulkGet verifies cache-first resolution and the notFound list.
*/
func TestService_BulkGet(t *testing.T) {
	store := newFakeStore()
	first := seedRow(store, "")
	second := seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	entities, notFound, err := service.BulkGet(context.Background(), []int64{first, second, 999})
	require.NoError(t, err)

	assert.Len(t, entities, 2)
	assert.Equal(t, []int64{999}, notFound)

	// The resolved rows are now cached.
	_, foundFirst := service.caches.Entity.Get(context.Background(), entityKey(first))
	assert.True(t, foundFirst)
}

// # Search Path

/*
TestService_Search_CachesResponse verifies that an identical follow-up
search is served from the cache without a second store query.
*/
func TestService_Search_CachesResponse(t *testing.T) {
	store := newFakeStore()
	seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	params := SearchParams{Query: "tower", Page: 1, Limit: 20}

	_, err := service.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.fullTextCalls.Load())

	_, err = service.Search(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.fullTextCalls.Load())
}

/*
TestService_Search_CoalescesConcurrentRequests verifies that concurrent
identical searches share a single store query.
*/
func TestService_Search_CoalescesConcurrentRequests(t *testing.T) {
	store := newFakeStore()
	seedRow(store, "")
	store.searchBlock = make(chan struct{})
	service := newTestService(t, store, &fakeUpstream{})

	params := SearchParams{Query: "tower", Page: 1, Limit: 20}

	var waitGroup sync.WaitGroup
	for worker := 0; worker < 10; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.Search(context.Background(), params)
			assert.NoError(t, err)
		}()
	}

	// Wait for the leader to reach the store, then release it.
	require.Eventually(t, func() bool {
		return store.fullTextCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	close(store.searchBlock)
	waitGroup.Wait()

	assert.Equal(t, int64(1), store.fullTextCalls.Load())
}

/*
TestService_Search_FlightSurvivesStarterCancel verifies a shared flight
completes for the callers still attached after the caller that started it
cancels: the second caller receives the result, not the starter's
cancellation error.
*/
func TestService_Search_FlightSurvivesStarterCancel(t *testing.T) {
	store := newFakeStore()
	seedRow(store, "")
	store.searchBlock = make(chan struct{})
	service := newTestService(t, store, &fakeUpstream{})

	params := SearchParams{Query: "tower", Page: 1, Limit: 20}

	starterCtx, cancelStarter := context.WithCancel(context.Background())
	starterDone := make(chan struct{})
	go func() {
		defer close(starterDone)
		service.Search(starterCtx, params)
	}()

	require.Eventually(t, func() bool {
		return store.fullTextCalls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	type outcome struct {
		response *SearchResponse
		err      error
	}
	joined := make(chan outcome, 1)
	go func() {
		response, err := service.Search(context.Background(), params)
		joined <- outcome{response, err}
	}()

	// Give the second caller time to attach to the in-flight key, then
	// cancel the starter while the store query is still blocked.
	require.Eventually(t, func() bool {
		return service.flights.IsPending(params.CacheKey())
	}, time.Second, 5*time.Millisecond)
	cancelStarter()
	close(store.searchBlock)

	result := <-joined
	require.NoError(t, result.err)
	require.NotNil(t, result.response)
	assert.Len(t, result.response.Results, 1)
	assert.Equal(t, int64(1), store.fullTextCalls.Load())
	<-starterDone
}

/*
TestService_Search_ExternalFallback verifies that an empty local result
with includeExternal set consults the upstream catalogue. External records
carry id 0 and the external source is annotated in metadata.
*/
func TestService_Search_ExternalFallback(t *testing.T) {
	store := newFakeStore()
	chapters := 120
	client := &fakeUpstream{
		searchResults: []upstream.Manga{{
			ID:            "8e4f1c3a-0000-4000-8000-000000000001",
			Title:         "Solo Leveling",
			Synopsis:      "The weakest hunter levels up alone.",
			Status:        "completed",
			TotalChapters: &chapters,
			CoverFileName: "cover.jpg",
			Tags: []upstream.Tag{
				{ID: "t1", Name: "Action", Group: "genre"},
				{ID: "t2", Name: "Award Winning", Group: "format"},
			},
		}},
	}
	service := newTestService(t, store, client)

	response, err := service.Search(context.Background(), SearchParams{
		Query: "solo leveling", Page: 1, Limit: 20, IncludeExternal: true,
	})
	require.NoError(t, err)

	require.Len(t, response.Results, 1)
	result := response.Results[0]
	assert.Equal(t, int64(0), result.ID)
	assert.Equal(t, "Solo Leveling", result.Title)
	assert.Equal(t, []string{"Action"}, result.Genres)
	require.NotNil(t, result.CoverThumb)

	assert.Equal(t, []string{"local", "external"}, response.Metadata.SourcesQueried)
	assert.Equal(t, 1, response.Pagination.TotalPages)
}

/*
TestService_Search_ExternalFallback_Degrades verifies that an upstream
failure degrades to the empty local response with the failed source
annotated.
*/
func TestService_Search_ExternalFallback_Degrades(t *testing.T) {
	store := newFakeStore()
	client := &fakeUpstream{searchErr: apperr.RateLimited("Upstream rate limit exceeded")}
	service := newTestService(t, store, client)

	response, err := service.Search(context.Background(), SearchParams{
		Query: "unknown title", Page: 1, Limit: 20, IncludeExternal: true,
	})
	require.NoError(t, err)

	assert.Empty(t, response.Results)
	assert.Equal(t, []string{"local", "external (failed)"}, response.Metadata.SourcesQueried)
}

/*
TestService_Search_NoExternalWithoutFlag verifies that an empty local
result stays local when includeExternal is false.
*/
func TestService_Search_NoExternalWithoutFlag(t *testing.T) {
	store := newFakeStore()
	client := &fakeUpstream{}
	service := newTestService(t, store, client)

	response, err := service.Search(context.Background(), SearchParams{
		Query: "unknown title", Page: 1, Limit: 20,
	})
	require.NoError(t, err)

	assert.Empty(t, response.Results)
	assert.Equal(t, []string{"local"}, response.Metadata.SourcesQueried)
	assert.Equal(t, int64(0), client.searchCalls.Load())
}

// # Write Path

/*
TestService_Create_FlushesSearchTier verifies that a cached search response
does not survive a create.
*/
func TestService_Create_FlushesSearchTier(t *testing.T) {
	store := newFakeStore()
	seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	params := SearchParams{Query: "tower", Page: 1, Limit: 20}
	_, err := service.Search(context.Background(), params)
	require.NoError(t, err)

	_, cachedBefore := service.caches.Search.Get(context.Background(), params.CacheKey())
	require.True(t, cachedBefore)

	_, err = service.Create(context.Background(), CreateRequest{
		Title:      "The Breaker",
		Synopsis:   "A martial arts master takes a student.",
		Status:     StatusCompleted,
		GenreSlugs: []string{"action"},
	})
	require.NoError(t, err)

	_, cachedAfter := service.caches.Search.Get(context.Background(), params.CacheKey())
	assert.False(t, cachedAfter)
}

/*
TestService_Create_UnknownGenre verifies that an unresolvable slug fails
the whole request and names the slug.
*/
func TestService_Create_UnknownGenre(t *testing.T) {
	service := newTestService(t, newFakeStore(), &fakeUpstream{})

	_, err := service.Create(context.Background(), CreateRequest{
		Title:      "Noblesse",
		Synopsis:   "An ancient noble wakes up in the modern era.",
		Status:     StatusCompleted,
		GenreSlugs: []string{"action", "isekai"},
	})

	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, "bad_input"))
	assert.Contains(t, err.Error(), "isekai")
}

/*
TestService_Create_LinksGenres verifies that resolved genres come back on
the created entity.
*/
func TestService_Create_LinksGenres(t *testing.T) {
	service := newTestService(t, newFakeStore(), &fakeUpstream{})

	created, err := service.Create(context.Background(), CreateRequest{
		Title:      "Hardcore Leveling Warrior",
		Synopsis:   "A ranked player loses everything and starts over.",
		Status:     StatusOngoing,
		GenreSlugs: []string{"action", "fantasy"},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, created.DataSource)
	assert.Len(t, created.Genres, 2)
	assert.Equal(t, 1, created.Version)
}

/*
TestService_Import_RejectsDuplicate verifies that importing an already
mirrored upstream id fails before any upstream request is spent.
*/
func TestService_Import_RejectsDuplicate(t *testing.T) {
	store := newFakeStore()
	upstreamID := "8e4f1c3a-0000-4000-8000-000000000001"
	seedRow(store, upstreamID)
	service := newTestService(t, store, &fakeUpstream{recordErr: errors.New("must not be called")})

	_, err := service.Import(context.Background(), upstreamID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, "bad_input"))
}

/*
TestService_Import_MirrorsRecord verifies the imported row carries the
upstream provenance and cover set.
*/
func TestService_Import_MirrorsRecord(t *testing.T) {
	store := newFakeStore()
	year := 2018
	client := &fakeUpstream{
		record: &upstream.Manga{
			ID:            "8e4f1c3a-0000-4000-8000-000000000002",
			Title:         "Omniscient Reader",
			Synopsis:      "The sole reader of a web novel watches it come true.",
			Status:        "ongoing",
			Year:          &year,
			CoverFileName: "cover.jpg",
		},
	}
	service := newTestService(t, store, client)

	imported, err := service.Import(context.Background(), "8e4f1c3a-0000-4000-8000-000000000002")
	require.NoError(t, err)

	assert.Equal(t, SourceUpstream, imported.DataSource)
	require.NotNil(t, imported.UpstreamID)
	assert.Equal(t, "8e4f1c3a-0000-4000-8000-000000000002", *imported.UpstreamID)
	assert.NotNil(t, imported.LastSyncedAt)
	assert.Equal(t, SyncCurrent, imported.SyncStatus)
	assert.NotNil(t, imported.CoverThumb)
	assert.NotNil(t, imported.CoverLarge)
}

// # Synchronisation

/*
TestService_SyncOne_InvalidatesCaches verifies that a successful sync
removes the entity entry and flushes the search tier.
*/
func TestService_SyncOne_InvalidatesCaches(t *testing.T) {
	store := newFakeStore()
	upstreamID := "8e4f1c3a-0000-4000-8000-000000000003"
	id := seedRow(store, upstreamID)
	client := &fakeUpstream{
		record: &upstream.Manga{
			ID:       upstreamID,
			Title:    "Tower of God",
			Synopsis: "Updated synopsis from upstream.",
			Status:   "ongoing",
		},
	}
	service := newTestService(t, store, client)

	// Warm both tiers.
	_, err := service.GetByID(context.Background(), id, false)
	require.NoError(t, err)
	params := SearchParams{Query: "tower", Page: 1, Limit: 20}
	_, err = service.Search(context.Background(), params)
	require.NoError(t, err)

	report, err := service.SyncOne(context.Background(), id, upstreamID)
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)

	_, entityCached := service.caches.Entity.Get(context.Background(), entityKey(id))
	assert.False(t, entityCached)
	_, searchCached := service.caches.Search.Get(context.Background(), params.CacheKey())
	assert.False(t, searchCached)

	// The row itself was patched and version-bumped.
	refreshed, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Updated synopsis from upstream.", refreshed.Synopsis)
	assert.Equal(t, 2, refreshed.Version)
}

/*
TestService_SyncOne_FailureMarksRow verifies that an upstream failure
stamps the row Failed and wraps the cause as sync_failed.
*/
func TestService_SyncOne_FailureMarksRow(t *testing.T) {
	store := newFakeStore()
	upstreamID := "8e4f1c3a-0000-4000-8000-000000000004"
	id := seedRow(store, upstreamID)
	client := &fakeUpstream{recordErr: apperr.ExternalAPI("Upstream returned status 500", nil)}
	service := newTestService(t, store, client)

	_, err := service.SyncOne(context.Background(), id, upstreamID)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, "sync_failed"))
	assert.Equal(t, int64(1), store.markFailedCalls.Load())

	row, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, row.SyncStatus)
}

/*
TestService_SyncOne_GoneUpstream verifies the dedicated message when the
record no longer exists upstream.
*/
func TestService_SyncOne_GoneUpstream(t *testing.T) {
	store := newFakeStore()
	upstreamID := "8e4f1c3a-0000-4000-8000-000000000005"
	id := seedRow(store, upstreamID)
	client := &fakeUpstream{recordErr: apperr.NotFound("Manga")}
	service := newTestService(t, store, client)

	_, err := service.SyncOne(context.Background(), id, upstreamID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer exists")
}

/*
TestService_Refresh_RejectsLocalRow verifies that a hand-curated row
cannot be synchronised.
*/
func TestService_Refresh_RejectsLocalRow(t *testing.T) {
	store := newFakeStore()
	id := seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	_, err := service.Refresh(context.Background(), id)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, "bad_input"))
}

// # Cache Administration

/*
TestService_ClearCache verifies substring clearing across tiers.
*/
func TestService_ClearCache(t *testing.T) {
	store := newFakeStore()
	id := seedRow(store, "")
	service := newTestService(t, store, &fakeUpstream{})

	_, err := service.GetByID(context.Background(), id, false)
	require.NoError(t, err)
	_, err = service.Search(context.Background(), SearchParams{Query: "tower", Page: 1, Limit: 20})
	require.NoError(t, err)

	removed := service.ClearCache(context.Background(), "search:")
	assert.Equal(t, 1, removed)

	// The entity entry survives a search-scoped clear.
	_, entityCached := service.caches.Entity.Get(context.Background(), entityKey(id))
	assert.True(t, entityCached)

	stats := service.CacheStats(context.Background())
	assert.Contains(t, stats, "entity")
	assert.Contains(t, stats, "search")
	assert.Contains(t, stats, "tags")
}
