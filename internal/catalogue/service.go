// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalogue implements the manhwa catalogue: domain types, the
persistence contract and its PostgreSQL implementation, the full-text
search engine, and the public service facade.

Architecture:

  - Service: Read-through / write-invalidate facade orchestrating the
    cache tiers, the request coalescer, the search engine, and the
    upstream client.
  - Engine: Translates search requests into ranked store queries.
  - Store: Persistence contract; store_postgres.go implements it on pgx.

Core Responsibilities:

  - Reads flow cache → coalescer → store, so concurrent identical requests
    cost one query and hot entities are served from memory.
  - Writes are linearised at the store; cache invalidation happens after
    the commit, keeping cached state at most one TTL behind.
  - Upstream-sourced rows are refreshed in the background through the
    syncer; stale reads return immediately and schedule the refresh.
*/
package catalogue

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/manhwari/internal/cache"
	"github.com/taibuivan/manhwari/internal/coalesce"
	"github.com/taibuivan/manhwari/internal/platform/apperr"
	"github.com/taibuivan/manhwari/internal/platform/constants"
	"github.com/taibuivan/manhwari/internal/upstream"
	"github.com/taibuivan/manhwari/pkg/slug"
)

// # Collaborator Contracts

// UpstreamClient is the slice of the upstream catalogue client the service
// consumes. *upstream.Client satisfies it; tests inject fakes.
type UpstreamClient interface {
	SearchManga(ctx context.Context, query upstream.SearchQuery) ([]upstream.Manga, int, error)
	GetManga(ctx context.Context, upstreamID string) (*upstream.Manga, error)
	ListTags(ctx context.Context) []upstream.Tag
	CoverURL(upstreamID, fileName string, quality upstream.CoverQuality) string
}

// Refresher schedules a background synchronisation for one row. The syncer
// satisfies it; a nil refresher disables background refresh.
type Refresher interface {
	SyncNow(id int64, upstreamID string)
}

// Caches bundles the three cache tiers the service reads through.
type Caches struct {
	Entity cache.Tier[*Manhwa]
	Search cache.Tier[*SearchResponse]
	Tags   cache.Tier[map[string]string]
}

// tagDictionaryKey is the single tag-tier key holding the upstream tag
// dictionary, keyed by normalised tag name.
const tagDictionaryKey = constants.CachePrefixTag + "dictionary"

// # Service

// Service is the public read/write facade of the catalogue.
type Service struct {
	store     Store
	engine    *Engine
	upstream  UpstreamClient
	caches    Caches
	flights   *coalesce.Group[*SearchResponse]
	refresher Refresher
	logger    *slog.Logger
}

// NewService wires the catalogue facade. refresher may be nil; background
// refresh is then skipped.
func NewService(
	store Store,
	engine *Engine,
	upstreamClient UpstreamClient,
	caches Caches,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		upstream: upstreamClient,
		caches:   caches,
		flights:  coalesce.NewGroup[*SearchResponse](),
		logger:   logger.With(slog.String("component", "catalogue")),
	}
}

// SetRefresher attaches the background syncer after construction. The
// service and the syncer reference each other, so one side is wired late.
func (s *Service) SetRefresher(refresher Refresher) {
	s.refresher = refresher
}

// entityKey derives the entity-tier cache key for a row.
func entityKey(id int64) string {
	return constants.CachePrefixEntity + strconv.FormatInt(id, 10)
}

// detachContext keeps the parent's values but drops its cancellation and
// deadline. Coalesced flights run on a detached context so waiters still
// get a result after the starting caller cancels.
func detachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// # Search

/*
Search runs a catalogue search with caching, coalescing, and the optional
external fallback.

# Flow

 1. Cache hit on the canonical key returns immediately.
 2. Otherwise the work runs inside the coalescer: concurrent identical
    searches share one store query.
 3. An empty local result with includeExternal set falls through to the
    upstream catalogue; external failures degrade to the empty local
    response with the failure annotated in metadata.

The shared producer runs on a context detached from the first caller's
cancellation: a flight with other callers attached must complete even when
the caller that started it goes away.
*/
func (s *Service) Search(context context.Context, params SearchParams) (*SearchResponse, error) {
	key := params.CacheKey()

	if response, found := s.caches.Search.Get(context, key); found {
		return response, nil
	}

	flightContext := detachContext(context)

	return s.flights.Coalesce(key, func() (*SearchResponse, error) {
		started := time.Now()

		response, err := s.engine.FullTextSearch(flightContext, params)
		if err != nil {
			return nil, err
		}

		if len(response.Results) == 0 && params.IncludeExternal {
			response = s.externalFallback(flightContext, params, response)
		}

		response.Metadata.QueryTimeMS = time.Since(started).Milliseconds()
		s.caches.Search.Set(flightContext, key, response)
		return response, nil
	})
}

/*
externalFallback consults the upstream catalogue when the local search came
back empty.

External records carry id = 0 to mark them as not-yet-imported. The
external path does not paginate: the response reports a single page sized
to the upstream result. On failure the empty local response is kept and the
failed source is annotated in metadata.
*/
func (s *Service) externalFallback(context context.Context, params SearchParams, local *SearchResponse) *SearchResponse {

	statuses := make([]string, len(params.Filters.Statuses))
	for index, status := range params.Filters.Statuses {
		statuses[index] = string(status)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := (params.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	records, _, err := s.upstream.SearchManga(context, upstream.SearchQuery{
		Title:        sanitizeQuery(params.Query),
		Limit:        limit,
		Offset:       offset,
		Statuses:     statuses,
		IncludedTags: s.resolveTagIDs(context, params.Filters.GenreSlugs),
	})
	if err != nil {
		s.logger.Warn("external_search_failed",
			slog.String("query", params.Query),
			slog.String("error", err.Error()),
		)
		local.Metadata.SourcesQueried = append(local.Metadata.SourcesQueried, "external (failed)")
		return local
	}

	results := make([]SearchResult, 0, len(records))
	for _, record := range records {
		results = append(results, s.externalResult(record))
	}

	local.Results = results
	local.Pagination = Pagination{
		CurrentPage:  params.Page,
		TotalPages:   1,
		TotalResults: len(results),
	}
	local.Metadata.SourcesQueried = append(local.Metadata.SourcesQueried, "external")
	return local
}

// externalResult projects an upstream record into the search result shape.
func (s *Service) externalResult(record upstream.Manga) SearchResult {
	genres := make([]string, 0, len(record.Tags))
	for _, tag := range record.Tags {
		if tag.Group == "genre" {
			genres = append(genres, tag.Name)
		}
	}

	var coverThumb *string
	if url := s.upstream.CoverURL(record.ID, record.CoverFileName, upstream.CoverThumb); url != "" {
		coverThumb = &url
	}

	return SearchResult{
		ID:            0,
		Title:         record.Title,
		CoverThumb:    coverThumb,
		Synopsis:      TruncateSynopsis(record.Synopsis),
		Status:        strings.ToLower(record.Status),
		TotalChapters: record.TotalChapters,
		Genres:        genres,
	}
}

/*
resolveTagIDs maps local genre slugs onto upstream tag UUIDs through the
cached tag dictionary.

The dictionary keys tags by their slugified name, which is exactly the form
local genre slugs take. Unknown slugs are skipped; an empty dictionary
(upstream degraded) yields no tag filter.
*/
func (s *Service) resolveTagIDs(context context.Context, genreSlugs []string) []string {
	if len(genreSlugs) == 0 {
		return nil
	}

	dictionary, found := s.caches.Tags.Get(context, tagDictionaryKey)
	if !found {
		dictionary = make(map[string]string)
		for _, tag := range s.upstream.ListTags(context) {
			dictionary[slug.From(tag.Name)] = tag.ID
		}
		if len(dictionary) > 0 {
			s.caches.Tags.Set(context, tagDictionaryKey, dictionary)
		}
	}

	var tagIDs []string
	for _, genreSlug := range genreSlugs {
		if tagID, matched := dictionary[genreSlug]; matched {
			tagIDs = append(tagIDs, tagID)
		}
	}
	return tagIDs
}

// # Reads

/*
GetByID returns one manhwa, reading through the entity cache.

A cached stale row is returned immediately with a background refresh
scheduled. forceRefresh bypasses the cache and synchronises inline before
returning; a failed inline sync logs and falls back to the stored row.
*/
func (s *Service) GetByID(context context.Context, id int64, forceRefresh bool) (*Manhwa, error) {
	key := entityKey(id)

	if !forceRefresh {
		if cached, found := s.caches.Entity.Get(context, key); found {
			// Serve stale, refresh in the background.
			if cached.ShouldRefresh(time.Now()) && s.refresher != nil {
				s.refresher.SyncNow(cached.ID, *cached.UpstreamID)
			}
			return cached, nil
		}
	}

	manhwa, err := s.store.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if (forceRefresh || manhwa.ShouldRefresh(time.Now())) && manhwa.UpstreamID != nil {
		if _, err := s.SyncOne(context, id, *manhwa.UpstreamID); err != nil {
			// Stale data beats no data; keep the stored row.
			s.logger.Warn("inline_refresh_failed",
				slog.Int64("manhwa_id", id),
				slog.String("error", err.Error()),
			)
		} else if refreshed, err := s.store.FindByID(context, id); err == nil {
			manhwa = refreshed
		}
	}

	s.caches.Entity.Set(context, key, manhwa)
	return manhwa, nil
}

/*
BulkGet resolves many ids at once: cache hits first, then a single store
query for the misses. The second return value lists the ids that exist
nowhere.
*/
func (s *Service) BulkGet(context context.Context, ids []int64) (map[int64]*Manhwa, []int64, error) {
	entities := make(map[int64]*Manhwa, len(ids))

	var misses []int64
	for _, id := range ids {
		if cached, found := s.caches.Entity.Get(context, entityKey(id)); found {
			entities[id] = cached
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		rows, err := s.store.FindByIDs(context, misses)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			entities[row.ID] = row
			s.caches.Entity.Set(context, entityKey(row.ID), row)
		}
	}

	var notFound []int64
	for _, id := range ids {
		if _, found := entities[id]; !found {
			notFound = append(notFound, id)
		}
	}
	return entities, notFound, nil
}

// ListGenres returns every genre sorted by name.
func (s *Service) ListGenres(context context.Context) ([]Genre, error) {
	return s.store.ListAllGenres(context)
}

// # Writes

// CreateRequest is the validated input for creating a Local manhwa.
type CreateRequest struct {
	Title           string
	AltTitles       []AltTitle
	Romanized       string
	Synopsis        string
	Status          Status
	Publisher       *string
	StartYear       *int
	EndYear         *int
	TotalChapters   *int
	SpecialChapters *int
	GenreSlugs      []string
}

/*
Create persists a hand-curated Local manhwa.

Every supplied genre slug must exist; unknown slugs fail the whole request
with BadInput. After the commit the search tier is flushed so no cached
response predates the new row.
*/
func (s *Service) Create(context context.Context, request CreateRequest) (*Manhwa, error) {

	// Resolve and validate genre slugs up front.
	genres, err := s.store.ListGenresBySlug(context, request.GenreSlugs)
	if err != nil {
		return nil, err
	}
	if len(genres) != len(uniqueStrings(request.GenreSlugs)) {
		return nil, apperr.BadInput("One or more genre slugs do not exist: " + strings.Join(missingSlugs(request.GenreSlugs, genres), ", "))
	}

	genreIDs := make([]int64, 0, len(genres))
	for _, genre := range genres {
		genreIDs = append(genreIDs, genre.ID)
	}

	manhwa := &Manhwa{
		DataSource: SourceLocal,
		TitleData: TitleData{
			Primary:      request.Title,
			Alternatives: request.AltTitles,
			Romanized:    request.Romanized,
		},
		Synopsis:        request.Synopsis,
		Status:          request.Status,
		Publisher:       request.Publisher,
		StartYear:       request.StartYear,
		EndYear:         request.EndYear,
		TotalChapters:   request.TotalChapters,
		SpecialChapters: request.SpecialChapters,
		SyncStatus:      SyncCurrent,
		Version:         1,
	}

	id, err := s.store.Insert(context, manhwa, genreIDs)
	if err != nil {
		return nil, err
	}

	created, err := s.store.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	// Invalidate after the commit so no cached search predates the row.
	s.caches.Search.DeleteMatching(context, constants.CachePrefixSearch)

	s.logger.Info("manhwa_created",
		slog.Int64("manhwa_id", id),
		slog.String("title", request.Title),
	)
	return created, nil
}

/*
Import mirrors an upstream record into the local catalogue.

A row that already mirrors the same upstream id fails with BadInput. Genre
linking is not attempted at import time; genres arrive through later
synchronisations or curation.
*/
func (s *Service) Import(context context.Context, upstreamID string) (*Manhwa, error) {

	// Duplicate check before spending an upstream request.
	if _, err := s.store.FindByUpstreamID(context, upstreamID); err == nil {
		return nil, apperr.BadInput("This manhwa has already been imported")
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	record, err := s.upstream.GetManga(context, upstreamID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	manhwa := &Manhwa{
		UpstreamID: &record.ID,
		DataSource: SourceUpstream,
		TitleData:  titleDataFrom(record),
		Synopsis:   record.Synopsis,
		Status:     Status(record.Status),

		StartYear:     record.Year,
		TotalChapters: record.TotalChapters,

		LastSyncedAt: &now,
		SyncStatus:   SyncCurrent,
		Version:      1,
	}
	manhwa.CoverThumb, manhwa.CoverMedium, manhwa.CoverLarge = s.coverSet(record)

	id, err := s.store.Insert(context, manhwa, nil)
	if err != nil {
		return nil, err
	}

	created, err := s.store.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("manhwa_imported",
		slog.Int64("manhwa_id", id),
		slog.String("upstream_id", upstreamID),
	)
	return created, nil
}

// # Synchronisation

// SyncReport is the outcome of one synchronisation attempt.
type SyncReport struct {
	Status       string     `json:"status"`
	Message      string     `json:"message"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

/*
SyncOne refreshes one row from the upstream catalogue.

On success the patch bumps the version, stamps lastSyncedAt, and the
entity and search cache entries are invalidated after the commit. On any
failure the row is marked Failed and the error is wrapped as SyncFailed,
with a dedicated message when the record no longer exists upstream.
*/
func (s *Service) SyncOne(context context.Context, id int64, upstreamID string) (*SyncReport, error) {

	record, err := s.upstream.GetManga(context, upstreamID)
	if err != nil {
		return nil, s.failSync(context, id, err)
	}

	now := time.Now()
	titleData := titleDataFrom(record)
	status := Status(record.Status)
	syncStatus := SyncCurrent

	patch := UpdatePatch{
		TitleData:     &titleData,
		Synopsis:      &record.Synopsis,
		Status:        &status,
		StartYear:     record.Year,
		TotalChapters: record.TotalChapters,
		LastSyncedAt:  &now,
		SyncStatus:    &syncStatus,
		BumpVersion:   true,
	}
	patch.CoverThumb, patch.CoverMedium, patch.CoverLarge = s.coverSet(record)

	if err := s.store.Update(context, id, patch); err != nil {
		return nil, s.failSync(context, id, err)
	}

	// Invalidate after the commit.
	s.caches.Entity.Delete(context, entityKey(id))
	s.caches.Search.DeleteMatching(context, constants.CachePrefixSearch)

	s.logger.Info("manhwa_synced",
		slog.Int64("manhwa_id", id),
		slog.String("upstream_id", upstreamID),
	)
	return &SyncReport{
		Status:       "success",
		Message:      "Synchronised from upstream",
		LastSyncedAt: &now,
	}, nil
}

/*
Refresh synchronises one row inline, resolving its upstream identifier
first. Local rows cannot be refreshed.
*/
func (s *Service) Refresh(context context.Context, id int64) (*SyncReport, error) {
	manhwa, err := s.store.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if manhwa.UpstreamID == nil {
		return nil, apperr.BadInput("Local manhwa cannot be synchronised")
	}
	return s.SyncOne(context, id, *manhwa.UpstreamID)
}

// ScheduleSync enqueues a background synchronisation for one row at the
// highest priority.
func (s *Service) ScheduleSync(context context.Context, id int64) error {
	manhwa, err := s.store.FindByID(context, id)
	if err != nil {
		return err
	}
	if manhwa.UpstreamID == nil {
		return apperr.BadInput("Local manhwa cannot be synchronised")
	}
	if s.refresher == nil {
		return apperr.SyncFailed("Background synchronisation is not available", nil)
	}
	s.refresher.SyncNow(manhwa.ID, *manhwa.UpstreamID)
	return nil
}

// Synchronize adapts [SyncOne] to the error-only signature the background
// syncer drives.
func (s *Service) Synchronize(context context.Context, id int64, upstreamID string) error {
	_, err := s.SyncOne(context, id, upstreamID)
	return err
}

// failSync records the failure on the row and wraps the cause as
// SyncFailed, preserving rate-limit reasons.
func (s *Service) failSync(context context.Context, id int64, cause error) error {
	if err := s.store.MarkSyncFailed(context, id); err != nil && !apperr.IsNotFound(err) {
		s.logger.Error("sync_status_writeback_failed",
			slog.Int64("manhwa_id", id),
			slog.String("error", err.Error()),
		)
	}

	switch {
	case apperr.IsNotFound(cause):
		return apperr.SyncFailed("Manga no longer exists on Upstream", cause)
	case apperr.IsRateLimited(cause):
		return apperr.SyncFailed(cause.Error(), cause)
	default:
		return apperr.SyncFailed("Failed to synchronise manhwa", cause)
	}
}

// # Cache Administration

// CacheStats reports hit/miss counters and key counts per tier.
func (s *Service) CacheStats(context context.Context) map[string]cache.Stats {
	return map[string]cache.Stats{
		"entity": s.caches.Entity.Stats(context),
		"search": s.caches.Search.Stats(context),
		"tags":   s.caches.Tags.Stats(context),
	}
}

// ClearCache removes every key containing pattern across all tiers and
// returns the number of keys removed.
func (s *Service) ClearCache(context context.Context, pattern string) int {
	removed := s.caches.Entity.DeleteMatching(context, pattern)
	removed += s.caches.Search.DeleteMatching(context, pattern)
	removed += s.caches.Tags.DeleteMatching(context, pattern)

	s.logger.Info("cache_cleared",
		slog.String("pattern", pattern),
		slog.Int("removed", removed),
	)
	return removed
}

// # Upstream Mapping Helpers

// titleDataFrom builds the structured title record from an upstream record.
func titleDataFrom(record *upstream.Manga) TitleData {
	alternatives := make([]AltTitle, 0, len(record.AltTitles))
	for _, altTitle := range record.AltTitles {
		alternatives = append(alternatives, AltTitle{
			Language: altTitle.Language,
			Title:    altTitle.Title,
		})
	}
	return TitleData{
		Primary:      record.Title,
		Alternatives: alternatives,
		Romanized:    record.Romanized,
	}
}

// coverSet derives the three cover resolutions from an upstream record.
// A record without cover art yields nil pointers.
func (s *Service) coverSet(record *upstream.Manga) (thumb, medium, large *string) {
	if record.CoverFileName == "" {
		return nil, nil, nil
	}
	thumbURL := s.upstream.CoverURL(record.ID, record.CoverFileName, upstream.CoverThumb)
	mediumURL := s.upstream.CoverURL(record.ID, record.CoverFileName, upstream.CoverMedium)
	largeURL := s.upstream.CoverURL(record.ID, record.CoverFileName, upstream.CoverLarge)
	return &thumbURL, &mediumURL, &largeURL
}

// uniqueStrings deduplicates while preserving nothing but the count; used
// to compare resolved genres against requested slugs.
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var unique []string
	for _, value := range values {
		if _, duplicate := seen[value]; duplicate {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}

// missingSlugs lists the requested slugs that did not resolve to a genre.
func missingSlugs(requested []string, resolved []Genre) []string {
	known := make(map[string]struct{}, len(resolved))
	for _, genre := range resolved {
		known[genre.Slug] = struct{}{}
	}

	var missing []string
	for _, slug := range uniqueStrings(requested) {
		if _, found := known[slug]; !found {
			missing = append(missing, slug)
		}
	}
	return missing
}
