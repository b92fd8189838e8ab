// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/taibuivan/manhwari/internal/platform/apperr"
	"github.com/taibuivan/manhwari/internal/platform/constants"
)

// # Search Responses

// listCap bounds the trending and recently-added listings.
const listCap = 100

// synopsisLimit is the maximum synopsis length in search results, in runes.
const synopsisLimit = 200

// SearchResult is the compact projection of one search hit.
//
// An ID of 0 marks a record served from the external catalogue that has not
// been imported locally.
type SearchResult struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	CoverThumb    *string  `json:"coverThumb,omitempty"`
	Synopsis      string   `json:"synopsis"`
	Status        string   `json:"status"`
	TotalChapters *int     `json:"totalChapters,omitempty"`
	Genres        []string `json:"genres"`
	Score         *float64 `json:"score,omitempty"`
}

// Pagination describes the result window of a search response.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalResults int `json:"totalResults"`
}

// SearchMetadata annotates a response with its provenance and latency.
type SearchMetadata struct {
	SourcesQueried []string `json:"sourcesQueried"`
	QueryTimeMS    int64    `json:"queryTime_ms"`
}

// SearchResponse is the full payload of a catalogue search.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	Pagination Pagination     `json:"pagination"`
	Metadata   SearchMetadata `json:"metadata"`
}

// # Cache Key Derivation

/*
CacheKey derives the canonical search-cache key for these parameters.

Every request field participates, and slice fields are sorted first, so two
logically equal requests always produce the same key regardless of the
order the caller supplied genres or statuses in.
*/
func (p SearchParams) CacheKey() string {
	statuses := make([]string, len(p.Filters.Statuses))
	for index, status := range p.Filters.Statuses {
		statuses[index] = string(status)
	}
	sort.Strings(statuses)

	genres := append([]string(nil), p.Filters.GenreSlugs...)
	sort.Strings(genres)

	yearStart, yearEnd := "", ""
	if p.Filters.YearStart != nil {
		yearStart = fmt.Sprintf("%d", *p.Filters.YearStart)
	}
	if p.Filters.YearEnd != nil {
		yearEnd = fmt.Sprintf("%d", *p.Filters.YearEnd)
	}

	return fmt.Sprintf("%sq=%s|st=%s|g=%s|ys=%s|ye=%s|p=%d|l=%d|ext=%t",
		constants.CachePrefixSearch,
		sanitizeQuery(p.Query),
		strings.Join(statuses, ","),
		strings.Join(genres, ","),
		yearStart,
		yearEnd,
		p.Page,
		p.Limit,
		p.IncludeExternal,
	)
}

// sanitizeQuery strips quotes and backslashes before the query reaches the
// text-search parser or a cache key.
func sanitizeQuery(query string) string {
	replacer := strings.NewReplacer(`'`, "", `"`, "", `\`, "")
	return strings.TrimSpace(replacer.Replace(query))
}

// # Search Engine

// Engine translates catalogue search requests into store queries and
// shapes the ranked, paginated response.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine constructs the search engine over the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With(slog.String("component", "search")),
	}
}

/*
FullTextSearch runs a local catalogue search.

# Algorithm

 1. Sanitise the query (quotes and backslashes are dropped).
 2. Non-empty query: ranked full-text search; each hit carries its score.
 3. Blank query: filter listing ordered by updatedAt descending.
 4. Shape pagination from the windowed total count.

The response always reports sourcesQueried = ["local"]; the service layer
appends the external source when the fallback path runs.
*/
func (e *Engine) FullTextSearch(context context.Context, params SearchParams) (*SearchResponse, error) {
	started := time.Now()

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := (params.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	var rows []SearchRow
	var total int
	var err error

	query := sanitizeQuery(params.Query)
	if query != "" {
		rows, total, err = e.store.FullTextSearch(context, query, params.Filters, limit, offset)
	} else {
		rows, total, err = e.store.FilterSearch(context, params.Filters, limit, offset)
	}
	if err != nil {
		return nil, apperr.SearchFailed(err)
	}

	response := e.shapeResponse(rows, params.Page, limit, total)
	response.Metadata.QueryTimeMS = time.Since(started).Milliseconds()
	return response, nil
}

// Trending lists ongoing titles by recency of update, capped at 100.
func (e *Engine) Trending(context context.Context, limit int) (*SearchResponse, error) {
	limit = clampListLimit(limit)

	rows, total, err := e.store.FilterSearch(context, Filter{Statuses: []Status{StatusOngoing}}, limit, 0)
	if err != nil {
		return nil, apperr.SearchFailed(err)
	}
	return e.shapeResponse(rows, 1, limit, total), nil
}

// RecentlyAdded lists the newest titles by creation time, capped at 100.
func (e *Engine) RecentlyAdded(context context.Context, limit int) (*SearchResponse, error) {
	limit = clampListLimit(limit)

	rows, err := e.store.ListRecent(context, limit)
	if err != nil {
		return nil, apperr.SearchFailed(err)
	}
	return e.shapeResponse(rows, 1, limit, len(rows)), nil
}

// shapeResponse converts store rows into the public response shape.
func (e *Engine) shapeResponse(rows []SearchRow, page, limit, total int) *SearchResponse {
	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, resultFromRow(row))
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &SearchResponse{
		Results: results,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalResults: total,
		},
		Metadata: SearchMetadata{
			SourcesQueried: []string{"local"},
		},
	}
}

// resultFromRow projects a stored row into the compact search shape.
func resultFromRow(row SearchRow) SearchResult {
	manhwa := row.Manhwa

	genres := make([]string, 0, len(manhwa.Genres))
	for _, genre := range manhwa.Genres {
		genres = append(genres, genre.Name)
	}

	return SearchResult{
		ID:            manhwa.ID,
		Title:         manhwa.TitleData.Primary,
		CoverThumb:    manhwa.CoverThumb,
		Synopsis:      TruncateSynopsis(manhwa.Synopsis),
		Status:        strings.ToLower(string(manhwa.Status)),
		TotalChapters: manhwa.TotalChapters,
		Genres:        genres,
		Score:         row.Score,
	}
}

// TruncateSynopsis caps a synopsis at 200 runes with an ellipsis marker.
func TruncateSynopsis(synopsis string) string {
	runes := []rune(synopsis)
	if len(runes) <= synopsisLimit {
		return synopsis
	}
	return string(runes[:synopsisLimit]) + "…"
}

// clampListLimit applies the default and ceiling for listing endpoints.
func clampListLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > listCap {
		return listCap
	}
	return limit
}
