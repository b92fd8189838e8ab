// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"context"
	"time"
)

// SearchRow is one ranked full-text hit. Score is nil for unranked listing
// queries (empty query, trending, recent).
type SearchRow struct {
	Manhwa *Manhwa
	Score  *float64
}

// UpdatePatch describes a partial update applied by synchronisation.
//
// Nil fields are left untouched. BumpVersion increments the monotonic
// version counter in the same statement.
type UpdatePatch struct {
	TitleData   *TitleData
	Synopsis    *string
	Status      *Status
	Publisher   *string
	StartYear   *int
	EndYear     *int
	TotalChapters *int

	CoverThumb  *string
	CoverMedium *string
	CoverLarge  *string

	LastSyncedAt *time.Time
	SyncStatus   *SyncStatus
	BumpVersion  bool
}

// SyncCandidate is one row eligible for background synchronisation.
type SyncCandidate struct {
	ID           int64
	UpstreamID   string
	Failed       bool
	LastSyncedAt *time.Time
}

// Store defines the persistence contract for the catalogue domain.
//
// # Architecture
//
// The PostgreSQL implementation lives in store_postgres.go — the interface
// lives here because the service layer (the consumer) defines what it needs.
// All methods surface missing rows as apperr.NotFound and duplicate
// upstream identifiers as apperr.Conflict.
type Store interface {
	// FindByID returns the manhwa with the given ID, genres included.
	FindByID(ctx context.Context, id int64) (*Manhwa, error)

	// FindByIDs returns every existing manhwa among ids. Missing ids are
	// simply absent from the result; no error is raised for them.
	FindByIDs(ctx context.Context, ids []int64) ([]*Manhwa, error)

	// FindByUpstreamID returns the manhwa mirroring the given upstream
	// identifier.
	FindByUpstreamID(ctx context.Context, upstreamID string) (*Manhwa, error)

	// Insert persists a new manhwa with its genre links and returns the
	// assigned ID. A duplicate upstream identifier raises Conflict.
	Insert(ctx context.Context, manhwa *Manhwa, genreIDs []int64) (int64, error)

	// Update applies a partial patch to an existing row.
	Update(ctx context.Context, id int64, patch UpdatePatch) error

	// MarkSyncFailed stamps syncStatus = failed on the row.
	MarkSyncFailed(ctx context.Context, id int64) error

	// FullTextSearch runs a ranked lexeme query with AND-composed filters
	// and returns scored rows plus the total match count.
	FullTextSearch(ctx context.Context, query string, filter Filter, limit, offset int) ([]SearchRow, int, error)

	// FilterSearch lists rows matching the filters ordered by updatedAt
	// descending, for blank-query searches.
	FilterSearch(ctx context.Context, filter Filter, limit, offset int) ([]SearchRow, int, error)

	// ListRecent lists rows ordered by createdAt descending.
	ListRecent(ctx context.Context, limit int) ([]SearchRow, error)

	// ListGenresBySlug resolves genre slugs to genre rows. Unknown slugs
	// are absent from the result.
	ListGenresBySlug(ctx context.Context, slugs []string) ([]Genre, error)

	// ListAllGenres returns every genre sorted by name ascending.
	ListAllGenres(ctx context.Context) ([]Genre, error)

	// ListOutdated returns up to limit upstream-sourced rows due for
	// synchronisation: never synced, stale beyond the staleness window, or
	// previously failed. Failed rows sort first, then oldest sync first.
	ListOutdated(ctx context.Context, limit int) ([]SyncCandidate, error)
}
