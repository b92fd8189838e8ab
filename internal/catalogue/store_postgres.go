// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
PostgreSQL implementation of the catalogue [Store].

It leans on Postgres features to keep the read path to a single round-trip:
  - Full-Text Search: 'plainto_tsquery' against the pre-built GIN-indexed
    search vector, ranked with ts_rank.
  - JSON Aggregation: Genres are folded into each row with json_agg to
    avoid N+1 queries.
  - Window Functions: COUNT(*) OVER() returns the total match count
    without a second query.
  - ACID Transactions: Inserts write the row and its genre junctions
    atomically.
*/
package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/manhwari/internal/platform/apperr"
	"github.com/taibuivan/manhwari/internal/platform/constants"
	"github.com/taibuivan/manhwari/internal/platform/database/schema"
)

// # PostgreSQL Repository

// postgresStore implements the [Store] interface using pgx.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL backed catalogue store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// selectColumns is the shared projection for manhwa reads: every column of
// the table except the search vector, plus the genre JSON aggregate.
func selectColumns() string {
	return fmt.Sprintf(`
		m.%s, m.%s, m.%s, m.%s, m.%s, m.%s,
		m.%s, m.%s, m.%s, m.%s, m.%s,
		m.%s, m.%s, m.%s, m.%s, m.%s, m.%s,
		m.%s, m.%s,
		COALESCE((
			SELECT json_agg(json_build_object('id', g.%s, 'name', g.%s, 'slug', g.%s) ORDER BY g.%s)
			FROM %s g
			JOIN %s mg ON g.%s = mg.%s
			WHERE mg.%s = m.%s
		), '[]') AS genres`,
		schema.Manhwa.ID,
		schema.Manhwa.UpstreamID,
		schema.Manhwa.DataSource,
		schema.Manhwa.TitleData,
		schema.Manhwa.Synopsis,
		schema.Manhwa.Status,
		schema.Manhwa.Publisher,
		schema.Manhwa.StartYear,
		schema.Manhwa.EndYear,
		schema.Manhwa.TotalChapters,
		schema.Manhwa.SpecialChapters,
		schema.Manhwa.CoverThumb,
		schema.Manhwa.CoverMedium,
		schema.Manhwa.CoverLarge,
		schema.Manhwa.LastSyncedAt,
		schema.Manhwa.SyncStatus,
		schema.Manhwa.Version,
		schema.Manhwa.CreatedAt,
		schema.Manhwa.UpdatedAt,
		schema.Genre.ID,
		schema.Genre.Name,
		schema.Genre.Slug,
		schema.Genre.Name,
		schema.Genre.Table,
		schema.ManhwaGenre.Table,
		schema.Genre.ID, schema.ManhwaGenre.GenreID,
		schema.ManhwaGenre.ManhwaID, schema.Manhwa.ID,
	)
}

// scanTargets returns the scan destinations matching [selectColumns] order.
// The JSON columns are captured as raw bytes and hydrated afterwards.
func scanTargets(manhwa *Manhwa, titleJSON, genresJSON *[]byte) []any {
	return []any{
		&manhwa.ID,
		&manhwa.UpstreamID,
		&manhwa.DataSource,
		titleJSON,
		&manhwa.Synopsis,
		&manhwa.Status,
		&manhwa.Publisher,
		&manhwa.StartYear,
		&manhwa.EndYear,
		&manhwa.TotalChapters,
		&manhwa.SpecialChapters,
		&manhwa.CoverThumb,
		&manhwa.CoverMedium,
		&manhwa.CoverLarge,
		&manhwa.LastSyncedAt,
		&manhwa.SyncStatus,
		&manhwa.Version,
		&manhwa.CreatedAt,
		&manhwa.UpdatedAt,
		genresJSON,
	}
}

// hydrate unmarshals the JSON columns captured during scanning.
func hydrate(manhwa *Manhwa, titleJSON, genresJSON []byte) error {
	if err := json.Unmarshal(titleJSON, &manhwa.TitleData); err != nil {
		return fmt.Errorf("postgres: failed to unmarshal title data: %w", err)
	}
	if err := json.Unmarshal(genresJSON, &manhwa.Genres); err != nil {
		return fmt.Errorf("postgres: failed to unmarshal genres: %w", err)
	}
	return nil
}

/*
FindByID retrieves a manhwa by its primary key.

Description: Single-row lookup hydrating the full entity, including the
genre list via a json_agg sub-query in the same round-trip.

Parameters:
  - context: context.Context for request scoping and cancellation.
  - id: int64 primary key of the target row.

Returns:
  - *Manhwa: The hydrated entity.
  - error: apperr.NotFound when the row is absent, otherwise driver errors.
*/
func (store *postgresStore) FindByID(context context.Context, id int64) (*Manhwa, error) {

	// Unified lookup query with JSON genre aggregation
	query := fmt.Sprintf("SELECT %s FROM %s m WHERE m.%s = $1",
		selectColumns(), schema.Manhwa.Table, schema.Manhwa.ID)

	manhwa := &Manhwa{}
	var titleJSON, genresJSON []byte

	err := store.pool.QueryRow(context, query, id).Scan(scanTargets(manhwa, &titleJSON, &genresJSON)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Manhwa")
		}
		return nil, fmt.Errorf("postgres: failed to find manhwa by id: %w", err)
	}

	if err := hydrate(manhwa, titleJSON, genresJSON); err != nil {
		return nil, err
	}
	return manhwa, nil
}

/*
FindByIDs retrieves every existing manhwa among the given ids.

Missing ids are silently absent from the result; the caller derives its own
not-found list by comparing inputs against outputs.
*/
func (store *postgresStore) FindByIDs(context context.Context, ids []int64) ([]*Manhwa, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s m WHERE m.%s = ANY($1)",
		selectColumns(), schema.Manhwa.Table, schema.Manhwa.ID)

	rows, err := store.pool.Query(context, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to find manhwa by ids: %w", err)
	}
	defer rows.Close()

	var results []*Manhwa
	for rows.Next() {
		manhwa := &Manhwa{}
		var titleJSON, genresJSON []byte
		if err := rows.Scan(scanTargets(manhwa, &titleJSON, &genresJSON)...); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan manhwa: %w", err)
		}
		if err := hydrate(manhwa, titleJSON, genresJSON); err != nil {
			return nil, err
		}
		results = append(results, manhwa)
	}
	return results, rows.Err()
}

// FindByUpstreamID retrieves the manhwa mirroring the given upstream
// identifier. Used by Import for duplicate detection.
func (store *postgresStore) FindByUpstreamID(context context.Context, upstreamID string) (*Manhwa, error) {

	query := fmt.Sprintf("SELECT %s FROM %s m WHERE m.%s = $1",
		selectColumns(), schema.Manhwa.Table, schema.Manhwa.UpstreamID)

	manhwa := &Manhwa{}
	var titleJSON, genresJSON []byte

	err := store.pool.QueryRow(context, query, upstreamID).Scan(scanTargets(manhwa, &titleJSON, &genresJSON)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Manhwa")
		}
		return nil, fmt.Errorf("postgres: failed to find manhwa by upstream id: %w", err)
	}

	if err := hydrate(manhwa, titleJSON, genresJSON); err != nil {
		return nil, err
	}
	return manhwa, nil
}

/*
Insert persists a new manhwa and its genre junction rows atomically.

Description: Runs inside a single transaction so a junction failure rolls
back the core row. The search vector is recomputed by the table trigger
before the transaction commits.

Parameters:
  - context: context.Context for the transaction lifecycle.
  - manhwa: The entity to persist; ID is assigned by the database.
  - genreIDs: Genres to link; validated by the caller.

Returns:
  - int64: The assigned primary key.
  - error: apperr.Conflict on a duplicate upstream id, otherwise driver errors.
*/
func (store *postgresStore) Insert(context context.Context, manhwa *Manhwa, genreIDs []int64) (int64, error) {

	transaction, err := store.pool.Begin(context)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer transaction.Rollback(context)

	titleJSON, err := json.Marshal(manhwa.TitleData)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to marshal title data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			%s, %s, %s, %s, %s,
			%s, %s, %s, %s, %s,
			%s, %s, %s, %s, %s, %s
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING %s
	`,
		schema.Manhwa.Table,
		schema.Manhwa.UpstreamID, schema.Manhwa.DataSource, schema.Manhwa.TitleData, schema.Manhwa.Synopsis, schema.Manhwa.Status,
		schema.Manhwa.Publisher, schema.Manhwa.StartYear, schema.Manhwa.EndYear, schema.Manhwa.TotalChapters, schema.Manhwa.SpecialChapters,
		schema.Manhwa.CoverThumb, schema.Manhwa.CoverMedium, schema.Manhwa.CoverLarge, schema.Manhwa.LastSyncedAt, schema.Manhwa.SyncStatus, schema.Manhwa.Version,
		schema.Manhwa.ID,
	)

	var id int64
	err = transaction.QueryRow(context, query,
		manhwa.UpstreamID,
		manhwa.DataSource,
		titleJSON,
		manhwa.Synopsis,
		manhwa.Status,
		manhwa.Publisher,
		manhwa.StartYear,
		manhwa.EndYear,
		manhwa.TotalChapters,
		manhwa.SpecialChapters,
		manhwa.CoverThumb,
		manhwa.CoverMedium,
		manhwa.CoverLarge,
		manhwa.LastSyncedAt,
		manhwa.SyncStatus,
		manhwa.Version,
	).Scan(&id)

	if err != nil {
		// Unique-constraint violation on upstream_id surfaces as Conflict.
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation {
			return 0, apperr.Conflict("A manhwa with this upstream id already exists")
		}
		return 0, fmt.Errorf("postgres: failed to insert manhwa: %w", err)
	}

	// Genre junction batch insert
	if len(genreIDs) > 0 {
		insQuery := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2)",
			schema.ManhwaGenre.Table, schema.ManhwaGenre.ManhwaID, schema.ManhwaGenre.GenreID)

		batch := &pgx.Batch{}
		for _, genreID := range genreIDs {
			batch.Queue(insQuery, id, genreID)
		}
		if err := transaction.SendBatch(context, batch).Close(); err != nil {
			return 0, fmt.Errorf("postgres: failed to link genres: %w", err)
		}
	}

	if err := transaction.Commit(context); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit insert transaction: %w", err)
	}
	return id, nil
}

/*
Update applies a partial patch to an existing row.

Description: Builds a PATCH-style dynamic SET clause from the non-nil patch
fields so untouched columns keep their values. BumpVersion folds the version
increment into the same statement, keeping the counter monotonic under
concurrent syncs.
*/
func (store *postgresStore) Update(context context.Context, id int64, patch UpdatePatch) error {

	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf("UPDATE %s SET %s = NOW()", schema.Manhwa.Table, schema.Manhwa.UpdatedAt))

	var args []any
	argID := 1

	// Title data
	if patch.TitleData != nil {
		titleJSON, err := json.Marshal(patch.TitleData)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal title data: %w", err)
		}
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.TitleData, argID))
		args = append(args, titleJSON)
		argID++
	}

	// Synopsis
	if patch.Synopsis != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.Synopsis, argID))
		args = append(args, *patch.Synopsis)
		argID++
	}

	// Status
	if patch.Status != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.Status, argID))
		args = append(args, *patch.Status)
		argID++
	}

	// Publisher
	if patch.Publisher != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.Publisher, argID))
		args = append(args, *patch.Publisher)
		argID++
	}

	// Year range
	if patch.StartYear != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.StartYear, argID))
		args = append(args, *patch.StartYear)
		argID++
	}
	if patch.EndYear != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.EndYear, argID))
		args = append(args, *patch.EndYear)
		argID++
	}

	// Chapter count
	if patch.TotalChapters != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.TotalChapters, argID))
		args = append(args, *patch.TotalChapters)
		argID++
	}

	// Covers
	if patch.CoverThumb != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.CoverThumb, argID))
		args = append(args, *patch.CoverThumb)
		argID++
	}
	if patch.CoverMedium != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.CoverMedium, argID))
		args = append(args, *patch.CoverMedium)
		argID++
	}
	if patch.CoverLarge != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.CoverLarge, argID))
		args = append(args, *patch.CoverLarge)
		argID++
	}

	// Sync bookkeeping
	if patch.LastSyncedAt != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.LastSyncedAt, argID))
		args = append(args, *patch.LastSyncedAt)
		argID++
	}
	if patch.SyncStatus != nil {
		queryBuilder.WriteString(fmt.Sprintf(", %s = $%d", schema.Manhwa.SyncStatus, argID))
		args = append(args, *patch.SyncStatus)
		argID++
	}
	if patch.BumpVersion {
		queryBuilder.WriteString(fmt.Sprintf(", %s = %s + 1", schema.Manhwa.Version, schema.Manhwa.Version))
	}

	queryBuilder.WriteString(fmt.Sprintf(" WHERE %s = $%d", schema.Manhwa.ID, argID))
	args = append(args, id)

	result, err := store.pool.Exec(context, queryBuilder.String(), args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to update manhwa: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Manhwa")
	}
	return nil
}

// MarkSyncFailed stamps syncStatus = failed on the row after a failed
// synchronisation attempt.
func (store *postgresStore) MarkSyncFailed(context context.Context, id int64) error {

	query := fmt.Sprintf("UPDATE %s SET %s = $1, %s = NOW() WHERE %s = $2",
		schema.Manhwa.Table, schema.Manhwa.SyncStatus, schema.Manhwa.UpdatedAt, schema.Manhwa.ID)

	result, err := store.pool.Exec(context, query, SyncFailed, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark sync failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Manhwa")
	}
	return nil
}

/*
FullTextSearch runs a ranked lexeme query with AND-composed filters.

Description: Matches the pre-built search vector against a plain-text
parsed query, ranks with ts_rank (title carries weight A, synopsis weight
B), and paginates with the total count captured by a window function in the
same round-trip.
*/
func (store *postgresStore) FullTextSearch(context context.Context, query string, filter Filter, limit, offset int) ([]SearchRow, int, error) {

	var queryBuilder strings.Builder
	var args []any
	argID := 1

	queryBuilder.WriteString(fmt.Sprintf(`
		SELECT %s,
			ts_rank(m.%s, plainto_tsquery('english', $%d)) AS score,
			COUNT(*) OVER() AS total_count
		FROM %s m
		WHERE m.%s @@ plainto_tsquery('english', $%d)`,
		selectColumns(),
		schema.Manhwa.SearchVector, argID,
		schema.Manhwa.Table,
		schema.Manhwa.SearchVector, argID,
	))
	args = append(args, query)
	argID++

	argID = appendFilters(&queryBuilder, filter, &args, argID)

	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY score DESC, m.%s ASC", schema.Manhwa.ID))
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1))
	args = append(args, limit, offset)

	return store.queryRanked(context, queryBuilder.String(), args, true)
}

/*
FilterSearch lists rows matching the filters for blank-query searches,
ordered by updatedAt descending.
*/
func (store *postgresStore) FilterSearch(context context.Context, filter Filter, limit, offset int) ([]SearchRow, int, error) {

	var queryBuilder strings.Builder
	var args []any
	argID := 1

	queryBuilder.WriteString(fmt.Sprintf(`
		SELECT %s,
			COUNT(*) OVER() AS total_count
		FROM %s m
		WHERE TRUE`,
		selectColumns(),
		schema.Manhwa.Table,
	))

	argID = appendFilters(&queryBuilder, filter, &args, argID)

	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY m.%s DESC, m.%s DESC", schema.Manhwa.UpdatedAt, schema.Manhwa.ID))
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1))
	args = append(args, limit, offset)

	return store.queryRanked(context, queryBuilder.String(), args, false)
}

// ListRecent lists the newest rows by creation time.
func (store *postgresStore) ListRecent(context context.Context, limit int) ([]SearchRow, error) {

	query := fmt.Sprintf(`
		SELECT %s,
			COUNT(*) OVER() AS total_count
		FROM %s m
		ORDER BY m.%s DESC, m.%s DESC
		LIMIT $1`,
		selectColumns(),
		schema.Manhwa.Table,
		schema.Manhwa.CreatedAt, schema.Manhwa.ID,
	)

	rows, _, err := store.queryRanked(context, query, []any{limit}, false)
	return rows, err
}

/*
appendFilters writes the AND-composed filter predicates shared by the
search queries.

The year-range predicate uses interval overlap: a row matches when its
start–end span intersects the requested span, with a null end year treated
as open-ended future.
*/
func appendFilters(queryBuilder *strings.Builder, filter Filter, args *[]any, argID int) int {

	// Status filter
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for index, status := range filter.Statuses {
			statuses[index] = string(status)
		}
		queryBuilder.WriteString(fmt.Sprintf(" AND m.%s = ANY($%d)", schema.Manhwa.Status, argID))
		*args = append(*args, statuses)
		argID++
	}

	// Genre filter: existence predicate over the junction
	if len(filter.GenreSlugs) > 0 {
		queryBuilder.WriteString(fmt.Sprintf(
			" AND EXISTS (SELECT 1 FROM %s mg JOIN %s g ON g.%s = mg.%s WHERE mg.%s = m.%s AND g.%s = ANY($%d))",
			schema.ManhwaGenre.Table, schema.Genre.Table,
			schema.Genre.ID, schema.ManhwaGenre.GenreID,
			schema.ManhwaGenre.ManhwaID, schema.Manhwa.ID,
			schema.Genre.Slug, argID,
		))
		*args = append(*args, filter.GenreSlugs)
		argID++
	}

	// Year-range overlap
	if filter.YearStart != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND COALESCE(m.%s, 9999) >= $%d", schema.Manhwa.EndYear, argID))
		*args = append(*args, *filter.YearStart)
		argID++
	}
	if filter.YearEnd != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND COALESCE(m.%s, 0) <= $%d", schema.Manhwa.StartYear, argID))
		*args = append(*args, *filter.YearEnd)
		argID++
	}

	return argID
}

// queryRanked executes a search query and scans rows with the optional
// score column plus the windowed total count.
func (store *postgresStore) queryRanked(context context.Context, query string, args []any, withScore bool) ([]SearchRow, int, error) {

	rows, err := store.pool.Query(context, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to search manhwa: %w", err)
	}
	defer rows.Close()

	var results []SearchRow
	var totalCount int

	for rows.Next() {
		manhwa := &Manhwa{}
		var titleJSON, genresJSON []byte
		var score float64

		targets := scanTargets(manhwa, &titleJSON, &genresJSON)
		if withScore {
			targets = append(targets, &score)
		}
		targets = append(targets, &totalCount)

		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan manhwa: %w", err)
		}
		if err := hydrate(manhwa, titleJSON, genresJSON); err != nil {
			return nil, 0, err
		}

		row := SearchRow{Manhwa: manhwa}
		if withScore {
			rank := score
			row.Score = &rank
		}
		results = append(results, row)
	}
	return results, totalCount, rows.Err()
}

// ListGenresBySlug resolves genre slugs to genre rows.
func (store *postgresStore) ListGenresBySlug(context context.Context, slugs []string) ([]Genre, error) {
	if len(slugs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = ANY($1) ORDER BY %s ASC",
		schema.Genre.ID, schema.Genre.Name, schema.Genre.Slug,
		schema.Genre.Table, schema.Genre.Slug, schema.Genre.Name)

	return store.queryGenres(context, query, slugs)
}

// ListAllGenres returns every genre sorted by name ascending.
func (store *postgresStore) ListAllGenres(context context.Context) ([]Genre, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s ASC",
		schema.Genre.ID, schema.Genre.Name, schema.Genre.Slug,
		schema.Genre.Table, schema.Genre.Name)

	return store.queryGenres(context, query)
}

// queryGenres executes a genre projection query.
func (store *postgresStore) queryGenres(context context.Context, query string, args ...any) ([]Genre, error) {
	rows, err := store.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []Genre
	for rows.Next() {
		var genre Genre
		if err := rows.Scan(&genre.ID, &genre.Name, &genre.Slug); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan genre: %w", err)
		}
		genres = append(genres, genre)
	}
	return genres, rows.Err()
}

/*
ListOutdated returns up to limit upstream-sourced rows due for
synchronisation.

Ordering puts previously failed rows first, then the longest-unsynced rows,
with never-synced rows sorting before everything else in that second band.
*/
func (store *postgresStore) ListOutdated(context context.Context, limit int) ([]SyncCandidate, error) {

	cutoff := time.Now().Add(-constants.SyncStaleAfter)

	query := fmt.Sprintf(`
		SELECT %s, %s, (%s = $1) AS failed, %s
		FROM %s
		WHERE %s = $2
		  AND %s IS NOT NULL
		  AND (%s IS NULL OR %s < $3 OR %s = $1)
		ORDER BY (%s = $1) DESC, %s ASC NULLS FIRST
		LIMIT $4`,
		schema.Manhwa.ID, schema.Manhwa.UpstreamID, schema.Manhwa.SyncStatus, schema.Manhwa.LastSyncedAt,
		schema.Manhwa.Table,
		schema.Manhwa.DataSource,
		schema.Manhwa.UpstreamID,
		schema.Manhwa.LastSyncedAt, schema.Manhwa.LastSyncedAt, schema.Manhwa.SyncStatus,
		schema.Manhwa.SyncStatus, schema.Manhwa.LastSyncedAt,
	)

	rows, err := store.pool.Query(context, query, SyncFailed, SourceUpstream, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list outdated manhwa: %w", err)
	}
	defer rows.Close()

	var candidates []SyncCandidate
	for rows.Next() {
		var candidate SyncCandidate
		if err := rows.Scan(&candidate.ID, &candidate.UpstreamID, &candidate.Failed, &candidate.LastSyncedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan sync candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}
