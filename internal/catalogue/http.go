// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/manhwari/internal/platform/apperr"
	"github.com/taibuivan/manhwari/internal/platform/middleware"
	requestutil "github.com/taibuivan/manhwari/internal/platform/request"
	"github.com/taibuivan/manhwari/internal/platform/respond"
	"github.com/taibuivan/manhwari/internal/platform/sec"
	"github.com/taibuivan/manhwari/internal/platform/validate"
	"github.com/taibuivan/manhwari/internal/syncer"
)

// # Handler Implementation

// Handler implements the HTTP layer for catalogue discovery and
// administration. It translates web requests into domain service calls.
type Handler struct {
	service *Service
	syncer  *syncer.Syncer
}

// NewHandler constructs a catalogue [Handler] with its dependencies.
func NewHandler(service *Service, backgroundSyncer *syncer.Syncer) *Handler {
	return &Handler{
		service: service,
		syncer:  backgroundSyncer,
	}
}

// Routes returns a [chi.Router] configured with the catalogue endpoints.
//
// # Routing Strategy
//
//   - Discovery (Public): Search, lookup, trending, recent, genres.
//   - Management (Restricted): Requires [sec.RoleAdmin] for imports, cache
//     administration, and sync control.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// ## Public Discovery Endpoints
	router.Post("/search", handler.search)
	router.Post("/bulk", handler.bulkGet)
	router.Get("/trending", handler.trending)
	router.Get("/recent", handler.recentlyAdded)
	router.Get("/genres", handler.listGenres)
	router.Get("/{id}", handler.getManhwa)

	// ## Catalogue Management (Admin Protected)
	router.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireRole(sec.RoleAdmin))

		admin.Post("/", handler.createManhwa)
		admin.Post("/import", handler.importManhwa)
		admin.Post("/{id}/refresh", handler.refreshManhwa)

		// Cache administration
		admin.Get("/cache/status", handler.cacheStatus)
		admin.Post("/cache/clear", handler.cacheClear)

		// Sync control
		admin.Post("/sync/all", handler.syncAll)
		admin.Get("/sync/status", handler.syncStatus)
		admin.Post("/sync/{id}", handler.syncOne)
	})

	return router
}

// # Discovery Endpoints

// searchRequest is the JSON body of POST /search.
type searchRequest struct {
	Query   string `json:"query"`
	Filters struct {
		Genres    []string `json:"genres"`
		Status    []string `json:"status"`
		YearRange *struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"yearRange"`
	} `json:"filters"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
	} `json:"pagination"`
	IncludeExternal bool `json:"includeExternal"`
}

/*
POST /api/v1/manhwa/search.

Description: Runs a ranked catalogue search with optional filters and the
external-fallback flag.

Request:
  - query: string (1..200)
  - filters.genres: []slug (max 10)
  - filters.status: []string (ongoing, completed, hiatus, cancelled)
  - filters.yearRange: {start, end}
  - pagination: {page >= 1, limit 1..100 (default 20)}
  - includeExternal: bool (default false)

Response:
  - 200: SearchResponse
*/
func (handler *Handler) search(writer http.ResponseWriter, request *http.Request) {
	var body searchRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Defaults
	if body.Pagination.Page == 0 {
		body.Pagination.Page = 1
	}
	if body.Pagination.Limit == 0 {
		body.Pagination.Limit = 20
	}

	// Validation
	validator := &validate.Validator{}
	validator.
		Required("query", body.Query).
		MaxLen("query", body.Query, 200).
		Range("pagination.page", body.Pagination.Page, 1, 1_000_000).
		Range("pagination.limit", body.Pagination.Limit, 1, 100).
		Custom("filters.genres", len(body.Filters.Genres) > 10, "Maximum 10 genres per search")

	for _, slug := range body.Filters.Genres {
		validator.Slug("filters.genres", slug)
	}

	statuses := make([]Status, 0, len(body.Filters.Status))
	for _, raw := range body.Filters.Status {
		status := Status(raw)
		validator.Custom("filters.status", !status.IsValid(), "Unknown status: "+raw)
		statuses = append(statuses, status)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := SearchParams{
		Query: body.Query,
		Filters: Filter{
			Statuses:   statuses,
			GenreSlugs: body.Filters.Genres,
		},
		Page:            body.Pagination.Page,
		Limit:           body.Pagination.Limit,
		IncludeExternal: body.IncludeExternal,
	}
	if body.Filters.YearRange != nil {
		start, end := body.Filters.YearRange.Start, body.Filters.YearRange.End
		params.Filters.YearStart = &start
		params.Filters.YearEnd = &end
	}

	response, err := handler.service.Search(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, response)
}

/*
GET /api/v1/manhwa/{id}.

Description: Retrieves one manhwa. ?refresh=true forces an inline upstream
synchronisation before responding.

Response:
  - 200: Manhwa entity
  - 404: manhwa_not_found
*/
func (handler *Handler) getManhwa(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.IntParam(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	manhwa, err := handler.service.GetByID(request.Context(), id, requestutil.QueryBool(request, "refresh"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, manhwa)
}

// bulkRequest is the JSON body of POST /bulk. IDs may arrive as integers
// or numeric strings.
type bulkRequest struct {
	IDs []any `json:"ids"`
}

/*
POST /api/v1/manhwa/bulk.

Description: Resolves up to 100 ids in one call.

Response:
  - 200: { entities: { [id]: Manhwa }, notFound: [int] }
*/
func (handler *Handler) bulkGet(writer http.ResponseWriter, request *http.Request) {
	var body bulkRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if len(body.IDs) == 0 || len(body.IDs) > 100 {
		respond.Error(writer, request, apperr.BadInput("ids must contain between 1 and 100 entries"))
		return
	}

	ids, err := coerceIDs(body.IDs)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entities, notFound, err := handler.service.BulkGet(request.Context(), ids)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if notFound == nil {
		notFound = []int64{}
	}
	respond.OK(writer, map[string]any{
		"entities": entities,
		"notFound": notFound,
	})
}

/*
GET /api/v1/manhwa/trending?limit=N.

Description: Lists ongoing titles by recency of update. Limit is clamped
to 100 (default 20).
*/
func (handler *Handler) trending(writer http.ResponseWriter, request *http.Request) {
	response, err := handler.service.engine.Trending(request.Context(), requestutil.QueryInt(request, "limit", 20))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, response)
}

/*
GET /api/v1/manhwa/recent?limit=N.

Description: Lists the newest titles by creation time. Limit is clamped
to 100 (default 20).
*/
func (handler *Handler) recentlyAdded(writer http.ResponseWriter, request *http.Request) {
	response, err := handler.service.engine.RecentlyAdded(request.Context(), requestutil.QueryInt(request, "limit", 20))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, response)
}

/*
GET /api/v1/manhwa/genres.

Description: Lists every genre sorted by name. The genre set changes only
with migrations, so clients may cache for a day.
*/
func (handler *Handler) listGenres(writer http.ResponseWriter, request *http.Request) {
	genres, err := handler.service.ListGenres(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writer.Header().Set("Cache-Control", "public, max-age=86400")
	respond.OK(writer, genres)
}

// coerceIDs converts the mixed-type id array of a bulk request into
// int64 identifiers.
func coerceIDs(raw []any) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, value := range raw {
		switch typed := value.(type) {
		case float64:
			if typed < 1 || typed != float64(int64(typed)) {
				return nil, apperr.BadInput("ids must be positive integers")
			}
			ids = append(ids, int64(typed))
		case string:
			id, err := parsePositiveInt(typed)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		default:
			return nil, apperr.BadInput("ids must be integers or numeric strings")
		}
	}
	return ids, nil
}

// parsePositiveInt parses a numeric-string identifier.
func parsePositiveInt(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.BadInput("Invalid numeric identifier: " + raw)
	}
	return id, nil
}
