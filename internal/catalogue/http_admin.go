// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"net/http"

	requestutil "github.com/taibuivan/manhwari/internal/platform/request"
	"github.com/taibuivan/manhwari/internal/platform/respond"
	"github.com/taibuivan/manhwari/internal/platform/validate"
)

// # Management Endpoints

// createRequest is the JSON body of POST / (admin).
type createRequest struct {
	Title     string `json:"title"`
	AltTitles []struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"altTitles"`
	Romanized       string   `json:"romanized"`
	Synopsis        string   `json:"synopsis"`
	Status          string   `json:"status"`
	Publisher       *string  `json:"publisher"`
	StartYear       *int     `json:"startYear"`
	EndYear         *int     `json:"endYear"`
	TotalChapters   *int     `json:"totalChapters"`
	SpecialChapters *int     `json:"specialChapters"`
	Genres          []string `json:"genres"`
}

/*
POST /api/v1/manhwa (admin).

Description: Creates a hand-curated Local manhwa. Local rows never
synchronise with the upstream catalogue.

Response:
  - 201: The created entity including genres
  - 400: validation_failed or bad_input (unknown genre slug)
*/
func (handler *Handler) createManhwa(writer http.ResponseWriter, request *http.Request) {
	var body createRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	status := Status(body.Status)

	validator := &validate.Validator{}
	validator.
		Required("title", body.Title).
		MaxLen("title", body.Title, 500).
		Required("synopsis", body.Synopsis).
		MinLen("synopsis", body.Synopsis, 10).
		Custom("status", !status.IsValid(), "Must be one of: ongoing, completed, hiatus, cancelled")

	if body.StartYear != nil && body.EndYear != nil {
		validator.Custom("endYear", *body.EndYear < *body.StartYear, "Must not precede startYear")
	}
	for _, slug := range body.Genres {
		validator.Slug("genres", slug)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	altTitles := make([]AltTitle, 0, len(body.AltTitles))
	for _, altTitle := range body.AltTitles {
		altTitles = append(altTitles, AltTitle{
			Language: altTitle.Language,
			Title:    altTitle.Title,
		})
	}

	created, err := handler.service.Create(request.Context(), CreateRequest{
		Title:           body.Title,
		AltTitles:       altTitles,
		Romanized:       body.Romanized,
		Synopsis:        body.Synopsis,
		Status:          status,
		Publisher:       body.Publisher,
		StartYear:       body.StartYear,
		EndYear:         body.EndYear,
		TotalChapters:   body.TotalChapters,
		SpecialChapters: body.SpecialChapters,
		GenreSlugs:      body.Genres,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, created)
}

// importRequest is the JSON body of POST /import (admin).
type importRequest struct {
	UpstreamID string `json:"upstreamId"`
}

/*
POST /api/v1/manhwa/import (admin).

Description: Mirrors one upstream record into the local catalogue.

Response:
  - 201: The imported entity
  - 400: bad_input when the record is already imported
*/
func (handler *Handler) importManhwa(writer http.ResponseWriter, request *http.Request) {
	var body importRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required("upstreamId", body.UpstreamID).UUID("upstreamId", body.UpstreamID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	imported, err := handler.service.Import(request.Context(), body.UpstreamID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, imported)
}

/*
POST /api/v1/manhwa/{id}/refresh (admin).

Description: Synchronises one row from the upstream catalogue inline and
returns the sync report.
*/
func (handler *Handler) refreshManhwa(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.IntParam(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	report, err := handler.service.Refresh(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, report)
}

// # Cache Administration

/*
GET /api/v1/manhwa/cache/status (admin).

Description: Reports hit/miss counters and key counts per cache tier.
*/
func (handler *Handler) cacheStatus(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.service.CacheStats(request.Context()))
}

// cacheClearRequest is the JSON body of POST /cache/clear (admin).
type cacheClearRequest struct {
	Pattern string `json:"pattern"`
}

/*
POST /api/v1/manhwa/cache/clear (admin).

Description: Removes every cached key containing the given substring
across all tiers. An empty pattern flushes everything.
*/
func (handler *Handler) cacheClear(writer http.ResponseWriter, request *http.Request) {
	var body cacheClearRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	removed := handler.service.ClearCache(request.Context(), body.Pattern)
	respond.OK(writer, map[string]any{
		"pattern": body.Pattern,
		"removed": removed,
	})
}

// # Sync Control

/*
POST /api/v1/manhwa/sync/{id} (admin).

Description: Enqueues one row for background synchronisation at the
highest priority.
*/
func (handler *Handler) syncOne(writer http.ResponseWriter, request *http.Request) {
	id, err := requestutil.IntParam(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ScheduleSync(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{
		"status": "queued",
		"id":     id,
	})
}

/*
POST /api/v1/manhwa/sync/all (admin).

Description: Seeds the sync queue from the store (outdated and failed rows
first) and starts processing in the background.
*/
func (handler *Handler) syncAll(writer http.ResponseWriter, request *http.Request) {
	if err := handler.syncer.KickFullSync(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{
		"status": "started",
	})
}

/*
GET /api/v1/manhwa/sync/status (admin).

Description: Reports the queue length, the processing flag, and the queued
items with their priorities and retry counts.
*/
func (handler *Handler) syncStatus(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.syncer.Status())
}
