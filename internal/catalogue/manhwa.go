// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalogue

import (
	"time"

	"github.com/taibuivan/manhwari/internal/platform/constants"
)

// DataSource identifies where a manhwa record originates.
type DataSource string

const (
	// SourceLocal marks a record curated by hand; it never synchronises.
	SourceLocal DataSource = "local"
	// SourceUpstream marks a record imported from the external catalogue.
	SourceUpstream DataSource = "upstream"
)

// Status represents the publication status of a manhwa.
type Status string

const (
	// StatusOngoing indicates the publication is actively updating.
	StatusOngoing Status = "ongoing"
	// StatusCompleted indicates no further chapters are expected.
	StatusCompleted Status = "completed"
	// StatusHiatus indicates the publication is paused indefinitely.
	StatusHiatus Status = "hiatus"
	// StatusCancelled indicates the publication has been permanently discontinued.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a recognised [Status] value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOngoing, StatusCompleted, StatusHiatus, StatusCancelled:
		return true
	}
	return false
}

// SyncStatus tracks the synchronisation health of an upstream-sourced row.
type SyncStatus string

const (
	// SyncCurrent means the row matches the upstream record within the
	// staleness window.
	SyncCurrent SyncStatus = "current"
	// SyncOutdated means the row is due for a refresh.
	SyncOutdated SyncStatus = "outdated"
	// SyncFailed means the last synchronisation attempt failed.
	SyncFailed SyncStatus = "failed"
)

// TitleData is the structured title record persisted as JSON.
//
// Primary is the display title; Alternatives carries localised variants and
// Romanized the latin-script reading when one exists.
type TitleData struct {
	Primary      string     `json:"primary"`
	Alternatives []AltTitle `json:"alternatives,omitempty"`
	Romanized    string     `json:"romanized,omitempty"`
}

// AltTitle pairs a BCP-47 language code with a title variant.
type AltTitle struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

// Manhwa is the central aggregate of the catalogue domain.
//
// # Overview
//
// A row is either Local (hand-curated, immutable by the syncer) or Upstream
// (mirrored from the external catalogue and refreshed by the syncer). The
// sync bookkeeping fields (LastSyncedAt, SyncStatus, Version) only carry
// meaning for Upstream rows.
type Manhwa struct {
	ID         int64      `json:"id"`
	UpstreamID *string    `json:"upstreamId,omitempty"` // UUID in the external catalogue; nil for Local rows.
	DataSource DataSource `json:"dataSource"`
	TitleData  TitleData  `json:"titleData"`
	Synopsis   string     `json:"synopsis"`
	Status     Status     `json:"status"`

	Publisher       *string `json:"publisher,omitempty"`
	StartYear       *int    `json:"startYear,omitempty"`
	EndYear         *int    `json:"endYear,omitempty"`
	TotalChapters   *int    `json:"totalChapters,omitempty"`
	SpecialChapters *int    `json:"specialChapters,omitempty"`

	// Cover URLs at three resolutions, derived from the upstream cover
	// filename for Upstream rows.
	CoverThumb  *string `json:"coverThumb,omitempty"`
	CoverMedium *string `json:"coverMedium,omitempty"`
	CoverLarge  *string `json:"coverLarge,omitempty"`

	Genres []Genre `json:"genres"`

	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus"`
	Version      int        `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ShouldRefresh reports whether the row is due for a background refresh:
// upstream-sourced and either never synced or older than the staleness
// window.
func (m *Manhwa) ShouldRefresh(now time.Time) bool {
	if m.DataSource != SourceUpstream || m.UpstreamID == nil {
		return false
	}
	if m.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*m.LastSyncedAt) > constants.SyncStaleAfter
}

// Genre represents a genre tag attached to a [Manhwa].
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Filter holds the structured predicates of a catalogue search.
type Filter struct {
	Statuses   []Status `json:"status,omitempty"`
	GenreSlugs []string `json:"genres,omitempty"`
	YearStart  *int     `json:"yearStart,omitempty"`
	YearEnd    *int     `json:"yearEnd,omitempty"`
}

// SearchParams is the full, validated input of a catalogue search.
type SearchParams struct {
	Query           string
	Filters         Filter
	Page            int
	Limit           int
	IncludeExternal bool
}
