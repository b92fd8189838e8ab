package schema

// ManhwaTable represents the 'manhwa' table
type ManhwaTable struct {
	Table           string
	ID              string
	UpstreamID      string
	DataSource      string
	TitleData       string
	Synopsis        string
	Status          string
	Publisher       string
	StartYear       string
	EndYear         string
	TotalChapters   string
	SpecialChapters string
	CoverThumb      string
	CoverMedium     string
	CoverLarge      string
	LastSyncedAt    string
	SyncStatus      string
	Version         string
	SearchVector    string
	CreatedAt       string
	UpdatedAt       string
}

// Manhwa is the schema definition for the manhwa table
var Manhwa = ManhwaTable{
	Table:           "manhwa",
	ID:              "id",
	UpstreamID:      "upstream_id",
	DataSource:      "data_source",
	TitleData:       "title_data",
	Synopsis:        "synopsis",
	Status:          "status",
	Publisher:       "publisher",
	StartYear:       "start_year",
	EndYear:         "end_year",
	TotalChapters:   "total_chapters",
	SpecialChapters: "special_chapters",
	CoverThumb:      "cover_thumb",
	CoverMedium:     "cover_medium",
	CoverLarge:      "cover_large",
	LastSyncedAt:    "last_synced_at",
	SyncStatus:      "sync_status",
	Version:         "version",
	SearchVector:    "search_vector",
	CreatedAt:       "created_at",
	UpdatedAt:       "updated_at",
}

func (t ManhwaTable) Columns() []string {
	return []string{
		t.ID, t.UpstreamID, t.DataSource, t.TitleData, t.Synopsis, t.Status,
		t.Publisher, t.StartYear, t.EndYear, t.TotalChapters, t.SpecialChapters,
		t.CoverThumb, t.CoverMedium, t.CoverLarge, t.LastSyncedAt, t.SyncStatus,
		t.Version, t.CreatedAt, t.UpdatedAt,
	}
}
