package schema

// ManhwaGenreTable represents the 'manhwa_genres' junction table
type ManhwaGenreTable struct {
	Table    string
	ManhwaID string
	GenreID  string
}

// ManhwaGenre is the schema definition for the manhwa_genres junction
var ManhwaGenre = ManhwaGenreTable{
	Table:    "manhwa_genres",
	ManhwaID: "manhwa_id",
	GenreID:  "genre_id",
}
