package schema

// GenreTable represents the 'genres' table
type GenreTable struct {
	Table string
	ID    string
	Name  string
	Slug  string
}

// Genre is the schema definition for the genres table
var Genre = GenreTable{
	Table: "genres",
	ID:    "id",
	Name:  "name",
	Slug:  "slug",
}

func (t GenreTable) Columns() []string {
	return []string{t.ID, t.Name, t.Slug}
}
