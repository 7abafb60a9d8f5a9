package repository

// History bundles the repositories the pipeline writes job history through
type History struct {
	*JobRepository
	*ArtifactRepository
}

// NewHistory creates a history writer over db
func NewHistory(db *DB) *History {
	return &History{
		JobRepository:      NewJobRepository(db),
		ArtifactRepository: NewArtifactRepository(db),
	}
}
