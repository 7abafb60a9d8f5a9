package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zkml-orchestrator/core/models"
)

// ErrUnknownArtifactType is returned for artifact types no job records
var ErrUnknownArtifactType = errors.New("unknown artifact type")

// ArtifactRepository records the workspace files each job read or wrote
type ArtifactRepository struct {
	db  *DB
	now func() time.Time
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db, now: time.Now}
}

const artifactColumns = `a.id, a.job_id, a.type, a.uri, a.created_at, a.meta_json`

// GetJobArtifacts returns a job's artifacts in the order they were recorded,
// optionally only those of one type
func (r *ArtifactRepository) GetJobArtifacts(jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM job_artifacts a WHERE a.job_id = $1`
	args := []interface{}{jobID}
	if artifactType != nil {
		if !artifactType.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownArtifactType, *artifactType)
		}
		query += " AND a.type = $2"
		args = append(args, *artifactType)
	}
	query += " ORDER BY a.id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := []models.JobArtifact{}
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts, rows.Err()
}

// LatestArtifact returns the newest artifact of a type recorded by any job of
// project, or sql.ErrNoRows when there is none
func (r *ArtifactRepository) LatestArtifact(project string, artifactType models.ArtifactType) (*models.JobArtifact, error) {
	if !artifactType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArtifactType, artifactType)
	}
	query := `
		SELECT ` + artifactColumns + `
		FROM job_artifacts a
		JOIN jobs j ON j.id = a.job_id
		WHERE j.project = $1 AND a.type = $2
		ORDER BY a.id DESC
		LIMIT 1
	`
	return scanArtifact(r.db.QueryRow(query, project, artifactType))
}

// CreateArtifact records a file a job touched
func (r *ArtifactRepository) CreateArtifact(jobID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error {
	if !artifactType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownArtifactType, artifactType)
	}
	query := `
		INSERT INTO job_artifacts (job_id, type, uri, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(query, jobID, artifactType, uri, encodeMeta(meta), r.now())
	return err
}

func scanArtifact(row rowScanner) (*models.JobArtifact, error) {
	var artifact models.JobArtifact
	var metaJSON string
	if err := row.Scan(&artifact.ID, &artifact.JobID, &artifact.Type, &artifact.URI, &artifact.CreatedAt, &metaJSON); err != nil {
		return nil, err
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &artifact.MetaJSON); err != nil {
			return nil, fmt.Errorf("decoding meta of artifact %d: %w", artifact.ID, err)
		}
	}
	return &artifact, nil
}
