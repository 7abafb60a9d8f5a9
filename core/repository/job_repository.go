package repository

import (
	"database/sql"
	"fmt"
	"time"

	"zkml-orchestrator/core/models"

	"github.com/google/uuid"
)

// JobRepository handles database operations for jobs. Every timestamp it
// writes comes from now, the same clock the stale-job sweep compares against.
type JobRepository struct {
	db  *DB
	now func() time.Time
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// CreateJob inserts a job and its first event in one transaction
func (r *JobRepository) CreateJob(job *models.Job, reason string) error {
	jobID := uuid.New()
	if job.ID != "" {
		var err error
		jobID, err = uuid.Parse(job.ID)
		if err != nil {
			return err
		}
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now()
	query := `
		INSERT INTO jobs (id, project, kind, status, config_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(query, jobID, job.Project, job.Kind, job.Status, job.ConfigPath, now, now); err != nil {
		return err
	}

	job.ID = jobID.String()
	if err := createJobEventTx(tx, now, job.ID, nil, job.Status, reason, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

const jobColumns = `id, project, kind, status, config_path, accepted, distance, error,
	created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var accepted sql.NullBool
	var distance sql.NullFloat64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Project,
		&job.Kind,
		&job.Status,
		&job.ConfigPath,
		&accepted,
		&distance,
		&job.Error,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accepted.Valid {
		job.Accepted = &accepted.Bool
	}
	if distance.Valid {
		job.Distance = &distance.Float64
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRow(query, id))
}

// UpdateJobStatus updates job status atomically with event logging
func (r *JobRepository) UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now()
	updateQuery := `UPDATE jobs SET status = $1, updated_at = $3 WHERE id = $2`
	if toStatus == models.JobStatusRunning {
		updateQuery = `UPDATE jobs SET status = $1, started_at = $3, updated_at = $3 WHERE id = $2`
	}
	if _, err := tx.Exec(updateQuery, toStatus, jobID, now); err != nil {
		return err
	}

	if err := createJobEventTx(tx, now, jobID, &fromStatus, toStatus, reason, meta); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteJob stores the terminal status and verdict of a job
func (r *JobRepository) CompleteJob(jobID string, fromStatus, toStatus models.JobStatus, reason string, accepted *bool, distance *float64, errMsg string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.now()
	query := `
		UPDATE jobs
		SET status = $1, accepted = $2, distance = $3, error = $4, completed_at = $6, updated_at = $6
		WHERE id = $5
	`
	if _, err := tx.Exec(query, toStatus, accepted, distance, errMsg, jobID, now); err != nil {
		return err
	}

	var meta map[string]interface{}
	if errMsg != "" {
		meta = map[string]interface{}{"error": errMsg}
	}
	if err := createJobEventTx(tx, now, jobID, &fromStatus, toStatus, reason, meta); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateJobEvent records a pipeline step without changing the job row
func (r *JobRepository) CreateJobEvent(jobID string, fromStatus *models.JobStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := createJobEventTx(tx, r.now(), jobID, fromStatus, toStatus, reason, meta); err != nil {
		return err
	}
	return tx.Commit()
}

func createJobEventTx(tx *sql.Tx, at time.Time, jobID string, fromStatus *models.JobStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error {
	query := `
		INSERT INTO job_events (job_id, from_status, to_status, reason, meta_json, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var fromStatusStr *string
	if fromStatus != nil {
		s := string(*fromStatus)
		fromStatusStr = &s
	}

	_, err := tx.Exec(query, jobID, fromStatusStr, toStatus, reason, encodeMeta(meta), at)
	return err
}

// ListJobs lists jobs newest first with optional project and status filters
func (r *JobRepository) ListJobs(project string, status *models.JobStatus, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1 = 1`
	args := []interface{}{}
	argIndex := 1

	if project != "" {
		query += fmt.Sprintf(" AND project = $%d", argIndex)
		args = append(args, project)
		argIndex++
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
