package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"zkml-orchestrator/core/models"
)

// EventRepository reads the pipeline transitions recorded for jobs
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetJobEvents returns a job's transitions in the order they happened, each
// tagged with the pipeline stage its reason names
func (r *EventRepository) GetJobEvents(jobID string, limit int) ([]models.JobEvent, error) {
	query := `
		SELECT id, job_id, at, from_status, to_status, reason, meta_json
		FROM job_events
		WHERE job_id = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.db.Query(query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.JobEvent{}
	for rows.Next() {
		var event models.JobEvent
		var fromStatus sql.NullString
		var metaJSON string

		if err := rows.Scan(&event.ID, &event.JobID, &event.At, &fromStatus, &event.ToStatus, &event.Reason, &metaJSON); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			status := models.JobStatus(fromStatus.String)
			event.FromStatus = &status
		}
		if stage, ok := models.ParsePipelineState(event.Reason); ok {
			event.Stage = stage
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &event.MetaJSON); err != nil {
				return nil, fmt.Errorf("decoding meta of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// FailuresByStage counts failed jobs created since the given time by the
// reason of their failing transition. An empty project counts every project.
// Reasons outside the pipeline vocabulary, such as stale sweeps, keep their own key.
func (r *EventRepository) FailuresByStage(project string, since time.Time) (map[models.PipelineState]int, error) {
	query := `
		SELECT e.reason, COUNT(*)
		FROM job_events e
		JOIN jobs j ON j.id = e.job_id
		WHERE e.to_status = $1 AND j.created_at >= $2
	`
	args := []interface{}{models.JobStatusFailed, since}
	if project != "" {
		query += " AND j.project = $3"
		args = append(args, project)
	}
	query += " GROUP BY e.reason"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.PipelineState]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[models.PipelineState(reason)] += n
	}
	return counts, rows.Err()
}
