package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/repository"

	"github.com/gorilla/mux"
)

// JobStore is the job history the job endpoints read
type JobStore interface {
	GetJob(id string) (*models.Job, error)
	ListJobs(project string, status *models.JobStatus, limit int) ([]*models.Job, error)
}

// EventStore reads job events
type EventStore interface {
	GetJobEvents(jobID string, limit int) ([]models.JobEvent, error)
}

// ArtifactStore reads job artifacts
type ArtifactStore interface {
	GetJobArtifacts(jobID string, artifactType *models.ArtifactType) ([]models.JobArtifact, error)
	LatestArtifact(project string, artifactType models.ArtifactType) (*models.JobArtifact, error)
}

// JobHandler handles job history HTTP requests
type JobHandler struct {
	jobRepo      JobStore
	eventRepo    EventStore
	artifactRepo ArtifactStore
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobRepo JobStore, eventRepo EventStore, artifactRepo ArtifactStore) *JobHandler {
	return &JobHandler{
		jobRepo:      jobRepo,
		eventRepo:    eventRepo,
		artifactRepo: artifactRepo,
	}
}

// NewJobHandlerFromDB wires a job handler to the Postgres repositories
func NewJobHandlerFromDB(db *repository.DB) *JobHandler {
	return NewJobHandler(
		repository.NewJobRepository(db),
		repository.NewEventRepository(db),
		repository.NewArtifactRepository(db),
	)
}

// JobResponse is the JSON view of a job
type JobResponse struct {
	ID          string           `json:"id"`
	Project     string           `json:"project"`
	Kind        models.JobKind   `json:"kind"`
	Status      models.JobStatus `json:"status"`
	ConfigPath  string           `json:"config_path,omitempty"`
	Accepted    *bool            `json:"accepted,omitempty"`
	Distance    *float64         `json:"distance,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func jobResponse(job *models.Job) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Project:     job.Project,
		Kind:        job.Kind,
		Status:      job.Status,
		ConfigPath:  job.ConfigPath,
		Accepted:    job.Accepted,
		Distance:    job.Distance,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// lookupJob writes 404 or 500 and returns false when the job cannot be loaded
func (h *JobHandler) lookupJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, err := h.jobRepo.GetJob(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeErrorStatus(w, r, http.StatusNotFound, errors.New("job not found"))
		} else {
			writeError(w, r, fmt.Errorf("failed to fetch job: %w", err))
		}
		return nil, false
	}
	return job, true
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 50
	if limitParam := query.Get("limit"); limitParam != "" {
		if _, err := fmt.Sscanf(limitParam, "%d", &limit); err != nil || limit <= 0 || limit > 500 {
			writeError(w, r, fmt.Errorf("%w: limit must be between 1 and 500", errBadRequest))
			return
		}
	}

	var status *models.JobStatus
	if statusParam := query.Get("status"); statusParam != "" {
		s := models.JobStatus(statusParam)
		status = &s
	}

	jobs, err := h.jobRepo.ListJobs(query.Get("project"), status, limit)
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to list jobs: %w", err))
		return
	}

	items := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		items[i] = jobResponse(job)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	events, err := h.eventRepo.GetJobEvents(job.ID, 100)
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to fetch events: %w", err))
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":        event.At,
			"to_status": event.ToStatus,
			"reason":    event.Reason,
		}
		if event.FromStatus != nil {
			item["from_status"] = *event.FromStatus
		}
		if event.Stage != "" {
			item["stage"] = event.Stage
			item["error_stage"] = event.Stage.IsError()
		}
		if len(event.MetaJSON) > 0 {
			item["meta"] = event.MetaJSON
		}
		items[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetJobArtifacts handles GET /v1/jobs/{id}/artifacts
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	var artifactType *models.ArtifactType
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		t, err := artifactTypeParam(typeParam)
		if err != nil {
			writeError(w, r, err)
			return
		}
		artifactType = &t
	}

	artifacts, err := h.artifactRepo.GetJobArtifacts(job.ID, artifactType)
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to fetch artifacts: %w", err))
		return
	}

	items := make([]map[string]interface{}, len(artifacts))
	for i, artifact := range artifacts {
		items[i] = artifactItem(artifact)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetLatestArtifact handles GET /v1/projects/{project}/artifacts/{type}
func (h *JobHandler) GetLatestArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	artifactType, err := artifactTypeParam(vars["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	artifact, err := h.artifactRepo.LatestArtifact(vars["project"], artifactType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeErrorStatus(w, r, http.StatusNotFound, fmt.Errorf("no %s artifact recorded for %s", artifactType, vars["project"]))
		} else {
			writeError(w, r, fmt.Errorf("failed to fetch artifact: %w", err))
		}
		return
	}
	item := artifactItem(*artifact)
	item["job_id"] = artifact.JobID
	writeJSON(w, http.StatusOK, item)
}

func artifactTypeParam(value string) (models.ArtifactType, error) {
	t := models.ArtifactType(value)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown artifact type %q", errBadRequest, value)
	}
	return t, nil
}

func artifactItem(artifact models.JobArtifact) map[string]interface{} {
	item := map[string]interface{}{
		"type":       artifact.Type,
		"uri":        artifact.URI,
		"created_at": artifact.CreatedAt,
	}
	if len(artifact.MetaJSON) > 0 {
		item["meta"] = artifact.MetaJSON
	}
	return item
}
