package handlers

import (
	"fmt"
	"net/http"
	"time"

	"zkml-orchestrator/core/models"
)

// FailureStore counts failed jobs by the stage they failed in
type FailureStore interface {
	FailuresByStage(project string, since time.Time) (map[models.PipelineState]int, error)
}

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	jobRepo  JobStore
	failures FailureStore
}

// NewDashboardHandler creates a new dashboard handler; failures may be nil
func NewDashboardHandler(jobRepo JobStore, failures FailureStore) *DashboardHandler {
	return &DashboardHandler{jobRepo: jobRepo, failures: failures}
}

// KindStats aggregates the jobs of one kind
type KindStats struct {
	Total        int     `json:"total"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	Running      int     `json:"running"`
	Accepted     int     `json:"accepted"`
	Rejected     int     `json:"rejected"`
	AcceptRate   float64 `json:"accept_rate"`
	MeanDistance float64 `json:"mean_distance"`
	MeanSeconds  float64 `json:"mean_seconds"`

	distanceSum float64
	judged      int
	secondsSum  float64
	timed       int
}

// GetStats handles GET /v1/dashboard/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	startDate := r.URL.Query().Get("start_date")

	// Default to the last 30 days
	start := time.Now().AddDate(0, 0, -30)
	if startDate != "" {
		var err error
		start, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid start_date format", errBadRequest))
			return
		}
	}

	jobs, err := h.jobRepo.ListJobs(project, nil, 1000)
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to fetch jobs: %w", err))
		return
	}

	body := map[string]interface{}{
		"project": project,
		"since":   start.Format(time.RFC3339),
		"kinds":   aggregate(jobs, start),
	}
	if h.failures != nil {
		failures, err := h.failures.FailuresByStage(project, start)
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to count failures: %w", err))
			return
		}
		body["failures_by_stage"] = failures
	}
	writeJSON(w, http.StatusOK, body)
}

func aggregate(jobs []*models.Job, since time.Time) map[models.JobKind]*KindStats {
	stats := make(map[models.JobKind]*KindStats)
	for _, job := range jobs {
		if job.CreatedAt.Before(since) {
			continue
		}
		s, ok := stats[job.Kind]
		if !ok {
			s = &KindStats{}
			stats[job.Kind] = s
		}

		s.Total++
		switch job.Status {
		case models.JobStatusCompleted:
			s.Completed++
		case models.JobStatusFailed:
			s.Failed++
		case models.JobStatusRunning:
			s.Running++
		}

		if job.Accepted != nil {
			if *job.Accepted {
				s.Accepted++
			} else {
				s.Rejected++
			}
		}
		if job.Distance != nil {
			s.distanceSum += *job.Distance
			s.judged++
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			s.secondsSum += job.CompletedAt.Sub(*job.StartedAt).Seconds()
			s.timed++
		}
	}

	for _, s := range stats {
		if s.Accepted+s.Rejected > 0 {
			s.AcceptRate = float64(s.Accepted) / float64(s.Accepted+s.Rejected)
		}
		if s.judged > 0 {
			s.MeanDistance = s.distanceSum / float64(s.judged)
		}
		if s.timed > 0 {
			s.MeanSeconds = s.secondsSum / float64(s.timed)
		}
	}
	return stats
}
