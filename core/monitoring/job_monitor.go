package monitoring

import (
	"context"
	"time"

	"zkml-orchestrator/core/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// StaleJobs counts history rows the monitor moved to failed
var StaleJobs = promauto.NewCounter(prometheus.CounterOpts{
	Name: "zkml_stale_jobs_total",
	Help: "Jobs failed by the monitor because no terminal state was ever recorded",
})

const staleReason = "stale"

// JobSweepStore is the part of the job history the monitor needs
type JobSweepStore interface {
	ListJobs(project string, status *models.JobStatus, limit int) ([]*models.Job, error)
	CompleteJob(jobID string, fromStatus, toStatus models.JobStatus, reason string, accepted *bool, distance *float64, errMsg string) error
}

// JobMonitor fails history rows that can no longer reach a terminal state:
// jobs left pending or running by an earlier process, and running jobs older
// than maxAge. A zero maxAge only sweeps leftovers from before boot.
type JobMonitor struct {
	jobs   JobSweepStore
	maxAge time.Duration
	boot   time.Time
	now    func() time.Time
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(jobs JobSweepStore, maxAge time.Duration) *JobMonitor {
	return &JobMonitor{
		jobs:   jobs,
		maxAge: maxAge,
		boot:   time.Now(),
		now:    time.Now,
	}
}

// Start sweeps once, then every interval until ctx is done
func (jm *JobMonitor) Start(ctx context.Context, interval time.Duration) {
	jm.Sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.Sweep()
		}
	}
}

// Sweep fails every stale job and returns how many it failed
func (jm *JobMonitor) Sweep() int {
	swept := 0
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning} {
		status := status
		jobs, err := jm.jobs.ListJobs("", &status, 500)
		if err != nil {
			log.WithError(err).WithField("status", status).Warn("Failed to list jobs for sweep")
			continue
		}
		for _, job := range jobs {
			if !jm.stale(job) {
				continue
			}
			msg := "abandoned without a terminal state"
			if err := jm.jobs.CompleteJob(job.ID, job.Status, models.JobStatusFailed, staleReason, nil, nil, msg); err != nil {
				log.WithError(err).WithField("job_id", job.ID).Warn("Failed to mark stale job")
				continue
			}
			StaleJobs.Inc()
			swept++
			log.WithFields(log.Fields{
				"job_id":  job.ID,
				"project": job.Project,
				"kind":    job.Kind,
				"status":  job.Status,
			}).Warn("Marked stale job as failed")
		}
	}
	return swept
}

func (jm *JobMonitor) stale(job *models.Job) bool {
	since := job.CreatedAt
	if job.StartedAt != nil {
		since = *job.StartedAt
	}
	if since.Before(jm.boot) {
		return true
	}
	return jm.maxAge > 0 && job.Status == models.JobStatusRunning && jm.now().Sub(since) > jm.maxAge
}
