package pipeline

import (
	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/monitoring"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// JobRecorder persists job history. Implemented by repository.History.
type JobRecorder interface {
	CreateJob(job *models.Job, reason string) error
	CreateJobEvent(jobID string, fromStatus *models.JobStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error
	UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, meta map[string]interface{}) error
	CompleteJob(jobID string, fromStatus, toStatus models.JobStatus, reason string, accepted *bool, distance *float64, errMsg string) error
	CreateArtifact(jobID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error
}

// tracker follows one engine job through the pipeline states. History writes
// are best effort and never fail the pipeline.
type tracker struct {
	recorder JobRecorder
	job      *models.Job
	state    models.PipelineState
	entry    *log.Entry
}

func newTracker(recorder JobRecorder, project string, kind models.JobKind, configPath string) *tracker {
	job := &models.Job{
		ID:         uuid.New().String(),
		Project:    project,
		Kind:       kind,
		Status:     models.JobStatusPending,
		ConfigPath: configPath,
	}
	t := &tracker{
		recorder: recorder,
		job:      job,
		state:    models.StateReceived,
		entry:    log.WithFields(log.Fields{"project": project, "kind": kind, "job_id": job.ID}),
	}
	if recorder != nil {
		if err := recorder.CreateJob(job, string(models.StateReceived)); err != nil {
			t.entry.WithError(err).Warn("Failed to record job")
		}
	}
	t.entry.Debug("Pipeline received")
	return t
}

func (t *tracker) id() string { return t.job.ID }

// step records reaching a non-terminal state
func (t *tracker) step(state models.PipelineState) {
	t.state = state
	t.entry.WithField("stage", state).Debug("Pipeline step")
	if t.recorder == nil {
		return
	}
	from := t.job.Status
	if err := t.recorder.CreateJobEvent(t.job.ID, &from, t.job.Status, string(state), nil); err != nil {
		t.entry.WithError(err).Warn("Failed to record job event")
	}
}

// running moves the job to running once its config is on disk
func (t *tracker) running() {
	t.state = models.StateConfigRendered
	from := t.job.Status
	t.job.Status = models.JobStatusRunning
	if t.recorder == nil {
		return
	}
	if err := t.recorder.UpdateJobStatus(t.job.ID, from, t.job.Status, string(models.StateConfigRendered), nil); err != nil {
		t.entry.WithError(err).Warn("Failed to record job status")
	}
}

// artifact records a file the job read or produced
func (t *tracker) artifact(kind models.ArtifactType, path string) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.CreateArtifact(t.job.ID, kind, path, nil); err != nil {
		t.entry.WithError(err).Warn("Failed to record artifact")
	}
}

// fail ends the job in a terminal failure state and returns err unchanged
func (t *tracker) fail(state models.PipelineState, err error) error {
	t.state = state
	monitoring.ObservePipelineFailure(state)
	t.entry.WithField("stage", state).WithError(err).Error("Pipeline failed")

	if state == models.StateEngineFailure {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("project", t.job.Project)
			scope.SetTag("kind", string(t.job.Kind))
			scope.SetTag("job_id", t.job.ID)
			sentry.CaptureMessage(err.Error())
		})
	}

	t.complete(models.JobStatusFailed, state, nil, nil, err.Error())
	return err
}

// finish ends the job in the responded state
func (t *tracker) finish(accepted *bool, distance *float64) {
	t.state = models.StateResponded
	t.entry.Info("Pipeline completed")
	t.complete(models.JobStatusCompleted, models.StateResponded, accepted, distance, "")
}

func (t *tracker) complete(status models.JobStatus, state models.PipelineState, accepted *bool, distance *float64, errMsg string) {
	from := t.job.Status
	t.job.Status = status
	t.job.Accepted = accepted
	t.job.Distance = distance
	t.job.Error = errMsg
	if t.recorder == nil {
		return
	}
	if err := t.recorder.CompleteJob(t.job.ID, from, status, string(state), accepted, distance, errMsg); err != nil {
		t.entry.WithError(err).Warn("Failed to record job completion")
	}
}
