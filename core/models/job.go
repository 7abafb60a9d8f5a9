package models

import "time"

// JobKind selects the engine command a job runs
type JobKind string

const (
	JobKindForward          JobKind = "forward"
	JobKindMock             JobKind = "mock"
	JobKindProve            JobKind = "prove"
	JobKindGenerateVerifier JobKind = "generate_verifier"
)

// JobKinds lists every kind in pipeline order
var JobKinds = []JobKind{JobKindForward, JobKindMock, JobKindProve, JobKindGenerateVerifier}

// Valid reports whether k is one of the known job kinds
func (k JobKind) Valid() bool {
	switch k {
	case JobKindForward, JobKindMock, JobKindProve, JobKindGenerateVerifier:
		return true
	}
	return false
}

// Job is one engine invocation recorded in the job history
type Job struct {
	ID          string
	Project     string
	Kind        JobKind
	Status      JobStatus
	ConfigPath  string
	Accepted    *bool
	Distance    *float64
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// PipelineState names a step of the pipeline state machine.
// Job events carry the state reached as their reason.
type PipelineState string

const (
	StateReceived        PipelineState = "received"
	StateWorkspaceReady  PipelineState = "workspace_ready"
	StateInputsPersisted PipelineState = "inputs_persisted"
	StateConfigRendered  PipelineState = "config_rendered"
	StateJobExecuted     PipelineState = "job_executed"
	StateJudged          PipelineState = "judged"
	StateArtifactsRead   PipelineState = "artifacts_read"
	StateResponded       PipelineState = "responded"

	StateWorkspaceError     PipelineState = "workspace_error"
	StatePersistError       PipelineState = "persist_error"
	StateSerializationError PipelineState = "serialization_error"
	StateEngineFailure      PipelineState = "engine_failure"
	StateShapeMismatchError PipelineState = "shape_mismatch_error"
)

var pipelineStates = map[PipelineState]bool{
	StateReceived: false, StateWorkspaceReady: false, StateInputsPersisted: false,
	StateConfigRendered: false, StateJobExecuted: false, StateJudged: false,
	StateArtifactsRead: false, StateResponded: false,

	StateWorkspaceError: true, StatePersistError: true, StateSerializationError: true,
	StateEngineFailure: true, StateShapeMismatchError: true,
}

// ParsePipelineState maps an event reason back to the state it names
func ParsePipelineState(reason string) (PipelineState, bool) {
	s := PipelineState(reason)
	_, ok := pipelineStates[s]
	return s, ok
}

// IsError reports whether s is one of the error states
func (s PipelineState) IsError() bool {
	return pipelineStates[s]
}
