package models

import "time"

// JobEvent represents a state transition event for a job
type JobEvent struct {
	ID         int64
	JobID      string
	At         time.Time
	FromStatus *JobStatus
	ToStatus   JobStatus
	Reason     string
	// Stage is the pipeline state the event recorded; empty for reasons
	// written outside the pipeline, such as the stale-job sweep
	Stage    PipelineState
	MetaJSON map[string]interface{}
}

// ArtifactType represents the type of job artifact
type ArtifactType string

const (
	ArtifactTypeInput           ArtifactType = "input"
	ArtifactTypeModel           ArtifactType = "model"
	ArtifactTypeConfig          ArtifactType = "config"
	ArtifactTypeOutput          ArtifactType = "output"
	ArtifactTypeVerificationKey ArtifactType = "vk"
	ArtifactTypeProof           ArtifactType = "proof"
	ArtifactTypeVerifierSource  ArtifactType = "sol"
	ArtifactTypeDeploymentCode  ArtifactType = "code"
)

// ArtifactTypes lists every artifact type a job can record
var ArtifactTypes = []ArtifactType{
	ArtifactTypeInput,
	ArtifactTypeModel,
	ArtifactTypeConfig,
	ArtifactTypeOutput,
	ArtifactTypeVerificationKey,
	ArtifactTypeProof,
	ArtifactTypeVerifierSource,
	ArtifactTypeDeploymentCode,
}

// Valid reports whether t is a known artifact type
func (t ArtifactType) Valid() bool {
	for _, known := range ArtifactTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobArtifact represents a file a job read or produced in its workspace
type JobArtifact struct {
	ID        int64
	JobID     string
	Type      ArtifactType
	URI       string
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}
