package models

import (
	"encoding/json"
	"fmt"
)

// Tensor is a row-major 2-D array of floats with its shape
type Tensor struct {
	Data  [][]float64 `json:"data"`
	Shape []int       `json:"shape,omitempty"`
}

// DataFile is the engine's data file layout (input.json / output.json)
type DataFile struct {
	InputData   [][]float64 `json:"input_data"`
	InputShapes [][]int     `json:"input_shapes"`
	OutputData  [][]float64 `json:"output_data"`
}

// Output returns the declared output rows as a tensor
func (d DataFile) Output() Tensor {
	return Tensor{Data: d.OutputData}
}

// VerdictOutcome separates engine failures from judged results
type VerdictOutcome string

const (
	OutcomeAccepted     VerdictOutcome = "accepted"
	OutcomeRejected     VerdictOutcome = "rejected"
	OutcomeEngineFailed VerdictOutcome = "engine_failed"
)

// Verdict is the result of a Mock or Prove pipeline run.
// Accepted is false for both rejected and engine_failed outcomes.
type Verdict struct {
	JobID    string         `json:"job_id,omitempty"`
	Outcome  VerdictOutcome `json:"outcome"`
	Accepted bool           `json:"accepted"`
	Distance *float64       `json:"distance,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// JudgeResult is the judged distance against a threshold
type JudgeResult struct {
	Accepted bool
	Distance float64
}

// ProofArtifact is the proof file written by the engine
type ProofArtifact struct {
	NumInstance []int        `json:"num_instance"`
	Instances   [][][]uint64 `json:"instances"`
	Proof       ProofBytes   `json:"proof"`
}

// ProofBytes encodes as a JSON array of byte values, the way the engine writes it
type ProofBytes []byte

// MarshalJSON implements json.Marshaler
func (b ProofBytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON implements json.Unmarshaler
func (b *ProofBytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("proof bytes: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("proof bytes: value %d at %d out of range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}
