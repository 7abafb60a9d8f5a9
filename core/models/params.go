package models

import (
	"errors"
	"fmt"
)

// CheckMode selects safe or unsafe numeric checks inside the circuit
type CheckMode string

const (
	CheckModeSafe   CheckMode = "SAFE"
	CheckModeUnsafe CheckMode = "UNSAFE"
)

// TranscriptType is the challenge hashing scheme used by Prove
type TranscriptType string

const (
	TranscriptEVM      TranscriptType = "EVM"
	TranscriptPoseidon TranscriptType = "Poseidon"
)

// StrategyType selects single or accumulated proving
type StrategyType string

const (
	StrategySingle StrategyType = "Single"
	StrategyAccum  StrategyType = "Accum"
)

// RunParameters is the numeric tuning record shared by every job kind.
// Field names match the engine's args section.
type RunParameters struct {
	Tolerance            float64   `json:"tolerance" yaml:"tolerance"`
	Scale                uint32    `json:"scale" yaml:"scale"`
	Bits                 uint32    `json:"bits" yaml:"bits"`
	Logrows              uint32    `json:"logrows" yaml:"logrows"`
	PublicInputs         bool      `json:"public_inputs" yaml:"public_inputs"`
	PublicOutputs        bool      `json:"public_outputs" yaml:"public_outputs"`
	PublicParams         bool      `json:"public_params" yaml:"public_params"`
	CheckMode            CheckMode `json:"check_mode" yaml:"check_mode"`
	PackBase             uint32    `json:"pack_base" yaml:"pack_base"`
	AllocatedConstraints *uint64   `json:"allocated_constraints,omitempty" yaml:"allocated_constraints,omitempty"`
}

// DefaultRunParameters mirrors the arguments the service has always run with
func DefaultRunParameters() RunParameters {
	return RunParameters{
		Tolerance:     0,
		Scale:         7,
		Bits:          16,
		Logrows:       17,
		PublicInputs:  false,
		PublicOutputs: true,
		PublicParams:  false,
		CheckMode:     CheckModeUnsafe,
		PackBase:      1,
	}
}

// Validate checks the invariants of a parameter set
func (p RunParameters) Validate() error {
	if p.Tolerance < 0 {
		return errors.New("tolerance must be non-negative")
	}
	if p.Scale == 0 {
		return errors.New("scale must be positive")
	}
	if p.Bits == 0 {
		return errors.New("bits must be positive")
	}
	if p.Logrows == 0 {
		return errors.New("logrows must be positive")
	}
	if p.PackBase == 0 {
		return errors.New("pack_base must be positive")
	}
	switch p.CheckMode {
	case CheckModeSafe, CheckModeUnsafe:
	default:
		return fmt.Errorf("unknown check_mode %q", p.CheckMode)
	}
	return nil
}

// JobPaths is the union of every path a job kind can reference.
// Which fields are required depends on the kind.
type JobPaths struct {
	Data               string
	Model              string
	Output             string
	VKPath             string
	ProofPath          string
	ParamsPath         string
	DeploymentCodePath string
	SolCodePath        string
}

// ProveOptions carries the Prove-only settings
type ProveOptions struct {
	Transcript TranscriptType `json:"transcript" yaml:"transcript"`
	Strategy   StrategyType   `json:"strategy" yaml:"strategy"`
}

// DefaultProveOptions returns EVM transcript with a single strategy
func DefaultProveOptions() ProveOptions {
	return ProveOptions{Transcript: TranscriptEVM, Strategy: StrategySingle}
}

// JobConfig is a fully resolved description of one engine job
type JobConfig struct {
	Kind  JobKind
	Args  RunParameters
	Paths JobPaths
	Prove ProveOptions
}
