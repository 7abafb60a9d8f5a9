package spec

import (
	"fmt"
	"os"

	"zkml-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// RunProfile is the resolved engine tuning a deployment runs with
type RunProfile struct {
	Args      models.RunParameters
	Prove     models.ProveOptions
	Threshold float64
}

// DefaultRunProfile returns the built-in profile
func DefaultRunProfile(threshold float64) RunProfile {
	return RunProfile{
		Args:      models.DefaultRunParameters(),
		Prove:     models.DefaultProveOptions(),
		Threshold: threshold,
	}
}

// ProfileSpec represents the YAML run profile
type ProfileSpec struct {
	Args  *ProfileArgs  `yaml:"args"`
	Prove *ProfileProve `yaml:"prove"`
	Judge *ProfileJudge `yaml:"judge"`
}

// ProfileArgs is the union of every args field observed across engine versions
type ProfileArgs struct {
	Tolerance            *float64 `yaml:"tolerance"`
	Scale                *uint32  `yaml:"scale"`
	Bits                 *uint32  `yaml:"bits"`
	Logrows              *uint32  `yaml:"logrows"`
	PublicInputs         *bool    `yaml:"public_inputs"`
	PublicOutputs        *bool    `yaml:"public_outputs"`
	PublicParams         *bool    `yaml:"public_params"`
	CheckMode            *string  `yaml:"check_mode"`
	PackBase             *uint32  `yaml:"pack_base"`
	AllocatedConstraints *uint64  `yaml:"allocated_constraints,omitempty"`
}

// ProfileProve represents prove options
type ProfileProve struct {
	Transcript string `yaml:"transcript"`
	Strategy   string `yaml:"strategy"`
}

// ProfileJudge represents judge settings
type ProfileJudge struct {
	Threshold *float64 `yaml:"threshold"`
}

// LoadRunProfile reads a profile file; an empty path yields the defaults
func LoadRunProfile(path string, threshold float64) (RunProfile, error) {
	if path == "" {
		return DefaultRunProfile(threshold), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunProfile{}, fmt.Errorf("failed to read run profile: %w", err)
	}
	return ParseRunProfile(string(data), threshold)
}

// ParseRunProfile parses a YAML run profile on top of the built-in defaults.
// An args section that leaves out check_mode gets SAFE.
func ParseRunProfile(profileYAML string, threshold float64) (RunProfile, error) {
	var spec ProfileSpec
	if err := yaml.Unmarshal([]byte(profileYAML), &spec); err != nil {
		return RunProfile{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	profile := DefaultRunProfile(threshold)

	if a := spec.Args; a != nil {
		args := &profile.Args
		if a.Tolerance != nil {
			args.Tolerance = *a.Tolerance
		}
		if a.Scale != nil {
			args.Scale = *a.Scale
		}
		if a.Bits != nil {
			args.Bits = *a.Bits
		}
		if a.Logrows != nil {
			args.Logrows = *a.Logrows
		}
		if a.PublicInputs != nil {
			args.PublicInputs = *a.PublicInputs
		}
		if a.PublicOutputs != nil {
			args.PublicOutputs = *a.PublicOutputs
		}
		if a.PublicParams != nil {
			args.PublicParams = *a.PublicParams
		}
		if a.PackBase != nil {
			args.PackBase = *a.PackBase
		}
		args.AllocatedConstraints = a.AllocatedConstraints

		args.CheckMode = models.CheckModeSafe
		if a.CheckMode != nil {
			args.CheckMode = models.CheckMode(*a.CheckMode)
		}
	}

	if p := spec.Prove; p != nil {
		if p.Transcript != "" {
			profile.Prove.Transcript = models.TranscriptType(p.Transcript)
		}
		if p.Strategy != "" {
			profile.Prove.Strategy = models.StrategyType(p.Strategy)
		}
	}

	if spec.Judge != nil && spec.Judge.Threshold != nil {
		profile.Threshold = *spec.Judge.Threshold
	}

	if err := profile.Validate(); err != nil {
		return RunProfile{}, err
	}
	return profile, nil
}

// Validate checks the resolved profile
func (p RunProfile) Validate() error {
	if err := p.Args.Validate(); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}
	switch p.Prove.Transcript {
	case models.TranscriptEVM, models.TranscriptPoseidon:
	default:
		return fmt.Errorf("invalid prove.transcript %q", p.Prove.Transcript)
	}
	switch p.Prove.Strategy {
	case models.StrategySingle, models.StrategyAccum:
	default:
		return fmt.Errorf("invalid prove.strategy %q", p.Prove.Strategy)
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("judge threshold must be positive, got %v", p.Threshold)
	}
	return nil
}
