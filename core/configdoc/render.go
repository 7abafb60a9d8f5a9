package configdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"zkml-orchestrator/core/models"
)

// ErrSerialization is returned when a JobConfig cannot be rendered or parsed
var ErrSerialization = errors.New("serialization error")

// Command tags as the engine expects them
const (
	TagForward          = "Forward"
	TagMock             = "Mock"
	TagProve            = "Prove"
	TagGenerateVerifier = "CreateEVMVerifier"
)

// Document is a rendered engine configuration
type Document struct {
	Config models.JobConfig
	Body   []byte
	// Path is set once the document has been written to the workspace
	Path string
}

type document struct {
	Command map[string]json.RawMessage `json:"command"`
	Args    models.RunParameters       `json:"args"`
}

type forwardCommand struct {
	Data   string `json:"data"`
	Model  string `json:"model"`
	Output string `json:"output"`
}

type mockCommand struct {
	Data  string `json:"data"`
	Model string `json:"model"`
}

type proveCommand struct {
	Data       string                `json:"data"`
	Model      string                `json:"model"`
	VKPath     string                `json:"vk_path"`
	ProofPath  string                `json:"proof_path"`
	ParamsPath string                `json:"params_path"`
	Transcript models.TranscriptType `json:"transcript"`
	Strategy   models.StrategyType   `json:"strategy"`
}

type verifierCommand struct {
	Model              string `json:"model"`
	VKPath             string `json:"vk_path"`
	ParamsPath         string `json:"params_path"`
	DeploymentCodePath string `json:"deployment_code_path"`
	SolCodePath        string `json:"sol_code_path"`
}

// TagFor returns the command tag for a job kind
func TagFor(kind models.JobKind) (string, error) {
	switch kind {
	case models.JobKindForward:
		return TagForward, nil
	case models.JobKindMock:
		return TagMock, nil
	case models.JobKindProve:
		return TagProve, nil
	case models.JobKindGenerateVerifier:
		return TagGenerateVerifier, nil
	}
	return "", fmt.Errorf("%w: unknown job kind %q", ErrSerialization, kind)
}

func kindFor(tag string) (models.JobKind, error) {
	switch tag {
	case TagForward:
		return models.JobKindForward, nil
	case TagMock:
		return models.JobKindMock, nil
	case TagProve:
		return models.JobKindProve, nil
	case TagGenerateVerifier:
		return models.JobKindGenerateVerifier, nil
	}
	return "", fmt.Errorf("%w: unknown command tag %q", ErrSerialization, tag)
}

// Render turns a JobConfig into the document the engine reads
func Render(cfg models.JobConfig) (*Document, error) {
	tag, err := TagFor(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if err := cfg.Args.Validate(); err != nil {
		return nil, fmt.Errorf("%w: args: %v", ErrSerialization, err)
	}

	payload, err := commandPayload(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s command: %v", ErrSerialization, tag, err)
	}

	body, err := json.MarshalIndent(document{
		Command: map[string]json.RawMessage{tag: raw},
		Args:    cfg.Args,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encoding document: %v", ErrSerialization, err)
	}

	return &Document{Config: cfg, Body: body}, nil
}

func commandPayload(cfg models.JobConfig) (interface{}, error) {
	p := cfg.Paths
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	var payload interface{}
	switch cfg.Kind {
	case models.JobKindForward:
		require("data", p.Data)
		require("model", p.Model)
		require("output", p.Output)
		payload = forwardCommand{Data: p.Data, Model: p.Model, Output: p.Output}
	case models.JobKindMock:
		require("data", p.Data)
		require("model", p.Model)
		payload = mockCommand{Data: p.Data, Model: p.Model}
	case models.JobKindProve:
		require("data", p.Data)
		require("model", p.Model)
		require("vk_path", p.VKPath)
		require("proof_path", p.ProofPath)
		require("params_path", p.ParamsPath)
		require("transcript", string(cfg.Prove.Transcript))
		require("strategy", string(cfg.Prove.Strategy))
		payload = proveCommand{
			Data:       p.Data,
			Model:      p.Model,
			VKPath:     p.VKPath,
			ProofPath:  p.ProofPath,
			ParamsPath: p.ParamsPath,
			Transcript: cfg.Prove.Transcript,
			Strategy:   cfg.Prove.Strategy,
		}
	case models.JobKindGenerateVerifier:
		require("model", p.Model)
		require("vk_path", p.VKPath)
		require("params_path", p.ParamsPath)
		require("deployment_code_path", p.DeploymentCodePath)
		require("sol_code_path", p.SolCodePath)
		payload = verifierCommand{
			Model:              p.Model,
			VKPath:             p.VKPath,
			ParamsPath:         p.ParamsPath,
			DeploymentCodePath: p.DeploymentCodePath,
			SolCodePath:        p.SolCodePath,
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s config missing %v", ErrSerialization, cfg.Kind, missing)
	}
	return payload, nil
}

// Parse reads a rendered document back into a JobConfig
func Parse(body []byte) (models.JobConfig, error) {
	var doc document
	if err := decodeStrict(body, &doc); err != nil {
		return models.JobConfig{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if len(doc.Command) != 1 {
		return models.JobConfig{}, fmt.Errorf("%w: expected exactly one command, got %d", ErrSerialization, len(doc.Command))
	}

	var cfg models.JobConfig
	for tag, raw := range doc.Command {
		kind, err := kindFor(tag)
		if err != nil {
			return models.JobConfig{}, err
		}
		cfg.Kind = kind

		switch kind {
		case models.JobKindForward:
			var c forwardCommand
			err = decodeStrict(raw, &c)
			cfg.Paths = models.JobPaths{Data: c.Data, Model: c.Model, Output: c.Output}
		case models.JobKindMock:
			var c mockCommand
			err = decodeStrict(raw, &c)
			cfg.Paths = models.JobPaths{Data: c.Data, Model: c.Model}
		case models.JobKindProve:
			var c proveCommand
			err = decodeStrict(raw, &c)
			cfg.Paths = models.JobPaths{
				Data:       c.Data,
				Model:      c.Model,
				VKPath:     c.VKPath,
				ProofPath:  c.ProofPath,
				ParamsPath: c.ParamsPath,
			}
			cfg.Prove = models.ProveOptions{Transcript: c.Transcript, Strategy: c.Strategy}
		case models.JobKindGenerateVerifier:
			var c verifierCommand
			err = decodeStrict(raw, &c)
			cfg.Paths = models.JobPaths{
				Model:              c.Model,
				VKPath:             c.VKPath,
				ParamsPath:         c.ParamsPath,
				DeploymentCodePath: c.DeploymentCodePath,
				SolCodePath:        c.SolCodePath,
			}
		}
		if err != nil {
			return models.JobConfig{}, fmt.Errorf("%w: %s command: %v", ErrSerialization, tag, err)
		}
	}

	cfg.Args = doc.Args
	if cfg.Args.CheckMode == "" {
		cfg.Args.CheckMode = models.CheckModeSafe
	}
	return cfg, nil
}

func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
