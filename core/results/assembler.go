package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"zkml-orchestrator/core/models"
)

// ErrArtifact is returned when an engine artifact is missing or malformed
var ErrArtifact = errors.New("artifact error")

// ReadDataFile reads an engine data file such as output.json
func ReadDataFile(path string) (*models.DataFile, error) {
	var out models.DataFile
	if err := readJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadProof reads a proof file verbatim
func ReadProof(path string) (*models.ProofArtifact, error) {
	var proof models.ProofArtifact
	if err := readJSON(path, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// ReadVerifierSource returns the generated verifier source text unchanged
func ReadVerifierSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading verifier source %s: %v", ErrArtifact, path, err)
	}
	return string(data), nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrArtifact, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrArtifact, path, err)
	}
	return nil
}
