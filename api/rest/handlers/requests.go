package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"zkml-orchestrator/core/models"

	"github.com/ethereum/go-ethereum/common"
)

// maxBodyBytes bounds request bodies; models arrive base64 encoded inline
const maxBodyBytes = 64 << 20

var errBadRequest = errors.New("bad request")

// ForwardRequest is the body of POST /v1/projects/{project}/forward
type ForwardRequest struct {
	Input models.DataFile `json:"input"`
	Model string          `json:"model,omitempty"`
}

// Validate checks the request
func (r *ForwardRequest) Validate() error {
	return validateInput(r.Input, false)
}

// JudgeRequest is the body of the mock and prove endpoints
type JudgeRequest struct {
	Input  models.DataFile `json:"input"`
	Target models.Tensor   `json:"target"`
	Model  string          `json:"model,omitempty"`
	HuntID string          `json:"hunt_id,omitempty"`
	Winner string          `json:"winner,omitempty"`
}

// Validate checks the request
func (r *JudgeRequest) Validate() error {
	if err := validateInput(r.Input, true); err != nil {
		return err
	}
	if len(r.Target.Data) == 0 || len(r.Target.Data[0]) == 0 {
		return errors.New("target.data must not be empty")
	}
	if (r.HuntID == "") != (r.Winner == "") {
		return errors.New("hunt_id and winner must be given together")
	}
	if r.Winner != "" && !common.IsHexAddress(r.Winner) {
		return fmt.Errorf("winner %q is not a hex address", r.Winner)
	}
	return nil
}

// ArtifactRequest is the body of the verifier and prove-and-retrieve endpoints
type ArtifactRequest struct {
	Model string          `json:"model"`
	Input models.DataFile `json:"input"`
}

// Validate checks the request
func (r *ArtifactRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	return validateInput(r.Input, false)
}

// ModelUpload is the body of PUT /v1/projects/{project}/model
type ModelUpload struct {
	Model string `json:"model"`
}

// Validate checks the request
func (r *ModelUpload) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// CreateEvmContractData is the body of the legacy /prove and /generate_evm_contract routes
type CreateEvmContractData struct {
	ProjectName  string          `json:"project_name"`
	EchoData     models.DataFile `json:"echo_data"`
	OnnxFileData string          `json:"onnx_file_data"`
}

// Validate checks the request
func (r *CreateEvmContractData) Validate() error {
	if r.ProjectName == "" {
		return errors.New("project_name is required")
	}
	if r.OnnxFileData == "" {
		return errors.New("onnx_file_data is required")
	}
	return validateInput(r.EchoData, false)
}

// VerifierResponse carries generated verifier source
type VerifierResponse struct {
	Source string `json:"source"`
}

// ProveResponse carries the run status and the proof it produced
type ProveResponse struct {
	Status string                `json:"status"`
	Proof  *models.ProofArtifact `json:"proof"`
}

// ModelResponse reports where a model was stored
type ModelResponse struct {
	Project string `json:"project"`
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
}

type validator interface {
	Validate() error
}

func validateInput(in models.DataFile, needOutput bool) error {
	if len(in.InputData) == 0 {
		return errors.New("input_data must not be empty")
	}
	for i, row := range in.InputData {
		if len(row) == 0 {
			return fmt.Errorf("input_data row %d is empty", i)
		}
	}
	if needOutput && (len(in.OutputData) == 0 || len(in.OutputData[0]) == 0) {
		return errors.New("output_data must not be empty")
	}
	return nil
}

// decodeRequest reads a JSON body into v and validates it
func decodeRequest(w http.ResponseWriter, r *http.Request, v validator, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeModel turns base64 model bytes into raw bytes; empty stays nil
func decodeModel(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	model, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: model is not valid base64: %v", errBadRequest, err)
	}
	return model, nil
}
