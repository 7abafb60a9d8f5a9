package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"zkml-orchestrator/core/models"
	"zkml-orchestrator/core/pipeline"
	"zkml-orchestrator/core/results"

	"github.com/gorilla/mux"
)

// Pipeline is the set of pipeline operations the HTTP layer exposes
type Pipeline interface {
	Forward(ctx context.Context, project string, input models.DataFile, model []byte) (*models.DataFile, error)
	Mock(ctx context.Context, project string, input models.DataFile, target models.Tensor, model []byte) (models.Verdict, error)
	Prove(ctx context.Context, project string, input models.DataFile, target models.Tensor, model []byte, claim *pipeline.WinClaim) (models.Verdict, error)
	GenerateVerifier(ctx context.Context, project string, model []byte, input models.DataFile) (string, error)
	ProveAndRetrieve(ctx context.Context, project string, model []byte, input models.DataFile) (string, *models.ProofArtifact, error)
	Proof(project string) (*models.ProofArtifact, error)
	UploadModel(project string, model []byte) (string, error)
	RunDocument(ctx context.Context, project string, body []byte) (*pipeline.DocumentRun, error)
}

// ProofHandler handles proof pipeline HTTP requests
type ProofHandler struct {
	pipeline       Pipeline
	defaultProject string
}

// NewProofHandler creates a new proof handler
func NewProofHandler(p Pipeline, defaultProject string) *ProofHandler {
	return &ProofHandler{
		pipeline:       p,
		defaultProject: defaultProject,
	}
}

// Forward handles POST /v1/projects/{project}/forward
func (h *ProofHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	output, err := h.pipeline.Forward(r.Context(), mux.Vars(r)["project"], req.Input, model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// Mock handles POST /v1/projects/{project}/mock
func (h *ProofHandler) Mock(w http.ResponseWriter, r *http.Request) {
	var req JudgeRequest
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	verdict, err := h.pipeline.Mock(r.Context(), mux.Vars(r)["project"], req.Input, req.Target, model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// Prove handles POST /v1/projects/{project}/prove
func (h *ProofHandler) Prove(w http.ResponseWriter, r *http.Request) {
	var req JudgeRequest
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var claim *pipeline.WinClaim
	if req.HuntID != "" {
		claim = &pipeline.WinClaim{HuntID: req.HuntID, Winner: req.Winner}
	}

	verdict, err := h.pipeline.Prove(r.Context(), mux.Vars(r)["project"], req.Input, req.Target, model, claim)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// GenerateVerifier handles POST /v1/projects/{project}/verifier
func (h *ProofHandler) GenerateVerifier(w http.ResponseWriter, r *http.Request) {
	var req ArtifactRequest
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	source, err := h.pipeline.GenerateVerifier(r.Context(), mux.Vars(r)["project"], model, req.Input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifierResponse{Source: source})
}

// ProveAndRetrieve handles POST /v1/projects/{project}/proofs
func (h *ProofHandler) ProveAndRetrieve(w http.ResponseWriter, r *http.Request) {
	var req ArtifactRequest
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, proof, err := h.pipeline.ProveAndRetrieve(r.Context(), mux.Vars(r)["project"], model, req.Input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProveResponse{Status: status, Proof: proof})
}

// GetProof handles GET /v1/projects/{project}/proof
func (h *ProofHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.pipeline.Proof(mux.Vars(r)["project"])
	if err != nil {
		if errors.Is(err, results.ErrArtifact) {
			writeErrorStatus(w, r, http.StatusNotFound, err)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// UploadModel handles PUT /v1/projects/{project}/model
func (h *ProofHandler) UploadModel(w http.ResponseWriter, r *http.Request) {
	var req ModelUpload
	if err := decodeRequest(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.Model)
	if err != nil {
		writeError(w, r, err)
		return
	}

	project := mux.Vars(r)["project"]
	path, err := h.pipeline.UploadModel(project, model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ModelResponse{Project: project, Path: path, Bytes: len(model)})
}

// RunDocument handles POST /v1/projects/{project}/run. The body is a config
// document in the engine's own format.
func (h *ProofHandler) RunDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: reading body: %v", errBadRequest, err))
		return
	}
	if len(body) == 0 {
		writeError(w, r, fmt.Errorf("%w: empty body", errBadRequest))
		return
	}

	run, err := h.pipeline.RunDocument(r.Context(), mux.Vars(r)["project"], body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// LegacyForward handles POST /forward against the default project
func (h *ProofHandler) LegacyForward(w http.ResponseWriter, r *http.Request) {
	var input models.DataFile
	if err := decodeRequest(w, r, &dataFileBody{DataFile: &input}, false); err != nil {
		writeError(w, r, err)
		return
	}

	output, err := h.pipeline.Forward(r.Context(), h.defaultProject, input, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

// LegacyGenerateEvmContract handles POST /generate_evm_contract and returns the source as plain text
func (h *ProofHandler) LegacyGenerateEvmContract(w http.ResponseWriter, r *http.Request) {
	var req CreateEvmContractData
	if err := decodeRequest(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.OnnxFileData)
	if err != nil {
		writeError(w, r, err)
		return
	}

	source, err := h.pipeline.GenerateVerifier(r.Context(), req.ProjectName, model, req.EchoData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(source))
}

// LegacyProve handles POST /prove and returns [status, proof]
func (h *ProofHandler) LegacyProve(w http.ResponseWriter, r *http.Request) {
	var req CreateEvmContractData
	if err := decodeRequest(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := decodeModel(req.OnnxFileData)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, proof, err := h.pipeline.ProveAndRetrieve(r.Context(), req.ProjectName, model, req.EchoData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []interface{}{status, proof})
}

// LegacyMock handles POST /mock against the default project. The declared
// output is judged against itself, so the verdict reports whether the engine
// accepted the witness.
func (h *ProofHandler) LegacyMock(w http.ResponseWriter, r *http.Request) {
	var input models.DataFile
	if err := decodeRequest(w, r, &dataFileBody{DataFile: &input, needOutput: true}, false); err != nil {
		writeError(w, r, err)
		return
	}

	verdict, err := h.pipeline.Mock(r.Context(), h.defaultProject, input, input.Output(), nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// LegacySubmitProof handles POST /submit_proof against the default project
func (h *ProofHandler) LegacySubmitProof(w http.ResponseWriter, r *http.Request) {
	var input models.DataFile
	if err := decodeRequest(w, r, &dataFileBody{DataFile: &input, needOutput: true}, false); err != nil {
		writeError(w, r, err)
		return
	}

	verdict, err := h.pipeline.Prove(r.Context(), h.defaultProject, input, input.Output(), nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// dataFileBody validates a bare data file body
type dataFileBody struct {
	*models.DataFile
	needOutput bool
}

func (b *dataFileBody) Validate() error {
	return validateInput(*b.DataFile, b.needOutput)
}
