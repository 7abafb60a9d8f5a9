package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"zkml-orchestrator/core/executor"
	"zkml-orchestrator/core/judge"
	"zkml-orchestrator/core/pipeline"
	"zkml-orchestrator/core/results"
	"zkml-orchestrator/core/workspace"
	"zkml-orchestrator/storage"

	log "github.com/sirupsen/logrus"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, workspace.ErrInvalidProjectName), errors.Is(err, pipeline.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, judge.ErrShapeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, executor.ErrEngineUnreachable), pipeline.IsEngineFailure(err), errors.Is(err, results.ErrArtifact):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrParamsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, statusFor(err), err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	entry := log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithError(err).Info("Request rejected")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
