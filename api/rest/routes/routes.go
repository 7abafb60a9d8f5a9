package routes

import (
	"net/http"

	"zkml-orchestrator/api/rest/handlers"
	"zkml-orchestrator/core/monitoring"
	"zkml-orchestrator/core/repository"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. Job history endpoints are only
// registered when db is non-nil.
func SetupRoutes(r *mux.Router, pipeline handlers.Pipeline, defaultProject string, db *repository.DB) {
	proofHandler := handlers.NewProofHandler(pipeline, defaultProject)

	api := r.PathPrefix("/v1").Subrouter()

	// Pipeline endpoints
	api.HandleFunc("/projects/{project}/forward", proofHandler.Forward).Methods("POST")
	api.HandleFunc("/projects/{project}/mock", proofHandler.Mock).Methods("POST")
	api.HandleFunc("/projects/{project}/prove", proofHandler.Prove).Methods("POST")
	api.HandleFunc("/projects/{project}/verifier", proofHandler.GenerateVerifier).Methods("POST")
	api.HandleFunc("/projects/{project}/proofs", proofHandler.ProveAndRetrieve).Methods("POST")
	api.HandleFunc("/projects/{project}/proof", proofHandler.GetProof).Methods("GET")
	api.HandleFunc("/projects/{project}/model", proofHandler.UploadModel).Methods("PUT")
	api.HandleFunc("/projects/{project}/run", proofHandler.RunDocument).Methods("POST")

	// Job history endpoints
	if db != nil {
		jobHandler := handlers.NewJobHandlerFromDB(db)
		dashboardHandler := handlers.NewDashboardHandler(repository.NewJobRepository(db), repository.NewEventRepository(db))
		api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
		api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
		api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
		api.HandleFunc("/jobs/{id}/artifacts", jobHandler.GetJobArtifacts).Methods("GET")
		api.HandleFunc("/dashboard/stats", dashboardHandler.GetStats).Methods("GET")
		api.HandleFunc("/projects/{project}/artifacts/{type}", jobHandler.GetLatestArtifact).Methods("GET")
	}

	// Legacy endpoints
	r.HandleFunc("/forward", proofHandler.LegacyForward).Methods("POST")
	r.HandleFunc("/generate_evm_contract", proofHandler.LegacyGenerateEvmContract).Methods("POST")
	r.HandleFunc("/prove", proofHandler.LegacyProve).Methods("POST")
	r.HandleFunc("/mock", proofHandler.LegacyMock).Methods("POST")
	r.HandleFunc("/submit_proof", proofHandler.LegacySubmitProof).Methods("POST")

	r.Handle("/metrics", monitoring.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
