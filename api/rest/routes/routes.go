package routes

import (
	"net/http"

	"automl-engine/api/rest/handlers"
	"automl-engine/core/engine"
	"automl-engine/core/monitoring"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, eng *engine.Engine, exporter *monitoring.MetricsExporter) {
	jobHandler := handlers.NewJobHandler(eng)
	recommendationHandler := handlers.NewRecommendationHandler(eng)
	dashboardHandler := handlers.NewDashboardHandler(eng)

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.CreateJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/start", jobHandler.StartJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/stop", jobHandler.StopJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/progress", jobHandler.GetProgress).Methods("GET")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")

	// Artifact endpoints
	api.HandleFunc("/jobs/{id}/feature-engineering", jobHandler.AttachFeatureStep).Methods("POST")
	api.HandleFunc("/jobs/{id}/optimization", jobHandler.AttachOptimizationRun).Methods("POST")
	api.HandleFunc("/jobs/{id}/model-selection", jobHandler.AttachModelSelection).Methods("POST")

	api.HandleFunc("/recommendations", recommendationHandler.GetRecommendation).Methods("GET")
	api.HandleFunc("/dashboard/summary", dashboardHandler.GetSummary).Methods("GET")

	r.Handle("/metrics", exporter.Handler()).Methods("GET")

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
