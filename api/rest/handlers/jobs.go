package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"automl-engine/core/engine"
	"automl-engine/core/models"
	"automl-engine/core/spec"

	"github.com/gorilla/mux"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	engine *engine.Engine
}

// NewJobHandler creates a new job handler
func NewJobHandler(eng *engine.Engine) *JobHandler {
	return &JobHandler{engine: eng}
}

// SubmitJobRequest is the YAML form of a job submission. Bodies without
// spec_yaml are decoded as a job directly.
type SubmitJobRequest struct {
	SpecYAML string `json:"spec_yaml"`
}

// CreateJob handles POST /v1/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var req SubmitJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var job *models.Job
	if req.SpecYAML != "" {
		job, err = spec.ParseJobSpec(req.SpecYAML)
		if err != nil {
			http.Error(w, "Invalid job spec: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		job = &models.Job{}
		if err := json.Unmarshal(body, job); err != nil {
			http.Error(w, "Invalid job: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	created, err := h.engine.CreateJob(r.Context(), job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.Filter{
		Status:    models.JobStatus(q.Get("status")),
		TaskType:  models.TaskType(q.Get("task_type")),
		CreatedBy: q.Get("created_by"),
		Team:      q.Get("team"),
	}

	jobs, err := h.engine.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	// Build response items
	items := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		items[i] = map[string]interface{}{
			"id":         job.ID,
			"name":       job.Name,
			"status":     job.Status,
			"task_type":  job.TaskType,
			"objective":  job.Objective,
			"best_score": job.Results.BestScore,
			"created_at": job.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// StartJob handles POST /v1/jobs/{id}/start
func (h *JobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.StartJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// StopJob handles POST /v1/jobs/{id}/stop
func (h *JobHandler) StopJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.StopJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetProgress handles GET /v1/jobs/{id}/progress
func (h *JobHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.engine.Events(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}

	// Build response items
	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"id":        event.ID,
			"type":      event.Type,
			"at":        event.At,
			"to_status": event.ToStatus,
			"reason":    event.Reason,
		}
		if event.FromStatus != nil {
			item["from_status"] = *event.FromStatus
		}
		items[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// AttachFeatureStep handles POST /v1/jobs/{id}/feature-engineering
func (h *JobHandler) AttachFeatureStep(w http.ResponseWriter, r *http.Request) {
	var step models.FeatureEngineeringStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	stored, err := h.engine.AttachFeatureStep(r.Context(), mux.Vars(r)["id"], &step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// AttachOptimizationRun handles POST /v1/jobs/{id}/optimization
func (h *JobHandler) AttachOptimizationRun(w http.ResponseWriter, r *http.Request) {
	var run models.OptimizationRun
	if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	stored, err := h.engine.AttachOptimizationRun(r.Context(), mux.Vars(r)["id"], &run)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// AttachModelSelection handles POST /v1/jobs/{id}/model-selection
func (h *JobHandler) AttachModelSelection(w http.ResponseWriter, r *http.Request) {
	var selection models.ModelSelection
	if err := json.NewDecoder(r.Body).Decode(&selection); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	stored, err := h.engine.AttachModelSelection(r.Context(), mux.Vars(r)["id"], &selection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HTTPStatus maps engine errors to response codes
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrMissingField),
		errors.Is(err, models.ErrInvalidConstraint),
		errors.Is(err, models.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
