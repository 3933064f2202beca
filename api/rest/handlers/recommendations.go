package handlers

import (
	"net/http"
	"strconv"

	"automl-engine/core/engine"
	"automl-engine/core/models"
)

// RecommendationHandler serves search configuration recommendations
type RecommendationHandler struct {
	engine *engine.Engine
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(eng *engine.Engine) *RecommendationHandler {
	return &RecommendationHandler{engine: eng}
}

// GetRecommendation handles GET /v1/recommendations
func (h *RecommendationHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	taskType := q.Get("task_type")
	if taskType == "" {
		http.Error(w, "task_type is required", http.StatusBadRequest)
		return
	}

	datasetSize, err := intParam(q.Get("dataset_size"))
	if err != nil {
		http.Error(w, "Invalid dataset_size", http.StatusBadRequest)
		return
	}
	featureCount, err := intParam(q.Get("feature_count"))
	if err != nil {
		http.Error(w, "Invalid feature_count", http.StatusBadRequest)
		return
	}

	rec := h.engine.Recommend(models.TaskType(taskType), datasetSize, featureCount)
	writeJSON(w, http.StatusOK, rec)
}

// intParam parses an optional non-negative integer query parameter
func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
