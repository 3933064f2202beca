package handlers

import (
	"net/http"
	"sort"
	"time"

	"automl-engine/core/engine"
	"automl-engine/core/models"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	engine *engine.Engine
	now    func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(eng *engine.Engine) *DashboardHandler {
	return &DashboardHandler{
		engine: eng,
		now:    time.Now,
	}
}

// BestScore is the top job for one task type and objective
type BestScore struct {
	TaskType  models.TaskType `json:"task_type"`
	Objective models.Metric   `json:"objective"`
	Score     float64         `json:"score"`
	JobID     string          `json:"job_id"`
	ModelID   string          `json:"model_id"`
}

type scoreKey struct {
	taskType  models.TaskType
	objective models.Metric
}

// GetSummary handles GET /v1/dashboard/summary
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	team := r.URL.Query().Get("team")
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Parse dates (default to last 30 days)
	var start, end time.Time
	if startDate != "" {
		var err error
		start, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			http.Error(w, "Invalid start_date format", http.StatusBadRequest)
			return
		}
	} else {
		start = h.now().AddDate(0, 0, -30)
	}

	if endDate != "" {
		var err error
		end, err = time.Parse(time.RFC3339, endDate)
		if err != nil {
			http.Error(w, "Invalid end_date format", http.StatusBadRequest)
			return
		}
	} else {
		end = h.now()
	}

	jobs, err := h.engine.ListJobs(r.Context(), engine.Filter{Team: team})
	if err != nil {
		writeError(w, err)
		return
	}

	byStatus := map[models.JobStatus]int{
		models.JobStatusPending:   0,
		models.JobStatusRunning:   0,
		models.JobStatusCompleted: 0,
		models.JobStatusFailed:    0,
		models.JobStatusCancelled: 0,
	}
	byTaskType := make(map[models.TaskType]int)
	bestScores := make(map[scoreKey]*BestScore)
	total := 0
	trials := 0

	for _, job := range jobs {
		// Filter by date
		if job.CreatedAt.Before(start) || job.CreatedAt.After(end) {
			continue
		}
		total++
		byStatus[job.Status]++
		byTaskType[job.TaskType]++
		trials += len(job.Results.AllModels)

		if job.Results.BestScore == nil {
			continue
		}
		// Scores are only comparable under the same objective
		key := scoreKey{job.TaskType, job.Objective}
		score := *job.Results.BestScore
		if best, ok := bestScores[key]; !ok || score > best.Score {
			bestScores[key] = &BestScore{
				TaskType:  job.TaskType,
				Objective: job.Objective,
				Score:     score,
				JobID:     job.ID,
				ModelID:   job.Results.BestModelID,
			}
		}
	}

	best := make([]*BestScore, 0, len(bestScores))
	for _, b := range bestScores {
		best = append(best, b)
	}
	sort.Slice(best, func(i, j int) bool {
		if best[i].TaskType != best[j].TaskType {
			return best[i].TaskType < best[j].TaskType
		}
		return best[i].Objective < best[j].Objective
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"jobs": map[string]interface{}{
			"total":        total,
			"by_status":    byStatus,
			"by_task_type": byTaskType,
		},
		"trials":      trials,
		"best_scores": best,
	})
}
