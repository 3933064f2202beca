// Package monitoring derives progress, health warnings and metrics from
// stored jobs.
package monitoring

import (
	"math"
	"time"

	"automl-engine/core/models"
)

// Progress is the displayable state of a job
type Progress struct {
	JobID                  string           `json:"job_id"`
	Status                 models.JobStatus `json:"status"`
	Percentage             int              `json:"percentage"`
	Phase                  string           `json:"phase"`
	TrialsCompleted        int              `json:"trials_completed"`
	EstimatedTimeRemaining int              `json:"estimated_time_remaining"` // minutes
}

var statusProgress = map[models.JobStatus]struct {
	percentage int
	phase      string
}{
	models.JobStatusPending:   {0, "Pending"},
	models.JobStatusRunning:   {60, "Model Training"},
	models.JobStatusCompleted: {100, "Completed"},
	models.JobStatusFailed:    {0, "Failed"},
	models.JobStatusCancelled: {0, "Cancelled"},
}

// EstimateProgress derives progress from the job's status and results. A
// running job always reports 60%; the figure is not phase aware.
func EstimateProgress(job *models.Job, now time.Time) Progress {
	p := Progress{JobID: job.ID, Status: job.Status}
	if sp, ok := statusProgress[job.Status]; ok {
		p.Percentage = sp.percentage
		p.Phase = sp.phase
	}

	for _, t := range job.Results.AllModels {
		if t.Status == models.TrialStatusCompleted {
			p.TrialsCompleted++
		}
	}

	if job.EstimatedAt != nil {
		if remaining := job.EstimatedAt.Sub(now); remaining > 0 {
			p.EstimatedTimeRemaining = int(math.Ceil(remaining.Minutes()))
		}
	}
	return p
}
