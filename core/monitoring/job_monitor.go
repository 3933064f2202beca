package monitoring

import (
	"context"
	"time"

	"automl-engine/core/models"
	"automl-engine/core/repository"

	log "github.com/golang/glog"
)

// JobMonitor periodically inspects running jobs and logs warnings. The
// training time limit is advisory, so overruns are reported and never enforced.
type JobMonitor struct {
	jobs     repository.JobStore
	interval time.Duration
	now      func() time.Time
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(jobs repository.JobStore, interval time.Duration, now func() time.Time) *JobMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &JobMonitor{jobs: jobs, interval: interval, now: now}
}

// Start runs the monitoring loop until ctx is done
func (jm *JobMonitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			jm.CheckRunningJobs(ctx)
		}
	}
}

// JobHealth is what the monitor found for one running job
type JobHealth struct {
	JobID        string
	Elapsed      time.Duration
	Overrun      time.Duration // Time past the estimated completion, 0 if none
	TrialsFailed int
	TrialsTotal  int
}

// CheckRunningJobs inspects all running jobs and returns their health
func (jm *JobMonitor) CheckRunningJobs(ctx context.Context) []JobHealth {
	jobs, err := jm.jobs.List(ctx, func(j *models.Job) bool {
		return j.Status == models.JobStatusRunning
	})
	if err != nil {
		log.Errorf("Failed to fetch running jobs: %v", err)
		return nil
	}

	now := jm.now()
	report := make([]JobHealth, 0, len(jobs))
	for _, job := range jobs {
		h := JobHealth{JobID: job.ID, TrialsTotal: len(job.Results.AllModels)}
		if job.StartedAt != nil {
			h.Elapsed = now.Sub(*job.StartedAt)
		}
		if job.EstimatedAt != nil && now.After(*job.EstimatedAt) {
			h.Overrun = now.Sub(*job.EstimatedAt)
			log.Warningf("Job %s: running %s past its training time limit of %d minutes",
				job.ID, h.Overrun.Round(time.Second), job.Constraints.MaxTrainingTime)
		}
		for _, t := range job.Results.AllModels {
			if t.Status == models.TrialStatusFailed {
				h.TrialsFailed++
			}
		}
		if h.TrialsTotal >= 4 && h.TrialsFailed*2 > h.TrialsTotal {
			log.Warningf("Job %s: %d of %d trials failed", job.ID, h.TrialsFailed, h.TrialsTotal)
		}
		report = append(report, h)
	}
	return report
}
