package models

import "time"

// OptimizationMethod labels the search policy. The proposal strategy behind
// each label is pluggable.
type OptimizationMethod string

const (
	MethodBayesian  OptimizationMethod = "bayesian"
	MethodGenetic   OptimizationMethod = "genetic"
	MethodGrid      OptimizationMethod = "grid"
	MethodRandom    OptimizationMethod = "random"
	MethodHyperband OptimizationMethod = "hyperband"
)

// EarlyStoppingPolicy stops a run after Patience completed trials that fail
// to improve the best score by at least MinImprovement
type EarlyStoppingPolicy struct {
	Enabled        bool    `json:"enabled"`
	Patience       int     `json:"patience"`
	MinImprovement float64 `json:"min_improvement"`
}

// RunStatus represents the state of an optimization run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// OptimizationRun is the hyperparameter search session of one job
type OptimizationRun struct {
	ID                       string                `json:"id"`
	JobID                    string                `json:"job_id"`
	Algorithms               []string              `json:"algorithms"` // First entry is the primary algorithm
	SearchSpace              map[string][]any      `json:"search_space"`
	Method                   OptimizationMethod    `json:"method"`
	MaxTrials                int                   `json:"max_trials"`
	CurrentTrial             int                   `json:"current_trial"`
	BestScore                *float64              `json:"best_score,omitempty"`
	BestHyperparameters      map[string]any        `json:"best_hyperparameters,omitempty"`
	BestTrialID              string                `json:"best_trial_id,omitempty"`
	Trials                   []HyperparameterTrial `json:"trials"`
	EarlyStopping            EarlyStoppingPolicy   `json:"early_stopping"`
	TrialsWithoutImprovement int                   `json:"trials_without_improvement"`
	StoppedEarly             bool                  `json:"stopped_early"`
	Status                   RunStatus             `json:"status"`
	CreatedAt                time.Time             `json:"created_at"`
	UpdatedAt                time.Time             `json:"updated_at"`
}

// HyperparameterTrial is the optimizer's record of one trial
type HyperparameterTrial struct {
	ID              string         `json:"id"`
	Algorithm       string         `json:"algorithm"`
	Hyperparameters map[string]any `json:"hyperparameters"`
	Score           *float64       `json:"score,omitempty"`
	Status          TrialStatus    `json:"status"`
	Metadata        TrialMetadata  `json:"metadata"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// TrialMetadata describes how a trial ran
type TrialMetadata struct {
	TrainingTime float64  `json:"training_time"` // seconds
	MemoryUsage  float64  `json:"memory_usage"`  // MB
	GPUUsage     *float64 `json:"gpu_usage,omitempty"`
	Converged    bool     `json:"converged"`
	EarlyStopped bool     `json:"early_stopped"`
}

// Clone returns a deep copy of the run
func (r *OptimizationRun) Clone() *OptimizationRun {
	if r == nil {
		return nil
	}
	c := *r
	c.Algorithms = cloneStrings(r.Algorithms)
	c.SearchSpace = CloneSpace(r.SearchSpace)
	c.BestScore = cloneFloat(r.BestScore)
	c.BestHyperparameters = CloneParams(r.BestHyperparameters)
	if r.Trials != nil {
		c.Trials = make([]HyperparameterTrial, len(r.Trials))
		for i, t := range r.Trials {
			t.Hyperparameters = CloneParams(t.Hyperparameters)
			t.Score = cloneFloat(t.Score)
			t.Metadata.GPUUsage = cloneFloat(t.Metadata.GPUUsage)
			t.CompletedAt = cloneTime(t.CompletedAt)
			c.Trials[i] = t
		}
	}
	return &c
}
