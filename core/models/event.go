package models

import "time"

// EventType names a notification emitted by the engine
type EventType string

const (
	EventJobCreated                        EventType = "job_created"
	EventJobStarted                        EventType = "job_started"
	EventJobCancelled                      EventType = "job_cancelled"
	EventJobCompleted                      EventType = "job_completed"
	EventJobFailed                         EventType = "job_failed"
	EventFeatureEngineeringCreated         EventType = "feature_engineering_created"
	EventHyperparameterOptimizationCreated EventType = "hyperparameter_optimization_created"
	EventModelSelectionCreated             EventType = "model_selection_created"
)

// JobEvent represents a state transition event for a job
type JobEvent struct {
	ID         int64      `json:"id"`
	Type       EventType  `json:"type"`
	JobID      string     `json:"job_id"`
	At         time.Time  `json:"at"`
	FromStatus *JobStatus `json:"from_status,omitempty"`
	ToStatus   JobStatus  `json:"to_status"`
	Reason     string     `json:"reason,omitempty"`
	Job        *Job       `json:"job"` // Snapshot taken right after the transition
}

// FeatureEngineeringEvent announces a new feature engineering step
type FeatureEngineeringEvent struct {
	JobID string                  `json:"job_id"`
	At    time.Time               `json:"at"`
	Step  *FeatureEngineeringStep `json:"step"`
}

// OptimizationRunEvent announces a new hyperparameter optimization run
type OptimizationRunEvent struct {
	JobID string           `json:"job_id"`
	At    time.Time        `json:"at"`
	Run   *OptimizationRun `json:"run"`
}

// ModelSelectionEvent announces a new model selection
type ModelSelectionEvent struct {
	JobID     string          `json:"job_id"`
	At        time.Time       `json:"at"`
	Selection *ModelSelection `json:"selection"`
}
