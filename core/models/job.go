package models

import "time"

// Job represents an AutoML search submitted to the engine
type Job struct {
	ID           string              `json:"id"`
	Name         string              `json:"name" validate:"required"`
	Description  string              `json:"description,omitempty"`
	TaskType     TaskType            `json:"task_type" validate:"required,oneof=classification regression clustering time-series nlp computer-vision"`
	Objective    Metric              `json:"objective" validate:"required,oneof=accuracy precision recall f1 auc mse mae custom"`
	Dataset      Dataset             `json:"dataset"`
	Constraints  ResourceConstraints `json:"constraints"`
	SearchSpace  SearchSpace         `json:"search_space"`
	Optimization OptimizationConfig  `json:"optimization"`
	Results      JobResults          `json:"results"`
	Metadata     JobMetadata         `json:"metadata"`
	Status       JobStatus           `json:"status"`
	Error        string              `json:"error,omitempty"` // Set when the job fails
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	EstimatedAt  *time.Time          `json:"estimated_completion,omitempty"` // Not enforced as a deadline
}

// TaskType represents the kind of learning problem
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRegression     TaskType = "regression"
	TaskClustering     TaskType = "clustering"
	TaskTimeSeries     TaskType = "time-series"
	TaskNLP            TaskType = "nlp"
	TaskComputerVision TaskType = "computer-vision"
)

// Metric names an objective the search maximises (or minimises, for error metrics)
type Metric string

const (
	MetricAccuracy  Metric = "accuracy"
	MetricPrecision Metric = "precision"
	MetricRecall    Metric = "recall"
	MetricF1        Metric = "f1"
	MetricAUC       Metric = "auc"
	MetricMSE       Metric = "mse"
	MetricMAE       Metric = "mae"
	MetricCustom    Metric = "custom"
)

// Dataset describes the training data
type Dataset struct {
	Name         string `json:"name" validate:"required"`
	Path         string `json:"path,omitempty"` // s3://, gs://, file path
	Rows         int    `json:"rows" validate:"gte=0"`
	Features     int    `json:"features" validate:"gte=0"`
	TargetColumn string `json:"target_column,omitempty"`
	ProblemType  string `json:"problem_type,omitempty"` // binary | multiclass | continuous
}

// ResourceConstraints bounds a job's search
type ResourceConstraints struct {
	MaxTrainingTime     int     `json:"max_training_time" validate:"gt=0"` // minutes
	MaxTrials           int     `json:"max_trials" validate:"gt=0"`
	MaxMemoryGB         float64 `json:"max_memory_gb,omitempty" validate:"gte=0"`
	MaxCPUCores         int     `json:"max_cpu_cores,omitempty" validate:"gte=0"`
	MaxGPUs             int     `json:"max_gpus,omitempty" validate:"gte=0"`
	ComputationalBudget float64 `json:"computational_budget,omitempty" validate:"gte=0"`
}

// SearchSpace lists what the search may try. Empty fields fall back to the
// recommendation for the job's task type and dataset shape.
type SearchSpace struct {
	Algorithms         []string         `json:"algorithms,omitempty"`
	Hyperparameters    map[string][]any `json:"hyperparameters,omitempty"`
	FeatureEngineering []string         `json:"feature_engineering,omitempty"`
	Preprocessing      []string         `json:"preprocessing,omitempty"`
}

// OptimizationConfig is the search policy
type OptimizationConfig struct {
	Method         OptimizationMethod `json:"method,omitempty" validate:"omitempty,oneof=bayesian genetic grid random hyperband"`
	MaxTrials      int                `json:"max_trials" validate:"gt=0"`
	EarlyStopping  bool               `json:"early_stopping"`
	Patience       int                `json:"patience,omitempty" validate:"gte=0"`
	MinImprovement float64            `json:"min_improvement,omitempty" validate:"gte=0"`
}

// JobResults accumulates phase outputs. Phases write it incrementally, so a
// failed job may carry partial results.
type JobResults struct {
	BestModelID           string             `json:"best_model_id,omitempty"`
	BestScore             *float64           `json:"best_score,omitempty"`
	BestHyperparameters   map[string]any     `json:"best_hyperparameters,omitempty"`
	AllModels             []Trial            `json:"all_models,omitempty"`
	FeatureImportance     map[string]float64 `json:"feature_importance,omitempty"`
	CrossValidationScores []float64          `json:"cross_validation_scores,omitempty"`
	TrainingCurve         []CurvePoint       `json:"training_curve,omitempty"`
}

// CurvePoint is one (epoch, metric) sample of the training curve
type CurvePoint struct {
	Epoch  int     `json:"epoch"`
	Metric float64 `json:"metric"`
}

// JobMetadata carries ownership and business context
type JobMetadata struct {
	CreatedBy     string   `json:"created_by,omitempty"`
	Team          string   `json:"team,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Priority      Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	BusinessValue string   `json:"business_value,omitempty" validate:"omitempty,oneof=low medium high"`
	UseCase       string   `json:"use_case,omitempty"`
}

// Priority of a job
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransitionTo reports whether the lifecycle allows s -> to
func (s JobStatus) CanTransitionTo(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Transition moves the job to a new status and stamps the matching timestamps.
// Entering running sets StartedAt and EstimatedAt = StartedAt + MaxTrainingTime.
func (j *Job) Transition(to JobStatus, at time.Time) error {
	if !j.Status.CanTransitionTo(to) {
		return &TransitionError{JobID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	j.UpdatedAt = at
	switch to {
	case JobStatusRunning:
		started := at
		j.StartedAt = &started
		eta := at.Add(time.Duration(j.Constraints.MaxTrainingTime) * time.Minute)
		j.EstimatedAt = &eta
	case JobStatusCompleted:
		completed := at
		j.CompletedAt = &completed
	}
	return nil
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.EstimatedAt = cloneTime(j.EstimatedAt)

	c.SearchSpace.Algorithms = cloneStrings(j.SearchSpace.Algorithms)
	c.SearchSpace.FeatureEngineering = cloneStrings(j.SearchSpace.FeatureEngineering)
	c.SearchSpace.Preprocessing = cloneStrings(j.SearchSpace.Preprocessing)
	c.SearchSpace.Hyperparameters = CloneSpace(j.SearchSpace.Hyperparameters)
	c.Metadata.Tags = cloneStrings(j.Metadata.Tags)

	r := j.Results
	if r.BestScore != nil {
		score := *r.BestScore
		c.Results.BestScore = &score
	}
	c.Results.BestHyperparameters = CloneParams(r.BestHyperparameters)
	if r.AllModels != nil {
		c.Results.AllModels = make([]Trial, len(r.AllModels))
		for i := range r.AllModels {
			c.Results.AllModels[i] = r.AllModels[i].Clone()
		}
	}
	if r.FeatureImportance != nil {
		c.Results.FeatureImportance = make(map[string]float64, len(r.FeatureImportance))
		for k, v := range r.FeatureImportance {
			c.Results.FeatureImportance[k] = v
		}
	}
	if r.CrossValidationScores != nil {
		c.Results.CrossValidationScores = append([]float64(nil), r.CrossValidationScores...)
	}
	if r.TrainingCurve != nil {
		c.Results.TrainingCurve = append([]CurvePoint(nil), r.TrainingCurve...)
	}
	return &c
}

// CloneParams copies a hyperparameter assignment
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// CloneSpace copies a parameter -> candidate values map
func CloneSpace(space map[string][]any) map[string][]any {
	if space == nil {
		return nil
	}
	out := make(map[string][]any, len(space))
	for k, v := range space {
		out[k] = append([]any(nil), v...)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
