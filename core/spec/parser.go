package spec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"automl-engine/core/models"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML job specification
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec
type JobSpecJob struct {
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description"`
	TaskType     string              `yaml:"task_type"`
	Objective    string              `yaml:"objective"`
	Dataset      JobSpecDataset      `yaml:"dataset"`
	Resources    JobSpecResources    `yaml:"resources"`
	Search       JobSpecSearch       `yaml:"search"`
	Optimization JobSpecOptimization `yaml:"optimization"`
	Metadata     JobSpecMetadata     `yaml:"metadata"`
}

// JobSpecDataset represents the training data
type JobSpecDataset struct {
	Name         string `yaml:"name"`
	Path         string `yaml:"path"`
	Rows         int    `yaml:"rows"`
	Features     int    `yaml:"features"`
	TargetColumn string `yaml:"target_column"`
	ProblemType  string `yaml:"problem_type"`
}

// JobSpecResources represents resource constraints
type JobSpecResources struct {
	MaxTrainingTime string  `yaml:"max_training_time"` // minutes, or a duration such as "2h"
	MaxTrials       int     `yaml:"max_trials"`
	MaxMemory       string  `yaml:"max_memory"` // e.g., "16GB"
	MaxCPUCores     int     `yaml:"max_cpu_cores"`
	MaxGPUs         int     `yaml:"max_gpus"`
	Budget          float64 `yaml:"budget"`
}

// JobSpecSearch represents the search space
type JobSpecSearch struct {
	Algorithms         []string         `yaml:"algorithms"`
	Hyperparameters    map[string][]any `yaml:"hyperparameters"`
	FeatureEngineering []string         `yaml:"feature_engineering"`
	Preprocessing      []string         `yaml:"preprocessing"`
}

// JobSpecOptimization represents the search policy
type JobSpecOptimization struct {
	Method        string               `yaml:"method"`
	MaxTrials     int                  `yaml:"max_trials"`
	EarlyStopping JobSpecEarlyStopping `yaml:"early_stopping"`
}

// JobSpecEarlyStopping represents the early stopping policy
type JobSpecEarlyStopping struct {
	Enabled        bool    `yaml:"enabled"`
	Patience       int     `yaml:"patience"`
	MinImprovement float64 `yaml:"min_improvement"`
}

// JobSpecMetadata represents ownership and business context
type JobSpecMetadata struct {
	CreatedBy     string   `yaml:"created_by"`
	Team          string   `yaml:"team"`
	Tags          []string `yaml:"tags"`
	Priority      string   `yaml:"priority"`
	BusinessValue string   `yaml:"business_value"`
	UseCase       string   `yaml:"use_case"`
}

// ParseJobSpec parses a YAML job specification into a Job model. The result
// is not validated; the engine does that on creation.
func ParseJobSpec(specYAML string) (*models.Job, error) {
	var spec JobSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	s := spec.Job

	trainingTime, err := parseMinutes(s.Resources.MaxTrainingTime)
	if err != nil {
		return nil, &models.FieldError{
			Kind:    models.ErrInvalidConstraint,
			Field:   "resources.max_training_time",
			Message: err.Error(),
		}
	}

	memoryGB, err := parseMemoryGB(s.Resources.MaxMemory)
	if err != nil {
		return nil, &models.FieldError{
			Kind:    models.ErrInvalidConstraint,
			Field:   "resources.max_memory",
			Message: err.Error(),
		}
	}

	job := &models.Job{
		Name:        s.Name,
		Description: s.Description,
		TaskType:    models.TaskType(s.TaskType),
		Objective:   models.Metric(s.Objective),
		Dataset: models.Dataset{
			Name:         s.Dataset.Name,
			Path:         s.Dataset.Path,
			Rows:         s.Dataset.Rows,
			Features:     s.Dataset.Features,
			TargetColumn: s.Dataset.TargetColumn,
			ProblemType:  s.Dataset.ProblemType,
		},
		Constraints: models.ResourceConstraints{
			MaxTrainingTime:     trainingTime,
			MaxTrials:           s.Resources.MaxTrials,
			MaxMemoryGB:         memoryGB,
			MaxCPUCores:         s.Resources.MaxCPUCores,
			MaxGPUs:             s.Resources.MaxGPUs,
			ComputationalBudget: s.Resources.Budget,
		},
		SearchSpace: models.SearchSpace{
			Algorithms:         s.Search.Algorithms,
			Hyperparameters:    s.Search.Hyperparameters,
			FeatureEngineering: s.Search.FeatureEngineering,
			Preprocessing:      s.Search.Preprocessing,
		},
		Optimization: models.OptimizationConfig{
			Method:         models.OptimizationMethod(s.Optimization.Method),
			MaxTrials:      s.Optimization.MaxTrials,
			EarlyStopping:  s.Optimization.EarlyStopping.Enabled,
			Patience:       s.Optimization.EarlyStopping.Patience,
			MinImprovement: s.Optimization.EarlyStopping.MinImprovement,
		},
		Metadata: models.JobMetadata{
			CreatedBy:     s.Metadata.CreatedBy,
			Team:          s.Metadata.Team,
			Tags:          s.Metadata.Tags,
			Priority:      models.Priority(s.Metadata.Priority),
			BusinessValue: s.Metadata.BusinessValue,
			UseCase:       s.Metadata.UseCase,
		},
		Status: models.JobStatusPending,
	}

	// Set defaults
	if job.Metadata.Priority == "" {
		job.Metadata.Priority = models.PriorityMedium
	}
	if job.Optimization.EarlyStopping && job.Optimization.Patience == 0 {
		job.Optimization.Patience = 5
	}

	return job, nil
}

// parseMinutes accepts whole minutes ("90") or a Go duration ("1h30m"),
// rounded up to the minute
func parseMinutes(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return minutes, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("want minutes or a duration such as 2h, got %q", value)
	}
	return int(math.Ceil(d.Minutes())), nil
}

// parseMemoryGB parses memory string (e.g., "16GB" or "512MB") to GB. A bare
// number is taken as GB.
func parseMemoryGB(memoryStr string) (float64, error) {
	s := strings.ToUpper(strings.TrimSpace(memoryStr))
	if s == "" {
		return 0, nil
	}
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "GB"):
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		s = strings.TrimSuffix(s, "MB")
		scale = 1.0 / 1024
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("want a size such as 16GB or 512MB, got %q", memoryStr)
	}
	return value * scale, nil
}
