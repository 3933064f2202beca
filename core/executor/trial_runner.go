package executor

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"automl-engine/core/models"
)

// TrialSpec is everything a runner needs to train and score one configuration
type TrialSpec struct {
	JobID              string
	TrialID            string
	TaskType           models.TaskType
	Objective          models.Metric
	Dataset            models.Dataset
	Algorithm          string
	Hyperparameters    map[string]any
	Preprocessing      []string
	FeatureEngineering []string
}

// TrialRunner trains and scores one trial. Implementations should return
// promptly once ctx is done.
type TrialRunner interface {
	RunTrial(ctx context.Context, spec TrialSpec) (models.PerformanceRecord, error)
}

// Evaluator is an optional capability of a runner used during final evaluation
type Evaluator interface {
	CrossValidate(ctx context.Context, spec TrialSpec, folds int) ([]float64, error)
	FeatureImportance(ctx context.Context, spec TrialSpec) (map[string]float64, error)
}

// SimulatedRunner derives a deterministic performance record from a hash of
// the algorithm and its hyperparameters. It stands in for real training.
type SimulatedRunner struct {
	Latency time.Duration // Per trial, 0 for none
}

// NewSimulatedRunner creates a simulated runner
func NewSimulatedRunner(latency time.Duration) *SimulatedRunner {
	return &SimulatedRunner{Latency: latency}
}

// RunTrial simulates training. It waits Latency or until ctx is done.
func (r *SimulatedRunner) RunTrial(ctx context.Context, spec TrialSpec) (models.PerformanceRecord, error) {
	if err := r.wait(ctx); err != nil {
		return models.PerformanceRecord{}, err
	}

	h := configHash(spec.Algorithm, spec.Hyperparameters)
	base := 0.60 + float64(h%3000)/10_000 // [0.60, 0.90)
	jitter := func(shift uint) float64 {
		return (float64((h>>shift)%200) - 100) / 10_000 // [-0.01, 0.01)
	}

	auc := math.Min(0.99, base+0.03)
	mse := (1 - base) * 0.5
	mae := (1 - base) * 0.4
	custom := base
	return models.PerformanceRecord{
		Accuracy:        base,
		Precision:       clamp01(base + jitter(8)),
		Recall:          clamp01(base + jitter(16)),
		F1:              clamp01(base + jitter(24)),
		AUC:             &auc,
		MSE:             &mse,
		MAE:             &mae,
		CustomMetric:    &custom,
		TrainingTime:    float64(30 + (h>>32)%600),
		InferenceTime:   float64(1+(h>>40)%50) / 10,
		MemoryUsage:     float64(256 + (h>>48)%4096),
		ComplexityScore: float64((h >> 20) % 100),
	}, nil
}

// CrossValidate spreads the trial's objective score over folds with a small
// deterministic per-fold offset
func (r *SimulatedRunner) CrossValidate(ctx context.Context, spec TrialSpec, folds int) ([]float64, error) {
	if folds <= 0 {
		return nil, fmt.Errorf("%w: folds must be positive, got %d", models.ErrInvalidConfiguration, folds)
	}
	record, err := r.RunTrial(ctx, spec)
	if err != nil {
		return nil, err
	}
	score, ok := record.Score(spec.Objective)
	if !ok {
		return nil, fmt.Errorf("objective %s not reported by runner", spec.Objective)
	}

	h := configHash(spec.Algorithm, spec.Hyperparameters)
	scores := make([]float64, folds)
	for i := range scores {
		offset := (float64((h>>(uint(i)%48))%100) - 50) / 5_000 // [-0.01, 0.01)
		scores[i] = score + offset
	}
	return scores, nil
}

// FeatureImportance assigns each dataset feature a normalised weight
func (r *SimulatedRunner) FeatureImportance(ctx context.Context, spec TrialSpec) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := spec.Dataset.Features
	if n <= 0 {
		n = 5
	}
	if n > 10 {
		n = 10
	}

	h := configHash(spec.Algorithm, spec.Hyperparameters)
	weights := make(map[string]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		w := float64(1 + (h>>(uint(i)*4))%16)
		weights[fmt.Sprintf("feature_%d", i)] = w
		total += w
	}
	for name, w := range weights {
		weights[name] = w / total
	}
	return weights, nil
}

func (r *SimulatedRunner) wait(ctx context.Context) error {
	if r.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func configHash(algorithm string, params map[string]any) uint64 {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := fnv.New64a()
	h.Write([]byte(algorithm))
	for _, name := range names {
		fmt.Fprintf(h, "|%s=%v", name, params[name])
	}
	return h.Sum64()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
