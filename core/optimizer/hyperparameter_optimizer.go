// Package optimizer manages the hyperparameter search run of a job: trial
// bookkeeping, best-score tracking and early stopping.
package optimizer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"automl-engine/core/models"
)

// ErrRunFinished is returned when a trial is requested from a finished run
var ErrRunFinished = errors.New("optimization run finished")

// Config describes a new optimization run
type Config struct {
	RunID         string
	JobID         string
	Algorithms    []string
	SearchSpace   map[string][]any
	Method        models.OptimizationMethod
	MaxTrials     int
	EarlyStopping models.EarlyStoppingPolicy
	Strategy      Strategy // Optional, defaults to StrategyFor(Method, Seed)
	Seed          int64
	Now           func() time.Time
}

// HyperparameterOptimizer tracks one search run. It is safe for concurrent use.
type HyperparameterOptimizer struct {
	mu        sync.Mutex
	run       *models.OptimizationRun
	space     *SearchSpace
	strategy  Strategy
	proposals int
	now       func() time.Time
}

// New creates an optimizer. It fails with models.ErrInvalidConfiguration when
// the trial budget is not positive or there is nothing to search.
func New(cfg Config) (*HyperparameterOptimizer, error) {
	if cfg.MaxTrials <= 0 {
		return nil, fmt.Errorf("%w: max trials must be positive, got %d", models.ErrInvalidConfiguration, cfg.MaxTrials)
	}
	if len(cfg.Algorithms) == 0 {
		return nil, fmt.Errorf("%w: no algorithms to search", models.ErrInvalidConfiguration)
	}
	if cfg.EarlyStopping.Patience < 0 || cfg.EarlyStopping.MinImprovement < 0 {
		return nil, fmt.Errorf("%w: early stopping patience and min improvement must not be negative", models.ErrInvalidConfiguration)
	}
	for name, values := range cfg.SearchSpace {
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: parameter %s has no candidate values", models.ErrInvalidConfiguration, name)
		}
	}
	if cfg.Method == "" {
		cfg.Method = models.MethodRandom
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = StrategyFor(cfg.Method, cfg.Seed)
	}

	space := NewSearchSpace(cfg.SearchSpace)
	now := cfg.Now()
	return &HyperparameterOptimizer{
		run: &models.OptimizationRun{
			ID:            cfg.RunID,
			JobID:         cfg.JobID,
			Algorithms:    append([]string(nil), cfg.Algorithms...),
			SearchSpace:   space.Map(),
			Method:        cfg.Method,
			MaxTrials:     cfg.MaxTrials,
			Trials:        []models.HyperparameterTrial{},
			EarlyStopping: cfg.EarlyStopping,
			Status:        models.RunStatusRunning,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		space:    space,
		strategy: strategy,
		now:      cfg.Now,
	}, nil
}

// Done reports whether the run accepts no more trials
func (o *HyperparameterOptimizer) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doneLocked()
}

func (o *HyperparameterOptimizer) doneLocked() bool {
	return o.run.Status != models.RunStatusRunning || o.run.CurrentTrial >= o.run.MaxTrials
}

// NextTrial proposes and registers the next trial as running. Algorithms are
// assigned round-robin.
func (o *HyperparameterOptimizer) NextTrial(trialID string) (models.HyperparameterTrial, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.doneLocked() {
		return models.HyperparameterTrial{}, ErrRunFinished
	}

	algorithm := o.run.Algorithms[o.run.CurrentTrial%len(o.run.Algorithms)]
	params := o.strategy.Propose(o.space, o.proposals)
	o.proposals++

	trial := models.HyperparameterTrial{
		ID:              trialID,
		Algorithm:       algorithm,
		Hyperparameters: params,
		Status:          models.TrialStatusRunning,
		StartedAt:       o.now(),
	}
	o.run.Trials = append(o.run.Trials, trial)
	o.run.CurrentTrial++
	o.run.UpdatedAt = trial.StartedAt
	return cloneTrial(trial), nil
}

// CompleteTrial records a trial's score. The best score only moves on a
// strict improvement, so the earliest of equal scores stays best. With early
// stopping enabled, Patience consecutive completions that do not beat the
// previous best by MinImprovement finish the run.
func (o *HyperparameterOptimizer) CompleteTrial(trialID string, score float64, meta models.TrialMetadata) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	trial, err := o.runningTrialLocked(trialID)
	if err != nil {
		return err
	}

	at := o.now()
	trial.Score = &score
	trial.Status = models.TrialStatusCompleted
	trial.Metadata = meta
	trial.CompletedAt = &at

	improved := o.run.BestScore == nil ||
		(score > *o.run.BestScore && score-*o.run.BestScore >= o.run.EarlyStopping.MinImprovement)
	if o.run.BestScore == nil || score > *o.run.BestScore {
		best := score
		o.run.BestScore = &best
		o.run.BestHyperparameters = models.CloneParams(trial.Hyperparameters)
		o.run.BestTrialID = trial.ID
	}
	if improved {
		o.run.TrialsWithoutImprovement = 0
	} else {
		o.run.TrialsWithoutImprovement++
	}

	policy := o.run.EarlyStopping
	if policy.Enabled && policy.Patience > 0 && o.run.TrialsWithoutImprovement >= policy.Patience {
		trial.Metadata.EarlyStopped = true
		o.run.StoppedEarly = true
		o.run.Status = models.RunStatusCompleted
	}
	o.settleLocked(at)
	return nil
}

// FailTrial marks a trial failed. Failed trials never affect the best score
// or the patience counter.
func (o *HyperparameterOptimizer) FailTrial(trialID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	trial, err := o.runningTrialLocked(trialID)
	if err != nil {
		return err
	}
	at := o.now()
	trial.Status = models.TrialStatusFailed
	trial.CompletedAt = &at
	o.settleLocked(at)
	return nil
}

// Abort marks the run failed, e.g. when the owning job is cancelled
func (o *HyperparameterOptimizer) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run.Status == models.RunStatusRunning {
		o.run.Status = models.RunStatusFailed
		o.run.UpdatedAt = o.now()
	}
}

// Run returns a snapshot of the run
func (o *HyperparameterOptimizer) Run() *models.OptimizationRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run.Clone()
}

// settleLocked completes the run once the budget is spent and nothing is in flight
func (o *HyperparameterOptimizer) settleLocked(at time.Time) {
	o.run.UpdatedAt = at
	if o.run.Status != models.RunStatusRunning || o.run.CurrentTrial < o.run.MaxTrials {
		return
	}
	for _, t := range o.run.Trials {
		if !t.Status.IsTerminal() {
			return
		}
	}
	o.run.Status = models.RunStatusCompleted
}

func (o *HyperparameterOptimizer) runningTrialLocked(trialID string) (*models.HyperparameterTrial, error) {
	for i := range o.run.Trials {
		t := &o.run.Trials[i]
		if t.ID != trialID {
			continue
		}
		if t.Status != models.TrialStatusRunning {
			return nil, fmt.Errorf("trial %s is %s, not running", trialID, t.Status)
		}
		return t, nil
	}
	return nil, fmt.Errorf("trial %s not found in run %s", trialID, o.run.ID)
}

func cloneTrial(t models.HyperparameterTrial) models.HyperparameterTrial {
	t.Hyperparameters = models.CloneParams(t.Hyperparameters)
	return t
}
