// Package executor drives a running job through the five pipeline phases.
package executor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"automl-engine/core/events"
	"automl-engine/core/models"
	"automl-engine/core/optimizer"
	"automl-engine/core/recommendation"
	"automl-engine/core/repository"
	"automl-engine/core/selector"

	"github.com/google/uuid"
	log "github.com/golang/glog"
)

// ErrEngineShutdown is the cancellation cause used when the engine stops
var ErrEngineShutdown = errors.New("engine_shutdown")

// ErrNoCompletedTrials fails model training when every trial failed
var ErrNoCompletedTrials = errors.New("no trial completed")

// Phase names, in execution order
const (
	PhasePreprocessing      = "data_preprocessing"
	PhaseAlgorithmSelection = "algorithm_selection"
	PhaseModelTraining      = "model_training"
	PhaseModelSelection     = "model_selection"
	PhaseFinalEvaluation    = "final_evaluation"
)

// Config tunes the pipeline
type Config struct {
	CVFolds   int
	Selection selector.Config
}

// PipelineExecutor runs the pipeline of one job at a time per call. Separate
// jobs may execute concurrently.
type PipelineExecutor struct {
	jobs      repository.JobStore
	recorder  *ArtifactRecorder
	bus       *events.Bus
	runner    TrialRunner
	evaluator Evaluator
	profiles  *selector.ProfileStore
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// Option customises a PipelineExecutor
type Option func(*PipelineExecutor)

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(e *PipelineExecutor) { e.now = now }
}

// WithIDGenerator injects the id source for trials, runs, steps and selections
func WithIDGenerator(newID func() string) Option {
	return func(e *PipelineExecutor) { e.newID = newID }
}

// WithEvaluator overrides the evaluator. By default the runner is used when
// it implements Evaluator.
func WithEvaluator(ev Evaluator) Option {
	return func(e *PipelineExecutor) { e.evaluator = ev }
}

// NewPipelineExecutor creates a pipeline executor
func NewPipelineExecutor(
	jobs repository.JobStore,
	recorder *ArtifactRecorder,
	bus *events.Bus,
	runner TrialRunner,
	cfg Config,
	opts ...Option,
) *PipelineExecutor {
	if cfg.CVFolds <= 0 {
		cfg.CVFolds = 5
	}
	e := &PipelineExecutor{
		jobs:     jobs,
		recorder: recorder,
		bus:      bus,
		runner:   runner,
		profiles: selector.NewProfileStore(),
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if ev, ok := runner.(Evaluator); ok {
		e.evaluator = ev
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pipelineRun carries state between the phases of one execution
type pipelineRun struct {
	job                *models.Job
	rec                recommendation.Recommendation
	preprocessing      []string
	featureEngineering []string
	opt                *optimizer.HyperparameterOptimizer
	specs              map[string]TrialSpec
	records            map[string]models.PerformanceRecord
	selection          *models.ModelSelection
}

// Execute runs all phases for a job that has just entered running. Phase
// errors never escape: the job is marked failed instead. If the job left
// running in the meantime (it was stopped), its status is left alone.
func (e *PipelineExecutor) Execute(ctx context.Context, jobID string) {
	log.Infof("Job %s: pipeline started", jobID)

	err := e.run(ctx, jobID)
	if err == nil {
		e.finish(jobID, models.JobStatusCompleted, "")
		return
	}

	reason := err.Error()
	if ctx.Err() != nil {
		reason = context.Cause(ctx).Error()
	}
	log.Warningf("Job %s: pipeline failed: %s", jobID, reason)
	e.finish(jobID, models.JobStatusFailed, reason)
}

func (e *PipelineExecutor) run(ctx context.Context, jobID string) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	pr := &pipelineRun{
		job:     job,
		rec:     recommendation.Recommend(job.TaskType, job.Dataset.Rows, job.Dataset.Features),
		specs:   make(map[string]TrialSpec),
		records: make(map[string]models.PerformanceRecord),
	}

	phases := []struct {
		name string
		fn   func(context.Context, *pipelineRun) error
	}{
		{PhasePreprocessing, e.preprocess},
		{PhaseAlgorithmSelection, e.selectAlgorithms},
		{PhaseModelTraining, e.train},
		{PhaseModelSelection, e.selectModels},
		{PhaseFinalEvaluation, e.evaluate},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			if pr.opt != nil {
				pr.opt.Abort()
				e.saveRun(ctx, pr)
			}
			return err
		}
		log.Infof("Job %s: phase %s", jobID, phase.name)
		if err := phase.fn(ctx, pr); err != nil {
			return fmt.Errorf("%s: %w", phase.name, err)
		}
	}
	return nil
}

// finish moves the job from running to a final status. It never overwrites a
// job that already left running.
func (e *PipelineExecutor) finish(jobID string, to models.JobStatus, reason string) {
	at := e.now()
	var notRunning bool
	job, err := e.jobs.Update(context.Background(), jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusRunning {
			notRunning = true
			return &models.TransitionError{JobID: j.ID, From: j.Status, To: to}
		}
		if err := j.Transition(to, at); err != nil {
			return err
		}
		j.Error = reason
		return nil
	})
	if notRunning {
		log.Infof("Job %s: no longer running, keeping its status", jobID)
		return
	}
	if err != nil {
		log.Errorf("Job %s: failed to record %s: %v", jobID, to, err)
		return
	}

	eventType := models.EventJobCompleted
	if to == models.JobStatusFailed {
		eventType = models.EventJobFailed
	}
	from := models.JobStatusRunning
	e.bus.PublishJob(eventType, &from, job, reason, at)
	log.Infof("Job %s: %s", jobID, to)
}

// preprocess records one feature step per preprocessing and feature
// engineering option
func (e *PipelineExecutor) preprocess(ctx context.Context, pr *pipelineRun) error {
	pr.preprocessing = pr.job.SearchSpace.Preprocessing
	if len(pr.preprocessing) == 0 {
		pr.preprocessing = pr.rec.Preprocessing
	}
	if !contains(pr.preprocessing, "scaling") {
		pr.preprocessing = append([]string{"scaling"}, pr.preprocessing...)
	}
	pr.featureEngineering = pr.job.SearchSpace.FeatureEngineering
	if len(pr.featureEngineering) == 0 {
		pr.featureEngineering = pr.rec.FeatureEngineering
	}

	inputs := datasetFeatures(pr.job.Dataset)
	for _, name := range pr.preprocessing {
		class, op := preprocessingStep(name)
		if err := e.recordStep(ctx, pr.job, name, class, op, inputs); err != nil {
			return err
		}
	}
	for _, name := range pr.featureEngineering {
		if err := e.recordStep(ctx, pr.job, name, models.FeatureNumerical, featureOperation(name), inputs); err != nil {
			return err
		}
	}
	return nil
}

func (e *PipelineExecutor) recordStep(
	ctx context.Context,
	job *models.Job,
	name string,
	class models.FeatureClass,
	op models.FeatureOperation,
	inputs []string,
) error {
	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		outputs[i] = in + "_" + name
	}
	return e.recorder.RecordFeatureStep(ctx, &models.FeatureEngineeringStep{
		ID:             e.newID(),
		JobID:          job.ID,
		Name:           name,
		Description:    fmt.Sprintf("%s %s of dataset %s", class, op, job.Dataset.Name),
		Class:          class,
		Operation:      op,
		Parameters:     map[string]any{},
		InputFeatures:  inputs,
		OutputFeatures: outputs,
		CreatedAt:      e.now(),
	})
}

// selectAlgorithms creates the optimization run
func (e *PipelineExecutor) selectAlgorithms(ctx context.Context, pr *pipelineRun) error {
	job := pr.job
	algorithms := job.SearchSpace.Algorithms
	if len(algorithms) == 0 {
		algorithms = pr.rec.Algorithms
	}
	space := job.SearchSpace.Hyperparameters
	if len(space) == 0 {
		space = pr.rec.Hyperparameters
	}

	opt, err := optimizer.New(optimizer.Config{
		RunID:       e.newID(),
		JobID:       job.ID,
		Algorithms:  algorithms,
		SearchSpace: space,
		Method:      job.Optimization.Method,
		MaxTrials:   job.Optimization.MaxTrials,
		EarlyStopping: models.EarlyStoppingPolicy{
			Enabled:        job.Optimization.EarlyStopping,
			Patience:       job.Optimization.Patience,
			MinImprovement: job.Optimization.MinImprovement,
		},
		Seed: seedFor(job.ID),
		Now:  e.now,
	})
	if err != nil {
		return err
	}
	pr.opt = opt
	return e.recorder.RecordOptimizationRun(ctx, opt.Run())
}

// train asks the optimizer for trials until the run is finished
func (e *PipelineExecutor) train(ctx context.Context, pr *pipelineRun) error {
	for !pr.opt.Done() {
		if err := ctx.Err(); err != nil {
			pr.opt.Abort()
			e.saveRun(ctx, pr)
			return err
		}
		if err := e.runTrial(ctx, pr); err != nil {
			pr.opt.Abort()
			e.saveRun(ctx, pr)
			return err
		}
	}

	run := pr.opt.Run()
	if run.BestScore == nil {
		return ErrNoCompletedTrials
	}
	log.Infof("Job %s: %d trials, best %s = %.4f", pr.job.ID, run.CurrentTrial, pr.job.Objective, *run.BestScore)
	return nil
}

// runTrial executes one trial. Runner failures mark the trial failed and
// return nil. Only cancellation and storage errors stop training.
func (e *PipelineExecutor) runTrial(ctx context.Context, pr *pipelineRun) error {
	job := pr.job
	ht, err := pr.opt.NextTrial(e.newID())
	if err != nil {
		return err
	}
	spec := TrialSpec{
		JobID:              job.ID,
		TrialID:            ht.ID,
		TaskType:           job.TaskType,
		Objective:          job.Objective,
		Dataset:            job.Dataset,
		Algorithm:          ht.Algorithm,
		Hyperparameters:    ht.Hyperparameters,
		Preprocessing:      pr.preprocessing,
		FeatureEngineering: pr.featureEngineering,
	}
	pr.specs[ht.ID] = spec

	trial := models.Trial{
		ID:                 ht.ID,
		Algorithm:          ht.Algorithm,
		Hyperparameters:    models.CloneParams(ht.Hyperparameters),
		Preprocessing:      pr.preprocessing,
		FeatureEngineering: pr.featureEngineering,
		Status:             models.TrialStatusRunning,
		CreatedAt:          ht.StartedAt,
	}
	if err := e.publishTrial(ctx, pr, trial); err != nil {
		return err
	}

	record, runErr := e.runner.RunTrial(ctx, spec)
	if runErr != nil && ctx.Err() != nil {
		// Settle the interrupted trial so a terminal job holds no running trials
		_ = pr.opt.FailTrial(ht.ID)
		interruptedAt := e.now()
		trial.Status = models.TrialStatusFailed
		trial.Error = context.Cause(ctx).Error()
		trial.CompletedAt = &interruptedAt
		if err := e.publishTrial(context.WithoutCancel(ctx), pr, trial); err != nil {
			log.Warningf("Job %s: failed to settle trial %s: %v", job.ID, ht.ID, err)
		}
		return ctx.Err()
	}

	var score float64
	if runErr == nil {
		var ok bool
		if score, ok = record.Score(job.Objective); !ok {
			runErr = fmt.Errorf("runner did not report objective %s", job.Objective)
		}
	}

	completedAt := e.now()
	trial.CompletedAt = &completedAt
	if runErr != nil {
		log.Warningf("Job %s: trial %s (%s) failed: %v", job.ID, ht.ID, ht.Algorithm, runErr)
		trial.Status = models.TrialStatusFailed
		trial.Error = runErr.Error()
		if err := pr.opt.FailTrial(ht.ID); err != nil {
			return err
		}
	} else {
		trial.Status = models.TrialStatusCompleted
		trial.Performance = record
		pr.records[ht.ID] = record
		meta := models.TrialMetadata{
			TrainingTime: record.TrainingTime,
			MemoryUsage:  record.MemoryUsage,
			Converged:    true,
		}
		if err := pr.opt.CompleteTrial(ht.ID, score, meta); err != nil {
			return err
		}
	}
	return e.publishTrial(ctx, pr, trial)
}

// publishTrial writes the trial and the current best into the job's results
func (e *PipelineExecutor) publishTrial(ctx context.Context, pr *pipelineRun, trial models.Trial) error {
	run := pr.opt.Run()
	_, err := e.jobs.Update(ctx, pr.job.ID, func(j *models.Job) error {
		replaced := false
		for i := range j.Results.AllModels {
			if j.Results.AllModels[i].ID == trial.ID {
				j.Results.AllModels[i] = trial.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			j.Results.AllModels = append(j.Results.AllModels, trial.Clone())
		}
		if run.BestScore != nil {
			best := *run.BestScore
			j.Results.BestScore = &best
			j.Results.BestModelID = run.BestTrialID
			j.Results.BestHyperparameters = models.CloneParams(run.BestHyperparameters)
		}
		j.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return err
	}
	return e.recorder.SaveOptimizationRun(ctx, run)
}

// selectModels ranks completed trials and stores the selection
func (e *PipelineExecutor) selectModels(ctx context.Context, pr *pipelineRun) error {
	run := pr.opt.Run()
	alignment := selector.BusinessAlignment(pr.job.Metadata)

	var candidates []models.ModelCandidate
	for _, t := range run.Trials {
		if t.Status != models.TrialStatusCompleted {
			continue
		}
		profile := e.profiles.Profile(t.Algorithm)
		candidates = append(candidates, models.ModelCandidate{
			ID:                t.ID,
			Algorithm:         t.Algorithm,
			Hyperparameters:   models.CloneParams(t.Hyperparameters),
			Performance:       pr.records[t.ID],
			Interpretability:  profile.Interpretability,
			Robustness:        profile.Robustness,
			Scalability:       profile.Scalability,
			BusinessAlignment: alignment,
		})
	}

	sel, err := selector.New(e.cfg.Selection)
	if err != nil {
		return err
	}
	selection, err := sel.Select(e.newID(), pr.job.ID, candidates, e.now())
	if err != nil {
		return err
	}
	pr.selection = selection
	return e.recorder.RecordModelSelection(ctx, selection)
}

// evaluate records cross-validation, the training curve and feature importance
func (e *PipelineExecutor) evaluate(ctx context.Context, pr *pipelineRun) error {
	run := pr.opt.Run()
	bestSpec := pr.specs[run.BestTrialID]
	folds := e.cfg.CVFolds

	var scores []float64
	var importance map[string]float64
	if e.evaluator != nil {
		var err error
		if scores, err = e.evaluator.CrossValidate(ctx, bestSpec, folds); err != nil {
			return fmt.Errorf("cross-validation: %w", err)
		}
		if importance, err = e.evaluator.FeatureImportance(ctx, bestSpec); err != nil {
			return fmt.Errorf("feature importance: %w", err)
		}
	} else {
		scores = make([]float64, folds)
		for i := range scores {
			scores[i] = *run.BestScore
		}
	}

	cv, err := selector.CrossValidate(folds, scores)
	if err != nil {
		return err
	}
	pr.selection.CrossValidation = cv
	if err := e.recorder.SaveModelSelection(ctx, pr.selection); err != nil {
		return err
	}

	curve := trainingCurve(run)
	_, err = e.jobs.Update(ctx, pr.job.ID, func(j *models.Job) error {
		j.Results.CrossValidationScores = append([]float64(nil), cv.Scores...)
		j.Results.TrainingCurve = curve
		j.Results.FeatureImportance = importance
		j.UpdatedAt = e.now()
		return nil
	})
	return err
}

func (e *PipelineExecutor) saveRun(ctx context.Context, pr *pipelineRun) {
	// The pipeline ctx may already be cancelled
	if err := e.recorder.SaveOptimizationRun(context.WithoutCancel(ctx), pr.opt.Run()); err != nil {
		log.Errorf("Job %s: failed to save optimization run: %v", pr.job.ID, err)
	}
}

// trainingCurve is the best score so far after each completed trial
func trainingCurve(run *models.OptimizationRun) []models.CurvePoint {
	curve := []models.CurvePoint{}
	var best *float64
	for _, t := range run.Trials {
		if t.Status != models.TrialStatusCompleted || t.Score == nil {
			continue
		}
		if best == nil || *t.Score > *best {
			best = t.Score
		}
		curve = append(curve, models.CurvePoint{Epoch: len(curve) + 1, Metric: *best})
	}
	return curve
}

func preprocessingStep(name string) (models.FeatureClass, models.FeatureOperation) {
	switch name {
	case "scaling":
		return models.FeatureNumerical, models.OperationScaling
	case "imputation":
		return models.FeatureNumerical, models.OperationImputation
	case "encoding":
		return models.FeatureCategorical, models.OperationEncoding
	}
	return models.FeatureNumerical, models.OperationTransformation
}

func featureOperation(name string) models.FeatureOperation {
	switch name {
	case "feature_selection":
		return models.OperationSelection
	case "dimensionality_reduction":
		return models.OperationExtraction
	}
	return models.OperationTransformation
}

func datasetFeatures(ds models.Dataset) []string {
	n := ds.Features
	if n > 10 {
		n = 10
	}
	features := make([]string, n)
	for i := range features {
		features[i] = fmt.Sprintf("feature_%d", i)
	}
	return features
}

// seedFor gives every job a stable random search sequence
func seedFor(jobID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(jobID))
	return int64(h.Sum64() >> 1)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
