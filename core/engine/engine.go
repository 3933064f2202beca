// Package engine is the command and query surface of the AutoML job engine.
// It validates and stores jobs, drives their lifecycle and launches one
// pipeline per started job.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"automl-engine/core/events"
	"automl-engine/core/executor"
	"automl-engine/core/models"
	"automl-engine/core/monitoring"
	"automl-engine/core/recommendation"
	"automl-engine/core/repository"
	"automl-engine/core/validation"

	"github.com/google/uuid"
	log "github.com/golang/glog"
)

// ErrShuttingDown is returned by Start once Shutdown has begun
var ErrShuttingDown = errors.New("engine is shutting down")

// Stop reason recorded on cancelled jobs
const reasonStopped = "stopped_by_user"

// Options wires the engine's collaborators. Zero values get in-memory stores,
// a latency-free simulated runner, time.Now and random UUIDs.
type Options struct {
	Jobs      repository.JobStore
	Artifacts repository.ArtifactStore
	Runner    executor.TrialRunner
	Bus       *events.Bus
	Pipeline  executor.Config
	Now       func() time.Time
	NewID     func() string
}

// Engine owns job lifecycles
type Engine struct {
	jobs      repository.JobStore
	artifacts repository.ArtifactStore
	recorder  *executor.ArtifactRecorder
	executor  *executor.PipelineExecutor
	bus       *events.Bus
	eventLog  *repository.EventLog
	validator *validation.Validator
	now       func() time.Time
	newID     func() string

	baseCtx   context.Context
	cancelAll context.CancelCauseFunc

	mu        sync.Mutex
	closed    bool
	pipelines map[string]context.CancelCauseFunc
	wg        sync.WaitGroup
}

// New creates an engine
func New(opts Options) *Engine {
	if opts.Jobs == nil {
		opts.Jobs = repository.NewMemoryJobStore()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = repository.NewMemoryArtifactStore()
	}
	if opts.Runner == nil {
		opts.Runner = executor.NewSimulatedRunner(0)
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	recorder := executor.NewArtifactRecorder(opts.Artifacts, opts.Bus, opts.Now)
	baseCtx, cancelAll := context.WithCancelCause(context.Background())
	e := &Engine{
		jobs:      opts.Jobs,
		artifacts: opts.Artifacts,
		recorder:  recorder,
		executor: executor.NewPipelineExecutor(opts.Jobs, recorder, opts.Bus, opts.Runner, opts.Pipeline,
			executor.WithClock(opts.Now), executor.WithIDGenerator(opts.NewID)),
		bus:       opts.Bus,
		eventLog:  repository.NewEventLog(),
		validator: validation.New(),
		now:       opts.Now,
		newID:     opts.NewID,
		baseCtx:   baseCtx,
		cancelAll: cancelAll,
		pipelines: make(map[string]context.CancelCauseFunc),
	}
	e.bus.JobLifecycle.Subscribe(func(ev models.JobEvent) { e.eventLog.Record(ev) })
	return e
}

// Bus returns the engine's event bus for subscribers
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// CreateJob validates a job specification and stores it as pending. Nothing
// is stored when validation fails. The id, status, timestamps and results
// are assigned by the engine.
func (e *Engine) CreateJob(ctx context.Context, spec *models.Job) (*models.Job, error) {
	if spec == nil {
		return nil, e.validator.ValidateJob(nil)
	}
	job := spec.Clone()
	if job.Optimization.MaxTrials == 0 {
		job.Optimization.MaxTrials = job.Constraints.MaxTrials
	}
	if err := e.validator.ValidateJob(job); err != nil {
		return nil, err
	}

	now := e.now()
	job.ID = e.newID()
	job.Status = models.JobStatusPending
	job.Error = ""
	job.Results = models.JobResults{}
	job.CreatedAt = now
	job.UpdatedAt = now
	job.StartedAt = nil
	job.CompletedAt = nil
	job.EstimatedAt = nil

	if err := e.jobs.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}
	log.Infof("Job %s: created (%s, %s)", job.ID, job.TaskType, job.Name)
	e.bus.PublishJob(models.EventJobCreated, nil, job, "", now)
	return job, nil
}

// StartJob moves a pending job to running and launches its pipeline in the
// background. It returns as soon as the pipeline is scheduled.
func (e *Engine) StartJob(ctx context.Context, id string) (*models.Job, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrShuttingDown
	}
	at := e.now()
	job, err := e.jobs.Update(ctx, id, func(j *models.Job) error {
		return j.Transition(models.JobStatusRunning, at)
	})
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	pctx, cancel := context.WithCancelCause(e.baseCtx)
	e.pipelines[id] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	from := models.JobStatusPending
	e.bus.PublishJob(models.EventJobStarted, &from, job, "", at)
	log.Infof("Job %s: started, estimated completion %s", id, job.EstimatedAt.Format(time.RFC3339))

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.pipelines, id)
			e.mu.Unlock()
			cancel(nil)
		}()
		e.executor.Execute(pctx, id)
	}()
	return job, nil
}

// StopJob cancels a running job and interrupts its pipeline. The pipeline
// notices between phases and between trials; a runner that honours its
// context stops mid-trial.
func (e *Engine) StopJob(ctx context.Context, id string) (*models.Job, error) {
	at := e.now()
	job, err := e.jobs.Update(ctx, id, func(j *models.Job) error {
		if err := j.Transition(models.JobStatusCancelled, at); err != nil {
			return err
		}
		j.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cancel := e.pipelines[id]
	e.mu.Unlock()
	if cancel != nil {
		cancel(context.Canceled)
	}

	from := models.JobStatusRunning
	e.bus.PublishJob(models.EventJobCancelled, &from, job, reasonStopped, at)
	log.Infof("Job %s: cancelled", id)
	return job, nil
}

// GetJob returns a job by id
func (e *Engine) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return e.jobs.Get(ctx, id)
}

// Filter selects jobs in ListJobs. Empty fields match everything.
type Filter struct {
	Status    models.JobStatus
	TaskType  models.TaskType
	CreatedBy string
	Team      string
}

// Match reports whether job passes the filter
func (f Filter) Match(job *models.Job) bool {
	return (f.Status == "" || job.Status == f.Status) &&
		(f.TaskType == "" || job.TaskType == f.TaskType) &&
		(f.CreatedBy == "" || job.Metadata.CreatedBy == f.CreatedBy) &&
		(f.Team == "" || job.Metadata.Team == f.Team)
}

// ListJobs lists jobs matching the filter, newest first
func (e *Engine) ListJobs(ctx context.Context, filter Filter) ([]*models.Job, error) {
	jobs, err := e.jobs.List(ctx, filter.Match)
	if err != nil {
		return nil, err
	}
	repository.SortNewestFirst(jobs)
	return jobs, nil
}

// Progress returns the progress estimate of a job
func (e *Engine) Progress(ctx context.Context, id string) (monitoring.Progress, error) {
	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return monitoring.Progress{}, err
	}
	return monitoring.EstimateProgress(job, e.now()), nil
}

// Snapshot is the live view of a job and its artifacts. Artifacts not yet
// created are nil.
type Snapshot struct {
	Job                *models.Job                      `json:"job"`
	Progress           monitoring.Progress              `json:"progress"`
	RunningTrials      []models.Trial                   `json:"running_trials"`
	FeatureEngineering []*models.FeatureEngineeringStep `json:"feature_engineering"`
	Optimization       *models.OptimizationRun          `json:"optimization"`
	ModelSelection     *models.ModelSelection           `json:"model_selection"`
}

// Snapshot gathers a job with its running trials and artifacts
func (e *Engine) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := e.artifacts.FeatureSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	run, err := e.artifacts.OptimizationRun(ctx, id)
	if err != nil {
		return nil, err
	}
	selection, err := e.artifacts.ModelSelection(ctx, id)
	if err != nil {
		return nil, err
	}

	running := []models.Trial{}
	for _, t := range job.Results.AllModels {
		if t.Status == models.TrialStatusRunning {
			running = append(running, t)
		}
	}
	return &Snapshot{
		Job:                job,
		Progress:           monitoring.EstimateProgress(job, e.now()),
		RunningTrials:      running,
		FeatureEngineering: steps,
		Optimization:       run,
		ModelSelection:     selection,
	}, nil
}

// Events returns the lifecycle history of a job, newest first
func (e *Engine) Events(ctx context.Context, id string, limit int) ([]models.JobEvent, error) {
	if _, err := e.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.eventLog.GetJobEvents(id, limit), nil
}

// AttachFeatureStep records a caller-supplied feature engineering step
func (e *Engine) AttachFeatureStep(ctx context.Context, jobID string, step *models.FeatureEngineeringStep) (*models.FeatureEngineeringStep, error) {
	if err := e.requireOpenJob(ctx, jobID); err != nil {
		return nil, err
	}
	step = step.Clone()
	if step == nil {
		step = &models.FeatureEngineeringStep{}
	}
	step.ID = e.newID()
	step.JobID = jobID
	step.CreatedAt = e.now()
	if err := e.recorder.RecordFeatureStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

// AttachOptimizationRun records a caller-supplied optimization run on a
// pending job. Running jobs are refused because their pipeline owns the run.
// Starting the job later replaces the attached run with the pipeline's own.
func (e *Engine) AttachOptimizationRun(ctx context.Context, jobID string, run *models.OptimizationRun) (*models.OptimizationRun, error) {
	if err := e.requireIdleJob(ctx, jobID); err != nil {
		return nil, err
	}
	if run == nil || run.MaxTrials <= 0 {
		return nil, fmt.Errorf("%w: max trials must be positive", models.ErrInvalidConfiguration)
	}
	if run.CurrentTrial < 0 || run.CurrentTrial > run.MaxTrials {
		return nil, fmt.Errorf("%w: current trial %d outside [0, %d]", models.ErrInvalidConfiguration, run.CurrentTrial, run.MaxTrials)
	}
	run = run.Clone()
	now := e.now()
	run.ID = e.newID()
	run.JobID = jobID
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Method == "" {
		run.Method = models.MethodRandom
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.Trials == nil {
		run.Trials = []models.HyperparameterTrial{}
	}
	if err := e.recorder.RecordOptimizationRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// AttachModelSelection records a caller-supplied model selection on a
// pending job, with the same ownership rule as AttachOptimizationRun
func (e *Engine) AttachModelSelection(ctx context.Context, jobID string, selection *models.ModelSelection) (*models.ModelSelection, error) {
	if err := e.requireIdleJob(ctx, jobID); err != nil {
		return nil, err
	}
	if selection == nil {
		return nil, fmt.Errorf("%w: selection is required", models.ErrInvalidConfiguration)
	}
	if err := checkWeights(selection.SelectedModels, selection.EnsembleWeights); err != nil {
		return nil, err
	}
	selection = selection.Clone()
	selection.ID = e.newID()
	selection.JobID = jobID
	selection.CreatedAt = e.now()
	if err := e.recorder.RecordModelSelection(ctx, selection); err != nil {
		return nil, err
	}
	return selection, nil
}

// Recommend returns the stateless recommendation for a task and dataset shape
func (e *Engine) Recommend(taskType models.TaskType, datasetSize, featureCount int) recommendation.Recommendation {
	return recommendation.Recommend(taskType, datasetSize, featureCount)
}

// Wait blocks until every launched pipeline has returned
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown refuses new starts, cancels all pipelines and waits for them.
// Interrupted jobs end failed with reason engine_shutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancelAll(executor.ErrEngineShutdown)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Infof("Engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pipelines: %w", ctx.Err())
	}
}

// requireOpenJob fails unless the job exists and has not finished
func (e *Engine) requireOpenJob(ctx context.Context, jobID string) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s, artifacts are frozen", models.ErrInvalidTransition, jobID, job.Status)
	}
	return nil
}

// requireIdleJob fails unless the job exists and is pending
func (e *Engine) requireIdleJob(ctx context.Context, jobID string) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Status == models.JobStatusRunning:
		return fmt.Errorf("%w: job %s is running, its pipeline owns this artifact", models.ErrInvalidTransition, jobID)
	case job.Status.IsTerminal():
		return fmt.Errorf("%w: job %s is %s, artifacts are frozen", models.ErrInvalidTransition, jobID, job.Status)
	}
	return nil
}

func checkWeights(selected []string, weights []float64) error {
	if len(selected) != len(weights) {
		return fmt.Errorf("%w: %d ensemble weights for %d selected models",
			models.ErrInvalidConfiguration, len(weights), len(selected))
	}
	if len(weights) == 0 {
		return nil
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: ensemble weights must not be negative", models.ErrInvalidConfiguration)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: ensemble weights sum to %f, want 1", models.ErrInvalidConfiguration, sum)
	}
	return nil
}
