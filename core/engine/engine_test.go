package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"automl-engine/core/executor"
	"automl-engine/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

// gatedRunner blocks every trial until its context is done
type gatedRunner struct {
	started chan struct{}
	once    sync.Once
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{})}
}

func (r *gatedRunner) RunTrial(ctx context.Context, _ executor.TrialSpec) (models.PerformanceRecord, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return models.PerformanceRecord{}, ctx.Err()
}

func newTestEngine(runner executor.TrialRunner) *Engine {
	clock := &testClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	return New(Options{Runner: runner, Now: clock.Now, NewID: sequentialIDs()})
}

func validJob() *models.Job {
	return &models.Job{
		Name:      "fraud detection",
		TaskType:  models.TaskClassification,
		Objective: models.MetricF1,
		Dataset:   models.Dataset{Name: "transactions", Rows: 8000, Features: 20},
		Constraints: models.ResourceConstraints{
			MaxTrainingTime: 30,
			MaxTrials:       3,
		},
		Metadata: models.JobMetadata{CreatedBy: "ana", Team: "risk", BusinessValue: "high"},
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCreateJob(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	assert.Equal(t, "id-0001", job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.Optimization.MaxTrials, "defaults to the constraint budget")
	assert.False(t, job.CreatedAt.IsZero())

	events, err := e.Events(ctx, job.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventJobCreated, events[0].Type)
	assert.Nil(t, events[0].FromStatus)
}

func TestCreateJob_ValidationStoresNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Job)
		kind   error
	}{
		{"negative training time", func(j *models.Job) { j.Constraints.MaxTrainingTime = -1 }, models.ErrInvalidConstraint},
		{"zero trials", func(j *models.Job) { j.Constraints.MaxTrials = 0 }, models.ErrInvalidConstraint},
		{"missing name", func(j *models.Job) { j.Name = "" }, models.ErrMissingField},
		{"missing task type", func(j *models.Job) { j.TaskType = "" }, models.ErrMissingField},
		{"missing objective", func(j *models.Job) { j.Objective = "" }, models.ErrMissingField},
		{"missing dataset", func(j *models.Job) { j.Dataset = models.Dataset{} }, models.ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(nil)
			ctx := context.Background()
			spec := validJob()
			tt.mutate(spec)

			_, err := e.CreateJob(ctx, spec)
			assert.ErrorIs(t, err, tt.kind)

			jobs, err := e.ListJobs(ctx, Filter{})
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestStartJob_RunsPipelineToCompletion(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	e.Bus().JobLifecycle.Subscribe(func(ev models.JobEvent) { record(string(ev.Type)) })
	e.Bus().FeatureEngineering.Subscribe(func(models.FeatureEngineeringEvent) { record("feature") })
	e.Bus().OptimizationRuns.Subscribe(func(models.OptimizationRunEvent) { record("optimization") })
	e.Bus().ModelSelections.Subscribe(func(models.ModelSelectionEvent) { record("selection") })

	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)

	started, err := e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, started.Status)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.EstimatedAt)
	assert.Equal(t, started.StartedAt.Add(30*time.Minute), *started.EstimatedAt)

	e.Wait()

	done, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Len(t, done.Results.AllModels, 3)
	assert.NotNil(t, done.Results.BestScore)
	assert.Len(t, done.Results.CrossValidationScores, 5)
	assert.NotEmpty(t, done.Results.TrainingCurve)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(order), 5)
	assert.Equal(t, "job_created", order[0])
	assert.Equal(t, "job_started", order[1])
	assert.Equal(t, "feature", order[2])
	assert.Contains(t, order, "optimization")
	assert.Contains(t, order, "selection")
	assert.Equal(t, "job_completed", order[len(order)-1])

	progress, err := e.Progress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Percentage)
	assert.Equal(t, 3, progress.TrialsCompleted)
}

func TestLifecycleErrors(t *testing.T) {
	e := newTestEngine(newGatedRunner())
	ctx := context.Background()

	_, err := e.StartJob(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = e.StopJob(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)

	_, err = e.StopJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "stop requires running")

	_, err = e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	_, err = e.StartJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "start requires pending")

	_, err = e.StopJob(ctx, job.ID)
	require.NoError(t, err)
	_, err = e.StopJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "terminal states accept nothing")
	_, err = e.StartJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	e.Wait()
}

func TestStopJob_InterruptsPipeline(t *testing.T) {
	runner := newGatedRunner()
	e := newTestEngine(runner)
	ctx := context.Background()

	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	_, err = e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	waitClosed(t, runner.started)

	stopped, err := e.StopJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stopped.Status)

	e.Wait()
	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, final.Status)

	events, err := e.Events(ctx, job.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.EventJobCancelled, events[0].Type, "no later event overwrites the cancellation")
	assert.Equal(t, "stopped_by_user", events[0].Reason)

	snap, err := e.Snapshot(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Optimization)
	assert.Equal(t, models.RunStatusFailed, snap.Optimization.Status)
	assert.Nil(t, snap.ModelSelection)
}

func TestShutdown_FailsRunningJobs(t *testing.T) {
	runner := newGatedRunner()
	e := newTestEngine(runner)
	ctx := context.Background()

	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	_, err = e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	waitClosed(t, runner.started)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(shutdownCtx))

	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Equal(t, "engine_shutdown", final.Error)

	other, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	_, err = e.StartJob(ctx, other.ID)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestListJobs_FiltersNewestFirst(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()

	specs := []func(*models.Job){
		func(j *models.Job) { j.Metadata.Team = "risk" },
		func(j *models.Job) { j.Metadata.Team = "growth"; j.TaskType = models.TaskRegression; j.Objective = models.MetricMSE },
		func(j *models.Job) { j.Metadata.Team = "risk"; j.Metadata.CreatedBy = "bo" },
	}
	var ids []string
	for _, mutate := range specs {
		spec := validJob()
		mutate(spec)
		job, err := e.CreateJob(ctx, spec)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	all, err := e.ListJobs(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	risk, err := e.ListJobs(ctx, Filter{Team: "risk"})
	require.NoError(t, err)
	assert.Len(t, risk, 2)

	regression, err := e.ListJobs(ctx, Filter{TaskType: models.TaskRegression})
	require.NoError(t, err)
	require.Len(t, regression, 1)
	assert.Equal(t, ids[1], regression[0].ID)

	byCreator, err := e.ListJobs(ctx, Filter{CreatedBy: "bo", Status: models.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, byCreator, 1)

	running, err := e.ListJobs(ctx, Filter{Status: models.JobStatusRunning})
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestSnapshot_BeforeStart(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, snap.Job.ID)
	assert.Equal(t, "Pending", snap.Progress.Phase)
	assert.Empty(t, snap.RunningTrials)
	assert.Empty(t, snap.FeatureEngineering)
	assert.Nil(t, snap.Optimization)
	assert.Nil(t, snap.ModelSelection)

	_, err = e.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAttachArtifacts(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)

	var announced []string
	e.Bus().FeatureEngineering.Subscribe(func(ev models.FeatureEngineeringEvent) { announced = append(announced, ev.Step.Name) })

	step, err := e.AttachFeatureStep(ctx, job.ID, &models.FeatureEngineeringStep{
		Name: "log_amount", Class: models.FeatureNumerical, Operation: models.OperationTransformation,
	})
	require.NoError(t, err)
	assert.Equal(t, job.ID, step.JobID)
	assert.NotEmpty(t, step.ID)
	assert.Equal(t, []string{"log_amount"}, announced)

	_, err = e.AttachFeatureStep(ctx, job.ID, &models.FeatureEngineeringStep{Name: "bad", Class: "audio", Operation: models.OperationScaling})
	assert.ErrorIs(t, err, models.ErrInvalidConstraint)
	_, err = e.AttachFeatureStep(ctx, job.ID, &models.FeatureEngineeringStep{Class: models.FeatureText, Operation: models.OperationEncoding})
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = e.AttachOptimizationRun(ctx, job.ID, &models.OptimizationRun{MaxTrials: 0})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	run, err := e.AttachOptimizationRun(ctx, job.ID, &models.OptimizationRun{Algorithms: []string{"svm"}, MaxTrials: 5})
	require.NoError(t, err)
	assert.Equal(t, models.MethodRandom, run.Method)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	_, err = e.AttachModelSelection(ctx, job.ID, &models.ModelSelection{
		SelectedModels: []string{"a", "b"}, EnsembleWeights: []float64{0.7, 0.7},
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = e.AttachModelSelection(ctx, job.ID, &models.ModelSelection{
		SelectedModels: []string{"a", "b"}, EnsembleWeights: []float64{1},
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	sel, err := e.AttachModelSelection(ctx, job.ID, &models.ModelSelection{
		SelectedModels: []string{"a", "b"}, EnsembleWeights: []float64{0.6, 0.4},
	})
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, snap.FeatureEngineering, 1)
	assert.Equal(t, run.ID, snap.Optimization.ID)
	assert.Equal(t, sel.ID, snap.ModelSelection.ID)

	_, err = e.AttachFeatureStep(ctx, "missing", &models.FeatureEngineeringStep{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAttachArtifacts_FrozenAfterCompletion(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	_, err = e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	e.Wait()

	_, err = e.AttachOptimizationRun(ctx, job.ID, &models.OptimizationRun{MaxTrials: 2})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAttachArtifacts_RefusedWhilePipelineRuns(t *testing.T) {
	runner := newGatedRunner()
	e := newTestEngine(runner)
	ctx := context.Background()
	job, err := e.CreateJob(ctx, validJob())
	require.NoError(t, err)
	_, err = e.StartJob(ctx, job.ID)
	require.NoError(t, err)
	waitClosed(t, runner.started)

	_, err = e.AttachOptimizationRun(ctx, job.ID, &models.OptimizationRun{Algorithms: []string{"svm"}, MaxTrials: 2})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = e.AttachModelSelection(ctx, job.ID, &models.ModelSelection{
		SelectedModels: []string{"a"}, EnsembleWeights: []float64{1},
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// Feature steps append, so they are still accepted
	_, err = e.AttachFeatureStep(ctx, job.ID, &models.FeatureEngineeringStep{
		Name: "bucket_age", Class: models.FeatureNumerical, Operation: models.OperationTransformation,
	})
	assert.NoError(t, err)

	snap, err := e.Snapshot(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Optimization)
	assert.Equal(t, 3, snap.Optimization.MaxTrials, "the pipeline's run is untouched")

	_, err = e.StopJob(ctx, job.ID)
	require.NoError(t, err)
	e.Wait()
}

func TestRecommend(t *testing.T) {
	e := newTestEngine(nil)
	rec := e.Recommend(models.TaskClassification, 5000, 10)
	assert.Subset(t, []string{"random_forest", "svm", "logistic_regression"}, rec.Algorithms)
}
