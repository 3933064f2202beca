package executor

import (
	"context"
	"time"

	"automl-engine/core/events"
	"automl-engine/core/models"
	"automl-engine/core/repository"
	"automl-engine/core/validation"
)

// ArtifactRecorder stores pipeline artifacts and announces new ones on the bus
type ArtifactRecorder struct {
	store     repository.ArtifactStore
	bus       *events.Bus
	validator *validation.Validator
	now       func() time.Time
}

// NewArtifactRecorder creates an artifact recorder
func NewArtifactRecorder(store repository.ArtifactStore, bus *events.Bus, now func() time.Time) *ArtifactRecorder {
	if now == nil {
		now = time.Now
	}
	return &ArtifactRecorder{
		store:     store,
		bus:       bus,
		validator: validation.New(),
		now:       now,
	}
}

// Store returns the underlying artifact store
func (r *ArtifactRecorder) Store() repository.ArtifactStore {
	return r.store
}

// RecordFeatureStep validates, stores and announces a feature engineering step
func (r *ArtifactRecorder) RecordFeatureStep(ctx context.Context, step *models.FeatureEngineeringStep) error {
	if err := r.validator.ValidateFeatureStep(step); err != nil {
		return err
	}
	if err := r.store.AddFeatureStep(ctx, step); err != nil {
		return err
	}
	r.bus.FeatureEngineering.Publish(models.FeatureEngineeringEvent{
		JobID: step.JobID,
		At:    r.now(),
		Step:  step.Clone(),
	})
	return nil
}

// RecordOptimizationRun stores and announces a new optimization run
func (r *ArtifactRecorder) RecordOptimizationRun(ctx context.Context, run *models.OptimizationRun) error {
	if err := r.store.PutOptimizationRun(ctx, run); err != nil {
		return err
	}
	r.bus.OptimizationRuns.Publish(models.OptimizationRunEvent{
		JobID: run.JobID,
		At:    r.now(),
		Run:   run.Clone(),
	})
	return nil
}

// SaveOptimizationRun stores progress of a run that was already announced
func (r *ArtifactRecorder) SaveOptimizationRun(ctx context.Context, run *models.OptimizationRun) error {
	return r.store.PutOptimizationRun(ctx, run)
}

// RecordModelSelection stores and announces a model selection
func (r *ArtifactRecorder) RecordModelSelection(ctx context.Context, selection *models.ModelSelection) error {
	if err := r.store.PutModelSelection(ctx, selection); err != nil {
		return err
	}
	r.bus.ModelSelections.Publish(models.ModelSelectionEvent{
		JobID:     selection.JobID,
		At:        r.now(),
		Selection: selection.Clone(),
	})
	return nil
}

// SaveModelSelection stores an update to an announced selection
func (r *ArtifactRecorder) SaveModelSelection(ctx context.Context, selection *models.ModelSelection) error {
	return r.store.PutModelSelection(ctx, selection)
}
