package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"automl-engine/core/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArtifactStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore()

	run, err := store.OptimizationRun(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, run)

	for _, name := range []string{"scaling", "imputation"} {
		require.NoError(t, store.AddFeatureStep(ctx, &models.FeatureEngineeringStep{
			ID: name, JobID: "job-1", Name: name,
			Class: models.FeatureNumerical, Operation: models.FeatureOperation(name),
		}))
	}
	steps, err := store.FeatureSteps(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "scaling", steps[0].ID)
	assert.Equal(t, "imputation", steps[1].ID)

	require.NoError(t, store.PutOptimizationRun(ctx, &models.OptimizationRun{ID: "run-1", JobID: "job-1", CurrentTrial: 1}))
	require.NoError(t, store.PutOptimizationRun(ctx, &models.OptimizationRun{ID: "run-1", JobID: "job-1", CurrentTrial: 2}))
	run, err = store.OptimizationRun(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, run.CurrentTrial)

	require.NoError(t, store.PutModelSelection(ctx, &models.ModelSelection{ID: "sel-1", JobID: "job-1", SelectedModels: []string{"t1"}}))
	sel, err := store.ModelSelection(ctx, "job-1")
	require.NoError(t, err)
	sel.SelectedModels[0] = "mutated"
	again, _ := store.ModelSelection(ctx, "job-1")
	assert.Equal(t, []string{"t1"}, again.SelectedModels)
}

func TestPostgresArtifactStore_PutAndGetRun(t *testing.T) {
	db, mock, err := InitMockAndDB()
	require.NoError(t, err)
	store := NewPostgresArtifactStore(db)
	ctx := context.Background()

	run := &models.OptimizationRun{
		ID: "run-1", JobID: "job-1", Method: models.MethodGrid, MaxTrials: 4,
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO job_artifacts`)).
		WithArgs("job-1", ArtifactOptimizationRun, "run-1", run.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.PutOptimizationRun(ctx, run))

	doc, err := json.Marshal(run)
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM job_artifacts`)).
		WithArgs("job-1", ArtifactOptimizationRun).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))
	got, err := store.OptimizationRun(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MethodGrid, got.Method)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM job_artifacts`)).
		WithArgs("job-2", ArtifactModelSelection).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))
	sel, err := store.ModelSelection(ctx, "job-2")
	require.NoError(t, err)
	assert.Nil(t, sel)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresArtifactStore_FeatureSteps(t *testing.T) {
	db, mock, err := InitMockAndDB()
	require.NoError(t, err)
	store := NewPostgresArtifactStore(db)

	first, _ := json.Marshal(models.FeatureEngineeringStep{ID: "s1", JobID: "job-1", Name: "scaling"})
	second, _ := json.Marshal(models.FeatureEngineeringStep{ID: "s2", JobID: "job-1", Name: "encoding"})
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY seq`)).
		WithArgs("job-1", ArtifactFeatureStep).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(first).AddRow(second))

	steps, err := store.FeatureSteps(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "s1", steps[0].ID)
	assert.Equal(t, "encoding", steps[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLog_NewestFirst(t *testing.T) {
	log := NewEventLog()
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted} {
		log.Record(models.JobEvent{JobID: "job-1", ToStatus: status})
	}
	log.Record(models.JobEvent{JobID: "job-2", ToStatus: models.JobStatusPending})

	events := log.GetJobEvents("job-1", 0)
	require.Len(t, events, 3)
	assert.Equal(t, models.JobStatusCompleted, events[0].ToStatus)
	assert.Equal(t, models.JobStatusPending, events[2].ToStatus)
	assert.Greater(t, events[0].ID, events[1].ID)

	limited := log.GetJobEvents("job-1", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, models.JobStatusCompleted, limited[0].ToStatus)

	assert.Empty(t, log.GetJobEvents("unknown", 5))
}
