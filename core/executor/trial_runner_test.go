package executor

import (
	"context"
	"testing"
	"time"

	"automl-engine/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedRunner_Deterministic(t *testing.T) {
	runner := NewSimulatedRunner(0)
	spec := TrialSpec{Algorithm: "xgboost", Hyperparameters: map[string]any{"max_depth": 6, "eta": 0.1}}

	first, err := runner.RunTrial(context.Background(), spec)
	require.NoError(t, err)
	second, err := runner.RunTrial(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first.Accuracy, second.Accuracy)

	assert.GreaterOrEqual(t, first.Accuracy, 0.6)
	assert.Less(t, first.Accuracy, 0.9)
	assert.NotNil(t, first.MSE)
	assert.NotNil(t, first.AUC)
}

func TestSimulatedRunner_HonoursContext(t *testing.T) {
	runner := NewSimulatedRunner(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := runner.RunTrial(ctx, TrialSpec{Algorithm: "svm"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulatedRunner_Evaluator(t *testing.T) {
	runner := NewSimulatedRunner(0)
	spec := TrialSpec{
		Algorithm:       "random_forest",
		Objective:       models.MetricF1,
		Dataset:         models.Dataset{Features: 4},
		Hyperparameters: map[string]any{"n_estimators": 100},
	}

	scores, err := runner.CrossValidate(context.Background(), spec, 5)
	require.NoError(t, err)
	assert.Len(t, scores, 5)

	_, err = runner.CrossValidate(context.Background(), spec, 0)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	importance, err := runner.FeatureImportance(context.Background(), spec)
	require.NoError(t, err)
	assert.Len(t, importance, 4)
	total := 0.0
	for _, w := range importance {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}
