package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTOML_CONFIG", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRecommendCommand(t *testing.T) {
	out, err := execute(t, "recommend", "--task-type", "regression", "--dataset-size", "50000", "--feature-count", "80")
	require.NoError(t, err)

	var rec struct {
		Algorithms         []string `json:"algorithms"`
		FeatureEngineering []string `json:"feature_engineering"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, []string{"random_forest", "xgboost", "lightgbm"}, rec.Algorithms)
	assert.Contains(t, rec.FeatureEngineering, "feature_selection")
}

func TestRunCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
job:
  name: churn
  task_type: classification
  objective: accuracy
  dataset:
    name: customers
    rows: 4000
    features: 8
  resources:
    max_training_time: 10
    max_trials: 3
`), 0o600))

	out, err := execute(t, "run", "-f", path)
	require.NoError(t, err)

	var snapshot struct {
		Job struct {
			Status  string `json:"status"`
			Results struct {
				AllModels []json.RawMessage `json:"all_models"`
			} `json:"results"`
		} `json:"job"`
		ModelSelection *json.RawMessage `json:"model_selection"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Equal(t, "completed", snapshot.Job.Status)
	assert.Len(t, snapshot.Job.Results.AllModels, 3)
	assert.NotNil(t, snapshot.ModelSelection)
}

func TestRunCommandRejectsInvalidSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job:\n  name: nameless\n"), 0o600))

	_, err := execute(t, "run", "-f", path)
	assert.Error(t, err)
}
