package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"automl-engine/core/engine"
	"automl-engine/core/models"
	"automl-engine/core/monitoring"
	"automl-engine/core/repository"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *mux.Router
	engine *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryJobStore()
	eng := engine.New(engine.Options{Jobs: store})
	r := mux.NewRouter()
	SetupRoutes(r, eng, monitoring.NewMetricsExporter(store))
	return &testServer{router: r, engine: eng}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createJob(t *testing.T) models.Job {
	t.Helper()
	return s.createJobWithObjective(t, "accuracy")
}

func (s *testServer) createJobWithObjective(t *testing.T, objective string) models.Job {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/jobs", map[string]interface{}{
		"name":        "churn",
		"task_type":   "classification",
		"objective":   objective,
		"dataset":     map[string]interface{}{"name": "customers", "rows": 5000, "features": 12},
		"constraints": map[string]interface{}{"max_training_time": 30, "max_trials": 3},
		"metadata":    map[string]interface{}{"team": "growth"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	job := s.createJob(t)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.Optimization.MaxTrials)

	rec := s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s.engine.Wait()

	rec = s.do(t, http.MethodGet, "/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.Results.BestScore)

	rec = s.do(t, http.MethodGet, "/v1/jobs/"+job.ID+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot struct {
		Progress           monitoring.Progress             `json:"progress"`
		FeatureEngineering []models.FeatureEngineeringStep `json:"feature_engineering"`
		Optimization       *models.OptimizationRun         `json:"optimization"`
		ModelSelection     *models.ModelSelection          `json:"model_selection"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, 100, snapshot.Progress.Percentage)
	assert.NotEmpty(t, snapshot.FeatureEngineering)
	assert.NotNil(t, snapshot.Optimization)
	assert.NotNil(t, snapshot.ModelSelection)

	rec = s.do(t, http.MethodGet, "/v1/jobs/"+job.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events.Items, 3)
	assert.Equal(t, "job_completed", events.Items[0]["type"])
	assert.Equal(t, "job_created", events.Items[2]["type"])

	// Terminal jobs cannot be started or stopped again
	rec = s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateJobFromYAML(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/jobs", map[string]string{"spec_yaml": `
job:
  name: house prices
  task_type: regression
  objective: mse
  dataset:
    name: houses
    rows: 2000
  resources:
    max_training_time: 1h
    max_trials: 4
`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, models.TaskRegression, job.TaskType)
	assert.Equal(t, 60, job.Constraints.MaxTrainingTime)
}

func TestCreateJobErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs", map[string]interface{}{"task_type": "classification"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/jobs", map[string]string{"spec_yaml": "job: [broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	jobs, err := s.engine.ListJobs(req.Context(), engine.Filter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestUnknownJobIsNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/v1/jobs/missing", "/v1/jobs/missing/progress", "/v1/jobs/missing/events"} {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/jobs/missing/start", nil).Code)
}

func TestListJobsFilters(t *testing.T) {
	s := newTestServer(t)
	s.createJob(t)
	s.createJob(t)

	rec := s.do(t, http.MethodGet, "/v1/jobs?team=growth&status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Items, 2)

	rec = s.do(t, http.MethodGet, "/v1/jobs?team=other", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Items)
}

func TestAttachEndpoints(t *testing.T) {
	s := newTestServer(t)
	job := s.createJob(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/feature-engineering", map[string]interface{}{
		"name":          "scale amounts",
		"feature_class": "numerical",
		"operation":     "scaling",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/feature-engineering", map[string]interface{}{
		"name":          "bad",
		"feature_class": "numerical",
		"operation":     "juggling",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/optimization", map[string]interface{}{
		"algorithms":    []string{"xgboost"},
		"max_trials":    5,
		"current_trial": 9,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/model-selection", map[string]interface{}{
		"selected_models":  []string{"a", "b"},
		"ensemble_weights": []float64{0.5, 0.5},
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRecommendations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/recommendations?task_type=classification&dataset_size=5000&feature_count=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Algorithms []string `json:"algorithms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"random_forest", "svm", "logistic_regression"}, body.Algorithms)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/recommendations", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/recommendations?task_type=nlp&dataset_size=-1", nil).Code)
}

func TestDashboardSummary(t *testing.T) {
	s := newTestServer(t)
	byAccuracy := s.createJobWithObjective(t, "accuracy")
	byF1 := s.createJobWithObjective(t, "f1")
	s.createJob(t)
	for _, id := range []string{byAccuracy.ID, byF1.ID} {
		require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/v1/jobs/"+id+"/start", nil).Code)
	}
	s.engine.Wait()

	rec := s.do(t, http.MethodGet, "/v1/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Jobs struct {
			Total      int            `json:"total"`
			ByStatus   map[string]int `json:"by_status"`
			ByTaskType map[string]int `json:"by_task_type"`
		} `json:"jobs"`
		BestScores []struct {
			TaskType  string `json:"task_type"`
			Objective string `json:"objective"`
			JobID     string `json:"job_id"`
		} `json:"best_scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Jobs.Total)
	assert.Equal(t, 2, summary.Jobs.ByStatus["completed"])
	assert.Equal(t, 1, summary.Jobs.ByStatus["pending"])
	assert.Equal(t, 3, summary.Jobs.ByTaskType["classification"])

	// One entry per objective; scores of different metrics are never compared
	require.Len(t, summary.BestScores, 2)
	assert.Equal(t, "accuracy", summary.BestScores[0].Objective)
	assert.Equal(t, byAccuracy.ID, summary.BestScores[0].JobID)
	assert.Equal(t, "f1", summary.BestScores[1].Objective)
	assert.Equal(t, byF1.ID, summary.BestScores[1].JobID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/dashboard/summary?start_date=yesterday", nil).Code)
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.createJob(t)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `automl_jobs{status="pending"} 1`)

	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
