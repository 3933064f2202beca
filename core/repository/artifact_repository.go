package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"automl-engine/core/models"
)

// Artifact kinds
const (
	ArtifactFeatureStep     = "feature_step"
	ArtifactOptimizationRun = "optimization_run"
	ArtifactModelSelection  = "model_selection"
)

// ArtifactStore keeps the pipeline artifacts of each job: feature engineering
// steps in creation order, and the latest optimization run and model selection.
// Lookups for a job without the artifact return nil and no error.
type ArtifactStore interface {
	AddFeatureStep(ctx context.Context, step *models.FeatureEngineeringStep) error
	FeatureSteps(ctx context.Context, jobID string) ([]*models.FeatureEngineeringStep, error)
	PutOptimizationRun(ctx context.Context, run *models.OptimizationRun) error
	OptimizationRun(ctx context.Context, jobID string) (*models.OptimizationRun, error)
	PutModelSelection(ctx context.Context, selection *models.ModelSelection) error
	ModelSelection(ctx context.Context, jobID string) (*models.ModelSelection, error)
}

// MemoryArtifactStore is an in-process ArtifactStore
type MemoryArtifactStore struct {
	mu         sync.RWMutex
	steps      map[string][]*models.FeatureEngineeringStep
	runs       map[string]*models.OptimizationRun
	selections map[string]*models.ModelSelection
}

// NewMemoryArtifactStore creates an empty artifact store
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		steps:      make(map[string][]*models.FeatureEngineeringStep),
		runs:       make(map[string]*models.OptimizationRun),
		selections: make(map[string]*models.ModelSelection),
	}
}

// AddFeatureStep appends a feature engineering step to its job
func (s *MemoryArtifactStore) AddFeatureStep(_ context.Context, step *models.FeatureEngineeringStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[step.JobID] = append(s.steps[step.JobID], step.Clone())
	return nil
}

// FeatureSteps returns a job's steps in creation order
func (s *MemoryArtifactStore) FeatureSteps(_ context.Context, jobID string) ([]*models.FeatureEngineeringStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.FeatureEngineeringStep, 0, len(s.steps[jobID]))
	for _, step := range s.steps[jobID] {
		out = append(out, step.Clone())
	}
	return out, nil
}

// PutOptimizationRun stores the latest state of a job's optimization run
func (s *MemoryArtifactStore) PutOptimizationRun(_ context.Context, run *models.OptimizationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.JobID] = run.Clone()
	return nil
}

// OptimizationRun returns a job's optimization run
func (s *MemoryArtifactStore) OptimizationRun(_ context.Context, jobID string) (*models.OptimizationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[jobID].Clone(), nil
}

// PutModelSelection stores a job's model selection
func (s *MemoryArtifactStore) PutModelSelection(_ context.Context, selection *models.ModelSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[selection.JobID] = selection.Clone()
	return nil
}

// ModelSelection returns a job's model selection
func (s *MemoryArtifactStore) ModelSelection(_ context.Context, jobID string) (*models.ModelSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selections[jobID].Clone(), nil
}

// PostgresArtifactStore handles database operations for job artifacts
type PostgresArtifactStore struct {
	db *DB
}

// NewPostgresArtifactStore creates a new artifact repository
func NewPostgresArtifactStore(db *DB) *PostgresArtifactStore {
	return &PostgresArtifactStore{db: db}
}

const upsertArtifactQuery = `
	INSERT INTO job_artifacts (job_id, kind, artifact_id, created_at, doc)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (job_id, kind, artifact_id) DO UPDATE SET doc = EXCLUDED.doc
`

// AddFeatureStep appends a feature engineering step
func (r *PostgresArtifactStore) AddFeatureStep(ctx context.Context, step *models.FeatureEngineeringStep) error {
	return r.save(ctx, step.JobID, ArtifactFeatureStep, step.ID, step.CreatedAt, step)
}

// FeatureSteps retrieves a job's steps in creation order
func (r *PostgresArtifactStore) FeatureSteps(ctx context.Context, jobID string) ([]*models.FeatureEngineeringStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc FROM job_artifacts
		WHERE job_id = $1 AND kind = $2
		ORDER BY seq
	`, jobID, ArtifactFeatureStep)
	if err != nil {
		return nil, fmt.Errorf("list feature steps of %s: %w", jobID, err)
	}
	defer rows.Close()

	steps := []*models.FeatureEngineeringStep{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var step models.FeatureEngineeringStep
		if err := json.Unmarshal(doc, &step); err != nil {
			return nil, fmt.Errorf("decode feature step: %w", err)
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

// PutOptimizationRun stores the latest state of an optimization run
func (r *PostgresArtifactStore) PutOptimizationRun(ctx context.Context, run *models.OptimizationRun) error {
	return r.save(ctx, run.JobID, ArtifactOptimizationRun, run.ID, run.CreatedAt, run)
}

// OptimizationRun retrieves a job's most recent optimization run
func (r *PostgresArtifactStore) OptimizationRun(ctx context.Context, jobID string) (*models.OptimizationRun, error) {
	var run models.OptimizationRun
	found, err := r.latest(ctx, jobID, ArtifactOptimizationRun, &run)
	if err != nil || !found {
		return nil, err
	}
	return &run, nil
}

// PutModelSelection stores a model selection
func (r *PostgresArtifactStore) PutModelSelection(ctx context.Context, selection *models.ModelSelection) error {
	return r.save(ctx, selection.JobID, ArtifactModelSelection, selection.ID, selection.CreatedAt, selection)
}

// ModelSelection retrieves a job's most recent model selection
func (r *PostgresArtifactStore) ModelSelection(ctx context.Context, jobID string) (*models.ModelSelection, error) {
	var selection models.ModelSelection
	found, err := r.latest(ctx, jobID, ArtifactModelSelection, &selection)
	if err != nil || !found {
		return nil, err
	}
	return &selection, nil
}

func (r *PostgresArtifactStore) save(ctx context.Context, jobID, kind, id string, createdAt time.Time, artifact any) error {
	doc, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertArtifactQuery, jobID, kind, id, createdAt, doc); err != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	return nil
}

func (r *PostgresArtifactStore) latest(ctx context.Context, jobID, kind string, dest any) (bool, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT doc FROM job_artifacts
		WHERE job_id = $1 AND kind = $2
		ORDER BY seq DESC
		LIMIT 1
	`, jobID, kind).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s of %s: %w", kind, jobID, err)
	}
	if err := json.Unmarshal(doc, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", kind, err)
	}
	return true, nil
}
