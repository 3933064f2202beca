package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"automl-engine/core/models"

	"github.com/lib/pq"
)

// PostgresJobStore stores each job as a JSONB document next to the columns
// used for filtering
type PostgresJobStore struct {
	db *DB
}

// NewPostgresJobStore creates a new job repository
func NewPostgresJobStore(db *DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

const upsertJobQuery = `
	INSERT INTO jobs (id, status, task_type, created_by, team, tags, created_at, updated_at, doc)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		created_by = EXCLUDED.created_by,
		team = EXCLUDED.team,
		tags = EXCLUDED.tags,
		updated_at = EXCLUDED.updated_at,
		doc = EXCLUDED.doc
`

// Get retrieves a job by ID
func (r *PostgresJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{JobID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return decodeJob(doc)
}

// Put inserts or replaces a job
func (r *PostgresJobStore) Put(ctx context.Context, job *models.Job) error {
	return r.upsert(ctx, r.db, job)
}

// List lists jobs newest first, filtered by pred
func (r *PostgresJobStore) List(ctx context.Context, pred func(*models.Job) bool) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		job, err := decodeJob(doc)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(job) {
			jobs = append(jobs, job)
		}
	}
	return jobs, rows.Err()
}

// Update locks the job row, applies fn and writes the result in one transaction
func (r *PostgresJobStore) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{JobID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", id, err)
	}

	job, err := decodeJob(doc)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := r.upsert(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit job %s: %w", id, err)
	}
	return job, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresJobStore) upsert(ctx context.Context, ex execer, job *models.Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	tags := job.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = ex.ExecContext(ctx, upsertJobQuery,
		job.ID,
		job.Status,
		job.TaskType,
		job.Metadata.CreatedBy,
		job.Metadata.Team,
		pq.Array(tags),
		job.CreatedAt,
		job.UpdatedAt,
		doc,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func decodeJob(doc []byte) (*models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
