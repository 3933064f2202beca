package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DATA-DOG/go-sqlmock"
	log "github.com/golang/glog"
	// postgres driver
	_ "github.com/lib/pq"
)

// DB wraps the PostgreSQL connection pool shared by the stores
type DB struct {
	*sql.DB
}

// NewDB opens and pings a PostgreSQL database
func NewDB(ctx context.Context, url string) (*DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Test DB availability as early as possible
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Infof("Connected to PostgreSQL")
	return &DB{DB: conn}, nil
}

// InitMockAndDB initializes a mock db
func InitMockAndDB() (*DB, sqlmock.Sqlmock, error) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	return &DB{DB: mockDB}, mock, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		task_type TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		team TEXT NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		doc JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
	`CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS job_artifacts (
		seq BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs (id),
		kind TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		doc JSONB NOT NULL,
		UNIQUE (job_id, kind, artifact_id)
	)`,
}

// EnsureSchema creates the tables used by the PostgreSQL stores
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
