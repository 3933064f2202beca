package repository

import (
	"context"
	"sort"
	"sync"

	"automl-engine/core/models"
)

// JobStore persists jobs. Implementations hand out deep copies, so callers
// never share memory with the store or with each other.
type JobStore interface {
	// Get returns a *models.NotFoundError when no job has the id
	Get(ctx context.Context, id string) (*models.Job, error)
	Put(ctx context.Context, job *models.Job) error
	// List returns the jobs accepted by pred (all jobs when nil), newest first
	List(ctx context.Context, pred func(*models.Job) bool) ([]*models.Job, error)
	// Update applies fn to the stored job and saves the result. Updates of one
	// job are serialised. If fn returns an error nothing is saved.
	Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error)
}

// MemoryJobStore is an in-process JobStore
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemoryJobStore creates an empty in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.Job)}
}

// Get retrieves a job by ID
func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, &models.NotFoundError{JobID: id}
	}
	return job.Clone(), nil
}

// Put inserts or replaces a job
func (s *MemoryJobStore) Put(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// List lists jobs matching pred
func (s *MemoryJobStore) List(_ context.Context, pred func(*models.Job) bool) ([]*models.Job, error) {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if pred == nil || pred(job) {
			jobs = append(jobs, job.Clone())
		}
	}
	s.mu.RUnlock()

	SortNewestFirst(jobs)
	return jobs, nil
}

// Update applies fn to a copy of the job and stores it if fn succeeds
func (s *MemoryJobStore) Update(_ context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, &models.NotFoundError{JobID: id}
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

// SortNewestFirst orders jobs by descending creation time, then by id
func SortNewestFirst(jobs []*models.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
