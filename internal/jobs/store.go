package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/sqlagents/internal/types"
)

// ErrJobNotFound is returned for IDs that were never created or were pruned.
var ErrJobNotFound = errors.New("job not found")

var _ types.JobStore = (*MemStore)(nil)

// MemStore is the process-lifetime job map behind the aggregator.
type MemStore struct {
	jobs map[types.JobID]*types.Job
	now  func() time.Time
	mu   sync.RWMutex
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs: make(map[types.JobID]*types.Job),
		now:  time.Now,
	}
}

// Create registers a new pending job.
func (s *MemStore) Create(_ context.Context) (*types.Job, error) {
	now := s.now()
	job := &types.Job{
		ID:        types.NewJobID(),
		Status:    types.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	copied := *job
	return &copied, nil
}

// Get returns a snapshot of the job. Callers may not mutate the stored record.
func (s *MemStore) Get(_ context.Context, id types.JobID) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	if job.Result != nil {
		result := *job.Result
		copied.Result = &result
	}
	return &copied, nil
}

func (s *MemStore) Complete(_ context.Context, id types.JobID, result types.JobResult) error {
	return s.finish(id, func(job *types.Job) {
		job.Status = types.JobStatusCompleted
		job.Result = &result
		job.Error = ""
	})
}

func (s *MemStore) Fail(_ context.Context, id types.JobID, reason string) error {
	return s.finish(id, func(job *types.Job) {
		job.Status = types.JobStatusFailed
		job.Result = nil
		job.Error = reason
	})
}

func (s *MemStore) finish(id types.JobID, apply func(*types.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	apply(job)
	job.UpdatedAt = s.now()
	return nil
}

// Prune drops finished jobs last updated before olderThan and reports how
// many were removed. Pending jobs are never pruned.
func (s *MemStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Finished() && job.UpdatedAt.Before(olderThan) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
