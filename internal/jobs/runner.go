package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/sqlagents/internal/metrics"
	"github.com/user/sqlagents/internal/types"
)

// FailureReason is the only error text a failed job record carries.
const FailureReason = "Failed to generate and optimize query"

// DefaultMaxConcurrent bounds pipeline runs when no limit is configured.
const DefaultMaxConcurrent = 4

var ErrNotStarted = errors.New("job runner not started")

// Pipeline runs one generate+optimize request to completion.
type Pipeline interface {
	Run(ctx context.Context, ask string) (string, error)
}

// Runner executes submitted jobs in the background. Every job gets its own
// goroutine; the semaphore limits how many of them run the pipeline at once.
type Runner struct {
	store     types.JobStore
	pipeline  Pipeline
	semaphore *semaphore.Weighted
	metrics   *metrics.Metrics
	logger    *slog.Logger
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewRunner creates a Runner allowing up to maxConcurrent pipeline runs.
func NewRunner(store types.JobStore, pipeline Pipeline, maxConcurrent int64, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     store,
		pipeline:  pipeline,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		metrics:   m,
		logger:    logger,
	}
}

// Start initialises the runner's context. Must be called before Submit.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx, r.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight pipeline runs and waits for their goroutines to
// record a final state.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Submit creates a pending job for ask and schedules it. The returned ID is
// valid immediately; the job's final state is written asynchronously.
func (r *Runner) Submit(ctx context.Context, ask string) (types.JobID, error) {
	r.mu.RLock()
	runCtx := r.ctx
	r.mu.RUnlock()
	if runCtx == nil {
		return "", ErrNotStarted
	}
	if err := runCtx.Err(); err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	job, err := r.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	r.metrics.Job(string(types.JobStatusPending))
	r.logger.Info("job submitted", "job_id", string(job.ID))

	r.wg.Add(1)
	go r.process(runCtx, job.ID, ask)
	return job.ID, nil
}

// process acquires a semaphore slot, runs the pipeline and records the
// outcome. Jobs waiting for a slot when the runner stops are failed.
func (r *Runner) process(ctx context.Context, id types.JobID, ask string) {
	defer r.wg.Done()

	if err := r.semaphore.Acquire(ctx, 1); err != nil {
		r.fail(id, err)
		return
	}
	defer r.semaphore.Release(1)

	r.active.Add(1)
	defer r.active.Add(-1)

	start := time.Now()
	optimized, err := r.pipeline.Run(ctx, ask)
	if err != nil {
		r.fail(id, err)
		return
	}

	// The request context is long gone; store writes use a fresh one.
	if err := r.store.Complete(context.Background(), id, types.JobResult{OptimizedQuery: optimized}); err != nil {
		r.logger.Error("record job result", "job_id", string(id), "error", err)
		return
	}
	r.metrics.Job(string(types.JobStatusCompleted))
	r.logger.Info("job completed", "job_id", string(id), "duration", time.Since(start))
}

func (r *Runner) fail(id types.JobID, cause error) {
	r.logger.Error("job failed", "job_id", string(id), "error", cause)
	if err := r.store.Fail(context.Background(), id, FailureReason); err != nil {
		r.logger.Error("record job failure", "job_id", string(id), "error", err)
		return
	}
	r.metrics.Job(string(types.JobStatusFailed))
}

// Active reports how many jobs are running the pipeline right now.
func (r *Runner) Active() int64 {
	return r.active.Load()
}

// WaitIdle blocks until no job is running the pipeline, or the timeout
// expires. Returns true if idle, false if timed out.
func (r *Runner) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Wait blocks until every submitted job has recorded a final state.
func (r *Runner) Wait() {
	r.wg.Wait()
}
