// internal/types/models.go
package types

import (
	"time"
)

// JobStatus is the lifecycle state of an aggregator job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type JobResult struct {
	OptimizedQuery string `json:"optimizedQuery"`
}

// Job is a fire-and-forget generate+optimize pipeline run. Only Status,
// Result and Error are part of the wire record.
type Job struct {
	ID        JobID      `json:"-"`
	Status    JobStatus  `json:"status"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// Finished reports whether the job reached completed or failed.
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
