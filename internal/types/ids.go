// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type JobID string

// NewJobID returns a time-ordered UUIDv7 so job IDs sort by creation.
func NewJobID() JobID {
	id, err := uuid.NewV7()
	if err != nil {
		return JobID(uuid.New().String())
	}
	return JobID(id.String())
}
