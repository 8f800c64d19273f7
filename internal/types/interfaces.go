// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

type JobStore interface {
	Create(ctx context.Context) (*Job, error)
	Get(ctx context.Context, id JobID) (*Job, error)
	Complete(ctx context.Context, id JobID, result JobResult) error
	Fail(ctx context.Context, id JobID, reason string) error
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Len() int
}
