package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/user/sqlagents/internal/metrics"
)

// Recorder keeps a durable copy of published events.
type Recorder interface {
	Record(ctx context.Context, agent string, event a2a.Event) error
}

// observedQueue forwards writes to the framework queue and then logs, counts
// and records every event that was accepted. logger already carries the task
// and context IDs.
type observedQueue struct {
	eventqueue.Queue

	agent    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
}

func (q *observedQueue) Write(ctx context.Context, event a2a.Event) error {
	if err := q.Queue.Write(ctx, event); err != nil {
		return err
	}
	q.observe(ctx, event)
	return nil
}

func (q *observedQueue) observe(ctx context.Context, event a2a.Event) {
	switch ev := event.(type) {
	case *a2a.Task:
		q.logger.Info("task submitted")
		q.metrics.TaskState(q.agent, string(ev.Status.State))
	case *a2a.TaskStatusUpdateEvent:
		q.logger.Info("task status", "state", ev.Status.State, "final", ev.Final)
		q.metrics.TaskState(q.agent, string(ev.Status.State))
	case *a2a.TaskArtifactUpdateEvent:
		var id a2a.ArtifactID
		if ev.Artifact != nil {
			id = ev.Artifact.ID
		}
		q.logger.Info("artifact published", "artifact", id, "last_chunk", ev.LastChunk)
	case *a2a.Message:
		q.logger.Debug("message published", "message_id", ev.ID)
	default:
		q.logger.Warn("unknown event type", "type", fmt.Sprintf("%T", event))
	}

	if q.recorder != nil {
		if err := q.recorder.Record(ctx, q.agent, event); err != nil {
			q.logger.Warn("record event failed", "error", err)
		}
	}
}
