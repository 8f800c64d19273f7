// Package executor drives the task lifecycle for the two agents:
// submitted, working, then exactly one of completed, failed or canceled.
package executor

import (
	"context"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/user/sqlagents/internal/metrics"
)

// Agent names used in logs, metrics and the journal.
const (
	AgentSQL      = "sql"
	AgentOptimize = "optimize"
)

// Options carries the collaborators shared by both agents.
type Options struct {
	Cancellations *Cancellations
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Recorder      Recorder
}

// base holds the lifecycle shared by SQLAgent and OptimizeAgent.
type base struct {
	agent         string
	cancellations *Cancellations
	logger        *slog.Logger
	metrics       *metrics.Metrics
	recorder      Recorder
}

func newBase(agent string, opts Options) base {
	if opts.Cancellations == nil {
		opts.Cancellations = NewCancellations()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return base{
		agent:         agent,
		cancellations: opts.Cancellations,
		logger:        opts.Logger.With("agent", agent),
		metrics:       opts.Metrics,
		recorder:      opts.Recorder,
	}
}

// work describes one agent's part of the lifecycle.
type work struct {
	workingText string
	noInputText string
	// run performs the single long-running model call.
	run func(ctx context.Context, input string) (string, error)
	// deliver publishes the result, ending with a terminal status.
	deliver func(ctx context.Context, p *publisher, reqCtx *a2asrv.RequestContext, result string) error
}

func (b *base) execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue, w work) error {
	logger := b.logger.With("task_id", reqCtx.TaskID, "context_id", reqCtx.ContextID)
	defer b.cancellations.Forget(reqCtx.TaskID)

	p := &publisher{queue: &observedQueue{
		Queue:    queue,
		agent:    b.agent,
		logger:   logger,
		metrics:  b.metrics,
		recorder: b.recorder,
	}}

	if reqCtx.Message != nil {
		logger.Info("processing message", "message_id", reqCtx.Message.ID)
	}

	if reqCtx.StoredTask == nil {
		if err := p.publish(ctx, submittedTask(reqCtx)); err != nil {
			return err
		}
	}
	if err := p.publish(ctx, workingStatus(reqCtx, w.workingText)); err != nil {
		return err
	}

	input, _ := firstText(reqCtx.Message)
	if input == "" {
		return p.publish(ctx, failedStatus(reqCtx, w.noInputText))
	}

	result, err := w.run(ctx, input)
	if err != nil {
		logger.Error("task failed", "error", err)
		return p.publish(ctx, failedStatus(reqCtx, "Agent error: "+err.Error()))
	}

	// Cancellation checkpoint: the only place a cancel request is honored.
	if b.cancellations.Requested(reqCtx.TaskID) {
		logger.Info("task canceled, discarding result")
		return p.publish(ctx, canceledStatus(reqCtx))
	}

	if err := w.deliver(ctx, p, reqCtx, result); err != nil {
		return err
	}
	logger.Info("task finished", "state", "completed")
	return nil
}

// cancel records a cancel request. It publishes nothing: the running Execute
// emits the canceled status when it reaches its checkpoint.
func (b *base) cancel(_ context.Context, reqCtx *a2asrv.RequestContext, _ eventqueue.Queue) error {
	if t := reqCtx.StoredTask; t != nil && t.Status.State.Terminal() {
		b.logger.Info("cancel ignored for terminal task", "task_id", reqCtx.TaskID, "state", t.Status.State)
		return nil
	}
	b.logger.Info("cancel requested", "task_id", reqCtx.TaskID)
	b.cancellations.Request(reqCtx.TaskID)
	return nil
}
