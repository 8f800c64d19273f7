package executor

import (
	"context"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
)

// Generator turns a natural-language ask into SQL against the live schema.
type Generator interface {
	Generate(ctx context.Context, ask string) (string, error)
}

// SQLAgent answers natural-language asks with a SQL Server query built from
// the live schema.
type SQLAgent struct {
	base
	generator Generator
}

var _ a2asrv.AgentExecutor = (*SQLAgent)(nil)

// NewSQLAgent creates the SQL agent executor.
func NewSQLAgent(generator Generator, opts Options) *SQLAgent {
	return &SQLAgent{
		base:      newBase(AgentSQL, opts),
		generator: generator,
	}
}

func (a *SQLAgent) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return a.execute(ctx, reqCtx, queue, work{
		workingText: "Processing your request...",
		noInputText: "No input provided.",
		run:         a.generator.Generate,
		deliver: func(ctx context.Context, p *publisher, reqCtx *a2asrv.RequestContext, sql string) error {
			return p.publish(ctx, completedStatus(reqCtx, sql))
		},
	})
}

func (a *SQLAgent) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return a.cancel(ctx, reqCtx, queue)
}
