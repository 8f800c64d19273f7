package executor

import (
	"context"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
)

// Optimized query artifact identity.
const (
	OptimizedArtifactID   = "optimized-ms-sql-query"
	OptimizedArtifactName = "optimized-ms-sql-query.sql"
)

// QueryOptimizer rewrites SQL for performance.
type QueryOptimizer interface {
	OptimizeQuery(ctx context.Context, sql string) (string, error)
}

// OptimizeAgent returns an optimized rewrite of the SQL it is given, as a
// file artifact.
type OptimizeAgent struct {
	base
	optimizer QueryOptimizer
}

var _ a2asrv.AgentExecutor = (*OptimizeAgent)(nil)

// NewOptimizeAgent creates the optimize agent executor.
func NewOptimizeAgent(optimizer QueryOptimizer, opts Options) *OptimizeAgent {
	return &OptimizeAgent{
		base:      newBase(AgentOptimize, opts),
		optimizer: optimizer,
	}
}

func (a *OptimizeAgent) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return a.execute(ctx, reqCtx, queue, work{
		workingText: "Optimizing MS-SQL query...",
		noInputText: "No SQL query provided for optimization.",
		run:         a.optimizer.OptimizeQuery,
		deliver: func(ctx context.Context, p *publisher, reqCtx *a2asrv.RequestContext, sql string) error {
			if err := p.publish(ctx, artifactUpdate(reqCtx, OptimizedArtifactID, OptimizedArtifactName, sql)); err != nil {
				return err
			}
			return p.publish(ctx, completedStatus(reqCtx, "Optimized MS-SQL query."))
		},
	})
}

func (a *OptimizeAgent) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return a.cancel(ctx, reqCtx, queue)
}
