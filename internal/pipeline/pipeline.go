// Package pipeline runs the aggregator's generate-then-optimize chain.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/sqlagents/internal/prompt"
)

// QueryGenerator turns a complete prompt into SQL text.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, prompt string) (string, error)
}

// Flows is the pair of model calls the pipeline chains.
type Flows interface {
	QueryGenerator
	OptimizeQuery(ctx context.Context, sql string) (string, error)
}

// Generator builds the generate prompt from the current schema and asks the
// model for SQL. The SQL agent, the aggregator and the CLI all go through it.
type Generator struct {
	flows  QueryGenerator
	schema SchemaSource
	budget *prompt.Budget
	logger *slog.Logger
}

// NewGenerator creates a Generator. budget may be nil.
func NewGenerator(flows QueryGenerator, schema SchemaSource, budget *prompt.Budget, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{flows: flows, schema: schema, budget: budget, logger: logger}
}

// Generate returns SQL for ask against the current schema.
func (g *Generator) Generate(ctx context.Context, ask string) (string, error) {
	doc, err := g.schema.Document(ctx)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	g.logger.Debug("schema document built", "bytes", len(doc))

	doc, _ = g.budget.FitSchema(doc, ask)
	return g.flows.GenerateQuery(ctx, prompt.GenerateSQL(doc, ask))
}

// Pipeline turns a natural-language ask into an optimized SQL query.
type Pipeline struct {
	generator *Generator
	flows     Flows
	logger    *slog.Logger
}

// New creates a Pipeline. budget may be nil.
func New(flows Flows, schema SchemaSource, budget *prompt.Budget, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		generator: NewGenerator(flows, schema, budget, logger),
		flows:     flows,
		logger:    logger,
	}
}

// Run generates a query for ask against the current schema, then optimizes it.
func (p *Pipeline) Run(ctx context.Context, ask string) (string, error) {
	generated, err := p.generator.Generate(ctx, ask)
	if err != nil {
		return "", err
	}
	p.logger.Debug("query generated", "sql", generated)

	optimized, err := p.flows.OptimizeQuery(ctx, generated)
	if err != nil {
		return "", err
	}
	return optimized, nil
}
