// Package flow wraps the model calls behind the two agents: a passthrough
// generate call and the optimize call.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/sqlagents/internal/prompt"
	"github.com/user/sqlagents/pkg/llm"
)

// DefaultOptimizeTemperature is the sampling temperature for optimization.
const DefaultOptimizeTemperature = 0.3

// ErrEmptyOptimization is returned when the model answers an optimize request
// with no text.
var ErrEmptyOptimization = errors.New("failed to optimize SQL query")

// Flows runs prompts against a model provider. Output is returned as-is and
// is not checked for being valid SQL.
type Flows struct {
	provider            llm.Provider
	optimizeTemperature float64
}

// New creates Flows over provider. A non-positive optimizeTemperature uses
// DefaultOptimizeTemperature.
func New(provider llm.Provider, optimizeTemperature float64) *Flows {
	if optimizeTemperature <= 0 {
		optimizeTemperature = DefaultOptimizeTemperature
	}
	return &Flows{provider: provider, optimizeTemperature: optimizeTemperature}
}

// GenerateQuery sends a fully built prompt as a single user message with the
// provider's default temperature and returns the reply.
func (f *Flows) GenerateQuery(ctx context.Context, fullPrompt string) (string, error) {
	resp, err := f.provider.Complete(ctx, []llm.Message{llm.UserMessage(fullPrompt)}, llm.Options{})
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}
	return resp.Content, nil
}

// OptimizeQuery asks the model for an optimized rewrite of sql.
func (f *Flows) OptimizeQuery(ctx context.Context, sql string) (string, error) {
	resp, err := f.provider.Complete(ctx,
		[]llm.Message{llm.UserMessage(prompt.OptimizeSQL(sql))},
		llm.WithTemperature(f.optimizeTemperature))
	if err != nil {
		return "", fmt.Errorf("optimize query: %w", err)
	}
	if resp.Content == "" {
		return "", ErrEmptyOptimization
	}
	return resp.Content, nil
}
