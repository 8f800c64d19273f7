package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting
// and response parsing. Calls block until the full response is available.
type Provider interface {
	// Complete sends a chat request and returns the full, non-streamed response.
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}
