package llm

// Roles understood by chat-style model servers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage is shorthand for a single user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Options tunes a single completion call. Nil fields fall back to the
// provider's configured defaults.
type Options struct {
	Temperature *float64
}

// WithTemperature returns Options pinned to the given sampling temperature.
func WithTemperature(t float64) Options {
	return Options{Temperature: &t}
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
