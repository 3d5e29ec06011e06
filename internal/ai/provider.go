package ai

import "context"

// Message is one role-tagged chat message ("system", "user", "assistant").
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec describes one callable tool offered to the model.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolCall is a structured invocation returned instead of free text.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Tools       []ToolSpec // optional; empty means plain text only
}

// Result is a successful completion.
type Result struct {
	Text       string
	ToolCall   *ToolCall // non-nil when the model invoked a tool
	UsedTokens int
}

// Provider is a stateless text-generation service.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
