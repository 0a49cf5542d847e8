// Package llm defines the port for LLM providers.
package llm

import (
	"context"

	"github.com/bytebot-ai/bytebot/internal/domain/message"
)

// Usage reports token consumption for one generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Response is one model turn.
type Response struct {
	Blocks []message.Block
	Usage  Usage
}

// Request describes a generation call.
type Request struct {
	SystemPrompt string
	Messages     []message.Message
	Model        string
	UseTools     bool
}

// Provider is the port interface for LLM backends.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// GenerateMessage runs one model turn over the conversation.
	GenerateMessage(ctx context.Context, req Request) (*Response, error)

	// Models lists the models this provider serves.
	Models() []string

	// SupportsVision reports whether image blocks can be sent to the model.
	SupportsVision() bool
}
