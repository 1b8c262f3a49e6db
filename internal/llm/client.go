// Package llm defines the AI provider contract and its adapters.
//
// A provider takes a system prompt, a message history and optional tool
// definitions, and returns either free text or a list of tool calls whose
// arguments are JSON strings. Adapters exist for OpenAI, Anthropic, Gemini
// and Ollama; a Registry plus FailoverClient select among them.
package llm

import (
	"context"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesFromTurns converts session history into provider messages.
func MessagesFromTurns(turns []domain.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model       string                  `json:"model,omitempty"`
	System      string                  `json:"system,omitempty"`
	Messages    []Message               `json:"messages"`
	Tools       []domain.ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string                  `json:"toolChoice,omitempty"`
	MaxTokens   int                     `json:"maxTokens,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ToolCall is a provider request to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all AI providers must implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai", "anthropic").
	Name() string
}
