// Package model defines the LLM collaborator contract. Adapters implement
// the workflow node contract by wrapping model calls; the engine itself
// never talks to a provider or parses model output.
package model

import "context"

// ChatModel is the interface LLM providers implement.
//
// It abstracts over provider differences (OpenAI, Anthropic, Google, local
// models) behind one chat call. Implementations handle authentication,
// format conversion, retries, and rate limiting, and must respect context
// cancellation.
//
// Example:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "What is the capital of France?"},
//	}, nil)
type ChatModel interface {
	// Chat sends the conversation to the model and returns its reply.
	// tools may be nil when the model should not call tools.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role identifies the sender; use the Role* constants.
	Role string

	// Content is the message text. May be empty for tool-call-only turns.
	Content string
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the model may call. Schema follows JSON Schema
// and describes the expected input parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	// Name matches a ToolSpec.Name from the available tools.
	Name string

	// Input holds the call parameters, shaped per the tool's schema.
	Input map[string]any
}

// Usage reports token consumption for one chat call, when the provider
// returns it. Zero values mean the provider did not report usage.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ChatOut is the model's reply: text, tool calls, or both.
type ChatOut struct {
	// Text is the generated response. Empty when the model only calls tools.
	Text string

	// ToolCalls lists tools the model wants invoked.
	ToolCalls []ToolCall

	// Usage reports token consumption when available.
	Usage Usage
}
