// Package core provides the shared types, errors, and collaborator
// interfaces for the relay gateway.
package core

import "encoding/json"

// Role represents a message participant role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool" // carries a tool execution result back to the model
)

// Message is a single message in a conversation. Messages are ordered oldest
// first and are never mutated once appended to a request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set on RoleTool messages and must reference the ID of a
	// ToolCall previously emitted by the provider.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// argument text as emitted by the provider; it is usually JSON but models
// occasionally emit truncated or otherwise broken payloads, so consumers must
// not assume validity.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON schema
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// RequestConfig is the caller-supplied configuration for one gateway call.
// Provider defaults are merged in at request-build time; the config itself is
// never mutated.
type RequestConfig struct {
	Temperature     *float32
	MaxOutputTokens *int

	// Streaming requests incremental delivery. The gateway downgrades this
	// to a one-shot request when tools are present and the resolved provider
	// cannot combine streaming with tool use.
	Streaming bool

	// OnFragment, if set, is invoked for each content fragment in arrival
	// order while streaming. It is called zero or more times before the call
	// returns and never after.
	OnFragment func(fragment string)

	// Tools enables the tool-call loop for providers that support it.
	Tools []ToolDefinition

	// MaxToolRounds caps the tool-call loop. Zero means the default (5).
	MaxToolRounds int

	// WebSearch asks the provider to run its built-in search, where offered.
	WebSearch bool

	// Extra holds provider-specific body fields merged into the request
	// after default shaping.
	Extra map[string]any
}

// ChatRequest is one round-trip to a provider, after the gateway has merged
// RequestConfig into the conversation state.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float32
	MaxTokens   *int
	Tools       []ToolDefinition
	WebSearch   bool
	Extra       map[string]any
}

// ChatResponse is the decoded result of one provider round-trip.
type ChatResponse struct {
	ID     string
	Model  string
	Output string
	Usage  TokenUsage

	// ToolCalls is non-empty when the model requests tool invocations
	// instead of (or in addition to) final text.
	ToolCalls []ToolCall

	// Cancelled is true when the caller cancelled mid-stream; Output then
	// holds whatever content had arrived. An empty Output with Cancelled set
	// means cancellation fired before any content was read, which is
	// distinguishable from a provider that genuinely returned nothing.
	Cancelled bool
}

// HasToolCalls reports whether the response requests any tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ChatChunk is one incremental content fragment of a streaming response.
type ChatChunk struct {
	Delta string `json:"delta"`
}
