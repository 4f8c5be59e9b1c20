// Package llm defines the vendor-agnostic LM client contract (C8) and the
// Communicator that turns raw vendor responses into framework decisions.
package llm

import (
	"context"
	"encoding/json"
)

// Role constants for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the ordered message list sent to the vendor.
type Message struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolDefinition describes one callable tool for native function-calling.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a vendor-native tool selection returned inside a Response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is what a Client returns for a single completion request.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamCallback receives each non-empty text chunk as it arrives.
type StreamCallback func(chunk string)

// Capabilities describes what a concrete vendor client supports, used by
// the Communicator to pick the function-calling path vs. the text-JSON
// path and to size the history window.
type Capabilities struct {
	SupportsFunctionCalling bool
	SupportsNativeThinking  bool
	ContextWindowTokens     int
}

// Client is the vendor-agnostic interface every LM provider adapter
// implements. Concrete adapters (e.g. examples/provider) live outside the
// CORE so the CORE never imports a specific vendor SDK.
type Client interface {
	// Call performs a single non-streaming completion.
	Call(ctx context.Context, messages []Message) (Response, error)

	// CallStream performs a streaming completion, invoking onChunk for each
	// non-empty delta. Falls back to Call if the vendor has no streaming
	// support or onChunk is nil.
	CallStream(ctx context.Context, messages []Message, onChunk StreamCallback) (Response, error)

	// CallWithTools performs a non-streaming completion with a tool catalog
	// attached, letting the vendor return native tool_calls when it supports
	// function calling.
	CallWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)

	// Capabilities reports what this client/model combination supports.
	Capabilities() Capabilities
}
