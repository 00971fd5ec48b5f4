// Package llm provides reasoning backend abstractions.
//
// Reasoning Backend interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for reasoning backends.
// The orchestration loop only ever needs two shapes of call: a structured
// proposal against a tool schema, and a plain text completion (used for
// history digest merges).
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Propose sends the conversation plus a tool schema and returns the
	// backend's proposal. The backend may answer with tool calls, free
	// text, or both.
	Propose(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Proposal, error)

	// Complete sends a plain chat completion request with no tool schema.
	Complete(ctx context.Context, messages []ChatMessage) (Proposal, error)
}
