// Package llm provides shared data models for reasoning backends.
package llm

import "encoding/json"

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// ToolCall represents a structured function call emitted by the backend.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a function the backend may call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// Proposal is a backend response: free text, structured tool calls, or both.
type Proposal struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Call returns the tool call with the given name, if the proposal carries one.
func (p Proposal) Call(name string) (ToolCall, bool) {
	for _, tc := range p.ToolCalls {
		if tc.Name == name {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// TokenUsage contains token usage statistics for one backend call.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Default model identifiers per provider.
const (
	ModelOpenAIGPT52           = "gpt-5.2"
	ModelOpenAIGPT4o           = "gpt-4o"
	ModelAnthropicClaudeOpus45 = "claude-opus-4-5"
	ModelAnthropicSonnet4      = "claude-sonnet-4-20250514"
	ModelDeepSeekV32           = "deepseek-chat"
	ModelGeminiFlash3          = "gemini-3-flash-preview"
	ModelGeminiFlash25         = "gemini-2.5-flash"
)
