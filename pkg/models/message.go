package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the unified conversation message format. It is a tagged variant
// over Role: system and user messages carry only Content; assistant messages
// may additionally carry ToolCalls (Content may be empty when ToolCalls is
// not); tool messages bind a serialized ToolResult to the ToolCall that
// produced it via ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage binds a serialized tool result to a prior tool call.
func ToolMessage(toolName, toolCallID, content string) Message {
	return Message{Role: RoleTool, ToolName: toolName, ToolCallID: toolCallID, Content: content}
}

// ToolCall is the model's request to execute a named tool. Arguments is the
// raw JSON object produced by the model; it is validated against the tool's
// schema before execution.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the structured outcome of one tool execution. It is
// serialized into the Content of a tool message so the model observes either
// the result or the exact failure.
type ToolResult struct {
	OK      bool   `json:"ok"`
	Tool    string `json:"tool"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// OKResult builds a successful tool result.
func OKResult(tool string, result any) ToolResult {
	return ToolResult{OK: true, Tool: tool, Result: result}
}

// ErrResult builds a failed tool result.
func ErrResult(tool, errMsg string) ToolResult {
	return ToolResult{OK: false, Tool: tool, Error: errMsg}
}

// JSON serializes the result for embedding in a tool message. Serialization
// failures degrade to a minimal error payload rather than propagating.
func (r ToolResult) JSON() string {
	payload, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"error":"unserializable tool result"}`
	}
	return string(payload)
}

// Session is the persisted conversation state, keyed by an opaque id.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}
