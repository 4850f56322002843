package models

import "encoding/json"

// Purpose is the mode a request runs under. It flows from the surface through
// the scheduler into policy decisions; there is no ambient fallback.
type Purpose string

const (
	// PurposeDefault is the interactive end-user mode.
	PurposeDefault Purpose = "default"
	// PurposeDev grants elevated permissions: looser write policy, higher
	// default temperature.
	PurposeDev Purpose = "dev"
	// PurposeHeartbeat is a synthetic liveness ping.
	PurposeHeartbeat Purpose = "heartbeat"
	// PurposeRuntime is programmatic, non-interactive use.
	PurposeRuntime Purpose = "runtime"
)

// FinishReason is the normalized enumeration of why the model stopped
// producing output on a step.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCall      FinishReason = "tool_call"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
	FinishUnknown       FinishReason = "unknown"
)

// ToolDefinition describes a tool the model may call. Parameters is a minimal
// JSON-schema subset (object/array/string/number/integer/boolean/null with
// enum, required, additionalProperties).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// RequestMeta carries optional correlation identifiers.
type RequestMeta struct {
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// LlmRequest is the provider-independent chat request.
type LlmRequest struct {
	Provider        string           `json:"provider,omitempty"`
	Model           string           `json:"model,omitempty"`
	Messages        []Message        `json:"messages"`
	MaxOutputTokens int              `json:"max_output_tokens"`
	Temperature     *float64         `json:"temperature,omitempty"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	Purpose         Purpose          `json:"purpose,omitempty"`
	Meta            *RequestMeta     `json:"meta,omitempty"`
}

// LlmResponse is the provider-independent chat response. Message is always an
// assistant message; Text is its aggregate text content.
type LlmResponse struct {
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Text         string       `json:"text"`
	Message      Message      `json:"message"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`
	ResponseID   string       `json:"response_id,omitempty"`
}

// Usage is the canonical token accounting shape. Every provider adapter must
// normalize its wire format into this; TotalTokens is always the sum of the
// other two.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewUsage builds a Usage with the total derived from its parts.
func NewUsage(input, output int) Usage {
	if input < 0 {
		input = 0
	}
	if output < 0 {
		output = 0
	}
	return Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}
