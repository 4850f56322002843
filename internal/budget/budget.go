// Package budget tracks step, tool-call, and token consumption for one
// scheduler run. The ledger is a value type: every booking operation returns a
// new ledger, so the loop threads state functionally and never shares mutable
// counters.
package budget

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

// Sentinel errors for the classifier. Booking failures wrap these.
var (
	ErrStepsExhausted     = errors.New("budget: model call budget exhausted")
	ErrTokensExhausted    = errors.New("budget: token budget exhausted")
	ErrToolCallsExhausted = errors.New("budget: tool call budget exhausted")
)

// IsBudgetError reports whether err is a ledger booking refusal.
func IsBudgetError(err error) bool {
	return errors.Is(err, ErrStepsExhausted) ||
		errors.Is(err, ErrTokensExhausted) ||
		errors.Is(err, ErrToolCallsExhausted)
}

// Limits caps a single scheduler run. MaxSteps and MaxToolCalls are required;
// zero means no calls of that kind. The remaining caps are optional — zero
// disables them.
type Limits struct {
	MaxSteps        int `json:"max_steps"`
	MaxToolCalls    int `json:"max_tool_calls"`
	MaxTotalTokens  int `json:"max_total_tokens,omitempty"`
	MaxInputTokens  int `json:"max_input_tokens,omitempty"`
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
	MaxReads        int `json:"max_reads,omitempty"`
	MaxWrites       int `json:"max_writes,omitempty"`
}

// Ledger is the consumption state for one run. All counters are non-negative
// and monotone.
type Ledger struct {
	Limits                Limits `json:"limits"`
	StepsUsed             int    `json:"steps_used"`
	ToolCallsUsed         int    `json:"tool_calls_used"`
	ReadsUsed             int    `json:"reads_used"`
	WritesUsed            int    `json:"writes_used"`
	TotalTokensUsed       int    `json:"total_tokens_used"`
	TotalInputTokensUsed  int    `json:"total_input_tokens_used"`
	TotalOutputTokensUsed int    `json:"total_output_tokens_used"`
}

// NewLedger creates a fresh ledger with normalized limits: negative caps
// become zero and MaxSteps is raised to at least one.
func NewLedger(limits Limits) Ledger {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		return v
	}
	limits.MaxSteps = clamp(limits.MaxSteps)
	if limits.MaxSteps < 1 {
		limits.MaxSteps = 1
	}
	limits.MaxToolCalls = clamp(limits.MaxToolCalls)
	limits.MaxTotalTokens = clamp(limits.MaxTotalTokens)
	limits.MaxInputTokens = clamp(limits.MaxInputTokens)
	limits.MaxOutputTokens = clamp(limits.MaxOutputTokens)
	limits.MaxReads = clamp(limits.MaxReads)
	limits.MaxWrites = clamp(limits.MaxWrites)
	return Ledger{Limits: limits}
}

// CanCallModel reports whether another model step fits within the limits.
// Token caps forbid the next call once met or exceeded; they do not forbid the
// call that crossed them.
func (l Ledger) CanCallModel() bool {
	if l.StepsUsed >= l.Limits.MaxSteps {
		return false
	}
	if l.Limits.MaxTotalTokens > 0 && l.TotalTokensUsed >= l.Limits.MaxTotalTokens {
		return false
	}
	if l.Limits.MaxInputTokens > 0 && l.TotalInputTokensUsed >= l.Limits.MaxInputTokens {
		return false
	}
	if l.Limits.MaxOutputTokens > 0 && l.TotalOutputTokensUsed >= l.Limits.MaxOutputTokens {
		return false
	}
	return true
}

// CanCallTool reports whether another tool call of the given kind fits.
func (l Ledger) CanCallTool(kind policy.ToolKind) bool {
	if l.ToolCallsUsed >= l.Limits.MaxToolCalls {
		return false
	}
	switch kind {
	case policy.KindRead:
		if l.Limits.MaxReads > 0 && l.ReadsUsed >= l.Limits.MaxReads {
			return false
		}
	case policy.KindWrite:
		if l.Limits.MaxWrites > 0 && l.WritesUsed >= l.Limits.MaxWrites {
			return false
		}
	}
	return true
}

// BookModelCall reserves one model step.
func (l Ledger) BookModelCall() (Ledger, error) {
	if !l.CanCallModel() {
		if l.StepsUsed >= l.Limits.MaxSteps {
			return l, fmt.Errorf("%w: %d/%d steps used", ErrStepsExhausted, l.StepsUsed, l.Limits.MaxSteps)
		}
		return l, fmt.Errorf("%w: %d tokens used", ErrTokensExhausted, l.TotalTokensUsed)
	}
	l.StepsUsed++
	return l, nil
}

// BookToolCall reserves one tool call of the given kind.
func (l Ledger) BookToolCall(kind policy.ToolKind) (Ledger, error) {
	if !l.CanCallTool(kind) {
		return l, fmt.Errorf("%w: %d/%d tool calls used (kind %s)",
			ErrToolCallsExhausted, l.ToolCallsUsed, l.Limits.MaxToolCalls, kind)
	}
	l.ToolCallsUsed++
	switch kind {
	case policy.KindRead:
		l.ReadsUsed++
	case policy.KindWrite:
		l.WritesUsed++
	}
	return l, nil
}

// BookUsage accumulates token usage unconditionally. The call already
// happened; exceeding a cap here only forbids the next model call.
func (l Ledger) BookUsage(u models.Usage) Ledger {
	l.TotalInputTokensUsed += u.InputTokens
	l.TotalOutputTokensUsed += u.OutputTokens
	l.TotalTokensUsed += u.TotalTokens
	return l
}
