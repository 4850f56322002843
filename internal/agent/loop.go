// Package agent implements the tool-loop scheduler: a bounded, budget-gated
// dialogue between the model and the tool registry. Every tool call the model
// emits is classified, booked, approved, and — when approved — executed, and
// the model always observes one tool message per call before the next step.
package agent

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/haasonsaas/relay/internal/budget"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// deniedMessage is what the model sees in place of a result when approval is
// withheld.
const deniedMessage = "Tool call denied by policy/approval."

// ErrBudgetBeforeFirstCall is returned when the limits forbid even one model
// step.
var ErrBudgetBeforeFirstCall = errors.New("budget exhausted before first model call")

// Chatter is the provider surface the loop depends on.
type Chatter interface {
	Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error)
}

// ApproveFunc answers whether one tool call may execute. It may block on
// human input; cancellation surfaces as an error and aborts the run.
type ApproveFunc func(ctx context.Context, call models.ToolCall) (bool, error)

// ApproveAll grants every tool call.
func ApproveAll(context.Context, models.ToolCall) (bool, error) { return true, nil }

// RunOptions bound one scheduler run.
type RunOptions struct {
	Limits budget.Limits

	// KeepLastN clamps the working message list after every append; zero
	// keeps everything.
	KeepLastN int

	// Approve gates each tool call. Nil approves everything.
	Approve ApproveFunc
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	Final    *models.LlmResponse
	Messages []models.Message
	Usage    models.Usage
	Ledger   budget.Ledger
}

// Loop schedules model and tool calls for one session turn at a time.
type Loop struct {
	chat     Chatter
	registry *tools.Registry
	logger   *observability.Logger
}

// NewLoop wires the scheduler. A nil logger discards events.
func NewLoop(chat Chatter, registry *tools.Registry, logger *observability.Logger) *Loop {
	if logger == nil {
		logger = observability.MustNewLogger(observability.Config{Output: io.Discard})
	}
	return &Loop{chat: chat, registry: registry, logger: logger}
}

// Run executes the tool loop until the model stops calling tools, the budget
// forbids another model call, or a hard failure occurs. Provider and
// budget-booking failures terminate the run; tool failures are folded into
// tool messages and the loop continues.
func (l *Loop) Run(ctx context.Context, req *models.LlmRequest, opts RunOptions) (*RunResult, error) {
	approve := opts.Approve
	if approve == nil {
		approve = ApproveAll
	}

	ledger := budget.NewLedger(opts.Limits)
	messages := append([]models.Message(nil), req.Messages...)
	var usageTotal models.Usage
	var lastResponse *models.LlmResponse

	base := observability.Fields{
		Purpose:  string(req.Purpose),
		Provider: req.Provider,
		Model:    req.Model,
	}

	for {
		if !ledger.CanCallModel() {
			if lastResponse != nil {
				l.logger.Info(ctx, "toolloop_done", withMessage(base, "budget reached, returning last response"))
				return &RunResult{Final: lastResponse, Messages: messages, Usage: usageTotal, Ledger: ledger}, nil
			}
			return nil, ErrBudgetBeforeFirstCall
		}
		ledger, _ = ledger.BookModelCall()

		step := *req
		step.Messages = messages
		if len(step.Tools) == 0 && l.registry != nil {
			step.Tools = l.registry.Definitions()
		}

		start := time.Now()
		response, err := l.chat.Chat(ctx, &step)
		if err != nil {
			l.logger.Error(ctx, "error", withErr(base, err))
			return nil, err
		}
		stepFields := base
		stepFields.Provider = response.Provider
		stepFields.Model = response.Model
		stepFields.Ms = time.Since(start).Milliseconds()
		stepFields.Details = map[string]any{
			"finish_reason": string(response.FinishReason),
			"tool_calls":    len(response.Message.ToolCalls),
			"tokens":        response.Usage.TotalTokens,
		}
		l.logger.Info(ctx, "llm_step", stepFields)

		lastResponse = response
		usageTotal.Add(response.Usage)
		ledger = ledger.BookUsage(response.Usage)

		messages = append(messages, response.Message)
		messages = clampMessages(messages, opts.KeepLastN)

		if len(response.Message.ToolCalls) == 0 {
			l.logger.Info(ctx, "toolloop_done", withMessage(base, "model finished"))
			return &RunResult{Final: response, Messages: messages, Usage: usageTotal, Ledger: ledger}, nil
		}

		for _, call := range response.Message.ToolCalls {
			l.logger.Info(ctx, "tool_suggested", withDetails(base, map[string]any{
				"tool": call.Name, "call_id": call.ID,
			}))

			kind := policy.ClassifyTool(call.Name)
			booked, err := ledger.BookToolCall(kind)
			if err != nil {
				if kind == policy.KindWrite {
					l.logger.Warn(ctx, "write_budget_exceeded", withErr(base, err))
				}
				l.logger.Error(ctx, "error", withErr(base, err))
				return nil, err
			}
			ledger = booked

			l.logger.Info(ctx, "toolloop_approve_prompt", withDetails(base, map[string]any{
				"tool": call.Name, "call_id": call.ID,
			}))
			approved, err := approve(ctx, call)
			if err != nil {
				l.logger.Error(ctx, "error", withErr(base, err))
				return nil, err
			}
			if !approved {
				l.logger.Info(ctx, "tool_denied", withDetails(base, map[string]any{
					"tool": call.Name, "call_id": call.ID,
				}))
				content := models.ErrResult(call.Name, deniedMessage).JSON()
				messages = append(messages, models.ToolMessage(call.Name, call.ID, content))
				messages = clampMessages(messages, opts.KeepLastN)
				continue
			}
			l.logger.Info(ctx, "tool_approved", withDetails(base, map[string]any{
				"tool": call.Name, "call_id": call.ID,
			}))

			l.logger.Info(ctx, "tool_exec", withDetails(base, map[string]any{
				"tool": call.Name, "call_id": call.ID,
			}))
			result := l.registry.Execute(ctx, call, req.Purpose)
			l.logger.Info(ctx, "tool_result", withDetails(base, map[string]any{
				"tool": call.Name, "call_id": call.ID, "ok": result.OK,
			}))

			messages = append(messages, models.ToolMessage(call.Name, call.ID, result.JSON()))
			messages = clampMessages(messages, opts.KeepLastN)
		}
	}
}

func clampMessages(messages []models.Message, keepLastN int) []models.Message {
	if keepLastN > 0 && len(messages) > keepLastN {
		return messages[len(messages)-keepLastN:]
	}
	return messages
}

func withErr(base observability.Fields, err error) observability.Fields {
	base.Err = err
	return base
}

func withMessage(base observability.Fields, msg string) observability.Fields {
	base.Message = msg
	return base
}

func withDetails(base observability.Fields, details map[string]any) observability.Fields {
	base.Details = details
	return base
}
