// Package heartbeat issues a synthetic model ping to verify the provider path
// end to end and report round-trip latency.
package heartbeat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	pingPrompt    = "Reply with the single word: pong"
	pingMaxTokens = 16
)

// Chatter is the provider surface the runner pings through.
type Chatter interface {
	Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error)
}

// Report is the outcome of one heartbeat ping.
type Report struct {
	RunID    string       `json:"runId"`
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Text     string       `json:"text"`
	Ms       int64        `json:"ms"`
	Usage    models.Usage `json:"usage"`
}

// Runner performs heartbeat pings.
type Runner struct {
	chat   Chatter
	logger *observability.Logger
}

// NewRunner wires a heartbeat runner.
func NewRunner(chat Chatter, logger *observability.Logger) *Runner {
	return &Runner{chat: chat, logger: logger}
}

// Ping sends one heartbeat-purpose request. Provider and model may be empty to
// let the router default them.
func (r *Runner) Ping(ctx context.Context, provider, model string) (*Report, error) {
	runID := uuid.NewString()
	req := &models.LlmRequest{
		Provider:        provider,
		Model:           model,
		Messages:        []models.Message{models.UserMessage(pingPrompt)},
		MaxOutputTokens: pingMaxTokens,
		Purpose:         models.PurposeHeartbeat,
		Meta:            &models.RequestMeta{RequestID: runID},
	}

	start := time.Now()
	resp, err := r.chat.Chat(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		r.logger.Error(ctx, "heartbeat", observability.Fields{
			Purpose: string(models.PurposeHeartbeat),
			Ms:      elapsed,
			Err:     err,
		})
		return nil, err
	}

	report := &Report{
		RunID:    runID,
		Provider: resp.Provider,
		Model:    resp.Model,
		Text:     resp.Text,
		Ms:       elapsed,
		Usage:    resp.Usage,
	}
	r.logger.Info(ctx, "heartbeat", observability.Fields{
		Purpose:  string(models.PurposeHeartbeat),
		Provider: resp.Provider,
		Model:    resp.Model,
		Ms:       elapsed,
		Details:  map[string]any{"tokens": resp.Usage.TotalTokens, "run_id": runID},
	})
	return report, nil
}
