package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

type fakeAdapter struct {
	name string
	last *models.LlmRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Chat(_ context.Context, req *models.LlmRequest) (*models.LlmResponse, error) {
	f.last = req
	return &models.LlmResponse{Provider: f.name, FinishReason: models.FinishStop}, nil
}

func TestRouterDefaultsByPurpose(t *testing.T) {
	grok := &fakeAdapter{name: ProviderGrok}
	anthropic := &fakeAdapter{name: ProviderAnthropic}
	router := NewRouter(grok, anthropic)

	tests := []struct {
		purpose models.Purpose
		want    string
	}{
		{models.PurposeDefault, ProviderGrok},
		{models.PurposeRuntime, ProviderGrok},
		{models.PurposeHeartbeat, ProviderGrok},
		{models.PurposeDev, ProviderAnthropic},
	}
	for _, tt := range tests {
		resp, err := router.Chat(context.Background(), &models.LlmRequest{Purpose: tt.purpose})
		if err != nil {
			t.Fatalf("Chat(%s) error = %v", tt.purpose, err)
		}
		if resp.Provider != tt.want {
			t.Errorf("Chat(%s) routed to %q, want %q", tt.purpose, resp.Provider, tt.want)
		}
	}
}

func TestRouterExplicitProviderWins(t *testing.T) {
	grok := &fakeAdapter{name: ProviderGrok}
	anthropic := &fakeAdapter{name: ProviderAnthropic}
	router := NewRouter(grok, anthropic)

	resp, err := router.Chat(context.Background(), &models.LlmRequest{
		Provider: ProviderAnthropic,
		Purpose:  models.PurposeDefault,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Provider != ProviderAnthropic {
		t.Errorf("routed to %q", resp.Provider)
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	router := NewRouter(&fakeAdapter{name: ProviderGrok})
	_, err := router.Chat(context.Background(), &models.LlmRequest{Provider: "bard"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Chat(bard) error = %v, want ErrUnknownProvider", err)
	}
}

func TestRouterDoesNotMutateRequest(t *testing.T) {
	router := NewRouter(&fakeAdapter{name: ProviderGrok})
	req := &models.LlmRequest{Purpose: models.PurposeDefault}
	if _, err := router.Chat(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.Provider != "" {
		t.Errorf("request provider mutated to %q", req.Provider)
	}
}

func TestNormalizeUsage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		in   int
		out  int
	}{
		{"openai shape", `{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}`, 12, 7},
		{"anthropic shape", `{"input_tokens":30,"output_tokens":11}`, 30, 11},
		{"camel shape", `{"inputTokens":4,"outputTokens":9}`, 4, 9},
		{"partial openai", `{"prompt_tokens":8}`, 8, 0},
		{"partial anthropic", `{"output_tokens":6}`, 0, 6},
		{"empty object", `{}`, 0, 0},
		{"empty payload", ``, 0, 0},
		{"garbage", `not json`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := NormalizeUsage(json.RawMessage(tt.raw))
			if usage.InputTokens != tt.in || usage.OutputTokens != tt.out {
				t.Errorf("NormalizeUsage(%s) = %+v", tt.raw, usage)
			}
			if usage.TotalTokens != usage.InputTokens+usage.OutputTokens {
				t.Errorf("TotalTokens = %d, not the sum", usage.TotalTokens)
			}
		})
	}
}

func TestFinishReasonMapping(t *testing.T) {
	openAICases := map[string]models.FinishReason{
		"stop":           models.FinishStop,
		"length":         models.FinishLength,
		"tool_calls":     models.FinishToolCall,
		"function_call":  models.FinishToolCall,
		"content_filter": models.FinishContentFilter,
		"":               models.FinishUnknown,
		"weird":          models.FinishUnknown,
	}
	for raw, want := range openAICases {
		if got := finishFromOpenAI(raw); got != want {
			t.Errorf("finishFromOpenAI(%q) = %q, want %q", raw, got, want)
		}
	}

	anthropicCases := map[string]models.FinishReason{
		"end_turn":      models.FinishStop,
		"stop_sequence": models.FinishStop,
		"max_tokens":    models.FinishLength,
		"tool_use":      models.FinishToolCall,
		"refusal":       models.FinishContentFilter,
		"":              models.FinishUnknown,
	}
	for raw, want := range anthropicCases {
		if got := finishFromAnthropic(raw); got != want {
			t.Errorf("finishFromAnthropic(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClampMaxOutputTokens(t *testing.T) {
	for in, want := range map[int]int{-5: 1, 0: 1, 1: 1, 4096: 4096} {
		if got := clampMaxOutputTokens(in); got != want {
			t.Errorf("clampMaxOutputTokens(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEffectiveTemperature(t *testing.T) {
	if got := effectiveTemperature(&models.LlmRequest{}); got != defaultTemperature {
		t.Errorf("default temperature = %v", got)
	}
	if got := effectiveTemperature(&models.LlmRequest{Purpose: models.PurposeDev}); got != defaultDevTemperature {
		t.Errorf("dev temperature = %v", got)
	}
	override := 0.9
	if got := effectiveTemperature(&models.LlmRequest{Temperature: &override}); got != 0.9 {
		t.Errorf("override temperature = %v", got)
	}
}

func TestMissingCredentials(t *testing.T) {
	if _, err := NewGrok("", "", "grok-2-latest"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("NewGrok(no key) error = %v", err)
	}
	if _, err := NewAnthropic("  ", "model"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("NewAnthropic(no key) error = %v", err)
	}
}
