package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/relay/pkg/models"
)

// Grok talks to the xAI API, which speaks the OpenAI chat-completions wire
// format. The base URL defaults to the xAI endpoint and can be overridden for
// gateways or tests.
type Grok struct {
	client       *openai.Client
	defaultModel string
}

// NewGrok creates the grok adapter. The API key is mandatory.
func NewGrok(apiKey, baseURL, defaultModel string) (*Grok, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: GROK_API_KEY", ErrMissingCredentials)
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Grok{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}, nil
}

func (g *Grok) Name() string { return ProviderGrok }

// Chat submits one non-streaming chat completion.
func (g *Grok) Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	wireReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    encodeOpenAIMessages(req.Messages),
		MaxTokens:   clampMaxOutputTokens(req.MaxOutputTokens),
		Temperature: float32(effectiveTemperature(req)),
	}
	if len(req.Tools) > 0 {
		wireReq.Tools = encodeOpenAITools(req.Tools)
	}

	resp, err := g.client.CreateChatCompletion(ctx, wireReq)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("grok: response contains no choices")
	}
	choice := resp.Choices[0]

	toolCalls := make([]models.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	usagePayload, err := json.Marshal(resp.Usage)
	if err != nil {
		usagePayload = nil
	}
	finish := finishFromOpenAI(string(choice.FinishReason))
	if len(toolCalls) > 0 {
		finish = models.FinishToolCall
	}

	return &models.LlmResponse{
		Provider:     ProviderGrok,
		Model:        resp.Model,
		Text:         choice.Message.Content,
		Message:      models.AssistantMessage(choice.Message.Content, toolCalls),
		Usage:        NormalizeUsage(usagePayload),
		FinishReason: finish,
		ResponseID:   resp.ID,
	}, nil
}

func encodeOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case models.RoleAssistant:
			wire := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			out = append(out, wire)
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.ToolName,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return out
}

func encodeOpenAITools(defs []models.ToolDefinition) []openai.Tool {
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderGrok, Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: ProviderGrok, Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("grok: chat completion: %w", err)
}
