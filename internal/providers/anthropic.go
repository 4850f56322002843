package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/relay/pkg/models"
)

// anthropicMessages is the slice of the SDK the adapter depends on. Tests
// substitute a stub.
type anthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	messages     anthropicMessages
	defaultModel string
}

// NewAnthropic creates the anthropic adapter. The API key is mandatory.
func NewAnthropic(apiKey, defaultModel string) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingCredentials)
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{messages: &client.Messages, defaultModel: defaultModel}, nil
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

// Chat submits one non-streaming message request.
func (a *Anthropic) Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	conversation, system := encodeAnthropicMessages(req.Messages)
	if len(conversation) == 0 {
		// The Messages API requires at least one user turn.
		conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock("Hello")))
	}

	params := sdk.MessageNewParams{
		MaxTokens:   int64(clampMaxOutputTokens(req.MaxOutputTokens)),
		Messages:    conversation,
		Model:       sdk.Model(model),
		Temperature: sdk.Float(effectiveTemperature(req)),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}

	var texts []string
	var toolCalls []models.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			toolCalls = append(toolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	text := strings.Join(texts, "\n\n")

	usagePayload, err := json.Marshal(msg.Usage)
	if err != nil {
		usagePayload = nil
	}
	finish := finishFromAnthropic(string(msg.StopReason))
	if len(toolCalls) > 0 {
		finish = models.FinishToolCall
	}

	return &models.LlmResponse{
		Provider:     ProviderAnthropic,
		Model:        string(msg.Model),
		Text:         text,
		Message:      models.AssistantMessage(text, toolCalls),
		Usage:        NormalizeUsage(usagePayload),
		FinishReason: finish,
		ResponseID:   msg.ID,
	}, nil
}

// encodeAnthropicMessages translates the internal message list. System
// messages are concatenated into the single system field; consecutive tool
// results are folded into one user turn so each tool_result block follows the
// assistant turn that invoked it.
func encodeAnthropicMessages(messages []models.Message) ([]sdk.MessageParam, string) {
	var conversation []sdk.MessageParam
	var system []string
	var pendingResults []sdk.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case models.RoleUser:
			flushResults()
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			flushResults()
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, json.RawMessage(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case models.RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, toolContentIsError(msg.Content)))
		}
	}
	flushResults()
	return conversation, strings.Join(system, "\n\n")
}

// toolContentIsError inspects the serialized ToolResult for its ok flag.
func toolContentIsError(content string) bool {
	var probe struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil || probe.OK == nil {
		return false
	}
	return !*probe.OK
}

func encodeAnthropicTools(defs []models.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Parameters) > 0 {
			if err := json.Unmarshal(def.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, def.Name)
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools, nil
}

func wrapAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderAnthropic, Status: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return fmt.Errorf("anthropic: messages.new: %w", err)
}
