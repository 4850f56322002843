package providers

import (
	"encoding/json"

	"github.com/haasonsaas/relay/pkg/models"
)

// NormalizeUsage converts any of the three known usage wire shapes into the
// canonical form:
//
//	{prompt_tokens, completion_tokens}   OpenAI-compatible (grok)
//	{input_tokens, output_tokens}        Anthropic
//	{inputTokens, outputTokens}          already canonical, camel-cased
//
// Absent or malformed fields become zero; the total is always derived.
func NormalizeUsage(raw json.RawMessage) models.Usage {
	var wire struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
		InputSnake       *int `json:"input_tokens"`
		OutputSnake      *int `json:"output_tokens"`
		InputCamel       *int `json:"inputTokens"`
		OutputCamel      *int `json:"outputTokens"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &wire) != nil {
		return models.NewUsage(0, 0)
	}

	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	switch {
	case wire.PromptTokens != nil || wire.CompletionTokens != nil:
		return models.NewUsage(deref(wire.PromptTokens), deref(wire.CompletionTokens))
	case wire.InputSnake != nil || wire.OutputSnake != nil:
		return models.NewUsage(deref(wire.InputSnake), deref(wire.OutputSnake))
	case wire.InputCamel != nil || wire.OutputCamel != nil:
		return models.NewUsage(deref(wire.InputCamel), deref(wire.OutputCamel))
	default:
		return models.NewUsage(0, 0)
	}
}
