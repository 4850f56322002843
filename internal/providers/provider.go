// Package providers abstracts the LLM backends behind one chat interface.
// Each adapter translates the internal request into its provider's wire
// format and normalizes the response back; provider-shaped data never leaks
// past this package.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/relay/pkg/models"
)

// Provider names understood by the router.
const (
	ProviderGrok      = "grok"
	ProviderAnthropic = "anthropic"
)

// Default sampling temperatures by purpose.
const (
	defaultTemperature    = 0.2
	defaultDevTemperature = 0.7
)

// ErrMissingCredentials marks an adapter constructed without its API key.
var ErrMissingCredentials = errors.New("provider credentials missing")

// ErrUnknownProvider marks a request routed to an unregistered provider.
var ErrUnknownProvider = errors.New("unknown provider")

// APIError is a remote failure with the HTTP status preserved for the error
// classifier.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: remote error (status %d): %s", e.Provider, e.Status, e.Message)
}

// Adapter is one concrete LLM backend.
type Adapter interface {
	Name() string
	Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error)
}

// Router dispatches chat requests to the adapter named by the request,
// defaulting the provider from the request purpose.
type Router struct {
	adapters map[string]Adapter
}

// NewRouter creates a router over the given adapters.
func NewRouter(adapters ...Adapter) *Router {
	r := &Router{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Router) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// DefaultProvider resolves the provider used when a request names none.
func DefaultProvider(purpose models.Purpose) string {
	if purpose == models.PurposeDev {
		return ProviderAnthropic
	}
	return ProviderGrok
}

// Chat routes the request. The request is not mutated; provider defaulting
// happens on a copy.
func (r *Router) Chat(ctx context.Context, req *models.LlmRequest) (*models.LlmResponse, error) {
	resolved := *req
	if resolved.Provider == "" {
		resolved.Provider = DefaultProvider(resolved.Purpose)
	}
	adapter, ok := r.adapters[resolved.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, resolved.Provider)
	}
	return adapter.Chat(ctx, &resolved)
}

// clampMaxOutputTokens enforces the positive hard cap on model output.
func clampMaxOutputTokens(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// effectiveTemperature applies the request override or the purpose default.
func effectiveTemperature(req *models.LlmRequest) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if req.Purpose == models.PurposeDev {
		return defaultDevTemperature
	}
	return defaultTemperature
}

// finishFromOpenAI maps an OpenAI-wire finish reason to the canonical set.
func finishFromOpenAI(reason string) models.FinishReason {
	switch reason {
	case "stop":
		return models.FinishStop
	case "length":
		return models.FinishLength
	case "tool_calls", "function_call":
		return models.FinishToolCall
	case "content_filter":
		return models.FinishContentFilter
	default:
		return models.FinishUnknown
	}
}

// finishFromAnthropic maps an Anthropic stop reason to the canonical set.
func finishFromAnthropic(reason string) models.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return models.FinishStop
	case "max_tokens":
		return models.FinishLength
	case "tool_use":
		return models.FinishToolCall
	case "refusal":
		return models.FinishContentFilter
	default:
		return models.FinishUnknown
	}
}
