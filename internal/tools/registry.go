// Package tools implements the side-effecting tool registry. Every execution
// funnels through Registry.Execute, which validates arguments against the
// tool's schema, recovers panics, and converts every failure into a
// structured {ok:false} result. No error escapes the registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/relay/pkg/models"
)

// Tool is one side-effecting operation callable by the model.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error)
}

// Registry holds the registered tools and dispatches calls to them.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", name, err)
	}
	r.tools[name] = tool
	r.compiled[name] = compiled
	return nil
}

// MustRegister panics on registration failure. For static tool sets wired at
// startup.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns the tool definitions for provider requests, sorted by
// name for a stable order.
func (r *Registry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, models.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs one tool call and always produces a ToolResult. Unknown tools,
// malformed arguments, schema violations, execution errors, and panics all
// become {ok:false} results so the model observes the exact failure.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall, purpose models.Purpose) (result models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = models.ErrResult(call.Name, fmt.Sprintf("tool panicked: %v", rec))
		}
	}()

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	compiled := r.compiled[call.Name]
	r.mu.RUnlock()
	if !ok {
		return models.ErrResult(call.Name, fmt.Sprintf("unknown tool %q", call.Name))
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return models.ErrResult(call.Name, fmt.Sprintf("arguments are not valid JSON: %v", err))
	}
	if compiled != nil {
		if err := compiled.Validate(decoded); err != nil {
			return models.ErrResult(call.Name, fmt.Sprintf("arguments rejected by schema: %v", err))
		}
	}

	out, err := tool.Execute(ctx, args, purpose)
	if err != nil {
		return models.ErrResult(call.Name, err.Error())
	}
	return models.OKResult(call.Name, out)
}
