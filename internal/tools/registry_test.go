package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

type panicTool struct{}

func (panicTool) Name() string            { return "boom" }
func (panicTool) Description() string     { return "always panics" }
func (panicTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (panicTool) Execute(context.Context, json.RawMessage, models.Purpose) (any, error) {
	panic("kaboom")
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	return DefaultRegistry(policy.NewEngine(root)), root
}

func TestRegistryUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "nope"}, models.PurposeDefault)
	if res.OK {
		t.Fatal("Execute(unknown) ok = true")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("Execute(unknown) error = %q", res.Error)
	}
}

func TestRegistryInvalidArguments(t *testing.T) {
	r, _ := newTestRegistry(t)
	call := models.ToolCall{ID: "1", Name: "read_file", Arguments: json.RawMessage(`{not json`)}
	res := r.Execute(context.Background(), call, models.PurposeDefault)
	if res.OK {
		t.Fatal("Execute(bad json) ok = true")
	}
	if !strings.Contains(res.Error, "not valid JSON") {
		t.Errorf("Execute(bad json) error = %q", res.Error)
	}
}

func TestRegistrySchemaValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	// read_file requires path.
	call := models.ToolCall{ID: "1", Name: "read_file", Arguments: json.RawMessage(`{}`)}
	res := r.Execute(context.Background(), call, models.PurposeDefault)
	if res.OK {
		t.Fatal("Execute(missing path) ok = true")
	}
	if !strings.Contains(res.Error, "schema") {
		t.Errorf("Execute(missing path) error = %q", res.Error)
	}
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(panicTool{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "boom", Arguments: json.RawMessage(`{}`)}, models.PurposeDefault)
	if res.OK {
		t.Fatal("Execute(panicking tool) ok = true")
	}
	if !strings.Contains(res.Error, "panicked") {
		t.Errorf("Execute(panicking tool) error = %q", res.Error)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(panicTool{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(panicTool{}); err == nil {
		t.Fatal("Register(duplicate) succeeded")
	}
}

func TestRegistryDefinitions(t *testing.T) {
	r, _ := newTestRegistry(t)
	defs := r.Definitions()
	want := []string{"calculator", "list_dir", "read_file", "run_cmd", "write_file"}
	if len(defs) != len(want) {
		t.Fatalf("Definitions() count = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("Definitions()[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
		if len(defs[i].Parameters) == 0 {
			t.Errorf("Definitions()[%d].Parameters empty", i)
		}
	}
}
