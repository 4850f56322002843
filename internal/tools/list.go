package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

const maxDirEntries = 200

// ListDirTool enumerates the direct children of a directory.
type ListDirTool struct {
	engine *policy.Engine
}

func NewListDirTool(engine *policy.Engine) *ListDirTool {
	return &ListDirTool{engine: engine}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the direct children of a project directory."
}

type listDirArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the directory relative to the project root."`
}

func (t *ListDirTool) Schema() json.RawMessage {
	return reflectSchema[listDirArgs]()
}

type dirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t *ListDirTool) Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error) {
	_ = ctx
	var input listDirArgs
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	resolved, err := t.engine.ResolvePath(input.Path, policy.AccessRead, purpose)
	if err != nil {
		return nil, err
	}

	children, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	capped := len(children) > maxDirEntries
	if capped {
		children = children[:maxDirEntries]
	}
	entries := make([]dirEntry, 0, len(children))
	for _, child := range children {
		entries = append(entries, dirEntry{Name: child.Name(), Type: entryType(child)})
	}

	return map[string]any{
		"path":    input.Path,
		"entries": entries,
		"count":   len(entries),
		"capped":  capped,
	}, nil
}

func entryType(e os.DirEntry) string {
	mode := e.Type()
	switch {
	case mode.IsDir():
		return "dir"
	case mode&os.ModeSymlink != 0:
		return "symlink"
	case mode.IsRegular():
		return "file"
	default:
		return "other"
	}
}
