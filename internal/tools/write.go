package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

// ErrFileExists is returned when overwrite is false and the target exists.
var ErrFileExists = errors.New("File exists")

// WriteFileTool writes a file under the policy-allowed write prefixes. Writes
// go through a temp file and rename so partial content never lands.
type WriteFileTool struct {
	engine *policy.Engine
}

func NewWriteFileTool(engine *policy.Engine) *WriteFileTool {
	return &WriteFileTool{engine: engine}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a project file. Refuses to replace an existing file unless overwrite is set."
}

type writeFileArgs struct {
	Path      string `json:"path" jsonschema:"required,description=Destination path relative to the project root."`
	Content   string `json:"content" jsonschema:"required,description=Full file content to write."`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"description=Replace an existing file (default false)."`
}

func (t *WriteFileTool) Schema() json.RawMessage {
	return reflectSchema[writeFileArgs]()
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error) {
	_ = ctx
	var input writeFileArgs
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	resolved, err := t.engine.ResolvePath(input.Path, policy.AccessWrite, purpose)
	if err != nil {
		return nil, err
	}

	if !input.Overwrite {
		if _, err := os.Lstat(resolved); err == nil {
			return nil, fmt.Errorf("%w: %s (pass overwrite=true to replace)", ErrFileExists, input.Path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat file: %w", err)
		}
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(resolved)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := tmp.WriteString(input.Content)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("rename into place: %w", err)
	}

	return map[string]any{
		"path":      input.Path,
		"bytes":     n,
		"overwrite": input.Overwrite,
	}, nil
}
