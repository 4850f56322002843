package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	maxReadBytes     = 200 * 1024
	maxReadChars     = 4000
	truncationMarker = "\n... [truncated]"
	redactedSentinel = "[REDACTED]"
)

// secretLinePattern matches key=value lines whose key names a credential.
// The value is replaced with a fixed sentinel before content leaves the tool.
var secretLinePattern = regexp.MustCompile(`(?i)^(\s*[A-Z0-9_]*(?:API_KEY|TOKEN|SECRET|PASSWORD)[A-Z0-9_]*\s*=\s*).*$`)

// ReadFileTool reads a UTF-8 file under the policy-allowed read prefixes.
type ReadFileTool struct {
	engine *policy.Engine
}

func NewReadFileTool(engine *policy.Engine) *ReadFileTool {
	return &ReadFileTool{engine: engine}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a text file from the project. Secret values are redacted and long content is truncated."
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the file relative to the project root."`
}

func (t *ReadFileTool) Schema() json.RawMessage {
	return reflectSchema[readFileArgs]()
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error) {
	_ = ctx
	var input readFileArgs
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	resolved, err := t.engine.ResolvePath(input.Path, policy.AccessRead, purpose)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", input.Path)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), maxReadBytes)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	content := RedactSecrets(string(raw))
	truncated := false
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + truncationMarker
		truncated = true
	}

	return map[string]any{
		"path":      input.Path,
		"content":   content,
		"bytes":     len(raw),
		"truncated": truncated,
	}, nil
}

// RedactSecrets replaces the value of every credential-bearing key=value line
// with a fixed sentinel.
func RedactSecrets(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if m := secretLinePattern.FindStringSubmatch(line); m != nil {
			lines[i] = m[1] + redactedSentinel
		}
	}
	return strings.Join(lines, "\n")
}
