package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	defaultCmdTimeout = 10 * time.Second
	maxStreamChars    = 8000
)

// RunCmdTool executes an allowlisted command directly, without a shell. The
// child gets a closed stdin, captured stdout/stderr, a wall-clock deadline,
// and SIGKILL when the deadline passes.
type RunCmdTool struct {
	engine  *policy.Engine
	timeout time.Duration
}

func NewRunCmdTool(engine *policy.Engine) *RunCmdTool {
	return &RunCmdTool{engine: engine, timeout: defaultCmdTimeout}
}

// NewRunCmdToolWithTimeout overrides the wall-clock deadline.
func NewRunCmdToolWithTimeout(engine *policy.Engine, timeout time.Duration) *RunCmdTool {
	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	return &RunCmdTool{engine: engine, timeout: timeout}
}

func (t *RunCmdTool) Name() string { return "run_cmd" }

func (t *RunCmdTool) Description() string {
	return "Run one allowlisted project command (tests, builds, type checks, VCS status)."
}

type runCmdArgs struct {
	Command string `json:"command" jsonschema:"required,description=Exact allowlisted command to run."`
}

func (t *RunCmdTool) Schema() json.RawMessage {
	return reflectSchema[runCmdArgs]()
}

func (t *RunCmdTool) Execute(ctx context.Context, args json.RawMessage, purpose models.Purpose) (any, error) {
	_ = purpose
	var input runCmdArgs
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	command, err := t.engine.ValidateCommand(input.Command)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(command)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	cmd.Dir = t.engine.Root()
	cmd.Stdin = nil
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Do not linger on children that inherited the pipes.
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			exitCode = -1
		default:
			return nil, fmt.Errorf("start command: %w", runErr)
		}
	}

	outText, outTruncated := truncateStream(stdout.String())
	errText, errTruncated := truncateStream(stderr.String())

	return map[string]any{
		"command":          command,
		"exit_code":        exitCode,
		"success":          exitCode == 0,
		"timed_out":        errors.Is(runCtx.Err(), context.DeadlineExceeded),
		"duration_ms":      elapsed.Milliseconds(),
		"stdout":           outText,
		"stdout_truncated": outTruncated,
		"stderr":           errText,
		"stderr_truncated": errTruncated,
	}, nil
}

func truncateStream(s string) (string, bool) {
	if len(s) <= maxStreamChars {
		return s, false
	}
	return s[:maxStreamChars], true
}
