// Package policy enforces the purpose-aware sandbox over filesystem paths and
// subprocess commands. Every tool effect is validated here before it happens,
// and the registry re-validates on execution so no caller can bypass it.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// AccessKind distinguishes read and write path validation.
type AccessKind string

const (
	AccessRead  AccessKind = "read"
	AccessWrite AccessKind = "write"
)

// ToolKind classifies a tool for budget accounting.
type ToolKind string

const (
	KindRead  ToolKind = "read"
	KindWrite ToolKind = "write"
	KindOther ToolKind = "other"
)

// Rule names identify which validation step rejected an input. They appear in
// error messages and the event log.
const (
	RuleEmpty     = "empty"
	RuleAbsolute  = "absolute"
	RuleTraversal = "traversal"
	RuleSegment   = "segment"
	RuleFile      = "file"
	RulePrefix    = "prefix"
	RuleSymlink   = "symlink"
	RuleCommand   = "command"
)

// Error is a policy rejection. Rule names the validation step that fired.
type Error struct {
	Rule  string
	Input string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("policy: %s (%s: %q)", e.Msg, e.Rule, e.Input)
}

// IsPolicyError reports whether err is a policy rejection.
func IsPolicyError(err error) bool {
	var pe *Error
	return err != nil && asPolicyError(err, &pe)
}

func asPolicyError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func reject(rule, input, msg string) error {
	return &Error{Rule: rule, Input: input, Msg: msg}
}

// deniedSegments are directory names no path may traverse: version-control
// metadata, dependency caches, and build artifacts.
var deniedSegments = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
}

// deniedFiles are secret-holding base filenames (dotenv-style variants are
// matched by prefix in isDeniedFile).
var deniedFiles = map[string]bool{
	".env": true,
}

// readPrefixes are the only locations readable by tools.
var readPrefixes = []string{"src", "data", "logs", "notes", "README.md", "package.json"}

// writePrefixesDefault restricts non-dev writes to the output sink.
var writePrefixesDefault = []string{"data/outputs"}

// writePrefixesDev adds source access under elevated purpose.
var writePrefixesDev = []string{"data/outputs", "src"}

// DefaultCommandAllowlist is the closed set of runnable commands: dependency
// manager test/build invocations, a type-checker dry run, and the
// version-control status query.
var DefaultCommandAllowlist = []string{
	"npm test",
	"npm run build",
	"npx tsc --noEmit",
	"go test ./...",
	"go build ./...",
	"go vet ./...",
	"git status",
}

// Engine validates paths and commands against a fixed project root.
type Engine struct {
	root     string
	commands map[string]bool
}

// NewEngine creates a policy engine rooted at the given project directory,
// using the default command allowlist.
func NewEngine(root string) *Engine {
	return NewEngineWithCommands(root, DefaultCommandAllowlist)
}

// NewEngineWithCommands creates an engine with a custom command allowlist.
func NewEngineWithCommands(root string, allowlist []string) *Engine {
	commands := make(map[string]bool, len(allowlist))
	for _, cmd := range allowlist {
		commands[cmd] = true
	}
	return &Engine{root: root, commands: commands}
}

// Root returns the project root all relative paths resolve against.
func (e *Engine) Root() string {
	return e.root
}

// ResolvePath validates a user-supplied path for the given access kind and
// purpose, returning the resolved absolute location. Validation order follows
// the sandbox rules: empty, absolute, traversal, denied segment, denied file,
// allowed prefix, existing symlink. It never partially applies.
func (e *Engine) ResolvePath(path string, access AccessKind, purpose models.Purpose) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", reject(RuleEmpty, path, "path is empty")
	}
	normalized := strings.ReplaceAll(trimmed, "\\", "/")

	if strings.HasPrefix(normalized, "/") || filepath.IsAbs(trimmed) || isWindowsDrivePath(normalized) {
		return "", reject(RuleAbsolute, path, "absolute paths are not allowed")
	}

	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(normalized)))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", reject(RuleTraversal, path, "path escapes project root")
	}

	for _, segment := range strings.Split(clean, "/") {
		if deniedSegments[segment] {
			return "", reject(RuleSegment, path, "path traverses denied directory "+segment)
		}
	}

	if isDeniedFile(filepath.Base(clean)) {
		return "", reject(RuleFile, path, "secret-holding files are not accessible")
	}

	switch access {
	case AccessRead:
		if !hasAllowedPrefix(clean, readPrefixes) {
			return "", reject(RulePrefix, path, "read path not allowed")
		}
	case AccessWrite:
		prefixes := writePrefixesDefault
		if purpose == models.PurposeDev {
			prefixes = writePrefixesDev
		}
		if !hasAllowedPrefix(clean, prefixes) {
			return "", reject(RulePrefix, path, "write path not allowed")
		}
	default:
		return "", reject(RulePrefix, path, "unknown access kind "+string(access))
	}

	resolved := filepath.Join(e.root, filepath.FromSlash(clean))
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", reject(RuleSymlink, path, "symbolic links are not accessible")
	}

	return resolved, nil
}

// ValidateCommand accepts a command only when its trimmed form appears
// verbatim in the allowlist. The canonical string is returned.
func (e *Engine) ValidateCommand(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", reject(RuleCommand, command, "command is empty")
	}
	if !e.commands[trimmed] {
		return "", reject(RuleCommand, command, "command not in allowlist")
	}
	return trimmed, nil
}

// ClassifyTool maps a tool name to its budget kind.
func ClassifyTool(name string) ToolKind {
	switch name {
	case "read_file", "list_dir":
		return KindRead
	case "write_file":
		return KindWrite
	default:
		return KindOther
	}
}

func isWindowsDrivePath(p string) bool {
	return len(p) >= 3 && p[1] == ':' && p[2] == '/' &&
		(p[0] >= 'a' && p[0] <= 'z' || p[0] >= 'A' && p[0] <= 'Z')
}

func isDeniedFile(base string) bool {
	if deniedFiles[base] {
		return true
	}
	return strings.HasPrefix(base, ".env.")
}

func hasAllowedPrefix(clean string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return true
		}
	}
	return false
}
