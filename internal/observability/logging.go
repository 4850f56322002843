// Package observability provides the structured JSON event log and the error
// classifier. The log is an append-only JSON-lines file (conventionally
// logs/app.log); every record carries the event name plus whatever run
// context is known, with sensitive values redacted before they hit the sink.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultRedactPatterns cover the common credential shapes seen in provider
// keys and request dumps.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`xai-[a-zA-Z0-9]{32,}`,
}

// Config configures the event logger.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Path is the JSON-lines sink file. Parent directories are created.
	// Ignored when Output is set.
	Path string

	// Output overrides the sink, mainly for tests. Defaults to stderr when
	// both Path and Output are empty.
	Output io.Writer

	// RedactPatterns are additional redaction regexes on top of the defaults.
	RedactPatterns []string
}

// Logger writes structured event records.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
	file    *os.File
}

// Fields is the optional context attached to one event record.
type Fields struct {
	Session  string
	Purpose  string
	Provider string
	Model    string
	Ms       int64
	Err      error
	Message  string
	Details  any
}

// NewLogger opens the sink and builds the logger.
func NewLogger(cfg Config) (*Logger, error) {
	out := cfg.Output
	var file *os.File
	if out == nil {
		if cfg.Path == "" {
			out = os.Stderr
		} else {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			file = f
			out = f
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: renameAttrs,
	})

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(cfg.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), cfg.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts, file: file}, nil
}

// MustNewLogger is NewLogger for initialization paths where a broken sink is
// fatal.
func MustNewLogger(cfg Config) *Logger {
	l, err := NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Close releases the sink file when the logger owns one.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// renameAttrs maps slog's built-in keys onto the event-record field names.
func renameAttrs(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(strings.ToLower(level.String()))
		}
	case slog.MessageKey:
		a.Key = "event"
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Event writes one record at the given level. The record's msg is the event
// name; optional fields are attached only when set.
func (l *Logger) Event(ctx context.Context, level slog.Level, event string, fields Fields) {
	attrs := make([]any, 0, 16)
	if fields.Session != "" {
		attrs = append(attrs, "session", fields.Session)
	}
	if fields.Purpose != "" {
		attrs = append(attrs, "purpose", fields.Purpose)
	}
	if fields.Provider != "" {
		attrs = append(attrs, "provider", fields.Provider)
	}
	if fields.Model != "" {
		attrs = append(attrs, "model", fields.Model)
	}
	if fields.Ms > 0 {
		attrs = append(attrs, "ms", fields.Ms)
	}
	if fields.Err != nil {
		attrs = append(attrs, "errorClass", string(Classify(fields.Err)))
		if fields.Message == "" {
			fields.Message = fields.Err.Error()
		}
	}
	if fields.Message != "" {
		attrs = append(attrs, "message", l.redact(fields.Message))
	}
	if fields.Details != nil {
		attrs = append(attrs, "details", l.redactValue(fields.Details))
	}
	l.logger.Log(ctx, level, event, attrs...)
}

// Debug, Info, Warn, and Error are level-bound shorthands for Event.
func (l *Logger) Debug(ctx context.Context, event string, fields Fields) {
	l.Event(ctx, slog.LevelDebug, event, fields)
}

func (l *Logger) Info(ctx context.Context, event string, fields Fields) {
	l.Event(ctx, slog.LevelInfo, event, fields)
}

func (l *Logger) Warn(ctx context.Context, event string, fields Fields) {
	l.Event(ctx, slog.LevelWarn, event, fields)
}

func (l *Logger) Error(ctx context.Context, event string, fields Fields) {
	l.Event(ctx, slog.LevelError, event, fields)
}

func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redact(val)
	case error:
		return l.redact(val.Error())
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = l.redactValue(item)
		}
		return out
	default:
		return v
	}
}
