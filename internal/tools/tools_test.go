package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/pkg/models"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func execTool(t *testing.T, r *Registry, name, args string, purpose models.Purpose) models.ToolResult {
	t.Helper()
	call := models.ToolCall{ID: "call-1", Name: name, Arguments: json.RawMessage(args)}
	return r.Execute(context.Background(), call, purpose)
}

func resultMap(t *testing.T, res models.ToolResult) map[string]any {
	t.Helper()
	m, ok := res.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", res.Result)
	}
	return m
}

func TestReadFile(t *testing.T) {
	r, root := newTestRegistry(t)
	mustWrite(t, filepath.Join(root, "notes", "test.txt"), "hello world\n")

	res := execTool(t, r, "read_file", `{"path":"notes/test.txt"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("read_file error = %q", res.Error)
	}
	m := resultMap(t, res)
	if m["content"] != "hello world\n" {
		t.Errorf("content = %q", m["content"])
	}
	if m["bytes"] != 12 {
		t.Errorf("bytes = %v, want 12", m["bytes"])
	}
	if m["truncated"] != false {
		t.Errorf("truncated = %v", m["truncated"])
	}
}

func TestReadFileRedactsSecrets(t *testing.T) {
	r, root := newTestRegistry(t)
	content := "host=localhost\nGROK_API_KEY=xai-supersecret\napi_key = sk-123\nMY_PASSWORD=hunter2\nplain line\n"
	mustWrite(t, filepath.Join(root, "notes", "config.txt"), content)

	res := execTool(t, r, "read_file", `{"path":"notes/config.txt"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("read_file error = %q", res.Error)
	}
	got := resultMap(t, res)["content"].(string)
	for _, secret := range []string{"xai-supersecret", "sk-123", "hunter2"} {
		if strings.Contains(got, secret) {
			t.Errorf("content still contains secret %q", secret)
		}
	}
	if !strings.Contains(got, "host=localhost") {
		t.Error("non-secret line was altered")
	}
	if !strings.Contains(got, redactedSentinel) {
		t.Error("sentinel missing from redacted content")
	}
}

func TestReadFileTruncates(t *testing.T) {
	r, root := newTestRegistry(t)
	mustWrite(t, filepath.Join(root, "notes", "big.txt"), strings.Repeat("a", 5000))

	res := execTool(t, r, "read_file", `{"path":"notes/big.txt"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("read_file error = %q", res.Error)
	}
	m := resultMap(t, res)
	content := m["content"].(string)
	if !strings.HasSuffix(content, truncationMarker) {
		t.Error("truncation marker missing")
	}
	if len(content) != maxReadChars+len(truncationMarker) {
		t.Errorf("content length = %d", len(content))
	}
	if m["truncated"] != true {
		t.Errorf("truncated = %v", m["truncated"])
	}
	if m["bytes"] != 5000 {
		t.Errorf("bytes = %v, want 5000", m["bytes"])
	}
}

func TestReadFileTooLarge(t *testing.T) {
	r, root := newTestRegistry(t)
	mustWrite(t, filepath.Join(root, "notes", "huge.txt"), strings.Repeat("a", maxReadBytes+1))

	res := execTool(t, r, "read_file", `{"path":"notes/huge.txt"}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("read_file ok = true for oversized file")
	}
	if !strings.Contains(res.Error, "too large") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestReadFilePolicyRejection(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := execTool(t, r, "read_file", `{"path":"../outside.txt"}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("read_file ok = true for escaping path")
	}
	if !strings.Contains(res.Error, "policy") {
		t.Errorf("error = %q, want policy rejection", res.Error)
	}
}

func TestListDir(t *testing.T) {
	r, root := newTestRegistry(t)
	mustWrite(t, filepath.Join(root, "notes", "a.txt"), "a")
	if err := os.MkdirAll(filepath.Join(root, "notes", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	res := execTool(t, r, "list_dir", `{"path":"notes"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("list_dir error = %q", res.Error)
	}
	m := resultMap(t, res)
	entries := m["entries"].([]dirEntry)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	types := map[string]string{}
	for _, e := range entries {
		types[e.Name] = e.Type
	}
	if types["a.txt"] != "file" || types["sub"] != "dir" {
		t.Errorf("entry types = %v", types)
	}
	if m["capped"] != false {
		t.Errorf("capped = %v", m["capped"])
	}
}

func TestListDirCapsEntries(t *testing.T) {
	r, root := newTestRegistry(t)
	for i := 0; i < maxDirEntries+10; i++ {
		mustWrite(t, filepath.Join(root, "notes", fmt.Sprintf("f-%03d.txt", i)), "x")
	}

	res := execTool(t, r, "list_dir", `{"path":"notes"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("list_dir error = %q", res.Error)
	}
	m := resultMap(t, res)
	if m["count"] != maxDirEntries {
		t.Errorf("count = %v, want %d", m["count"], maxDirEntries)
	}
	if m["capped"] != true {
		t.Errorf("capped = %v", m["capped"])
	}
}

func TestWriteFileOverwriteGating(t *testing.T) {
	r, root := newTestRegistry(t)
	target := filepath.Join(root, "data", "outputs", "x.txt")

	res := execTool(t, r, "write_file", `{"path":"data/outputs/x.txt","content":"A","overwrite":false}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("write_file #1 error = %q", res.Error)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "A" {
		t.Errorf("content = %q, want A", got)
	}

	res = execTool(t, r, "write_file", `{"path":"data/outputs/x.txt","content":"B","overwrite":false}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("write_file #2 ok = true, want File exists")
	}
	if !strings.Contains(res.Error, "File exists") {
		t.Errorf("error = %q, want File exists", res.Error)
	}
	got, _ = os.ReadFile(target)
	if string(got) != "A" {
		t.Errorf("content after refused overwrite = %q, want A", got)
	}

	res = execTool(t, r, "write_file", `{"path":"data/outputs/x.txt","content":"B","overwrite":true}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("write_file #3 error = %q", res.Error)
	}
	got, _ = os.ReadFile(target)
	if string(got) != "B" {
		t.Errorf("content after overwrite = %q, want B", got)
	}
}

func TestWriteFileDeniedOutsideOutputs(t *testing.T) {
	r, root := newTestRegistry(t)
	res := execTool(t, r, "write_file", `{"path":"notes/should-fail.txt","content":"nope"}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("write_file ok = true for denied path")
	}
	if !strings.Contains(res.Error, "write path not allowed") {
		t.Errorf("error = %q", res.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "notes", "should-fail.txt")); !os.IsNotExist(err) {
		t.Error("denied write created a file")
	}
}

func TestWriteFileDevPurposeAllowsSrc(t *testing.T) {
	r, root := newTestRegistry(t)

	res := execTool(t, r, "write_file", `{"path":"src/gen.ts","content":"x"}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("write_file to src ok under default purpose")
	}
	res = execTool(t, r, "write_file", `{"path":"src/gen.ts","content":"x"}`, models.PurposeDev)
	if !res.OK {
		t.Fatalf("write_file to src under dev error = %q", res.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "gen.ts")); err != nil {
		t.Errorf("Stat() error = %v", err)
	}
}

func TestRunCmd(t *testing.T) {
	root := t.TempDir()
	engine := policy.NewEngineWithCommands(root, []string{"echo hello"})
	r := NewRegistry()
	r.MustRegister(NewRunCmdTool(engine))

	res := execTool(t, r, "run_cmd", `{"command":"echo hello"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("run_cmd error = %q", res.Error)
	}
	m := resultMap(t, res)
	if m["success"] != true || m["exit_code"] != 0 {
		t.Errorf("success = %v, exit_code = %v", m["success"], m["exit_code"])
	}
	if strings.TrimSpace(m["stdout"].(string)) != "hello" {
		t.Errorf("stdout = %q", m["stdout"])
	}
}

func TestRunCmdRejectsUnlisted(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := execTool(t, r, "run_cmd", `{"command":"rm -rf /"}`, models.PurposeDefault)
	if res.OK {
		t.Fatal("run_cmd ok = true for unlisted command")
	}
	if !strings.Contains(res.Error, "allowlist") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunCmdTimeout(t *testing.T) {
	root := t.TempDir()
	engine := policy.NewEngineWithCommands(root, []string{"sleep 30"})
	r := NewRegistry()
	r.MustRegister(NewRunCmdToolWithTimeout(engine, 200*time.Millisecond))

	start := time.Now()
	res := execTool(t, r, "run_cmd", `{"command":"sleep 30"}`, models.PurposeDefault)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		t.Fatalf("run_cmd took %v, deadline not enforced", elapsed)
	}
	if !res.OK {
		t.Fatalf("run_cmd error = %q, want timed-out result", res.Error)
	}
	m := resultMap(t, res)
	if m["timed_out"] != true {
		t.Errorf("timed_out = %v", m["timed_out"])
	}
	if m["success"] != false {
		t.Errorf("success = %v", m["success"])
	}
}

func TestRunCmdTruncatesStreams(t *testing.T) {
	root := t.TempDir()
	engine := policy.NewEngineWithCommands(root, []string{"seq 1 5000"})
	r := NewRegistry()
	r.MustRegister(NewRunCmdTool(engine))

	res := execTool(t, r, "run_cmd", `{"command":"seq 1 5000"}`, models.PurposeDefault)
	if !res.OK {
		t.Fatalf("run_cmd error = %q", res.Error)
	}
	m := resultMap(t, res)
	if m["stdout_truncated"] != true {
		t.Errorf("stdout_truncated = %v", m["stdout_truncated"])
	}
	if got := len(m["stdout"].(string)); got != maxStreamChars {
		t.Errorf("stdout length = %d, want %d", got, maxStreamChars)
	}
}
