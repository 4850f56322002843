package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestResolvePathRead(t *testing.T) {
	e := NewEngine(t.TempDir())

	tests := []struct {
		name string
		path string
		rule string
	}{
		{"src file", "src/main.ts", ""},
		{"data file", "data/items.json", ""},
		{"logs file", "logs/app.log", ""},
		{"notes file", "notes/test.txt", ""},
		{"readme", "README.md", ""},
		{"package manifest", "package.json", ""},
		{"windows separators", "src\\util\\helpers.ts", ""},
		{"leading whitespace", "  notes/test.txt  ", ""},
		{"empty", "", RuleEmpty},
		{"whitespace only", "   ", RuleEmpty},
		{"absolute", "/etc/passwd", RuleAbsolute},
		{"parent traversal", "../secrets.txt", RuleTraversal},
		{"embedded traversal", "src/../../other", RuleTraversal},
		{"git metadata", ".git/config", RuleSegment},
		{"nested node_modules", "src/node_modules/pkg/index.js", RuleSegment},
		{"dist", "dist/bundle.js", RuleSegment},
		{"dotenv", "src/.env", RuleFile},
		{"dotenv variant", "src/.env.local", RuleFile},
		{"outside prefixes", "etc/hosts", RulePrefix},
		{"prefix is not substring", "srcfoo/a.txt", RulePrefix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := e.ResolvePath(tt.path, AccessRead, models.PurposeDefault)
			if tt.rule == "" {
				if err != nil {
					t.Fatalf("ResolvePath(%q) error = %v, want nil", tt.path, err)
				}
				if !filepath.IsAbs(resolved) {
					t.Errorf("ResolvePath(%q) = %q, want absolute", tt.path, resolved)
				}
				return
			}
			if err == nil {
				t.Fatalf("ResolvePath(%q) = %q, want %s error", tt.path, resolved, tt.rule)
			}
			pe, ok := err.(*Error)
			if !ok {
				t.Fatalf("ResolvePath(%q) error type = %T, want *Error", tt.path, err)
			}
			if pe.Rule != tt.rule {
				t.Errorf("ResolvePath(%q) rule = %q, want %q", tt.path, pe.Rule, tt.rule)
			}
		})
	}
}

func TestResolvePathWritePurpose(t *testing.T) {
	e := NewEngine(t.TempDir())

	if _, err := e.ResolvePath("data/outputs/report.md", AccessWrite, models.PurposeDefault); err != nil {
		t.Fatalf("ResolvePath(outputs, default) error = %v", err)
	}
	if _, err := e.ResolvePath("src/main.ts", AccessWrite, models.PurposeDefault); err == nil {
		t.Fatal("ResolvePath(src, default write) succeeded, want prefix error")
	}
	if _, err := e.ResolvePath("src/main.ts", AccessWrite, models.PurposeDev); err != nil {
		t.Fatalf("ResolvePath(src, dev write) error = %v", err)
	}
	if _, err := e.ResolvePath("notes/x.txt", AccessWrite, models.PurposeDev); err == nil {
		t.Fatal("ResolvePath(notes, dev write) succeeded, want prefix error")
	}
}

func TestResolvePathSymlink(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(root, "notes", "real.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "notes", "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	e := NewEngine(root)
	if _, err := e.ResolvePath("notes/real.txt", AccessRead, models.PurposeDefault); err != nil {
		t.Fatalf("ResolvePath(real) error = %v", err)
	}
	_, err := e.ResolvePath("notes/link.txt", AccessRead, models.PurposeDefault)
	if err == nil {
		t.Fatal("ResolvePath(link) succeeded, want symlink error")
	}
	if pe, ok := err.(*Error); !ok || pe.Rule != RuleSymlink {
		t.Errorf("ResolvePath(link) error = %v, want symlink rule", err)
	}
}

// Any path that passes read validation must fail with a segment error once a
// denied directory is prefixed onto it.
func TestDeniedSegmentSymmetry(t *testing.T) {
	e := NewEngine(t.TempDir())
	passing := []string{
		"src/main.ts",
		"data/items.json",
		"logs/app.log",
		"notes/test.txt",
		"README.md",
		"package.json",
	}
	for _, p := range passing {
		if _, err := e.ResolvePath(p, AccessRead, models.PurposeDefault); err != nil {
			t.Fatalf("precondition: ResolvePath(%q) error = %v", p, err)
		}
		for segment := range deniedSegments {
			prefixed := segment + "/" + p
			_, err := e.ResolvePath(prefixed, AccessRead, models.PurposeDefault)
			if err == nil {
				t.Fatalf("ResolvePath(%q) succeeded, want segment error", prefixed)
			}
			pe, ok := err.(*Error)
			if !ok || pe.Rule != RuleSegment {
				t.Errorf("ResolvePath(%q) error = %v, want segment rule", prefixed, err)
			}
		}
	}
}

func TestValidateCommand(t *testing.T) {
	e := NewEngine(t.TempDir())

	got, err := e.ValidateCommand("  npm test  ")
	if err != nil {
		t.Fatalf("ValidateCommand(npm test) error = %v", err)
	}
	if got != "npm test" {
		t.Errorf("ValidateCommand(npm test) = %q", got)
	}

	for _, cmd := range []string{"", "rm -rf /", "npm test; rm -rf /", "npm  test", "curl example.com"} {
		_, err := e.ValidateCommand(cmd)
		if err == nil {
			t.Fatalf("ValidateCommand(%q) succeeded, want command error", cmd)
		}
		if pe, ok := err.(*Error); !ok || pe.Rule != RuleCommand {
			t.Errorf("ValidateCommand(%q) error = %v, want command rule", cmd, err)
		}
	}
}

func TestValidateCommandCustomAllowlist(t *testing.T) {
	e := NewEngineWithCommands(t.TempDir(), []string{"sleep 30"})
	if _, err := e.ValidateCommand("sleep 30"); err != nil {
		t.Fatalf("ValidateCommand(sleep 30) error = %v", err)
	}
	if _, err := e.ValidateCommand("npm test"); err == nil {
		t.Fatal("ValidateCommand(npm test) succeeded with custom allowlist")
	}
}

func TestClassifyTool(t *testing.T) {
	tests := []struct {
		tool string
		want ToolKind
	}{
		{"read_file", KindRead},
		{"list_dir", KindRead},
		{"write_file", KindWrite},
		{"calculator", KindOther},
		{"run_cmd", KindOther},
		{"nonexistent", KindOther},
	}
	for _, tt := range tests {
		if got := ClassifyTool(tt.tool); got != tt.want {
			t.Errorf("ClassifyTool(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}

func TestPolicyErrorMessageNamesRule(t *testing.T) {
	e := NewEngine(t.TempDir())
	_, err := e.ResolvePath("../x", AccessRead, models.PurposeDefault)
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), RuleTraversal) {
		t.Errorf("error %q does not name rule %q", err.Error(), RuleTraversal)
	}
	if !IsPolicyError(err) {
		t.Error("IsPolicyError = false, want true")
	}
}
