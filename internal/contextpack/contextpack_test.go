package contextpack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFilePacker_PackPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "util.go", "package main\n\nfunc helper() {}\n")

	p := NewFilePacker(nil)
	cfg := gantypes.SessionConfig{Scope: gantypes.ScopePaths, Paths: []string{"main.go", "util.go"}}

	pack := p.PackContext(context.Background(), cfg, dir)
	if pack.Fallback {
		t.Error("readable paths produced a fallback pack")
	}
	if !strings.Contains(pack.Content, "=== main.go ===") || !strings.Contains(pack.Content, "func helper()") {
		t.Errorf("pack missing file content:\n%s", pack.Content)
	}
}

func TestFilePacker_PackPathsAllUnreadable(t *testing.T) {
	p := NewFilePacker(nil)
	cfg := gantypes.SessionConfig{Scope: gantypes.ScopePaths, Paths: []string{"nope.go", "missing.go"}}

	pack := p.PackContext(context.Background(), cfg, t.TempDir())
	if !pack.Fallback {
		t.Error("unreadable paths did not mark the pack as fallback")
	}
	if pack.Content == "" {
		t.Error("fallback pack has no explanatory content")
	}
}

func TestFilePacker_PackWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "sub/b.py", "def b(): pass\n")
	writeFile(t, dir, "image.bin", "\x00\x01binary")
	writeFile(t, dir, ".hidden/secret.go", "package hidden\n")
	writeFile(t, dir, "node_modules/dep.js", "module.exports = {}\n")

	p := NewFilePacker(nil)
	cfg := gantypes.SessionConfig{Scope: gantypes.ScopeWorkspace}

	pack := p.PackContext(context.Background(), cfg, dir)
	if pack.Fallback {
		t.Error("populated workspace produced a fallback pack")
	}
	if !strings.Contains(pack.Content, "package a") || !strings.Contains(pack.Content, "def b()") {
		t.Errorf("pack missing source files:\n%s", pack.Content)
	}
	if strings.Contains(pack.Content, "binary") {
		t.Error("non-source file packed")
	}
	if strings.Contains(pack.Content, "package hidden") || strings.Contains(pack.Content, "module.exports") {
		t.Error("hidden or vendored directory packed")
	}
}

func TestFilePacker_EmptyWorkspaceFallsBack(t *testing.T) {
	p := NewFilePacker(nil)
	pack := p.PackContext(context.Background(), gantypes.SessionConfig{Scope: gantypes.ScopeWorkspace}, t.TempDir())
	if !pack.Fallback {
		t.Error("empty workspace did not fall back")
	}
}

func TestFilePacker_DiffScopeWithoutRepoFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")

	p := NewFilePacker(nil)
	pack := p.PackContext(context.Background(), gantypes.SessionConfig{Scope: gantypes.ScopeDiff}, dir)
	if !pack.Fallback {
		t.Error("diff scope outside a repository did not fall back")
	}
	if !strings.Contains(pack.Content, "package a") {
		t.Errorf("fallback did not pack the workspace:\n%s", pack.Content)
	}
}

func TestFilePacker_BudgetTruncates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.go", strings.Repeat("// padding line\n", 2_000))

	p := NewFilePacker(nil)
	p.CharBudget = 500
	pack := p.PackContext(context.Background(), gantypes.SessionConfig{Scope: gantypes.ScopeWorkspace}, dir)

	if len(pack.Content) > 600 {
		t.Errorf("pack length %d exceeds budget by too much", len(pack.Content))
	}
	if !strings.Contains(pack.Content, "context truncated") {
		t.Error("truncated pack carries no truncation marker")
	}
}
