// Package contextpack assembles the bounded text blob handed to the judge as
// project context. The engine treats the blob opaquely; packers never fail,
// they degrade to a marked fallback blob instead.
package contextpack

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// DefaultCharBudget caps the packed blob size.
const DefaultCharBudget = 50_000

// maxFileBytes is the hard per-file cap; larger files are skipped.
const maxFileBytes = 1 << 20

// Pack is the bounded context blob plus provenance.
type Pack struct {
	Content string
	// Fallback marks blobs produced because the requested scope could not
	// be packed; the engine logs these but proceeds.
	Fallback bool
	// Source describes what was packed (diff, file list, workspace walk).
	Source string
}

// Packer turns a session's scope into a context pack.
type Packer interface {
	PackContext(ctx context.Context, cfg gantypes.SessionConfig, workDir string) Pack
}

// FilePacker is the default packer: git diff for scope=diff, the configured
// file list for scope=paths, and a source-file walk for scope=workspace.
type FilePacker struct {
	CharBudget int
	logger     *zap.Logger
}

// NewFilePacker creates a packer with the default character budget.
func NewFilePacker(logger *zap.Logger) *FilePacker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilePacker{CharBudget: DefaultCharBudget, logger: logger}
}

// PackContext implements Packer. It never returns an error; unreadable
// scopes produce a fallback blob.
func (p *FilePacker) PackContext(ctx context.Context, cfg gantypes.SessionConfig, workDir string) Pack {
	budget := p.CharBudget
	if budget <= 0 {
		budget = DefaultCharBudget
	}

	switch cfg.Scope {
	case gantypes.ScopeDiff:
		if pack, ok := p.packDiff(ctx, workDir, budget); ok {
			return pack
		}
		// No repository or no diff output; fall through to workspace.
		p.logger.Warn("diff scope unavailable, falling back to workspace walk", zap.String("workDir", workDir))
		pack := p.packWorkspace(workDir, budget)
		pack.Fallback = true
		return pack
	case gantypes.ScopePaths:
		return p.packPaths(cfg.Paths, workDir, budget)
	default:
		return p.packWorkspace(workDir, budget)
	}
}

func (p *FilePacker) packDiff(ctx context.Context, workDir string, budget int) (Pack, bool) {
	cmd := exec.CommandContext(ctx, "git", "diff", "HEAD")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		return Pack{}, false
	}
	return Pack{Content: truncate(string(out), budget), Source: "git diff HEAD"}, true
}

func (p *FilePacker) packPaths(paths []string, workDir string, budget int) Pack {
	var sb strings.Builder
	readable := 0
	for _, rel := range paths {
		if sb.Len() >= budget {
			break
		}
		full := rel
		if !filepath.IsAbs(full) {
			full = filepath.Join(workDir, rel)
		}
		info, err := os.Stat(full)
		if err != nil || info.IsDir() || info.Size() > maxFileBytes {
			p.logger.Warn("skipping unpackable path", zap.String("path", rel))
			continue
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		readable++
		fmt.Fprintf(&sb, "=== %s ===\n%s\n", rel, raw)
	}
	if readable == 0 {
		return Pack{
			Content:  fmt.Sprintf("(no readable context: none of the %d configured paths could be packed)", len(paths)),
			Fallback: true,
			Source:   "paths",
		}
	}
	return Pack{Content: truncate(sb.String(), budget), Source: fmt.Sprintf("%d configured paths", readable)}
}

// sourceExtensions limits the workspace walk to text we can usefully show a
// reviewer.
var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".rb": true, ".rs": true, ".java": true, ".c": true,
	".h": true, ".cpp": true, ".md": true, ".yaml": true, ".yml": true,
	".json": true, ".sql": true, ".sh": true,
}

func (p *FilePacker) packWorkspace(workDir string, budget int) Pack {
	var files []string
	_ = filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if sourceExtensions[filepath.Ext(name)] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	var sb strings.Builder
	for _, f := range files {
		if sb.Len() >= budget {
			break
		}
		info, err := os.Stat(f)
		if err != nil || info.Size() > maxFileBytes {
			continue
		}
		raw, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(workDir, f)
		if err != nil {
			rel = f
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s\n", rel, raw)
	}
	if sb.Len() == 0 {
		return Pack{Content: "(no readable context in workspace)", Fallback: true, Source: "workspace"}
	}
	return Pack{Content: truncate(sb.String(), budget), Source: fmt.Sprintf("workspace walk (%d files)", len(files))}
}

func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	return s[:budget] + "\n... (context truncated)"
}
