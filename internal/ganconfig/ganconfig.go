// Package ganconfig extracts inline session configuration and candidate code
// from free-form thought text. Configuration arrives as a fenced gan-config
// (or json) block holding a partial SessionConfig; candidates arrive as
// fenced code blocks.
package ganconfig

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// fencedBlockPattern matches a fenced block with an optional language tag,
// capturing the tag and the body.
var fencedBlockPattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)[ \t]*\n(.*?)```")

// tildeBlockPattern matches tilde-fenced blocks, which some models emit.
var tildeBlockPattern = regexp.MustCompile("(?s)~~~([a-zA-Z0-9_-]*)[ \t]*\n(.*?)~~~")

// partialConfig mirrors SessionConfig with pointer fields so absent keys are
// distinguishable from zero values.
type partialConfig struct {
	Task       *string   `json:"task"`
	Scope      *string   `json:"scope"`
	Paths      *[]string `json:"paths"`
	Threshold  *int      `json:"threshold"`
	MaxCycles  *int      `json:"maxCycles"`
	Candidates *int      `json:"candidates"`
	Judges     *[]string `json:"judges"`
	ApplyFixes *bool     `json:"applyFixes"`
}

// MergeInlineConfig finds the first gan-config (or json) fenced block in the
// thought text and merges it into base. The merged config is sanitized; all
// adjustment warnings are returned. A missing, empty, or unparseable block
// leaves base unchanged apart from sanitization.
func MergeInlineConfig(base gantypes.SessionConfig, thought string) (gantypes.SessionConfig, []string) {
	var warnings []string

	body, found := findConfigBlock(thought)
	if found {
		body = strings.TrimSpace(body)
		if body == "" {
			warnings = append(warnings, "inline config block is empty, ignoring")
		} else {
			var partial partialConfig
			if err := json.Unmarshal([]byte(body), &partial); err != nil {
				warnings = append(warnings, "inline config block is not valid JSON, ignoring")
			} else {
				applyPartial(&base, partial)
			}
		}
	}

	warnings = append(warnings, base.Sanitize()...)
	return base, warnings
}

// findConfigBlock returns the body of the first gan-config or json fenced
// block. gan-config blocks win over json blocks regardless of position only
// when both tags appear on the same block; otherwise the first matching
// block in document order is used.
func findConfigBlock(thought string) (string, bool) {
	for _, m := range fencedBlockPattern.FindAllStringSubmatch(thought, -1) {
		tag := strings.ToLower(m[1])
		if tag == "gan-config" || tag == "json" {
			return m[2], true
		}
	}
	return "", false
}

func applyPartial(cfg *gantypes.SessionConfig, p partialConfig) {
	if p.Task != nil {
		cfg.Task = *p.Task
	}
	if p.Scope != nil {
		cfg.Scope = gantypes.Scope(*p.Scope)
	}
	if p.Paths != nil {
		cfg.Paths = *p.Paths
	}
	if p.Threshold != nil {
		cfg.Threshold = *p.Threshold
	}
	if p.MaxCycles != nil {
		cfg.MaxCycles = *p.MaxCycles
	}
	if p.Candidates != nil {
		cfg.Candidates = *p.Candidates
	}
	if p.Judges != nil {
		cfg.Judges = *p.Judges
	}
	if p.ApplyFixes != nil {
		cfg.ApplyFixes = *p.ApplyFixes
	}
}

// configTags are fence tags that denote configuration, not auditable code.
var configTags = map[string]bool{"gan-config": true, "json": true, "": false}

// ExtractCandidate returns the code candidate embedded in the thought text.
// Fenced blocks that are not configuration are concatenated in order; when no
// fence exists, an inline-code heuristic catches single-line snippets. The
// second return is false when the thought carries no auditable code.
func ExtractCandidate(thought string) (string, bool) {
	var parts []string
	for _, pattern := range []*regexp.Regexp{fencedBlockPattern, tildeBlockPattern} {
		for _, m := range pattern.FindAllStringSubmatch(thought, -1) {
			tag := strings.ToLower(m[1])
			if configTags[tag] {
				continue
			}
			body := strings.TrimRight(m[2], "\n")
			if strings.TrimSpace(body) != "" {
				parts = append(parts, body)
			}
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n"), true
	}

	// Heuristic for unfenced one-liners: a line that looks like code rather
	// than prose. Fenced blocks are stripped first so a config block's JSON
	// never reads as a candidate.
	prose := fencedBlockPattern.ReplaceAllString(thought, "")
	prose = tildeBlockPattern.ReplaceAllString(prose, "")
	for _, line := range strings.Split(prose, "\n") {
		trimmed := strings.TrimSpace(line)
		if looksLikeCode(trimmed) {
			return trimmed, true
		}
	}
	return "", false
}

// codeLinePattern matches statements and declarations common across the
// languages the auditor sees.
var codeLinePattern = regexp.MustCompile(`^(func |def |class |function |const |let |var |import |package |public |private |#include)|[;{}]\s*$|=>|\breturn\b.*[;)]`)

func looksLikeCode(line string) bool {
	if len(line) < 8 {
		return false
	}
	return codeLinePattern.MatchString(line)
}
