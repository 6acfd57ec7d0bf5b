// Package fingerprint produces the deterministic digest that identifies an
// (input, configuration) pair for caching and similarity windows.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/rubric"
)

// Input is the tuple covered by the digest.
type Input struct {
	PromptTemplate string
	Candidate      string
	Rubric         rubric.Rubric
	Config         gantypes.SessionConfig
}

// Compute returns a hex-encoded 256-bit digest over the normalized input
// tuple. It is a pure function: the same tuple always yields the same
// digest, and it cannot fail.
func Compute(in Input) string {
	h := sha256.New()

	// Field separators keep (ab, c) distinct from (a, bc).
	h.Write([]byte("prompt\x00"))
	h.Write([]byte(Normalize(in.PromptTemplate)))
	h.Write([]byte("\x00candidate\x00"))
	h.Write([]byte(Normalize(in.Candidate)))

	// Canonical serialization: encoding/json emits struct fields in
	// declaration order and map-free structures deterministically.
	h.Write([]byte("\x00rubric\x00"))
	if raw, err := json.Marshal(in.Rubric); err == nil {
		h.Write(raw)
	}
	h.Write([]byte("\x00config\x00"))
	if raw, err := json.Marshal(workflowSubset(in.Config)); err == nil {
		h.Write(raw)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// workflowSubset keeps only the configuration fields that change what the
// judge is asked to do. Presentation-only options stay out so they don't
// defeat the cache.
type workflowSubsetT struct {
	Task       string   `json:"task"`
	Scope      string   `json:"scope"`
	Paths      []string `json:"paths,omitempty"`
	Threshold  int      `json:"threshold"`
	MaxCycles  int      `json:"maxCycles"`
	Candidates int      `json:"candidates"`
	Judges     []string `json:"judges"`
	ApplyFixes bool     `json:"applyFixes"`
}

func workflowSubset(c gantypes.SessionConfig) workflowSubsetT {
	return workflowSubsetT{
		Task:       c.Task,
		Scope:      string(c.Scope),
		Paths:      c.Paths,
		Threshold:  c.Threshold,
		MaxCycles:  c.MaxCycles,
		Candidates: c.Candidates,
		Judges:     c.Judges,
		ApplyFixes: c.ApplyFixes,
	}
}

// Normalize collapses line endings to \n and strips trailing whitespace from
// every line, preserving semantic content.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
