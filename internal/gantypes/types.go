// Package gantypes defines the canonical record types shared across the
// audit orchestrator: thoughts, session configuration, iterations, judge
// verdicts, and durable session state.
package gantypes

import "time"

// Thought is one submitted unit of work: free-form text that may embed a
// fenced code block, plus loop bookkeeping supplied by the caller.
type Thought struct {
	Thought           string `json:"thought"`
	ThoughtNumber     int    `json:"thoughtNumber"`
	TotalThoughts     int    `json:"totalThoughts"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded"`
	// BranchID optionally names the session. When empty the engine derives
	// a stable default session id for the connection.
	BranchID string `json:"branchId,omitempty"`
}

// Scope selects what the context packer includes.
type Scope string

const (
	ScopeDiff      Scope = "diff"
	ScopePaths     Scope = "paths"
	ScopeWorkspace Scope = "workspace"
)

// SessionConfig holds the per-session audit parameters.
type SessionConfig struct {
	Task       string   `json:"task"`
	Scope      Scope    `json:"scope"`
	Paths      []string `json:"paths,omitempty"`
	Threshold  int      `json:"threshold"`
	MaxCycles  int      `json:"maxCycles"`
	Candidates int      `json:"candidates"`
	Judges     []string `json:"judges"`
	ApplyFixes bool     `json:"applyFixes"`
}

// DefaultSessionConfig returns the documented defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Task:       "Audit and improve the candidate",
		Scope:      ScopeDiff,
		Threshold:  85,
		MaxCycles:  1,
		Candidates: 1,
		Judges:     []string{"internal"},
		ApplyFixes: false,
	}
}

// Sanitize clamps out-of-range values and reverts empty required fields to
// their defaults. It returns one human-readable warning per adjustment;
// nothing is ever rejected.
func (c *SessionConfig) Sanitize() []string {
	var warnings []string
	defaults := DefaultSessionConfig()

	if c.Task == "" {
		c.Task = defaults.Task
		warnings = append(warnings, "task is empty, using default")
	}

	switch c.Scope {
	case ScopeDiff, ScopePaths, ScopeWorkspace:
	case "":
		c.Scope = defaults.Scope
	default:
		warnings = append(warnings, "unknown scope "+string(c.Scope)+", using "+string(defaults.Scope))
		c.Scope = defaults.Scope
	}

	// scope=paths without paths cannot pack anything useful
	if c.Scope == ScopePaths && len(c.Paths) == 0 {
		c.Scope = ScopeWorkspace
		warnings = append(warnings, "scope=paths requires paths, falling back to workspace")
	}

	// Zero is a valid threshold (accept anything), so only out-of-range
	// values are clamped; unset thresholds are filled at session creation.
	if c.Threshold < 0 {
		c.Threshold = 0
		warnings = append(warnings, "threshold below minimum, clamped")
	} else if c.Threshold > 100 {
		c.Threshold = 100
		warnings = append(warnings, "threshold above maximum, clamped")
	}

	if w := clampInt(&c.MaxCycles, 1, 10, defaults.MaxCycles, "maxCycles"); w != "" {
		warnings = append(warnings, w)
	}
	if w := clampInt(&c.Candidates, 1, 5, defaults.Candidates, "candidates"); w != "" {
		warnings = append(warnings, w)
	}

	if len(c.Judges) == 0 {
		c.Judges = append([]string(nil), defaults.Judges...)
		warnings = append(warnings, "judges is empty, using default")
	}

	return warnings
}

// clampInt forces *v into [min,max]. A zero value is treated as "unset" and
// replaced by the default without a warning.
func clampInt(v *int, min, max, def int, name string) string {
	if *v == 0 {
		*v = def
		return ""
	}
	if *v < min {
		*v = min
		return name + " below minimum, clamped"
	}
	if *v > max {
		*v = max
		return name + " above maximum, clamped"
	}
	return ""
}

// VerdictKind is the judge's overall recommendation.
type VerdictKind string

const (
	VerdictPass   VerdictKind = "pass"
	VerdictRevise VerdictKind = "revise"
	VerdictReject VerdictKind = "reject"
)

// DimensionScore is one scored axis of the rubric.
type DimensionScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// InlineComment is a judge remark anchored to a file location.
type InlineComment struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// ReviewDetail carries the judge's prose review.
type ReviewDetail struct {
	Summary   string          `json:"summary"`
	Inline    []InlineComment `json:"inline"`
	Citations []string        `json:"citations"`
}

// JudgeCard records one judge model's individual score.
type JudgeCard struct {
	Model string `json:"model"`
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

// JudgeVerdict is the structured outcome of one audit.
type JudgeVerdict struct {
	Overall      int              `json:"overall"`
	Dimensions   []DimensionScore `json:"dimensions"`
	Verdict      VerdictKind      `json:"verdict"`
	Review       ReviewDetail     `json:"review"`
	ProposedDiff string           `json:"proposed_diff,omitempty"`
	Iterations   int              `json:"iterations"`
	JudgeCards   []JudgeCard      `json:"judge_cards"`

	// Cached marks verdicts served from the audit cache.
	Cached bool `json:"cached,omitempty"`
	// TimedOut marks partial verdicts recovered after a judge deadline.
	TimedOut bool `json:"timedOut,omitempty"`
	// CompletionPercentage is the fraction of expected dimensions that were
	// scored before a timeout. 1.0 for complete verdicts.
	CompletionPercentage float64 `json:"completionPercentage,omitempty"`
	// UsedFallbackParse marks verdicts recovered by the greedy JSON
	// extraction path rather than a clean top-level parse.
	UsedFallbackParse bool `json:"usedFallbackParse,omitempty"`
}

// Iteration is one append-only turn of the audit loop.
type Iteration struct {
	ThoughtNumber int          `json:"thoughtNumber"`
	Candidate     string       `json:"candidate"`
	Verdict       JudgeVerdict `json:"verdict"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// StagnationRecord is written once the loop detector fires.
type StagnationRecord struct {
	IsStagnant      bool    `json:"isStagnant"`
	DetectedAtLoop  int     `json:"detectedAtLoop"`
	SimilarityScore float64 `json:"similarityScore"`
	Recommendation  string  `json:"recommendation"`
}

// CompletionReason names why a session finished (or hasn't).
type CompletionReason string

const (
	ReasonScore95At10        CompletionReason = "score_95_at_10"
	ReasonScore90At15        CompletionReason = "score_90_at_15"
	ReasonScore85At20        CompletionReason = "score_85_at_20"
	ReasonMaxLoopsReached    CompletionReason = "max_loops_reached"
	ReasonStagnationDetected CompletionReason = "stagnation_detected"
	ReasonInProgress         CompletionReason = "in_progress"
)

// SessionState is the durable aggregate owned by the session store. The
// engine only ever holds read snapshots of it.
type SessionState struct {
	ID               string            `json:"id"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Config           SessionConfig     `json:"config"`
	Iterations       []Iteration       `json:"iterations"`
	CurrentLoop      int               `json:"currentLoop"`
	IsComplete       bool              `json:"isComplete"`
	CompletionReason CompletionReason  `json:"completionReason,omitempty"`
	Stagnation       *StagnationRecord `json:"stagnation,omitempty"`
	TerminationCause string            `json:"terminationCause,omitempty"`
	LastVerdict      *JudgeVerdict     `json:"lastVerdict,omitempty"`
}

// RecentCandidates returns the candidate texts of the last n iterations in
// insertion order.
func (s *SessionState) RecentCandidates(n int) []string {
	if n <= 0 || len(s.Iterations) == 0 {
		return nil
	}
	start := len(s.Iterations) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.Iterations)-start)
	for _, it := range s.Iterations[start:] {
		out = append(out, it.Candidate)
	}
	return out
}
