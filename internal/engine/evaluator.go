package engine

import (
	"fmt"
	"strings"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// Completion tier and kill-switch constants. Tiers trade quality for loop
// count; the hard stop and stagnation terminate regardless of quality.
const (
	tier1Score, tier1Loop = 95, 10
	tier2Score, tier2Loop = 90, 15
	tier3Score, tier3Loop = 85, 20
	hardStopLoop          = 25
	stagnationMinLoop     = 10
)

// Decision is the completion evaluator's output for one iteration.
type Decision struct {
	Reason            gantypes.CompletionReason `json:"reason"`
	IsComplete        bool                      `json:"isComplete"`
	Terminated        bool                      `json:"terminated"`
	NextThoughtNeeded bool                      `json:"nextThoughtNeeded"`
	Message           string                    `json:"message"`
}

// Evaluate is the pure completion decision. The rows are checked top to
// bottom and the first match wins: at or past the loop ceiling the hard stop
// applies regardless of score; below it, quality tiers are rewarded before
// stagnation, so stagnation can never short-circuit a legitimate completion.
func Evaluate(score, loop int, stagnation *gantypes.StagnationRecord) Decision {
	switch {
	case loop >= hardStopLoop:
		return Decision{
			Reason:     gantypes.ReasonMaxLoopsReached,
			IsComplete: true,
			Terminated: true,
			Message:    fmt.Sprintf("hard stop after %d loops", loop),
		}
	case score >= tier1Score && loop >= tier1Loop:
		return Decision{
			Reason:     gantypes.ReasonScore95At10,
			IsComplete: true,
			Message:    fmt.Sprintf("excellent score %d at loop %d", score, loop),
		}
	case score >= tier2Score && loop >= tier2Loop:
		return Decision{
			Reason:     gantypes.ReasonScore90At15,
			IsComplete: true,
			Message:    fmt.Sprintf("high score %d at loop %d", score, loop),
		}
	case score >= tier3Score && loop >= tier3Loop:
		return Decision{
			Reason:     gantypes.ReasonScore85At20,
			IsComplete: true,
			Message:    fmt.Sprintf("passing score %d at loop %d", score, loop),
		}
	case stagnation != nil && stagnation.IsStagnant && stagnation.DetectedAtLoop >= stagnationMinLoop:
		return Decision{
			Reason:     gantypes.ReasonStagnationDetected,
			IsComplete: true,
			Terminated: true,
			Message:    stagnation.Recommendation,
		}
	default:
		return Decision{
			Reason:            gantypes.ReasonInProgress,
			NextThoughtNeeded: true,
			Message:           fmt.Sprintf("score %d at loop %d, below completion tiers", score, loop),
		}
	}
}

// Termination is the assessment of a finished (or finishing) session.
type Termination struct {
	ShouldTerminate bool                      `json:"shouldTerminate"`
	Reason          gantypes.CompletionReason `json:"reason"`
	FailureRate     float64                   `json:"failureRate"`
	FinalAssessment string                    `json:"finalAssessment"`
}

// ShouldTerminate inspects a full session snapshot and reports whether a
// kill switch applies, along with a trajectory summary for the caller.
func ShouldTerminate(state *gantypes.SessionState) Termination {
	score := 0
	if state.LastVerdict != nil {
		score = state.LastVerdict.Overall
	}
	decision := Evaluate(score, state.CurrentLoop, state.Stagnation)

	t := Termination{
		ShouldTerminate: decision.Terminated,
		Reason:          decision.Reason,
		FailureRate:     failureRate(state.Iterations),
		FinalAssessment: finalAssessment(state),
	}
	return t
}

// failureRate is the fraction of iterations whose verdict was not pass.
func failureRate(iterations []gantypes.Iteration) float64 {
	if len(iterations) == 0 {
		return 0
	}
	failed := 0
	for _, it := range iterations {
		if it.Verdict.Verdict != gantypes.VerdictPass {
			failed++
		}
	}
	return float64(failed) / float64(len(iterations))
}

// finalAssessment builds a human-readable paragraph summarizing the
// session's trajectory: best score, average improvement, critical findings.
func finalAssessment(state *gantypes.SessionState) string {
	if len(state.Iterations) == 0 {
		return "No iterations recorded for this session."
	}

	best := 0
	criticalCount := 0
	for _, it := range state.Iterations {
		if it.Verdict.Overall > best {
			best = it.Verdict.Overall
		}
		for _, c := range it.Verdict.Review.Inline {
			lower := strings.ToLower(c.Comment)
			if strings.Contains(lower, "critical") || strings.Contains(lower, "blocker") {
				criticalCount++
			}
		}
	}

	improvement := 0.0
	if len(state.Iterations) >= 2 {
		first := state.Iterations[0].Verdict.Overall
		last := state.Iterations[len(state.Iterations)-1].Verdict.Overall
		improvement = float64(last-first) / float64(len(state.Iterations)-1)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s ran %d loops. Best score: %d. Average improvement per loop: %.1f.",
		state.ID, state.CurrentLoop, best, improvement)
	if criticalCount > 0 {
		fmt.Fprintf(&sb, " %d critical findings remain open.", criticalCount)
	}
	if state.Stagnation != nil && state.Stagnation.IsStagnant {
		fmt.Fprintf(&sb, " Candidates stagnated at loop %d (similarity %.2f).",
			state.Stagnation.DetectedAtLoop, state.Stagnation.SimilarityScore)
	}
	return sb.String()
}
