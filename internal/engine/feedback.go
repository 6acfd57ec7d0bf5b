package engine

import (
	"fmt"

	"github.com/ganauditor/ganauditor/internal/classify"
	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// Feedback is the structured guidance attached to every audit result:
// what to fix first, what can wait, and what to do next.
type Feedback struct {
	Summary        string   `json:"summary"`
	Improvements   []string `json:"improvements"`
	CriticalIssues []string `json:"criticalIssues"`
	NextSteps      []string `json:"nextSteps"`
}

// buildFeedback classifies the verdict's inline comments and derives the
// prioritized lists. The summary leads with the verdict and score so a caller
// reading only one line still knows where they stand.
func buildFeedback(verdict *gantypes.JudgeVerdict, cfg gantypes.SessionConfig, loop int) Feedback {
	issues := classify.ClassifyAll(verdict.Review.Inline)

	fb := Feedback{
		Summary:        feedbackSummary(verdict, cfg.Threshold, loop, issues),
		Improvements:   classify.Improvements(issues),
		CriticalIssues: classify.CriticalIssues(issues),
		NextSteps:      classify.NextSteps(issues, loop, cfg.Threshold, verdict.Overall),
	}
	return fb
}

func feedbackSummary(verdict *gantypes.JudgeVerdict, threshold, loop int, issues []classify.Issue) string {
	critical := 0
	for _, issue := range issues {
		if classify.IsCritical(issue) {
			critical++
		}
	}

	standing := "below"
	if verdict.Overall >= threshold {
		standing = "at or above"
	}
	s := fmt.Sprintf("Loop %d: verdict %s, score %d (%s the %d threshold)",
		loop, verdict.Verdict, verdict.Overall, standing, threshold)
	if critical > 0 {
		s += fmt.Sprintf(", %d critical issue(s) open", critical)
	}
	if verdict.Cached {
		s += " [cached]"
	}
	if verdict.TimedOut {
		s += fmt.Sprintf(" [partial, %.0f%% of dimensions scored]", verdict.CompletionPercentage*100)
	}
	if verdict.Review.Summary != "" {
		s += ". " + verdict.Review.Summary
	}
	return s
}
