// Package classify maps judge inline comments into issue categories and
// priorities, and derives the structured feedback lists returned to the
// caller.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// Category buckets an inline comment by the kind of problem it raises.
type Category string

const (
	Security        Category = "security"
	Performance     Category = "performance"
	Style           Category = "style"
	Logic           Category = "logic"
	ErrorHandling   Category = "error_handling"
	Maintainability Category = "maintainability"
	Testing         Category = "testing"
	Documentation   Category = "documentation"
	Architecture    Category = "architecture"
	Compatibility   Category = "compatibility"
)

// Priority grades how urgently an issue should be fixed.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// categoryPatterns maps each category to the keywords that select it.
// Checked in order; the first match wins.
var categoryPatterns = []struct {
	category Category
	pattern  *regexp.Regexp
}{
	{Security, regexp.MustCompile(`(?i)\b(injection|xss|csrf|secret|credential|password|token leak|sanitiz|escap(e|ing)|vulnerab|unsafe|auth)\b`)},
	{ErrorHandling, regexp.MustCompile(`(?i)\b(unhandled|ignored error|error handling|panic|nil pointer|null check|swallow(s|ed)? error|except)\b`)},
	{Performance, regexp.MustCompile(`(?i)\b(slow|performance|alloc|quadratic|o\(n\^?2\)|latency|memory leak|blocking|inefficien)\b`)},
	{Testing, regexp.MustCompile(`(?i)\b(test|coverage|assert|mock|fixture)\b`)},
	{Documentation, regexp.MustCompile(`(?i)\b(doc|comment|godoc|readme|changelog)\b`)},
	{Compatibility, regexp.MustCompile(`(?i)\b(backward|compat|deprecat|breaking change|version)\b`)},
	{Architecture, regexp.MustCompile(`(?i)\b(coupling|layer|dependency|architecture|circular|abstraction|interface design)\b`)},
	{Maintainability, regexp.MustCompile(`(?i)\b(duplicat|complex|readab|refactor|magic number|naming|dead code)\b`)},
	{Logic, regexp.MustCompile(`(?i)\b(incorrect|wrong|bug|off.by.one|edge case|race|invariant|logic)\b`)},
	{Style, regexp.MustCompile(`(?i)\b(style|format|lint|indent|whitespace|convention)\b`)},
}

// severityPattern picks up explicit severity hints in comment text.
var severityPattern = regexp.MustCompile(`(?i)\b(blocker|critical|severe|must fix|high|major|medium|moderate|minor|low|nit|nitpick)\b`)

// Issue is one classified inline comment.
type Issue struct {
	Category Category `json:"category"`
	Priority Priority `json:"priority"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Comment  string   `json:"comment"`
}

// Classify assigns a category and priority to one inline comment.
func Classify(c gantypes.InlineComment) Issue {
	category := categorize(c.Comment)
	return Issue{
		Category: category,
		Priority: prioritize(c.Comment, category),
		Path:     c.Path,
		Line:     c.Line,
		Comment:  c.Comment,
	}
}

func categorize(comment string) Category {
	for _, cp := range categoryPatterns {
		if cp.pattern.MatchString(comment) {
			return cp.category
		}
	}
	return Maintainability
}

// prioritize derives a priority from explicit severity words, then from the
// category's typical weight.
func prioritize(comment string, category Category) Priority {
	if m := severityPattern.FindString(comment); m != "" {
		switch strings.ToLower(m) {
		case "blocker", "critical", "severe", "must fix":
			return PriorityCritical
		case "high", "major":
			return PriorityHigh
		case "medium", "moderate":
			return PriorityMedium
		default:
			return PriorityLow
		}
	}

	switch category {
	case Security:
		return PriorityHigh
	case Logic, ErrorHandling:
		return PriorityHigh
	case Performance, Testing, Architecture, Compatibility:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// IsCritical reports whether an issue must block completion feedback:
// critical priority, or a security issue with a blocker/critical severity hint.
func IsCritical(issue Issue) bool {
	if issue.Priority == PriorityCritical {
		return true
	}
	if issue.Category != Security {
		return false
	}
	hint := strings.ToLower(severityPattern.FindString(issue.Comment))
	return hint == "blocker" || hint == "critical"
}

// priorityRank orders priorities for sorting, highest urgency first.
func priorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// ClassifyAll classifies every inline comment, ordered by descending
// priority with the original order preserved within a priority.
func ClassifyAll(comments []gantypes.InlineComment) []Issue {
	issues := make([]Issue, 0, len(comments))
	for _, c := range comments {
		issues = append(issues, Classify(c))
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return priorityRank(issues[i].Priority) < priorityRank(issues[j].Priority)
	})
	return issues
}

// CriticalIssues returns the display strings for every critical issue.
func CriticalIssues(issues []Issue) []string {
	var out []string
	for _, issue := range issues {
		if IsCritical(issue) {
			out = append(out, describe(issue))
		}
	}
	return out
}

// Improvements returns the display strings for every non-critical issue.
func Improvements(issues []Issue) []string {
	var out []string
	for _, issue := range issues {
		if !IsCritical(issue) {
			out = append(out, describe(issue))
		}
	}
	return out
}

func describe(issue Issue) string {
	loc := ""
	if issue.Path != "" {
		loc = issue.Path
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", issue.Path, issue.Line)
		}
		loc = " (" + loc + ")"
	}
	return fmt.Sprintf("[%s/%s] %s%s", issue.Category, issue.Priority, issue.Comment, loc)
}

// NextSteps derives 3-5 ordered actions from the highest-priority issues and
// the loop position.
func NextSteps(issues []Issue, currentLoop, threshold, score int) []string {
	var steps []string

	for _, issue := range issues {
		if len(steps) == 4 {
			break
		}
		verb := "Address"
		if IsCritical(issue) {
			verb = "Fix"
		}
		steps = append(steps, fmt.Sprintf("%s the %s issue: %s", verb, issue.Category, firstSentence(issue.Comment)))
	}

	if score < threshold {
		steps = append(steps, fmt.Sprintf("Raise the overall score above the %d threshold (currently %d)", threshold, score))
	}
	if len(steps) < 3 {
		steps = append(steps, "Re-run the audit after revising the candidate")
	}
	if len(steps) < 3 {
		steps = append(steps, fmt.Sprintf("Review the rubric dimensions with the lowest scores before loop %d", currentLoop+1))
	}
	if len(steps) > 5 {
		steps = steps[:5]
	}
	return steps
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, ".!?\n"); i > 0 {
		return s[:i]
	}
	return s
}
