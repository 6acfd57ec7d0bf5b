package classify

import (
	"testing"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		comment      string
		wantCategory Category
		wantPriority Priority
	}{
		{
			name:         "sql injection is security high",
			comment:      "User input flows into the query unescaped, classic injection risk",
			wantCategory: Security,
			wantPriority: PriorityHigh,
		},
		{
			name:         "blocker severity overrides category default",
			comment:      "Blocker: credential is logged in plaintext",
			wantCategory: Security,
			wantPriority: PriorityCritical,
		},
		{
			name:         "swallowed error",
			comment:      "The write result is an ignored error, failures vanish silently",
			wantCategory: ErrorHandling,
			wantPriority: PriorityHigh,
		},
		{
			name:         "quadratic loop",
			comment:      "This nested scan is O(n^2) over the candidate list",
			wantCategory: Performance,
			wantPriority: PriorityMedium,
		},
		{
			name:         "missing test",
			comment:      "No test covers the empty-input branch",
			wantCategory: Testing,
			wantPriority: PriorityMedium,
		},
		{
			name:         "nit formatting",
			comment:      "nit: indent is inconsistent here",
			wantCategory: Style,
			wantPriority: PriorityLow,
		},
		{
			name:         "unmatched comment defaults to maintainability low",
			comment:      "Could this be simpler?",
			wantCategory: Maintainability,
			wantPriority: PriorityLow,
		},
		{
			name:         "explicit severity word wins",
			comment:      "Major duplication between these two helpers",
			wantCategory: Maintainability,
			wantPriority: PriorityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(gantypes.InlineComment{Comment: tt.comment})
			if got.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", got.Category, tt.wantCategory)
			}
			if got.Priority != tt.wantPriority {
				t.Errorf("priority = %s, want %s", got.Priority, tt.wantPriority)
			}
		})
	}
}

func TestClassifyAll_SortsByPriority(t *testing.T) {
	comments := []gantypes.InlineComment{
		{Comment: "nit: naming convention"},
		{Comment: "Blocker: token leak in the debug endpoint"},
		{Comment: "This branch has a bug on empty input"},
	}

	issues := ClassifyAll(comments)
	if len(issues) != 3 {
		t.Fatalf("len = %d, want 3", len(issues))
	}
	if issues[0].Priority != PriorityCritical {
		t.Errorf("first issue priority = %s, want critical", issues[0].Priority)
	}
	if issues[len(issues)-1].Priority != PriorityLow {
		t.Errorf("last issue priority = %s, want low", issues[len(issues)-1].Priority)
	}
}

func TestIsCritical(t *testing.T) {
	critical := Classify(gantypes.InlineComment{Comment: "Blocker: password stored unsalted"})
	if !IsCritical(critical) {
		t.Error("blocker security issue not critical")
	}

	routine := Classify(gantypes.InlineComment{Comment: "nit: whitespace"})
	if IsCritical(routine) {
		t.Error("style nit marked critical")
	}
}

func TestCriticalIssuesAndImprovements_Partition(t *testing.T) {
	issues := ClassifyAll([]gantypes.InlineComment{
		{Path: "auth.go", Line: 10, Comment: "Critical: auth bypass on empty token"},
		{Path: "util.go", Line: 4, Comment: "Duplicated helper, refactor"},
	})

	critical := CriticalIssues(issues)
	improvements := Improvements(issues)
	if len(critical) != 1 || len(improvements) != 1 {
		t.Fatalf("partition = %d critical / %d improvements, want 1/1", len(critical), len(improvements))
	}
	if critical[0] == improvements[0] {
		t.Error("same issue appeared in both lists")
	}
}

func TestNextSteps_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		comments []string
	}{
		{"no issues", nil},
		{"one issue", []string{"bug in the edge case"}},
		{"many issues", []string{
			"Blocker: injection here",
			"bug on empty input",
			"slow quadratic loop",
			"no test for this branch",
			"nit: naming",
			"doc comment missing",
			"panic on nil map",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var comments []gantypes.InlineComment
			for _, c := range tt.comments {
				comments = append(comments, gantypes.InlineComment{Comment: c})
			}
			steps := NextSteps(ClassifyAll(comments), 3, 85, 70)
			if len(steps) < 3 || len(steps) > 5 {
				t.Errorf("NextSteps returned %d steps, want 3-5: %v", len(steps), steps)
			}
		})
	}
}
