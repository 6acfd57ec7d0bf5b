// Package similarity measures how alike recent candidate texts are, feeding
// the loop detector's stagnation verdict.
package similarity

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultWindow is how many recent candidates the analyzer considers.
const DefaultWindow = 10

// DefaultStagnationThreshold is the average similarity at or above which the
// window is considered stagnant.
const DefaultStagnationThreshold = 0.95

// minPatternLength is the shortest substring reported as a repeated pattern.
const minPatternLength = 16

// Result is the analyzer's output for one window of candidates.
type Result struct {
	AverageSimilarity float64  `json:"averageSimilarity"`
	IsStagnant        bool     `json:"isStagnant"`
	RepeatedPatterns  []string `json:"repeatedPatterns"`
}

// Analyzer computes pairwise similarity over candidate windows.
type Analyzer struct {
	threshold float64
	dmp       *diffmatchpatch.DiffMatchPatch
}

// NewAnalyzer creates an analyzer with the given stagnation threshold.
// Non-positive thresholds fall back to the default.
func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultStagnationThreshold
	}
	return &Analyzer{threshold: threshold, dmp: diffmatchpatch.New()}
}

// Analyze computes the average pairwise similarity of the inputs and the
// substrings repeated across at least half of them. Fewer than two inputs
// cannot stagnate.
func (a *Analyzer) Analyze(candidates []string) Result {
	if len(candidates) < 2 {
		return Result{}
	}

	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = normalizeWhitespace(c)
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			sum += a.pairSimilarity(normalized[i], normalized[j])
			pairs++
		}
	}

	avg := sum / float64(pairs)
	return Result{
		AverageSimilarity: avg,
		IsStagnant:        avg >= a.threshold,
		RepeatedPatterns:  repeatedPatterns(normalized),
	}
}

// pairSimilarity returns a symmetric measure in [0,1]: the fraction of diff
// text the two inputs share. Identical inputs score exactly 1.0.
func (a *Analyzer) pairSimilarity(x, y string) float64 {
	if x == y {
		return 1.0
	}
	if len(x) == 0 || len(y) == 0 {
		return 0.0
	}

	diffs := a.dmp.DiffMain(x, y, false)
	common, total := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			common += len(d.Text)
			total += len(d.Text)
		case diffmatchpatch.DiffInsert, diffmatchpatch.DiffDelete:
			total += len(d.Text)
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(common) / float64(total)
}

// repeatedPatterns finds lines of at least minPatternLength characters that
// appear in at least ⌈N/2⌉ of the inputs. When every input is the same text,
// the whole text is the pattern.
func repeatedPatterns(normalized []string) []string {
	allSame := true
	for _, s := range normalized[1:] {
		if s != normalized[0] {
			allSame = false
			break
		}
	}
	if allSame && normalized[0] != "" {
		return []string{normalized[0]}
	}

	required := (len(normalized) + 1) / 2
	counts := make(map[string]int)
	var order []string
	for _, input := range normalized {
		seen := make(map[string]bool)
		for _, line := range strings.Split(input, "\n") {
			line = strings.TrimSpace(line)
			if len(line) < minPatternLength || seen[line] {
				continue
			}
			seen[line] = true
			if counts[line] == 0 {
				order = append(order, line)
			}
			counts[line]++
		}
	}

	var patterns []string
	for _, line := range order {
		if counts[line] >= required {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

// normalizeWhitespace collapses line endings and trims trailing whitespace so
// formatting-only churn does not mask identical candidates.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
