package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/similarity"
)

// LoopDetector gates the similarity analyzer behind a minimum loop count and
// turns its result into a durable stagnation record.
type LoopDetector struct {
	analyzer *similarity.Analyzer
	window   int
	minLoop  int
	logger   *zap.Logger
}

// NewLoopDetector creates a detector with the default window and gate.
func NewLoopDetector(analyzer *similarity.Analyzer, logger *zap.Logger) *LoopDetector {
	if analyzer == nil {
		analyzer = similarity.NewAnalyzer(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopDetector{
		analyzer: analyzer,
		window:   similarity.DefaultWindow,
		minLoop:  stagnationMinLoop,
		logger:   logger,
	}
}

// Inspect runs similarity analysis against the session's recent candidates.
// Before loop 10 stagnation is never reported. The first detection pins
// detectedAtLoop; later calls refresh only the similarity score.
func (d *LoopDetector) Inspect(state *gantypes.SessionState) *gantypes.StagnationRecord {
	if state.CurrentLoop < d.minLoop {
		return state.Stagnation
	}

	result := d.analyzer.Analyze(state.RecentCandidates(d.window))
	if !result.IsStagnant {
		if state.Stagnation != nil {
			// Keep the historical record but reflect the recovery.
			record := *state.Stagnation
			record.IsStagnant = false
			record.SimilarityScore = result.AverageSimilarity
			return &record
		}
		return nil
	}

	detectedAt := state.CurrentLoop
	if state.Stagnation != nil {
		detectedAt = state.Stagnation.DetectedAtLoop
	}

	record := &gantypes.StagnationRecord{
		IsStagnant:      true,
		DetectedAtLoop:  detectedAt,
		SimilarityScore: result.AverageSimilarity,
		Recommendation:  recommendation(detectedAt, result),
	}
	d.logger.Warn("stagnation detected",
		zap.String("session", state.ID),
		zap.Int("loop", detectedAt),
		zap.Float64("similarity", result.AverageSimilarity))
	return record
}

// recommendation names the dominant repeated pattern and suggests a
// different angle of attack.
func recommendation(loop int, result similarity.Result) string {
	msg := fmt.Sprintf("Consider changing approach: stagnation detected at loop %d with similarity %.2f",
		loop, result.AverageSimilarity)
	if len(result.RepeatedPatterns) > 0 {
		pattern := result.RepeatedPatterns[0]
		if len(pattern) > 80 {
			pattern = pattern[:80] + "..."
		}
		msg += fmt.Sprintf(". Repeated pattern: %q", pattern)
	}
	return msg
}
