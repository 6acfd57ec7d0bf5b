package judge

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/diag"
	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/rubric"
)

// ExecutePanel runs the reviewer once per requested candidate slot and
// aggregates the individual verdicts into one. With a single slot it is
// equivalent to Execute plus a judge card.
//
// Aggregation: overall and dimension scores are means (rounded, clamped);
// the combined verdict is the most severe individual verdict; reviews are
// concatenated. A timeout on any slot surfaces immediately, carrying
// whatever aggregate was assembled so far as a partial.
func (c *Client) ExecutePanel(ctx context.Context, req Request, judges []string) (*gantypes.JudgeVerdict, error) {
	slots := req.Budget.Candidates
	if slots < 1 {
		slots = 1
	}
	if len(judges) == 0 {
		judges = []string{"internal"}
	}

	var verdicts []*gantypes.JudgeVerdict
	var cards []gantypes.JudgeCard
	for i := 0; i < slots; i++ {
		model := judges[i%len(judges)]
		v, err := c.Execute(ctx, req)
		if err != nil {
			de := diag.AsError(err)
			if de.Category == diag.CategoryCodexTimeout && v != nil {
				// Keep the partial slot and stop fanning out.
				verdicts = append(verdicts, v)
				cards = append(cards, cardFor(model, v))
				agg := aggregate(verdicts, cards, req.Rubric)
				agg.TimedOut = true
				return agg, err
			}
			if len(verdicts) > 0 {
				c.logger.Warn("judge panel slot failed, aggregating completed slots",
					zap.Int("slot", i), zap.Error(err))
				break
			}
			return v, err
		}
		verdicts = append(verdicts, v)
		cards = append(cards, cardFor(model, v))
	}

	return aggregate(verdicts, cards, req.Rubric), nil
}

func cardFor(model string, v *gantypes.JudgeVerdict) gantypes.JudgeCard {
	return gantypes.JudgeCard{
		Model: model,
		Score: v.Overall,
		Notes: v.Review.Summary,
	}
}

func aggregate(verdicts []*gantypes.JudgeVerdict, cards []gantypes.JudgeCard, r rubric.Rubric) *gantypes.JudgeVerdict {
	if len(verdicts) == 1 {
		out := *verdicts[0]
		out.JudgeCards = cards
		return &out
	}

	out := &gantypes.JudgeVerdict{JudgeCards: cards}

	totalOverall := 0
	dimTotals := make(map[string]int)
	dimCounts := make(map[string]int)
	var dimOrder []string
	worst := gantypes.VerdictPass
	usedFallback := false

	for _, v := range verdicts {
		totalOverall += v.Overall
		for _, d := range v.Dimensions {
			if dimCounts[d.Name] == 0 {
				dimOrder = append(dimOrder, d.Name)
			}
			dimTotals[d.Name] += d.Score
			dimCounts[d.Name]++
		}
		if severity(v.Verdict) > severity(worst) {
			worst = v.Verdict
		}
		usedFallback = usedFallback || v.UsedFallbackParse
		if v.Review.Summary != "" {
			if out.Review.Summary != "" {
				out.Review.Summary += "\n---\n"
			}
			out.Review.Summary += v.Review.Summary
		}
		out.Review.Inline = append(out.Review.Inline, v.Review.Inline...)
		out.Review.Citations = append(out.Review.Citations, v.Review.Citations...)
		if out.ProposedDiff == "" && v.ProposedDiff != "" {
			out.ProposedDiff = v.ProposedDiff
		}
		if v.Iterations > out.Iterations {
			out.Iterations = v.Iterations
		}
	}

	out.Overall = rubric.ClampScore(int(math.Round(float64(totalOverall) / float64(len(verdicts)))))
	for _, name := range dimOrder {
		mean := float64(dimTotals[name]) / float64(dimCounts[name])
		out.Dimensions = append(out.Dimensions, gantypes.DimensionScore{
			Name:  name,
			Score: rubric.ClampScore(int(math.Round(mean))),
		})
	}
	out.Verdict = worst
	out.UsedFallbackParse = usedFallback
	out.CompletionPercentage = r.CompletionPercentage(out.Dimensions)

	if out.Review.Summary == "" {
		out.Review.Summary = fmt.Sprintf("aggregate of %d judge runs", len(verdicts))
	}
	return out
}

func severity(v gantypes.VerdictKind) int {
	switch v {
	case gantypes.VerdictReject:
		return 2
	case gantypes.VerdictRevise:
		return 1
	default:
		return 0
	}
}
