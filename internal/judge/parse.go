package judge

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/rubric"
)

// wireVerdict mirrors the reviewer's stdout JSON. Unknown fields are
// ignored by encoding/json.
type wireVerdict struct {
	Overall    int `json:"overall"`
	Dimensions []struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	} `json:"dimensions"`
	Verdict string `json:"verdict"`
	Review  struct {
		Summary string `json:"summary"`
		Inline  []struct {
			Path    string `json:"path"`
			Line    int    `json:"line"`
			Comment string `json:"comment"`
		} `json:"inline"`
		Citations []string `json:"citations"`
	} `json:"review"`
	ProposedDiff *string `json:"proposed_diff"`
	Iterations   int     `json:"iterations"`
	JudgeCards   []struct {
		Model string `json:"model"`
		Score int    `json:"score"`
		Notes string `json:"notes"`
	} `json:"judge_cards"`
}

// parseVerdict decodes the reviewer's stdout into a normalized verdict.
// When the outer string is not valid JSON it falls back to extracting the
// first balanced object (then array) embedded in surrounding text; a
// fallback parse is flagged on the verdict and logged.
func (c *Client) parseVerdict(stdout string, r rubric.Rubric) (*gantypes.JudgeVerdict, bool) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, false
	}

	var wire wireVerdict
	usedFallback := false
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		candidate, ok := extractBalanced(trimmed, '{', '}')
		if !ok {
			candidate, ok = extractBalanced(trimmed, '[', ']')
		}
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
			return nil, false
		}
		usedFallback = true
		c.logger.Warn("judge output required greedy fallback parse",
			zap.Int("stdoutLen", len(stdout)))
	}

	return normalize(wire, usedFallback, r), true
}

// normalize clamps scores, maps unknown verdict strings to revise, and
// fills a missing overall from the weighted dimensions.
func normalize(wire wireVerdict, usedFallback bool, r rubric.Rubric) *gantypes.JudgeVerdict {
	v := &gantypes.JudgeVerdict{
		Overall:           rubric.ClampScore(wire.Overall),
		Iterations:        wire.Iterations,
		UsedFallbackParse: usedFallback,
	}

	for _, d := range wire.Dimensions {
		v.Dimensions = append(v.Dimensions, gantypes.DimensionScore{
			Name:  d.Name,
			Score: rubric.ClampScore(d.Score),
		})
	}
	if wire.Overall == 0 && len(v.Dimensions) > 0 {
		v.Overall = r.WeightedOverall(v.Dimensions)
	}

	switch gantypes.VerdictKind(wire.Verdict) {
	case gantypes.VerdictPass, gantypes.VerdictRevise, gantypes.VerdictReject:
		v.Verdict = gantypes.VerdictKind(wire.Verdict)
	default:
		v.Verdict = gantypes.VerdictRevise
	}

	v.Review.Summary = wire.Review.Summary
	for _, ic := range wire.Review.Inline {
		v.Review.Inline = append(v.Review.Inline, gantypes.InlineComment{
			Path:    ic.Path,
			Line:    ic.Line,
			Comment: ic.Comment,
		})
	}
	v.Review.Citations = wire.Review.Citations

	if wire.ProposedDiff != nil {
		v.ProposedDiff = *wire.ProposedDiff
	}
	for _, card := range wire.JudgeCards {
		v.JudgeCards = append(v.JudgeCards, gantypes.JudgeCard{
			Model: card.Model,
			Score: rubric.ClampScore(card.Score),
			Notes: card.Notes,
		})
	}
	return v
}

// extractBalanced returns the first balanced open...close substring,
// skipping brackets inside JSON string literals.
func extractBalanced(s string, open, close byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
