// Package rubric defines the weighted scoring rubric the judge is asked to
// score against, and the arithmetic for turning dimension scores into an
// overall score.
package rubric

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// Dimension is one weighted axis of the rubric.
type Dimension struct {
	Name        string  `json:"name" yaml:"name"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Rubric is an ordered set of weighted dimensions. Weights must sum to 1.0
// within a small tolerance.
type Rubric struct {
	Dimensions []Dimension `json:"dimensions" yaml:"dimensions"`
}

// weightTolerance is the permitted deviation of the weight sum from 1.0.
const weightTolerance = 0.01

// Standard returns the six-dimension default rubric.
func Standard() Rubric {
	return Rubric{Dimensions: []Dimension{
		{Name: "Correctness", Weight: 0.30, Description: "Does the code do what it claims, including edge cases?"},
		{Name: "Tests", Weight: 0.20, Description: "Are the changes covered by meaningful tests?"},
		{Name: "Style", Weight: 0.15, Description: "Is the code idiomatic and consistent with its surroundings?"},
		{Name: "Security", Weight: 0.15, Description: "Any injection, secret handling, or validation problems?"},
		{Name: "Performance", Weight: 0.10, Description: "Any avoidable allocations, quadratic loops, or blocking calls?"},
		{Name: "Docs", Weight: 0.10, Description: "Are exported surfaces and tricky invariants documented?"},
	}}
}

// LoadFile reads a rubric definition from a YAML file.
func LoadFile(path string) (Rubric, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, fmt.Errorf("failed to read rubric file: %w", err)
	}
	var r Rubric
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Rubric{}, fmt.Errorf("failed to parse rubric file: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// Validate checks that the rubric is non-empty and its weights sum to 1.0
// within tolerance.
func (r Rubric) Validate() error {
	if len(r.Dimensions) == 0 {
		return fmt.Errorf("rubric has no dimensions")
	}
	sum := 0.0
	for _, d := range r.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("rubric dimension has empty name")
		}
		if d.Weight < 0 {
			return fmt.Errorf("rubric dimension %s has negative weight", d.Name)
		}
		sum += d.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("rubric weights sum to %.3f, expected 1.0 (±%.2f)", sum, weightTolerance)
	}
	return nil
}

// weightFor returns the weight of the named dimension, or 0 if unknown.
func (r Rubric) weightFor(name string) float64 {
	for _, d := range r.Dimensions {
		if d.Name == name {
			return d.Weight
		}
	}
	return 0
}

// WeightedOverall computes the overall score from the scored dimensions.
// Dimensions missing from scores contribute nothing; the result is
// renormalized over the weights that were actually scored so a partial
// verdict still yields a meaningful overall. With no recognized dimensions
// the overall is 0.
func (r Rubric) WeightedOverall(scores []gantypes.DimensionScore) int {
	var weighted, covered float64
	for _, s := range scores {
		w := r.weightFor(s.Name)
		if w == 0 {
			continue
		}
		weighted += w * float64(clampScore(s.Score))
		covered += w
	}
	if covered == 0 {
		return 0
	}
	overall := int(math.Round(weighted / covered))
	return clampScore(overall)
}

// CompletionPercentage is the fraction of rubric dimensions present in the
// scored set, used to qualify partial verdicts after a judge timeout.
func (r Rubric) CompletionPercentage(scores []gantypes.DimensionScore) float64 {
	if len(r.Dimensions) == 0 {
		return 0
	}
	scored := 0
	for _, d := range r.Dimensions {
		for _, s := range scores {
			if s.Name == d.Name {
				scored++
				break
			}
		}
	}
	return float64(scored) / float64(len(r.Dimensions))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampScore bounds a score into [0,100].
func ClampScore(v int) int { return clampScore(v) }
