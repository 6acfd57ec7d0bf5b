package engine

import (
	"testing"

	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/similarity"
)

func stateWithCandidates(candidates []string) *gantypes.SessionState {
	state := &gantypes.SessionState{ID: "s1"}
	for i, c := range candidates {
		state.Iterations = append(state.Iterations, gantypes.Iteration{
			ThoughtNumber: i + 1,
			Candidate:     c,
		})
	}
	state.CurrentLoop = len(state.Iterations)
	return state
}

func repeatCandidates(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out
}

func TestLoopDetector_Inspect(t *testing.T) {
	identical := "func handle(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }"
	detector := NewLoopDetector(similarity.NewAnalyzer(0), nil)

	t.Run("before loop ten nothing is reported", func(t *testing.T) {
		state := stateWithCandidates(repeatCandidates(identical, 9))
		if got := detector.Inspect(state); got != nil {
			t.Errorf("stagnation reported at loop %d: %+v", state.CurrentLoop, got)
		}
	})

	t.Run("identical candidates at loop ten stagnate", func(t *testing.T) {
		state := stateWithCandidates(repeatCandidates(identical, 10))
		got := detector.Inspect(state)
		if got == nil || !got.IsStagnant {
			t.Fatalf("stagnation not detected: %+v", got)
		}
		if got.DetectedAtLoop != 10 {
			t.Errorf("detectedAtLoop = %d, want 10", got.DetectedAtLoop)
		}
		if got.SimilarityScore < 0.95 {
			t.Errorf("similarityScore = %f, want >= 0.95", got.SimilarityScore)
		}
		if got.Recommendation == "" {
			t.Error("recommendation is empty")
		}
	})

	t.Run("existing record pins the detection loop", func(t *testing.T) {
		state := stateWithCandidates(repeatCandidates(identical, 12))
		state.Stagnation = &gantypes.StagnationRecord{
			IsStagnant:      true,
			DetectedAtLoop:  10,
			SimilarityScore: 0.96,
		}
		got := detector.Inspect(state)
		if got == nil || got.DetectedAtLoop != 10 {
			t.Errorf("detectedAtLoop not pinned: %+v", got)
		}
	})

	t.Run("varied candidates do not stagnate", func(t *testing.T) {
		candidates := []string{
			"package alpha\n\nfunc Sum(xs []int) int { total := 0; for _, x := range xs { total += x }; return total }",
			"type Queue struct { items []string }\n\nfunc (q *Queue) Push(s string) { q.items = append(q.items, s) }",
			"func Fetch(ctx context.Context, url string) (*http.Response, error) { return http.Get(url) }",
			"var ErrNotFound = errors.New(\"not found\")\n\nfunc Lookup(id string) error { return ErrNotFound }",
			"func Reverse(s string) string { r := []rune(s); for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 { r[i], r[j] = r[j], r[i] }; return string(r) }",
			"const maxDepth = 32\n\nfunc walk(n *node, depth int) { if depth > maxDepth { return } }",
			"func main() { fmt.Println(\"distinct program body here\") }",
			"type Matrix [][]float64\n\nfunc (m Matrix) Rows() int { return len(m) }",
			"func clamp(v, lo, hi int) int { if v < lo { return lo }; if v > hi { return hi }; return v }",
			"select { case msg := <-ch: handle(msg); case <-ctx.Done(): return }",
		}
		state := stateWithCandidates(candidates)
		if got := detector.Inspect(state); got != nil && got.IsStagnant {
			t.Errorf("distinct candidates reported stagnant: %+v", got)
		}
	})

	t.Run("recovery clears the stagnant flag but keeps history", func(t *testing.T) {
		candidates := append(repeatCandidates(identical, 5),
			"completely new approach body one with different content",
			"another rewrite attempt two shifting the structure",
			"third distinct attempt three using another algorithm",
			"fourth fresh take four on the problem space",
			"fifth unrelated version five of the candidate")
		state := stateWithCandidates(candidates)
		state.Stagnation = &gantypes.StagnationRecord{
			IsStagnant:      true,
			DetectedAtLoop:  10,
			SimilarityScore: 0.98,
		}
		got := detector.Inspect(state)
		if got == nil {
			t.Fatal("historical record dropped on recovery")
		}
		if got.IsStagnant {
			t.Error("recovered window still marked stagnant")
		}
		if got.DetectedAtLoop != 10 {
			t.Errorf("detectedAtLoop = %d, want preserved 10", got.DetectedAtLoop)
		}
	})
}
