package engine

import (
	"testing"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

func TestEvaluate(t *testing.T) {
	stagnant := &gantypes.StagnationRecord{
		IsStagnant:      true,
		DetectedAtLoop:  11,
		SimilarityScore: 0.97,
		Recommendation:  "try a different angle",
	}

	tests := []struct {
		name           string
		score          int
		loop           int
		stagnation     *gantypes.StagnationRecord
		wantReason     gantypes.CompletionReason
		wantComplete   bool
		wantTerminated bool
	}{
		{
			name:       "below every tier keeps going",
			score:      80,
			loop:       5,
			wantReason: gantypes.ReasonInProgress,
		},
		{
			name:         "tier one at exact boundary",
			score:        95,
			loop:         10,
			wantReason:   gantypes.ReasonScore95At10,
			wantComplete: true,
		},
		{
			name:       "tier one score one loop early",
			score:      95,
			loop:       9,
			wantReason: gantypes.ReasonInProgress,
		},
		{
			name:       "tier one loop with score one short",
			score:      94,
			loop:       10,
			wantReason: gantypes.ReasonInProgress,
		},
		{
			name:         "tier two at boundary",
			score:        90,
			loop:         15,
			wantReason:   gantypes.ReasonScore90At15,
			wantComplete: true,
		},
		{
			name:         "tier three at boundary",
			score:        85,
			loop:         20,
			wantReason:   gantypes.ReasonScore85At20,
			wantComplete: true,
		},
		{
			name:         "high score late resolves to best tier",
			score:        97,
			loop:         21,
			wantReason:   gantypes.ReasonScore95At10,
			wantComplete: true,
		},
		{
			name:           "hard stop regardless of score",
			score:          30,
			loop:           25,
			wantReason:     gantypes.ReasonMaxLoopsReached,
			wantComplete:   true,
			wantTerminated: true,
		},
		{
			name:           "perfect score cannot outrun the hard stop",
			score:          100,
			loop:           25,
			wantReason:     gantypes.ReasonMaxLoopsReached,
			wantComplete:   true,
			wantTerminated: true,
		},
		{
			name:           "past the hard stop every score terminates",
			score:          96,
			loop:           30,
			wantReason:     gantypes.ReasonMaxLoopsReached,
			wantComplete:   true,
			wantTerminated: true,
		},
		{
			name:         "one loop before the hard stop quality still wins",
			score:        97,
			loop:         24,
			wantReason:   gantypes.ReasonScore95At10,
			wantComplete: true,
		},
		{
			name:           "stagnation terminates after the gate",
			score:          70,
			loop:           12,
			stagnation:     stagnant,
			wantReason:     gantypes.ReasonStagnationDetected,
			wantComplete:   true,
			wantTerminated: true,
		},
		{
			name:         "stagnation never beats a quality tier",
			score:        95,
			loop:         12,
			stagnation:   stagnant,
			wantReason:   gantypes.ReasonScore95At10,
			wantComplete: true,
		},
		{
			name:       "recovered stagnation does not terminate",
			score:      70,
			loop:       12,
			stagnation: &gantypes.StagnationRecord{IsStagnant: false, DetectedAtLoop: 10},
			wantReason: gantypes.ReasonInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.score, tt.loop, tt.stagnation)
			if got.Reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", got.Reason, tt.wantReason)
			}
			if got.IsComplete != tt.wantComplete {
				t.Errorf("isComplete = %v, want %v", got.IsComplete, tt.wantComplete)
			}
			if got.Terminated != tt.wantTerminated {
				t.Errorf("terminated = %v, want %v", got.Terminated, tt.wantTerminated)
			}
			if got.NextThoughtNeeded == tt.wantComplete {
				t.Errorf("nextThoughtNeeded = %v contradicts isComplete = %v",
					got.NextThoughtNeeded, got.IsComplete)
			}
		})
	}
}

func TestShouldTerminate(t *testing.T) {
	state := &gantypes.SessionState{
		ID:          "s1",
		CurrentLoop: 25,
		LastVerdict: &gantypes.JudgeVerdict{Overall: 40, Verdict: gantypes.VerdictRevise},
	}
	for i := 0; i < 25; i++ {
		verdict := gantypes.VerdictRevise
		if i%5 == 0 {
			verdict = gantypes.VerdictPass
		}
		state.Iterations = append(state.Iterations, gantypes.Iteration{
			Verdict: gantypes.JudgeVerdict{Overall: 30 + i, Verdict: verdict},
		})
	}

	got := ShouldTerminate(state)
	if !got.ShouldTerminate {
		t.Error("25-loop session not terminated")
	}
	if got.Reason != gantypes.ReasonMaxLoopsReached {
		t.Errorf("reason = %s, want max_loops_reached", got.Reason)
	}
	if got.FailureRate != 0.8 {
		t.Errorf("failureRate = %f, want 0.8", got.FailureRate)
	}
	if got.FinalAssessment == "" {
		t.Error("final assessment is empty")
	}
}

func TestShouldTerminate_OpenSession(t *testing.T) {
	state := &gantypes.SessionState{
		ID:          "s2",
		CurrentLoop: 3,
		LastVerdict: &gantypes.JudgeVerdict{Overall: 80},
		Iterations: []gantypes.Iteration{
			{Verdict: gantypes.JudgeVerdict{Overall: 80, Verdict: gantypes.VerdictPass}},
		},
	}

	got := ShouldTerminate(state)
	if got.ShouldTerminate {
		t.Error("healthy 3-loop session terminated")
	}
	if got.FailureRate != 0 {
		t.Errorf("failureRate = %f, want 0", got.FailureRate)
	}
}
