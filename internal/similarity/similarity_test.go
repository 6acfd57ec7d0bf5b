package similarity

import (
	"strings"
	"testing"
)

func TestAnalyzer_Analyze(t *testing.T) {
	identical := "func process(items []string) error {\n\tfor _, it := range items {\n\t\thandle(it)\n\t}\n\treturn nil\n}"

	tests := []struct {
		name         string
		candidates   []string
		wantStagnant bool
	}{
		{
			name:         "no candidates",
			candidates:   nil,
			wantStagnant: false,
		},
		{
			name:         "single candidate cannot stagnate",
			candidates:   []string{identical},
			wantStagnant: false,
		},
		{
			name:         "identical candidates stagnate",
			candidates:   []string{identical, identical, identical},
			wantStagnant: true,
		},
		{
			name: "whitespace-only churn still stagnates",
			candidates: []string{
				identical,
				strings.ReplaceAll(identical, "\n", "  \r\n"),
			},
			wantStagnant: true,
		},
		{
			name: "distinct candidates do not stagnate",
			candidates: []string{
				"package a\n\nfunc Parse(s string) (int, error) { return strconv.Atoi(s) }",
				"type Server struct { mux *http.ServeMux }\n\nfunc (s *Server) ListenAndServe() error { return nil }",
			},
			wantStagnant: false,
		},
	}

	a := NewAnalyzer(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.candidates)
			if got.IsStagnant != tt.wantStagnant {
				t.Errorf("Analyze() stagnant = %v (avg %.2f), want %v",
					got.IsStagnant, got.AverageSimilarity, tt.wantStagnant)
			}
		})
	}
}

func TestAnalyzer_IdenticalScoreIsExactlyOne(t *testing.T) {
	a := NewAnalyzer(0)
	got := a.Analyze([]string{"same text here for all", "same text here for all"})
	if got.AverageSimilarity != 1.0 {
		t.Errorf("identical inputs similarity = %f, want exactly 1.0", got.AverageSimilarity)
	}
}

func TestAnalyzer_RepeatedPatterns(t *testing.T) {
	whole := "the entire candidate body repeated verbatim"
	a := NewAnalyzer(0)

	got := a.Analyze([]string{whole, whole})
	if len(got.RepeatedPatterns) != 1 || got.RepeatedPatterns[0] != whole {
		t.Errorf("all-identical inputs should report the whole text, got %v", got.RepeatedPatterns)
	}

	shared := "if err != nil { return fmt.Errorf(\"wrap: %w\", err) }"
	got = a.Analyze([]string{
		"alpha preamble text block\n" + shared,
		"beta preamble other text\n" + shared,
		"gamma wholly different content here",
	})
	found := false
	for _, p := range got.RepeatedPatterns {
		if p == shared {
			found = true
		}
	}
	if !found {
		t.Errorf("line shared by majority not reported, got %v", got.RepeatedPatterns)
	}
}

func TestAnalyzer_ThresholdBoundary(t *testing.T) {
	strict := NewAnalyzer(1.0)
	got := strict.Analyze([]string{"aaaa bbbb cccc dddd", "aaaa bbbb cccc eeee"})
	if got.IsStagnant {
		t.Error("similar-but-unequal inputs should not stagnate at threshold 1.0")
	}

	loose := NewAnalyzer(0.5)
	got = loose.Analyze([]string{"aaaa bbbb cccc dddd", "aaaa bbbb cccc eeee"})
	if !got.IsStagnant {
		t.Errorf("avg %.2f should stagnate at threshold 0.5", got.AverageSimilarity)
	}
}
