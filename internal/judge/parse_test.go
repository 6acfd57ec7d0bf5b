package judge

import (
	"testing"

	"github.com/ganauditor/ganauditor/internal/gantypes"
	"github.com/ganauditor/ganauditor/internal/rubric"
)

const cleanVerdict = `{
  "overall": 88,
  "dimensions": [
    {"name": "Correctness", "score": 90},
    {"name": "Style", "score": 85}
  ],
  "verdict": "revise",
  "review": {
    "summary": "solid but the error path is untested",
    "inline": [{"path": "main.go", "line": 12, "comment": "unhandled error"}],
    "citations": ["main.go:12"]
  },
  "iterations": 1
}`

func TestClient_ParseVerdict(t *testing.T) {
	c := NewClient(Options{}, nil)
	r := rubric.Standard()

	t.Run("clean json", func(t *testing.T) {
		v, ok := c.parseVerdict(cleanVerdict, r)
		if !ok {
			t.Fatal("clean JSON not parsed")
		}
		if v.Overall != 88 || v.Verdict != gantypes.VerdictRevise {
			t.Errorf("verdict = %+v", v)
		}
		if v.UsedFallbackParse {
			t.Error("clean parse flagged as fallback")
		}
		if len(v.Review.Inline) != 1 || v.Review.Inline[0].Line != 12 {
			t.Errorf("inline comments = %+v", v.Review.Inline)
		}
	})

	t.Run("fallback extracts object from prose", func(t *testing.T) {
		noisy := "Sure! Here is my assessment:\n" + cleanVerdict + "\nHope that helps."
		v, ok := c.parseVerdict(noisy, r)
		if !ok {
			t.Fatal("embedded JSON not recovered")
		}
		if v.Overall != 88 {
			t.Errorf("overall = %d, want 88", v.Overall)
		}
		if !v.UsedFallbackParse {
			t.Error("fallback parse not flagged")
		}
	})

	t.Run("garbage yields no verdict", func(t *testing.T) {
		if _, ok := c.parseVerdict("total nonsense, no braces", r); ok {
			t.Error("garbage accepted")
		}
	})

	t.Run("empty output yields no verdict", func(t *testing.T) {
		if _, ok := c.parseVerdict("   \n  ", r); ok {
			t.Error("whitespace accepted")
		}
	})

	t.Run("unknown verdict maps to revise", func(t *testing.T) {
		v, ok := c.parseVerdict(`{"overall": 50, "verdict": "maybe"}`, r)
		if !ok {
			t.Fatal("parse failed")
		}
		if v.Verdict != gantypes.VerdictRevise {
			t.Errorf("verdict = %s, want revise", v.Verdict)
		}
	})

	t.Run("missing overall derived from dimensions", func(t *testing.T) {
		v, ok := c.parseVerdict(`{
			"dimensions": [{"name": "Correctness", "score": 80}],
			"verdict": "pass"
		}`, r)
		if !ok {
			t.Fatal("parse failed")
		}
		if v.Overall != 80 {
			t.Errorf("overall = %d, want 80 from weighted dimensions", v.Overall)
		}
	})

	t.Run("scores are clamped", func(t *testing.T) {
		v, ok := c.parseVerdict(`{"overall": 150, "verdict": "pass"}`, r)
		if !ok {
			t.Fatal("parse failed")
		}
		if v.Overall != 100 {
			t.Errorf("overall = %d, want clamped 100", v.Overall)
		}
	})
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{
			name:   "bare object",
			in:     `{"a": 1}`,
			want:   `{"a": 1}`,
			wantOK: true,
		},
		{
			name:   "object inside prose",
			in:     `prefix {"a": {"b": 2}} suffix`,
			want:   `{"a": {"b": 2}}`,
			wantOK: true,
		},
		{
			name:   "braces inside string literals are skipped",
			in:     `{"msg": "use } carefully"}`,
			want:   `{"msg": "use } carefully"}`,
			wantOK: true,
		},
		{
			name:   "escaped quotes inside strings",
			in:     `{"msg": "quote \" and } inside"}`,
			want:   `{"msg": "quote \" and } inside"}`,
			wantOK: true,
		},
		{
			name:   "unbalanced input",
			in:     `{"a": 1`,
			wantOK: false,
		},
		{
			name:   "no braces at all",
			in:     `nothing here`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractBalanced(tt.in, '{', '}')
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("extracted %q, want %q", got, tt.want)
			}
		})
	}
}
