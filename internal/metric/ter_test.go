package metric

import (
	"context"
	"math"
	"testing"
)

func TestTER_PerfectMatch(t *testing.T) {
	m := NewTER()

	score, err := m.Score(context.Background(), "the cat sat", "the cat sat", "")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if score != 1.0 {
		t.Errorf("Score = %v, want 1.0", score)
	}
}

func TestTER_AllSubstitutions(t *testing.T) {
	m := NewTER()

	score, err := m.Score(context.Background(), "a b c", "x y z", "")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if score != 0.0 {
		t.Errorf("Score = %v, want 0.0", score)
	}
}

func TestTER_SingleInsertion(t *testing.T) {
	m := NewTER()

	score, err := m.Score(context.Background(), "a b c d", "a b c", "")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	want := 1.0 - 1.0/3.0
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", score, want)
	}
}

func TestTER_EmptySegments(t *testing.T) {
	m := NewTER()
	ctx := context.Background()

	if score, _ := m.Score(ctx, "", "", ""); score != 1.0 {
		t.Errorf("empty/empty: Score = %v, want 1.0", score)
	}

	if score, _ := m.Score(ctx, "a", "", ""); score != 0.0 {
		t.Errorf("hyp/empty ref: Score = %v, want 0.0", score)
	}

	if score, _ := m.Score(ctx, "", "a b", ""); score != 0.0 {
		t.Errorf("empty hyp: Score = %v, want 0.0", score)
	}
}

func TestTER_CanGoNegative(t *testing.T) {
	m := NewTER()

	// More edits than reference words
	score, err := m.Score(context.Background(), "x y z w", "a", "")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if score >= 0 {
		t.Errorf("Score = %v, want negative", score)
	}
}

func TestTER_Scores(t *testing.T) {
	m := NewTER()
	ctx := context.Background()

	hyps := []string{"a b c", "a b x", "x y z"}
	ref := "a b c"

	scores, err := m.Scores(ctx, hyps, ref, "")
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}

	for i, h := range hyps {
		want, _ := m.Score(ctx, h, ref, "")
		if scores[i] != want {
			t.Errorf("scores[%d] = %v, want %v (scalar)", i, scores[i], want)
		}
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want int
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 0},
		{"deletion", []string{"a", "b", "c"}, []string{"a", "c"}, 1},
		{"insertion", []string{"a", "c"}, []string{"a", "b", "c"}, 1},
		{"substitution", []string{"a", "x", "c"}, []string{"a", "b", "c"}, 1},
		{"empty both", nil, nil, 0},
		{"empty a", nil, []string{"a", "b"}, 2},
		{"empty b", []string{"a"}, nil, 1},
		{"mixed", []string{"the", "fast", "cat"}, []string{"a", "fast", "black", "cat"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := editDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("editDistance() = %d, want %d", got, tt.want)
			}
		})
	}
}
