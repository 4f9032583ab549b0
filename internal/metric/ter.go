package metric

import (
	"context"
	"strings"
)

// TER scores hypotheses by word-level translation edit rate. TER is an
// error rate, so the reported utility is 1 - TER and a perfect match
// scores 1. Scores go negative when the edit count exceeds the
// reference length.
type TER struct{}

// NewTER creates a TER metric.
func NewTER() *TER {
	return &TER{}
}

// Name returns the registry name.
func (m *TER) Name() string { return "ter" }

// Score evaluates a single hypothesis-reference pair.
func (m *TER) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	return 1.0 - sentenceTER(hypothesis, reference), nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *TER) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return scoreEach(ctx, hypotheses, func(h string) float64 {
		return 1.0 - sentenceTER(h, reference)
	})
}

// sentenceTER computes edit distance over whitespace tokens divided by
// the reference length.
func sentenceTER(hypothesis, reference string) float64 {
	hyp := strings.Fields(hypothesis)
	ref := strings.Fields(reference)

	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}

	return float64(editDistance(hyp, ref)) / float64(len(ref))
}

// editDistance is word-level Levenshtein distance with two-row DP.
func editDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			best := prev[j] + 1 // deletion
			if ins := curr[j-1] + 1; ins < best {
				best = ins
			}
			if sub := prev[j-1] + cost; sub < best {
				best = sub
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
