package metric

import (
	"context"
	"strings"
	"unicode"
)

const (
	chrfOrder = 6
	chrfBeta  = 2.0
)

// CHRF is the character n-gram F-score of Popovic, with the standard
// order of 6 and beta of 2. Whitespace is stripped before counting.
type CHRF struct{}

// NewCHRF creates a chrF metric.
func NewCHRF() *CHRF {
	return &CHRF{}
}

// Name returns the registry name.
func (m *CHRF) Name() string { return "chrf" }

// Score evaluates a single hypothesis-reference pair.
func (m *CHRF) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	return sentenceCHRF(hypothesis, reference), nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *CHRF) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return scoreEach(ctx, hypotheses, func(h string) float64 {
		return sentenceCHRF(h, reference)
	})
}

// sentenceCHRF computes chrF scaled to [0, 100]. Precision and recall
// are averaged over n-gram orders that occur in either side.
func sentenceCHRF(hypothesis, reference string) float64 {
	hyp := []rune(stripSpace(hypothesis))
	ref := []rune(stripSpace(reference))

	var avgPrec, avgRec float64
	effectiveOrders := 0

	for n := 1; n <= chrfOrder; n++ {
		hypCounts := charNgramCounts(hyp, n)
		refCounts := charNgramCounts(ref, n)

		hypTotal := 0
		for _, c := range hypCounts {
			hypTotal += c
		}
		refTotal := 0
		for _, c := range refCounts {
			refTotal += c
		}

		if hypTotal == 0 || refTotal == 0 {
			continue
		}

		matches := 0
		for gram, c := range hypCounts {
			if rc, ok := refCounts[gram]; ok {
				if rc < c {
					matches += rc
				} else {
					matches += c
				}
			}
		}

		avgPrec += float64(matches) / float64(hypTotal)
		avgRec += float64(matches) / float64(refTotal)
		effectiveOrders++
	}

	if effectiveOrders == 0 {
		return 0
	}

	avgPrec /= float64(effectiveOrders)
	avgRec /= float64(effectiveOrders)

	if avgPrec+avgRec == 0 {
		return 0
	}

	beta2 := chrfBeta * chrfBeta
	f := (1 + beta2) * avgPrec * avgRec / (beta2*avgPrec + avgRec)

	return 100.0 * f
}

func charNgramCounts(text []rune, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(text); i++ {
		counts[string(text[i:i+n])]++
	}
	return counts
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
