package metric

import (
	"context"
	"math"
	"strings"
)

// bleuMaxOrder is the standard maximum n-gram order.
const bleuMaxOrder = 4

// BLEU is sentence-level BLEU with exponential smoothing and an
// effective order capped at the hypothesis length.
type BLEU struct{}

// NewBLEU creates a BLEU metric.
func NewBLEU() *BLEU {
	return &BLEU{}
}

// Name returns the registry name.
func (m *BLEU) Name() string { return "bleu" }

// Score evaluates a single hypothesis-reference pair.
func (m *BLEU) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	return sentenceBLEU(hypothesis, reference), nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *BLEU) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return scoreEach(ctx, hypotheses, func(h string) float64 {
		return sentenceBLEU(h, reference)
	})
}

// sentenceBLEU computes BLEU on whitespace tokens, scaled to [0, 100].
// Zero n-gram matches are smoothed by halving a floor precision, the
// scheme sacreBLEU calls exponential smoothing.
func sentenceBLEU(hypothesis, reference string) float64 {
	hyp := strings.Fields(hypothesis)
	ref := strings.Fields(reference)

	if len(hyp) == 0 {
		return 0
	}

	order := bleuMaxOrder
	if len(hyp) < order {
		order = len(hyp)
	}

	logSum := 0.0
	smooth := 1.0
	for n := 1; n <= order; n++ {
		correct, total := ngramMatches(hyp, ref, n)

		var p float64
		if correct == 0 {
			smooth *= 2
			p = 1.0 / (smooth * float64(total))
		} else {
			p = float64(correct) / float64(total)
		}
		logSum += math.Log(p)
	}

	score := math.Exp(logSum / float64(order))

	// Brevity penalty
	if len(hyp) < len(ref) {
		score *= math.Exp(1.0 - float64(len(ref))/float64(len(hyp)))
	}

	return 100.0 * score
}

// ngramMatches counts clipped n-gram matches and the hypothesis total.
func ngramMatches(hyp, ref []string, n int) (correct, total int) {
	total = len(hyp) - n + 1
	if total <= 0 {
		return 0, 0
	}

	refCounts := make(map[string]int)
	for i := 0; i+n <= len(ref); i++ {
		refCounts[strings.Join(ref[i:i+n], " ")]++
	}

	for i := 0; i+n <= len(hyp); i++ {
		gram := strings.Join(hyp[i:i+n], " ")
		if refCounts[gram] > 0 {
			refCounts[gram]--
			correct++
		}
	}

	return correct, total
}
