// Package metric provides utility metrics for scoring hypotheses.
package metric

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Metric scores a hypothesis against a reference translation, optionally
// conditioned on a source segment. Higher scores are better.
type Metric interface {
	// Name returns the registry name of the metric.
	Name() string

	// Score evaluates a single hypothesis-reference pair.
	Score(ctx context.Context, hypothesis, reference, source string) (float64, error)

	// Scores evaluates a batch of hypotheses against one reference.
	Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error)
}

// MetricReferenceless estimates hypothesis quality from the source alone.
type MetricReferenceless interface {
	// Name returns the registry name of the metric.
	Name() string

	// Score evaluates a single hypothesis against the source.
	Score(ctx context.Context, hypothesis, source string) (float64, error)

	// Scores evaluates a batch of hypotheses against the source.
	Scores(ctx context.Context, hypotheses []string, source string) ([]float64, error)
}

// PairwiseScorer is an optional upgrade for metrics that can score the
// whole hypothesis-reference grid in one call. Callers discover it with
// a type assertion and fall back to per-reference batches otherwise.
type PairwiseScorer interface {
	// PairwiseScores returns a matrix with one row per hypothesis and
	// one column per reference.
	PairwiseScores(ctx context.Context, hypotheses, references []string, source string) (*mat.Dense, error)
}

// scoreEach evaluates hypotheses one at a time with a scalar scorer.
// Lexical metrics use it to satisfy the batch half of the interface.
func scoreEach(ctx context.Context, hypotheses []string, score func(string) float64) ([]float64, error) {
	out := make([]float64, len(hypotheses))
	for i, h := range hypotheses {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = score(h)
	}
	return out, nil
}
