package metric

import "context"

// ExactMatch scores 1 when hypothesis and reference are byte-identical
// and 0 otherwise. Mostly useful for tests and consensus decoding over
// duplicated samples.
type ExactMatch struct{}

// NewExactMatch creates an exact match metric.
func NewExactMatch() *ExactMatch {
	return &ExactMatch{}
}

// Name returns the registry name.
func (m *ExactMatch) Name() string { return "exact" }

// Score evaluates a single hypothesis-reference pair.
func (m *ExactMatch) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	if hypothesis == reference {
		return 1.0, nil
	}
	return 0.0, nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *ExactMatch) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return scoreEach(ctx, hypotheses, func(h string) float64 {
		if h == reference {
			return 1.0
		}
		return 0.0
	})
}
