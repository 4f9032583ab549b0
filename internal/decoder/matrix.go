package decoder

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mbrdecode/mbr-decode/internal/metric"
)

// utilityMatrix computes the hypothesis-by-reference score matrix.
// Metrics that support pairwise scoring get a single call; others are
// driven one reference at a time with batched hypothesis scoring.
func utilityMatrix(ctx context.Context, m metric.Metric, hypotheses, references []string, source string) (*mat.Dense, error) {
	if ps, ok := m.(metric.PairwiseScorer); ok {
		return ps.PairwiseScores(ctx, hypotheses, references, source)
	}

	matrix := mat.NewDense(len(hypotheses), len(references), nil)
	for j, ref := range references {
		col, err := m.Scores(ctx, hypotheses, ref, source)
		if err != nil {
			return nil, err
		}
		matrix.SetCol(j, col)
	}
	return matrix, nil
}

// expectedUtilities averages each row of the utility matrix.
func expectedUtilities(matrix *mat.Dense) []float64 {
	rows, _ := matrix.Dims()
	utilities := make([]float64, rows)
	for i := 0; i < rows; i++ {
		utilities[i] = stat.Mean(matrix.RawRowView(i), nil)
	}
	return utilities
}

// rank orders hypothesis indices by score, best first. Ties keep the
// lower index first.
func rank(scores []float64, nbest int) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})
	if nbest < len(indices) {
		indices = indices[:nbest]
	}
	return indices
}

// assemble builds an Output from ranked indices.
func assemble(hypotheses []string, scores []float64, indices []int) *Output {
	out := &Output{
		Indices:   indices,
		Sentences: make([]string, len(indices)),
		Scores:    make([]float64, len(indices)),
	}
	for i, idx := range indices {
		out.Sentences[i] = hypotheses[idx]
		out.Scores[i] = scores[idx]
	}
	return out
}
