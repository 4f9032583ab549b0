package metric

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// DefaultCometModel is the standard reference-based COMET checkpoint.
const DefaultCometModel = "Unbabel/wmt22-comet-da"

// COMET scores hypotheses with a remote COMET model. It supports
// pairwise scoring, which lets the backend embed every segment once
// per grid instead of once per pair.
type COMET struct {
	client *scoring.Client
	model  string
	fp16   bool
}

// NewCOMET creates a COMET metric backed by a scoring client.
func NewCOMET(client *scoring.Client, model string, fp16 bool) *COMET {
	if model == "" {
		model = DefaultCometModel
	}
	return &COMET{
		client: client,
		model:  model,
		fp16:   fp16,
	}
}

// Name returns the registry name.
func (m *COMET) Name() string { return "comet" }

// Model returns the backend model identifier.
func (m *COMET) Model() string { return m.model }

// Score evaluates a single hypothesis-reference pair.
func (m *COMET) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	scores, err := m.Scores(ctx, []string{hypothesis}, reference, source)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *COMET) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return m.client.Scores(ctx, m.model, hypotheses, []string{reference}, []string{source}, m.fp16)
}

// PairwiseScores scores the full hypothesis-reference grid in one call.
func (m *COMET) PairwiseScores(ctx context.Context, hypotheses, references []string, source string) (*mat.Dense, error) {
	rows, err := m.client.PairwiseScores(ctx, m.model, hypotheses, references, source, m.fp16)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(len(hypotheses), len(references), nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out, nil
}
