package metric

import (
	"context"

	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// DefaultCometQEModel is the standard reference-free COMET checkpoint.
const DefaultCometQEModel = "Unbabel/wmt22-cometkiwi-da"

// COMETQE estimates hypothesis quality from the source segment alone
// using a remote CometKiwi model.
type COMETQE struct {
	client *scoring.Client
	model  string
	fp16   bool
}

// NewCOMETQE creates a reference-free COMET metric.
func NewCOMETQE(client *scoring.Client, model string, fp16 bool) *COMETQE {
	if model == "" {
		model = DefaultCometQEModel
	}
	return &COMETQE{
		client: client,
		model:  model,
		fp16:   fp16,
	}
}

// Name returns the registry name.
func (m *COMETQE) Name() string { return "cometqe" }

// Model returns the backend model identifier.
func (m *COMETQE) Model() string { return m.model }

// Score evaluates a single hypothesis against the source.
func (m *COMETQE) Score(ctx context.Context, hypothesis, source string) (float64, error) {
	scores, err := m.Scores(ctx, []string{hypothesis}, source)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// Scores evaluates a batch of hypotheses against the source.
func (m *COMETQE) Scores(ctx context.Context, hypotheses []string, source string) ([]float64, error) {
	return m.client.Scores(ctx, m.model, hypotheses, nil, []string{source}, m.fp16)
}
