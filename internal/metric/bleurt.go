package metric

import (
	"context"

	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// DefaultBleurtModel is the standard BLEURT checkpoint.
const DefaultBleurtModel = "lucadiliello/BLEURT-20"

// BLEURT scores hypothesis-reference pairs with a remote BLEURT model.
// The source segment is ignored.
type BLEURT struct {
	client *scoring.Client
	model  string
	fp16   bool
}

// NewBLEURT creates a BLEURT metric backed by a scoring client.
func NewBLEURT(client *scoring.Client, model string, fp16 bool) *BLEURT {
	if model == "" {
		model = DefaultBleurtModel
	}
	return &BLEURT{
		client: client,
		model:  model,
		fp16:   fp16,
	}
}

// Name returns the registry name.
func (m *BLEURT) Name() string { return "bleurt" }

// Model returns the backend model identifier.
func (m *BLEURT) Model() string { return m.model }

// Score evaluates a single hypothesis-reference pair.
func (m *BLEURT) Score(ctx context.Context, hypothesis, reference, source string) (float64, error) {
	scores, err := m.Scores(ctx, []string{hypothesis}, reference, source)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// Scores evaluates a batch of hypotheses against one reference.
func (m *BLEURT) Scores(ctx context.Context, hypotheses []string, reference, source string) ([]float64, error) {
	return m.client.Scores(ctx, m.model, hypotheses, []string{reference}, nil, m.fp16)
}
