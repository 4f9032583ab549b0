package decoder

import (
	"context"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/timer"
)

// MBR picks the hypotheses with the highest expected utility over a
// pool of pseudo-references.
type MBR struct {
	metric metric.Metric
	log    *logger.Logger

	// KeepMatrix attaches the full utility matrix to the output.
	KeepMatrix bool
}

// NewMBR creates a minimum Bayes risk decoder backed by the given
// metric.
func NewMBR(m metric.Metric, log *logger.Logger) *MBR {
	return &MBR{metric: m, log: log}
}

// Name returns the decoder identifier.
func (d *MBR) Name() string {
	return "mbr"
}

// Decode scores every hypothesis against every reference, averages the
// utilities per hypothesis, and returns the nbest hypotheses ranked
// best-first. An nbest larger than the pool is clamped to the pool
// size.
func (d *MBR) Decode(ctx context.Context, hypotheses, references []string, source string, nbest int) (*Output, error) {
	if err := validate(hypotheses, nbest); err != nil {
		return nil, err
	}
	if len(references) == 0 {
		return nil, errors.ValidationError("no references to score against")
	}
	if nbest > len(hypotheses) {
		nbest = len(hypotheses)
	}

	stop := timer.FromContext(ctx).Measure("score")
	matrix, err := utilityMatrix(ctx, d.metric, hypotheses, references, source)
	stop()
	if err != nil {
		return nil, err
	}

	utilities := expectedUtilities(matrix)
	indices := rank(utilities, nbest)
	d.log.Debug("decoded sentence",
		"decoder", d.Name(),
		"metric", d.metric.Name(),
		"hypotheses", len(hypotheses),
		"references", len(references),
		"best", indices[0],
	)

	out := assemble(hypotheses, utilities, indices)
	if d.KeepMatrix {
		out.Matrix = matrix
	}
	return out, nil
}
