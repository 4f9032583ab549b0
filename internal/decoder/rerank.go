package decoder

import (
	"context"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/timer"
)

// Rerank picks the hypotheses a quality estimation metric scores
// highest against the source. No references are involved.
type Rerank struct {
	metric metric.MetricReferenceless
	log    *logger.Logger
}

// NewRerank creates a reranking decoder backed by the given
// reference-free metric.
func NewRerank(m metric.MetricReferenceless, log *logger.Logger) *Rerank {
	return &Rerank{metric: m, log: log}
}

// Name returns the decoder identifier.
func (d *Rerank) Name() string {
	return "rerank"
}

// Decode scores every hypothesis against the source and returns the
// nbest hypotheses ranked best-first. An nbest larger than the pool is
// clamped to the pool size.
func (d *Rerank) Decode(ctx context.Context, hypotheses []string, source string, nbest int) (*Output, error) {
	if err := validate(hypotheses, nbest); err != nil {
		return nil, err
	}
	if source == "" {
		return nil, errors.ValidationError("reference-free decoding needs a source sentence")
	}
	if nbest > len(hypotheses) {
		nbest = len(hypotheses)
	}

	stop := timer.FromContext(ctx).Measure("score")
	scores, err := d.metric.Scores(ctx, hypotheses, source)
	stop()
	if err != nil {
		return nil, err
	}

	indices := rank(scores, nbest)
	d.log.Debug("reranked sentence",
		"decoder", d.Name(),
		"metric", d.metric.Name(),
		"hypotheses", len(hypotheses),
		"best", indices[0],
	)

	return assemble(hypotheses, scores, indices), nil
}
