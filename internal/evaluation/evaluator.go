// Package evaluation scores decoded corpora against references and
// summarizes the sentence-level results.
package evaluation

import (
	"context"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// Evaluator scores corpora with metrics from the registry.
type Evaluator struct {
	opts metric.Options
	log  *logger.Logger
}

// NewEvaluator creates an evaluator over the given metric options.
func NewEvaluator(opts metric.Options, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{opts: opts, log: log}
}

// EvaluateCorpus scores each output sentence with the named metric and
// returns aggregate statistics. References are required for
// reference-based metrics; sources are required for reference-free
// metrics and may be nil otherwise.
func (e *Evaluator) EvaluateCorpus(ctx context.Context, metricName string, outputs, references, sources []string) (*Summary, error) {
	if len(outputs) == 0 {
		return nil, errors.ValidationError("no output sentences to evaluate")
	}

	var scores []float64
	var err error
	if metric.IsReferenceless(metricName) {
		scores, err = e.scoreReferenceless(ctx, metricName, outputs, sources)
	} else {
		scores, err = e.scoreReferenced(ctx, metricName, outputs, references, sources)
	}
	if err != nil {
		return nil, err
	}

	return summarize(metricName, scores), nil
}

func (e *Evaluator) scoreReferenced(ctx context.Context, metricName string, outputs, references, sources []string) ([]float64, error) {
	if len(references) != len(outputs) {
		return nil, errors.ValidationError("output and reference counts differ").
			WithDetail("outputs", strconv.Itoa(len(outputs))).
			WithDetail("references", strconv.Itoa(len(references)))
	}
	if sources != nil && len(sources) != len(outputs) {
		return nil, errors.ValidationError("output and source counts differ").
			WithDetail("outputs", strconv.Itoa(len(outputs))).
			WithDetail("sources", strconv.Itoa(len(sources)))
	}

	m, err := metric.New(metricName, e.opts)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(outputs))
	for i, out := range outputs {
		src := ""
		if sources != nil {
			src = sources[i]
		}
		s, err := m.Score(ctx, out, references[i], src)
		if err != nil {
			return nil, errors.Wrap(errors.CodeMetric, "scoring sentence "+strconv.Itoa(i), err)
		}
		scores[i] = s
	}
	return scores, nil
}

func (e *Evaluator) scoreReferenceless(ctx context.Context, metricName string, outputs, sources []string) ([]float64, error) {
	if len(sources) != len(outputs) {
		return nil, errors.ValidationError("metric " + metricName + " requires one source per output").
			WithDetail("outputs", strconv.Itoa(len(outputs))).
			WithDetail("sources", strconv.Itoa(len(sources)))
	}

	m, err := metric.NewReferenceless(metricName, e.opts)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(outputs))
	for i, out := range outputs {
		s, err := m.Score(ctx, out, sources[i])
		if err != nil {
			return nil, errors.Wrap(errors.CodeMetric, "scoring sentence "+strconv.Itoa(i), err)
		}
		scores[i] = s
	}
	return scores, nil
}

// summarize computes corpus statistics over sentence scores.
func summarize(metricName string, scores []float64) *Summary {
	sum := &Summary{
		Metric:    metricName,
		Sentences: len(scores),
		Scores:    make([]SentenceScore, len(scores)),
		Min:       scores[0],
		Max:       scores[0],
	}
	for i, s := range scores {
		sum.Scores[i] = SentenceScore{Index: i, Score: s}
		if s < sum.Min {
			sum.Min = s
		}
		if s > sum.Max {
			sum.Max = s
		}
	}

	sum.Mean = stat.Mean(scores, nil)
	if len(scores) > 1 {
		sum.StdDev = stat.StdDev(scores, nil)
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	sum.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	return sum
}
