// Package decoder selects output sentences from candidate pools by
// expected utility.
package decoder

import (
	"context"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// Output holds decoding results ordered best-first.
type Output struct {
	// Indices are positions into the input hypothesis list.
	Indices []int `json:"indices"`

	// Sentences are the selected hypotheses in rank order.
	Sentences []string `json:"sentences"`

	// Scores are the aggregated utilities in rank order.
	Scores []float64 `json:"scores"`

	// Matrix is the hypothesis-by-reference utility matrix. Only
	// populated by reference-based decoders when requested.
	Matrix *mat.Dense `json:"-"`
}

// Best returns the top-ranked sentence.
func (o *Output) Best() string {
	if len(o.Sentences) == 0 {
		return ""
	}
	return o.Sentences[0]
}

// Decoder selects hypotheses using a reference-based utility metric.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, hypotheses, references []string, source string, nbest int) (*Output, error)
}

// ReferencelessDecoder selects hypotheses from the source alone.
type ReferencelessDecoder interface {
	Name() string
	Decode(ctx context.Context, hypotheses []string, source string, nbest int) (*Output, error)
}

// builders maps names to reference-based decoder constructors.
var builders = map[string]func(metric.Metric, *logger.Logger) Decoder{
	"mbr": func(m metric.Metric, log *logger.Logger) Decoder { return NewMBR(m, log) },
}

// qeBuilders maps names to reference-free decoder constructors.
var qeBuilders = map[string]func(metric.MetricReferenceless, *logger.Logger) ReferencelessDecoder{
	"rerank": func(m metric.MetricReferenceless, log *logger.Logger) ReferencelessDecoder {
		return NewRerank(m, log)
	},
}

// New creates the named reference-based decoder.
func New(name string, m metric.Metric, log *logger.Logger) (Decoder, error) {
	builder, ok := builders[name]
	if !ok {
		if _, qe := qeBuilders[name]; qe {
			return nil, errors.ValidationError("decoder " + name + " needs a reference-free metric")
		}
		return nil, errors.NotFoundError("decoder " + name).
			WithDetail("available", strings.Join(Names(), ", "))
	}
	return builder(m, log), nil
}

// NewReferenceless creates the named reference-free decoder.
func NewReferenceless(name string, m metric.MetricReferenceless, log *logger.Logger) (ReferencelessDecoder, error) {
	builder, ok := qeBuilders[name]
	if !ok {
		if _, ref := builders[name]; ref {
			return nil, errors.ValidationError("decoder " + name + " needs a reference-based metric")
		}
		return nil, errors.NotFoundError("decoder " + name).
			WithDetail("available", strings.Join(Names(), ", "))
	}
	return builder(m, log), nil
}

// IsReferenceless reports whether the named decoder works without
// references.
func IsReferenceless(name string) bool {
	_, ok := qeBuilders[name]
	return ok
}

// Has reports whether the named decoder is registered.
func Has(name string) bool {
	if _, ok := builders[name]; ok {
		return true
	}
	_, ok := qeBuilders[name]
	return ok
}

// Names returns all registered decoder names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders)+len(qeBuilders))
	for name := range builders {
		names = append(names, name)
	}
	for name := range qeBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validate checks decode inputs before any metric call.
func validate(hypotheses []string, nbest int) error {
	if len(hypotheses) == 0 {
		return errors.ValidationError("no hypotheses to decode")
	}
	if nbest < 1 {
		return errors.ValidationError("nbest must be at least 1")
	}
	return nil
}
