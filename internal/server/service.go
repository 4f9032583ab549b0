package server

import (
	"context"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/decoder"
	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/metrics"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// DecodeService runs decode requests against the metric registry. It is
// shared by the synchronous handler and the batch worker.
type DecodeService struct {
	cfg     *config.Config
	opts    metric.Options
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewDecodeService creates the decode service.
func NewDecodeService(cfg *config.Config, opts metric.Options, log *logger.Logger, m *metrics.Metrics) *DecodeService {
	if log == nil {
		log = logger.Default()
	}
	return &DecodeService{cfg: cfg, opts: opts, log: log, metrics: m}
}

// resolve fills in configured defaults for empty request fields.
func (s *DecodeService) resolve(decoderName, metricName string, nbest int) (string, string, int) {
	if decoderName == "" {
		decoderName = s.cfg.Decoder.Default
	}
	if metricName == "" {
		metricName = s.cfg.Metric.Default
	}
	if nbest == 0 {
		nbest = s.cfg.Decoder.NBest
	}
	return decoderName, metricName, nbest
}

// DecodePool decodes one candidate pool. When the decoder is
// reference-based and the pool carries no references, the hypotheses
// double as pseudo-references.
func (s *DecodeService) DecodePool(ctx context.Context, decoderName, metricName string, nbest int, pool PoolRequest) (*decoder.Output, error) {
	decoderName, metricName, nbest = s.resolve(decoderName, metricName, nbest)

	start := time.Now()
	out, err := s.decodePool(ctx, decoderName, metricName, nbest, pool)

	if s.metrics != nil {
		s.metrics.RecordDecode(decoderName, len(pool.Hypotheses), time.Since(start).Milliseconds(), err)
	}
	return out, err
}

func (s *DecodeService) decodePool(ctx context.Context, decoderName, metricName string, nbest int, pool PoolRequest) (*decoder.Output, error) {
	if decoder.IsReferenceless(decoderName) {
		m, err := metric.NewReferenceless(metricName, s.opts)
		if err != nil {
			return nil, err
		}
		d, err := decoder.NewReferenceless(decoderName, m, s.log)
		if err != nil {
			return nil, err
		}
		return d.Decode(ctx, pool.Hypotheses, pool.Source, nbest)
	}

	m, err := metric.New(metricName, s.opts)
	if err != nil {
		return nil, err
	}
	d, err := decoder.New(decoderName, m, s.log)
	if err != nil {
		return nil, err
	}

	references := pool.References
	if len(references) == 0 {
		// Sampling-based MBR: the candidate pool approximates the
		// reference distribution.
		s.log.Debug("no references given, using hypotheses as pseudo-references",
			"decoder", decoderName, "metric", metricName)
		references = pool.Hypotheses
	}

	return d.Decode(ctx, pool.Hypotheses, references, pool.Source, nbest)
}
