package metric

import (
	"sort"
	"strings"

	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// Options carries the dependencies metrics may need.
type Options struct {
	Config  config.MetricConfig
	Backend *scoring.Client
	Cache   ScoreCache
}

// builders maps names to reference-based metric constructors.
var builders = map[string]func(Options) Metric{
	"bleu":  func(Options) Metric { return NewBLEU() },
	"chrf":  func(Options) Metric { return NewCHRF() },
	"ter":   func(Options) Metric { return NewTER() },
	"exact": func(Options) Metric { return NewExactMatch() },
	"comet": func(o Options) Metric {
		return NewCOMET(o.Backend, o.Config.CometModel, o.Config.FP16)
	},
	"bleurt": func(o Options) Metric {
		return NewBLEURT(o.Backend, o.Config.BleurtModel, o.Config.FP16)
	},
}

// qeBuilders maps names to reference-free metric constructors.
var qeBuilders = map[string]func(Options) MetricReferenceless{
	"cometqe": func(o Options) MetricReferenceless {
		return NewCOMETQE(o.Backend, o.Config.CometQE, o.Config.FP16)
	},
}

// needsBackend marks metrics served by a remote scoring backend.
// Only these are worth caching.
var needsBackend = map[string]bool{
	"comet":   true,
	"bleurt":  true,
	"cometqe": true,
}

// New creates the named reference-based metric.
func New(name string, opts Options) (Metric, error) {
	builder, ok := builders[name]
	if !ok {
		if _, qe := qeBuilders[name]; qe {
			return nil, errors.ValidationError("metric " + name + " is reference-free; use a reranking decoder")
		}
		return nil, errors.NotFoundError("metric " + name).
			WithDetail("available", strings.Join(Names(), ", "))
	}

	if needsBackend[name] {
		if opts.Backend == nil {
			return nil, errors.ValidationError("metric " + name + " requires a scoring backend")
		}
		return WithCache(builder(opts), opts.Cache), nil
	}

	return builder(opts), nil
}

// NewReferenceless creates the named reference-free metric.
func NewReferenceless(name string, opts Options) (MetricReferenceless, error) {
	builder, ok := qeBuilders[name]
	if !ok {
		if _, ref := builders[name]; ref {
			return nil, errors.ValidationError("metric " + name + " requires references")
		}
		return nil, errors.NotFoundError("metric " + name).
			WithDetail("available", strings.Join(Names(), ", "))
	}

	if needsBackend[name] {
		if opts.Backend == nil {
			return nil, errors.ValidationError("metric " + name + " requires a scoring backend")
		}
		return WithCacheReferenceless(builder(opts), opts.Cache), nil
	}

	return builder(opts), nil
}

// IsReferenceless reports whether the named metric scores without
// references.
func IsReferenceless(name string) bool {
	_, ok := qeBuilders[name]
	return ok
}

// Has reports whether the named metric is registered.
func Has(name string) bool {
	if _, ok := builders[name]; ok {
		return true
	}
	_, ok := qeBuilders[name]
	return ok
}

// Names returns all registered metric names, sorted.
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

// ForConfig creates the default metric from configuration.
func ForConfig(cfg config.MetricConfig, backend *scoring.Client, cache ScoreCache) (Metric, error) {
	return New(cfg.Default, Options{Config: cfg, Backend: backend, Cache: cache})
}
