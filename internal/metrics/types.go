// Package metrics implements the decode service's instrumentation:
// counters, gauges, and histograms with an optional label dimension,
// exported in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing count.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// NewCounter creates a counter. labels may be nil for an unlabelled
// series; the label set is fixed at construction.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: labels}
}

// Inc adds one.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds delta. Negative deltas are dropped; counters only grow.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Reset zeroes the counter.
func (c *Counter) Reset() { c.value.Store(0) }

// Name returns the series name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Labels returns a copy of the label set.
func (c *Counter) Labels() map[string]string { return copyLabels(c.labels) }

// Gauge is a value that moves in both directions. The reading is kept
// as float64 bits so fractional values survive atomic updates.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64
}

// NewGauge creates a gauge. labels may be nil for an unlabelled series.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{name: name, help: help, labels: labels}
}

// Set replaces the current reading.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Inc adds one.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one.
func (g *Gauge) Dec() { g.Add(-1) }

// Add shifts the reading by delta.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Value returns the current reading.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Name returns the series name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Labels returns a copy of the label set.
func (g *Gauge) Labels() map[string]string { return copyLabels(g.labels) }

// defaultBounds suit millisecond latencies.
var defaultBounds = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Histogram counts observations into le buckets.
type Histogram struct {
	name   string
	help   string
	labels map[string]string
	bounds []float64

	mu     sync.Mutex
	counts []int64 // one per bound, +Inf last
	sum    float64
	count  int64
}

// NewHistogram creates a histogram with the given bucket upper bounds.
// Nil bounds fall back to millisecond latency buckets.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	if len(bounds) == 0 {
		bounds = defaultBounds
	}
	sorted := make([]float64, len(bounds))
	copy(sorted, bounds)
	sort.Float64s(sorted)

	return &Histogram{
		name:   name,
		help:   help,
		bounds: sorted,
		counts: make([]int64, len(sorted)+1),
	}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	idx := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	h.counts[idx]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// Count returns how many values were observed.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Buckets returns the bucket upper bounds, excluding +Inf.
func (h *Histogram) Buckets() []float64 {
	out := make([]float64, len(h.bounds))
	copy(out, h.bounds)
	return out
}

// BucketCounts returns cumulative counts per bucket, +Inf last.
func (h *Histogram) BucketCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]int64, len(h.counts))
	var running int64
	for i, c := range h.counts {
		running += c
		out[i] = running
	}
	return out
}

// Name returns the series name.
func (h *Histogram) Name() string { return h.name }

// Help returns the help text.
func (h *Histogram) Help() string { return h.help }

// Labels returns a copy of the label set.
func (h *Histogram) Labels() map[string]string { return copyLabels(h.labels) }

// family holds the children of a labelled metric, one per distinct
// combination of label values.
type family[T any] struct {
	labelNames []string
	mu         sync.RWMutex
	children   map[string]T
}

func newFamily[T any](labelNames []string) family[T] {
	return family[T]{labelNames: labelNames, children: make(map[string]T)}
}

// child returns the series for the given label values, creating it on
// first use. Label values arrive in declaration order, so joining them
// is a stable key.
func (f *family[T]) child(labelValues []string, create func(map[string]string) T) T {
	if len(labelValues) != len(f.labelNames) {
		panic(fmt.Sprintf("metric needs %d label values, got %d", len(f.labelNames), len(labelValues)))
	}
	key := strings.Join(labelValues, "\x00")

	f.mu.RLock()
	c, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return c
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.children[key]; ok {
		return c
	}

	labels := make(map[string]string, len(f.labelNames))
	for i, name := range f.labelNames {
		labels[name] = labelValues[i]
	}
	c = create(labels)
	f.children[key] = c
	return c
}

// all returns every child series.
func (f *family[T]) all() []T {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]T, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out
}

// CounterVec is a counter family with one child per label combination.
type CounterVec struct {
	name string
	help string
	family[*Counter]
}

// NewCounterVec creates a counter family over the given label names.
func NewCounterVec(name, help string, labelNames []string) *CounterVec {
	return &CounterVec{name: name, help: help, family: newFamily[*Counter](labelNames)}
}

// WithLabels returns the counter for the given label values.
func (cv *CounterVec) WithLabels(values ...string) *Counter {
	return cv.child(values, func(labels map[string]string) *Counter {
		return NewCounter(cv.name, cv.help, labels)
	})
}

// GetAll returns every counter in the family.
func (cv *CounterVec) GetAll() []*Counter { return cv.all() }

// Name returns the family name.
func (cv *CounterVec) Name() string { return cv.name }

// Help returns the help text.
func (cv *CounterVec) Help() string { return cv.help }

// GaugeVec is a gauge family with one child per label combination.
type GaugeVec struct {
	name string
	help string
	family[*Gauge]
}

// NewGaugeVec creates a gauge family over the given label names.
func NewGaugeVec(name, help string, labelNames []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, family: newFamily[*Gauge](labelNames)}
}

// WithLabels returns the gauge for the given label values.
func (gv *GaugeVec) WithLabels(values ...string) *Gauge {
	return gv.child(values, func(labels map[string]string) *Gauge {
		return NewGauge(gv.name, gv.help, labels)
	})
}

// GetAll returns every gauge in the family.
func (gv *GaugeVec) GetAll() []*Gauge { return gv.all() }

// Name returns the family name.
func (gv *GaugeVec) Name() string { return gv.name }

// Help returns the help text.
func (gv *GaugeVec) Help() string { return gv.help }

// HistogramVec is a histogram family with one child per label
// combination, all sharing the same bucket bounds.
type HistogramVec struct {
	name   string
	help   string
	bounds []float64
	family[*Histogram]
}

// NewHistogramVec creates a histogram family over the given label names.
func NewHistogramVec(name, help string, labelNames []string, bounds []float64) *HistogramVec {
	return &HistogramVec{
		name:   name,
		help:   help,
		bounds: bounds,
		family: newFamily[*Histogram](labelNames),
	}
}

// WithLabels returns the histogram for the given label values.
func (hv *HistogramVec) WithLabels(values ...string) *Histogram {
	return hv.child(values, func(labels map[string]string) *Histogram {
		h := NewHistogram(hv.name, hv.help, hv.bounds)
		h.labels = labels
		return h
	})
}

// GetAll returns every histogram in the family.
func (hv *HistogramVec) GetAll() []*Histogram { return hv.all() }

// Name returns the family name.
func (hv *HistogramVec) Name() string { return hv.name }

// Help returns the help text.
func (hv *HistogramVec) Help() string { return hv.help }

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
