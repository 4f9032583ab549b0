// Package timer accumulates named wall-clock timings for decode runs.
package timer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Stopwatch accumulates elapsed time over repeated measurements.
type Stopwatch struct {
	mu    sync.Mutex
	acc   time.Duration
	calls int64
}

// Start begins a measurement and returns the function that stops it.
func (w *Stopwatch) Start() func() {
	begin := time.Now()
	return func() {
		w.add(time.Since(begin), 1)
	}
}

func (w *Stopwatch) add(d time.Duration, calls int64) {
	w.mu.Lock()
	w.acc += d
	w.calls += calls
	w.mu.Unlock()
}

// Elapsed returns the accumulated duration.
func (w *Stopwatch) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acc
}

// Calls returns how many measurements were taken.
func (w *Stopwatch) Calls() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// Set is a collection of named stopwatches.
type Set struct {
	mu      sync.Mutex
	watches map[string]*Stopwatch
}

// NewSet creates an empty stopwatch set.
func NewSet() *Set {
	return &Set{watches: make(map[string]*Stopwatch)}
}

// Watch returns the named stopwatch, creating it on first use.
func (s *Set) Watch(name string) *Stopwatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[name]
	if !ok {
		w = &Stopwatch{}
		s.watches[name] = w
	}
	return w
}

// Measure starts the named stopwatch and returns the stop function:
//
//	defer set.Measure("total")()
func (s *Set) Measure(name string) func() {
	return s.Watch(name).Start()
}

// Names returns the stopwatch names, sorted.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.watches))
	for name := range s.watches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row is one line of a timing report.
type Row struct {
	Name       string
	AccSeconds float64
	AvgSeconds float64
	Calls      int64
}

// Result summarizes every stopwatch, averaging over nsents sentences.
// Rows come back sorted by name.
func (s *Set) Result(nsents int) []Row {
	rows := make([]Row, 0, len(s.watches))
	for _, name := range s.Names() {
		w := s.Watch(name)
		row := Row{
			Name:       name,
			AccSeconds: w.Elapsed().Seconds(),
			Calls:      w.Calls(),
		}
		if nsents > 0 {
			row.AvgSeconds = row.AccSeconds / float64(nsents)
		}
		rows = append(rows, row)
	}
	return rows
}

// Aggregate merges sets into a fresh one.
func Aggregate(sets ...*Set) *Set {
	merged := NewSet()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for _, name := range s.Names() {
			w := s.Watch(name)
			merged.Watch(name).add(w.Elapsed(), w.Calls())
		}
	}
	return merged
}

// defaultSet catches measurements made outside any run scope.
var (
	defaultMu  sync.RWMutex
	defaultSet = NewSet()
)

// Default returns the process-wide set.
func Default() *Set {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSet
}

// Reset installs a fresh process-wide set and returns it.
func Reset() *Set {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSet = NewSet()
	return defaultSet
}

// Measure times into the process-wide set.
func Measure(name string) func() {
	return Default().Measure(name)
}

type ctxKey struct{}

// WithContext returns a context carrying the given set. Decoders time
// their scoring phase into the carried set.
func WithContext(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the set carried by ctx, or the process-wide set.
func FromContext(ctx context.Context) *Set {
	if s, ok := ctx.Value(ctxKey{}).(*Set); ok && s != nil {
		return s
	}
	return Default()
}
