package metrics

import (
	stderrors "errors"
	"runtime"
	"sync"
	"time"

	apperrors "github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Decode metrics
	DecodeRequests *CounterVec   // labels: decoder
	DecodeLatency  *HistogramVec // labels: decoder
	DecodeErrors   *CounterVec   // labels: code
	PoolSize       *Histogram    // hypotheses per decode call

	// Metric scoring
	ScoreCalls     *CounterVec   // labels: metric
	ScoreLatency   *HistogramVec // labels: metric
	ScoreBatchSize *Histogram

	// Scoring backend
	BackendRequests *Counter
	BackendLatency  *Histogram
	BackendErrors   *Counter

	// Score cache metrics
	CacheHits   *CounterVec // labels: tier (memory, redis)
	CacheMisses *CounterVec // labels: tier
	CacheSize   *GaugeVec // labels: tier

	// Batch job metrics
	JobsSubmitted *Counter
	JobsCompleted *CounterVec // labels: status
	JobsActive    *Gauge
	JobSentences  *Counter

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Counter

	startTime time.Time
	mu        sync.RWMutex
}

// New creates a metrics instance with all metrics initialized.
func New() *Metrics {
	m := &Metrics{
		DecodeRequests: NewCounterVec(
			"mbr_decode_requests_total",
			"Total number of decode calls",
			[]string{"decoder"},
		),
		DecodeLatency: NewHistogramVec(
			"mbr_decode_latency_ms",
			"Decode call latency in milliseconds",
			[]string{"decoder"},
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		),
		DecodeErrors: NewCounterVec(
			"mbr_decode_errors_total",
			"Total number of decode errors",
			[]string{"code"},
		),
		PoolSize: NewHistogram(
			"mbr_decode_pool_size",
			"Number of hypotheses per decode call",
			[]float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		),

		ScoreCalls: NewCounterVec(
			"mbr_score_calls_total",
			"Total number of metric scoring calls",
			[]string{"metric"},
		),
		ScoreLatency: NewHistogramVec(
			"mbr_score_latency_ms",
			"Metric scoring latency in milliseconds",
			[]string{"metric"},
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		),
		ScoreBatchSize: NewHistogram(
			"mbr_score_batch_size",
			"Number of hypotheses per scoring batch",
			[]float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		),

		BackendRequests: NewCounter(
			"mbr_backend_requests_total",
			"Total number of scoring backend requests",
			nil,
		),
		BackendLatency: NewHistogram(
			"mbr_backend_latency_ms",
			"Scoring backend request latency in milliseconds",
			[]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		),
		BackendErrors: NewCounter(
			"mbr_backend_errors_total",
			"Total number of scoring backend errors",
			nil,
		),

		CacheHits: NewCounterVec(
			"mbr_score_cache_hits_total",
			"Total number of score cache hits",
			[]string{"tier"},
		),
		CacheMisses: NewCounterVec(
			"mbr_score_cache_misses_total",
			"Total number of score cache misses",
			[]string{"tier"},
		),
		CacheSize: NewGaugeVec(
			"mbr_score_cache_size",
			"Current number of cached scores",
			[]string{"tier"},
		),

		JobsSubmitted: NewCounter(
			"mbr_jobs_submitted_total",
			"Total number of batch decode jobs submitted",
			nil,
		),
		JobsCompleted: NewCounterVec(
			"mbr_jobs_completed_total",
			"Total number of batch decode jobs finished",
			[]string{"status"},
		),
		JobsActive: NewGauge(
			"mbr_jobs_active",
			"Number of batch decode jobs currently running",
			nil,
		),
		JobSentences: NewCounter(
			"mbr_job_sentences_total",
			"Total number of sentences decoded by batch jobs",
			nil,
		),

		BusEventsPublished: NewCounterVec(
			"mbr_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"mbr_bus_event_latency_seconds",
			"Event bus publish latency in seconds",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		),
		BusErrors: NewCounterVec(
			"mbr_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"mbr_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"mbr_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		),
		HTTPRequestsInFlight: NewGauge(
			"mbr_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),

		GoroutineCount: NewGauge(
			"mbr_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"mbr_memory_bytes",
			"Memory usage in bytes",
			nil,
		),
		Uptime: NewCounter(
			"mbr_uptime_seconds",
			"Application uptime in seconds",
			nil,
		),

		startTime: time.Now(),
	}

	go m.collectSystemMetrics()

	return m
}

// collectSystemMetrics periodically samples runtime statistics.
func (m *Metrics) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		m.MemoryUsage.Set(float64(memStats.Alloc))

		m.Uptime.Add(15)
	}
}

// RecordDecode records one decode call.
func (m *Metrics) RecordDecode(decoder string, poolSize int, latencyMs int64, err error) {
	m.DecodeRequests.WithLabels(decoder).Inc()
	m.DecodeLatency.WithLabels(decoder).Observe(float64(latencyMs))
	m.PoolSize.Observe(float64(poolSize))

	if err != nil {
		m.DecodeErrors.WithLabels(errorCode(err)).Inc()
	}
}

// RecordScore records one metric scoring batch.
func (m *Metrics) RecordScore(metric string, batchSize int, latencyMs int64) {
	m.ScoreCalls.WithLabels(metric).Inc()
	m.ScoreLatency.WithLabels(metric).Observe(float64(latencyMs))
	m.ScoreBatchSize.Observe(float64(batchSize))
}

// RecordBackend records one scoring backend round trip.
func (m *Metrics) RecordBackend(latencyMs int64, err error) {
	m.BackendRequests.Inc()
	m.BackendLatency.Observe(float64(latencyMs))
	if err != nil {
		m.BackendErrors.Inc()
	}
}

// RecordCacheHit records a score cache hit.
func (m *Metrics) RecordCacheHit(tier string) {
	m.CacheHits.WithLabels(tier).Inc()
}

// RecordCacheMiss records a score cache miss.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.CacheMisses.WithLabels(tier).Inc()
}

// UpdateCacheSize updates the cached score count for one tier.
func (m *Metrics) UpdateCacheSize(tier string, size int) {
	m.CacheSize.WithLabels(tier).Set(float64(size))
}

// RecordJobSubmitted records a batch job entering the queue.
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmitted.Inc()
}

// RecordJobStarted records a batch job picked up by a worker.
func (m *Metrics) RecordJobStarted() {
	m.JobsActive.Inc()
}

// RecordJobFinished records a batch job leaving a worker.
// status should be "completed" or "failed".
func (m *Metrics) RecordJobFinished(status string, sentences int) {
	m.JobsActive.Dec()
	m.JobsCompleted.WithLabels(status).Inc()
	m.JobSentences.Add(int64(sentences))
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs) / 1000.0)

	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records HTTP request metrics. Called by the HTTP middleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64) {
	normalizedPath := normalizePath(path)

	m.HTTPRequests.WithLabels(method, normalizedPath, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalizedPath).Observe(durationSeconds)
}

// errorCode extracts a low-cardinality label from an error.
func errorCode(err error) string {
	if err == nil {
		return "unknown"
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "generic"
}

// Reset resets all scalar metrics to zero (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BackendRequests.Reset()
	m.BackendErrors.Reset()
	m.JobsSubmitted.Reset()
	m.JobSentences.Reset()
	m.Uptime.Reset()

	for _, g := range m.CacheSize.GetAll() {
		g.Set(0)
	}
	m.JobsActive.Set(0)
	m.GoroutineCount.Set(0)
	m.MemoryUsage.Set(0)

	m.startTime = time.Now()
}
