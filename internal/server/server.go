// Package server provides the HTTP decode service that wires the
// decoder, metric registry, scoring backend, and batch pipeline
// together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/bus"
	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/evaluation"
	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/metrics"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/pkg/middleware"
	"github.com/mbrdecode/mbr-decode/internal/pkg/security"
	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// Server is the HTTP decode service.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	httpServer *http.Server

	bus     bus.Bus
	backend *scoring.Client
	cache   metric.ScoreCache
	store   *JobStore
	svc     *DecodeService
	worker  *Worker

	decodeHandler *DecodeHandler
	batchHandler  *BatchHandler
	healthHandler *HealthHandler
	evalHandler   *evaluation.Handler

	version   string
	sweepStop chan struct{}

	mu      sync.RWMutex
	started bool
}

// cacheWithMetrics is implemented by caches that can report hit rates.
type cacheWithMetrics interface {
	SetMetrics(metric.CacheMetrics)
}

// Version is the build version, overridable with -ldflags.
var Version = "dev"

// New creates a server with all dependencies wired from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default()
	}

	log.Debug("loaded configuration",
		"settings", security.MaskSensitiveMap(map[string]string{
			"addr":            cfg.Address(),
			"backend_url":     cfg.Backend.URL,
			"backend_api_key": cfg.Backend.APIKey,
			"api_key":         cfg.Security.APIKey,
			"metric":          cfg.Metric.Default,
			"decoder":         cfg.Decoder.Default,
			"cache":           cfg.Cache.Type,
			"bus":             cfg.Bus.Type,
		}),
	)

	s := &Server{
		cfg:       cfg,
		log:       log,
		metrics:   metrics.New(),
		version:   Version,
		sweepStop: make(chan struct{}),
	}

	s.backend = scoring.New(scoring.Config{
		BaseURL:           cfg.Backend.URL,
		APIKey:            cfg.Backend.APIKey,
		Timeout:           time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		BatchSize:         cfg.Metric.BatchSize,
		MaxParallel:       cfg.Backend.MaxParallel,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		MaxRetries:        cfg.Backend.MaxRetries,
	}, log)

	cache, err := metric.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating score cache: %w", err)
	}
	if c, ok := cache.(cacheWithMetrics); ok {
		c.SetMetrics(s.metrics)
	}
	s.cache = cache

	b, err := bus.NewBus(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	if cfg.Bus.EventLogEnabled {
		journal, err := bus.NewEventLogger(cfg.Bus.EventLogPath, true)
		if err != nil {
			return nil, fmt.Errorf("creating event journal: %w", err)
		}
		b = bus.NewLoggedBus(b, journal, log)
	}
	s.bus = bus.NewInstrumentedBus(b, s.metrics)

	opts := metric.Options{
		Config:  cfg.Metric,
		Backend: s.backend,
		Cache:   s.cache,
	}

	s.svc = NewDecodeService(cfg, opts, log, s.metrics)
	s.store = NewJobStore(cfg.Jobs.MaxPending)
	s.worker = NewWorker(s.svc, s.store, s.bus, cfg.Jobs.Workers, log, s.metrics)

	s.decodeHandler = NewDecodeHandler(s.svc)
	s.batchHandler = NewBatchHandler(s.store, s.bus, log, s.metrics)
	s.healthHandler = NewHealthHandler(s.backend, s.cache, s.version)
	s.evalHandler = evaluation.NewHandler(evaluation.NewEvaluator(opts, log))

	return s, nil
}

// Start subscribes the worker and serves HTTP until shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.worker.Start(context.Background()); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	go s.sweepLoop()

	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // large pools take a while to decode
	}

	s.log.Info("starting HTTP server", "addr", s.cfg.Address(), "version", s.version)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("shutting down server")
	close(s.sweepStop)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.bus != nil {
		s.bus.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}

	s.started = false
	s.log.Info("server stopped")
	return nil
}

// Health reports whether the server is running.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// sweepLoop evicts stale finished jobs.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.store.Sweep()
		case <-s.sweepStop:
			return
		}
	}
}

// routes builds the handler chain: request ID, auth, rate limiting,
// metrics, and request logging around the route mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.healthHandler.RegisterRoutes(mux)
	s.decodeHandler.RegisterRoutes(mux)
	s.batchHandler.RegisterRoutes(mux)
	s.evalHandler.RegisterRoutes(mux)

	if s.cfg.Observability.MetricsEnabled {
		path := s.cfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.logRequests(handler)

	if s.cfg.Security.RateLimit > 0 {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.Security.RateLimit),
			Burst:             s.cfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = rl.Middleware(handler)
	}

	if s.cfg.Security.APIKey != "" {
		exempt := []string{"/healthz", s.cfg.Observability.MetricsPath}
		handler = middleware.APIKeyAuth(s.cfg.Security.APIKey, exempt, handler)
	}

	handler = metrics.HTTPMiddleware(s.metrics, handler)
	return RequestIDMiddleware(handler)
}

// logRequests logs each request at debug level with sanitized fields.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", security.SanitizeForLog(r.URL.Path),
			"request_id", RequestID(r.Context()),
			"duration", time.Since(start),
			"headers", security.MaskSensitiveHeaders(r.Header),
		)
	})
}
