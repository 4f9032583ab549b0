package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// staleAfter is how long a client may stay idle before its token
// bucket is evicted.
const staleAfter = 5 * time.Minute

// RateLimiter applies a per-client token bucket. Clients are keyed by
// IP address.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64
	// Burst is the short-term allowance above the sustained rate.
	Burst int
	// CleanupInterval is how often idle clients are evicted. Zero
	// disables eviction.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		CleanupInterval:   time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its eviction loop.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		clients: make(map[string]*client),
	}

	if cfg.CleanupInterval > 0 {
		go rl.evictLoop(cfg.CleanupInterval)
	}

	return rl
}

// Allow reports whether a request from addr fits within its budget.
func (rl *RateLimiter) Allow(addr string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[addr]
	if !ok {
		c = &client{bucket: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[addr] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()

	return c.bucket.Allow()
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientAddr(r)) {
			apperrors.WriteErrorWithStatus(w, http.StatusTooManyRequests,
				apperrors.RateLimitedError(1))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-staleAfter)

		rl.mu.Lock()
		for addr, c := range rl.clients {
			if c.lastSeen.Before(cutoff) {
				delete(rl.clients, addr)
			}
		}
		rl.mu.Unlock()
	}
}

// clientAddr extracts the client IP, preferring proxy headers. With
// X-Forwarded-For the first hop is the original client.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
