package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.RequestsPerSecond <= 0 {
		t.Errorf("RequestsPerSecond = %f, want > 0", cfg.RequestsPerSecond)
	}
	if cfg.Burst < int(cfg.RequestsPerSecond) {
		t.Errorf("Burst = %d, want >= sustained rate", cfg.Burst)
	}
	if cfg.CleanupInterval <= 0 {
		t.Errorf("CleanupInterval = %v, want > 0", cfg.CleanupInterval)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2})

	if !rl.Allow("10.0.0.1") {
		t.Error("first request denied, want allowed")
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("second request denied, want within burst")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request allowed, want denied over burst")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 10, Burst: 1})

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("second immediate request allowed, want denied")
	}

	// At 10 req/s one token returns within 100ms.
	time.Sleep(150 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Error("request after refill denied, want allowed")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first client denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("first client over budget, want denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second client denied, budgets should be per client")
	}
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1000, Burst: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rl.Allow("10.0.0.1")
				rl.Allow("10.0.0.2")
			}
		}()
	}
	wg.Wait()
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/decode", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/decode", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status over budget = %d, want 429", rec.Code)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.10:5000", nil, "192.168.1.10"},
		{"remote addr ipv6", "[2001:db8::1]:8080", nil, "2001:db8::1"},
		{"x-forwarded-for single", "10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"x-forwarded-for chain", "10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2, 10.0.0.3"}, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:80",
			map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded-for wins over real-ip", "10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.9"}, "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := clientAddr(req); got != tt.want {
				t.Errorf("clientAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterEviction(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})

	rl.Allow("10.0.0.1")
	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * staleAfter)
	cutoff := time.Now().Add(-staleAfter)
	for addr, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, addr)
		}
	}
	remaining := len(rl.clients)
	rl.mu.Unlock()

	if remaining != 0 {
		t.Errorf("clients after eviction = %d, want 0", remaining)
	}

	// A fresh bucket means a fresh budget.
	if !rl.Allow("10.0.0.1") {
		t.Error("request after eviction denied, want allowed")
	}
}
