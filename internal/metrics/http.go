package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect metrics.
// It records request count, duration, and tracks in-flight requests.
//
// Usage:
//
//	handler := metrics.HTTPMiddleware(metrics, http.HandlerFunc(myHandler))
//	http.Handle("/v1/", handler)
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

var jobPathPattern = regexp.MustCompile(`^/v1/batch/[^/]+$`)

// normalizePath normalizes HTTP paths to reduce cardinality for metrics.
// Job status lookups carry the job ID in the path and collapse to one
// series.
func normalizePath(path string) string {
	switch path {
	case "/", "/healthz", "/metrics", "/v1/decode", "/v1/batch":
		return path
	}

	if jobPathPattern.MatchString(path) {
		return "/v1/batch/{id}"
	}

	return path
}

// statusCode converts an HTTP status code to a metric label. Uncommon
// codes are grouped by class to keep cardinality down.
func statusCode(code int) string {
	switch code {
	case 200, 201, 202, 204, 400, 401, 403, 404, 405, 429, 500, 502, 503:
		return strconv.Itoa(code)
	}

	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	}

	return strconv.Itoa(code)
}
