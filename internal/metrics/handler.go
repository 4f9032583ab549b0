package metrics

import "net/http"

// contentType is the Prometheus text exposition format version.
const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Handler returns the scrape endpoint. Only GET is served; the body is
// a fresh snapshot of every registered series.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(m.PrometheusFormat()))
	})
}
