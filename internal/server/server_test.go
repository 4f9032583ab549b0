package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/bus"
	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/metrics"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

func testConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	cfg.Metric.Default = "bleu"
	cfg.Decoder.Default = "mbr"
	cfg.Cache.Type = "none"
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), logger.Quiet())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.bus.Close() })
	if err := s.worker.Start(context.Background()); err != nil {
		t.Fatalf("worker.Start() error = %v", err)
	}
	return s
}

func TestDecodeEndpoint(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	body, _ := json.Marshal(DecodeRequest{
		Hypotheses: []string{
			"the cat sat on the mat",
			"the cat sat on a mat",
			"dogs everywhere",
		},
		NBest: 2,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp DecodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Decoder != "mbr" || resp.Metric != "bleu" {
		t.Errorf("Decoder/Metric = %s/%s, want mbr/bleu", resp.Decoder, resp.Metric)
	}
	if len(resp.Output.Sentences) != 2 {
		t.Fatalf("got %d sentences, want 2", len(resp.Output.Sentences))
	}
	// The outlier should not win under self-consistency MBR.
	if resp.Output.Best() == "dogs everywhere" {
		t.Error("outlier hypothesis ranked first")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestDecodeEndpointValidation(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty hypotheses", `{"hypotheses":[]}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown metric", `{"hypotheses":["a"],"metric":"nope"}`, http.StatusNotFound},
		{"unknown decoder", `{"hypotheses":["a"],"decoder":"nope"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestDecodeEndpointStripsControlCharacters(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	body, _ := json.Marshal(DecodeRequest{
		Hypotheses: []string{"hello\x1b[2Jworld"},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp DecodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got := resp.Output.Best(); got != "hello[2Jworld" {
		t.Errorf("Best() = %q, want escape stripped", got)
	}
}

func TestDecodeEndpointAcceptsEmptyCandidates(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	// Real candidate pools contain the occasional empty output; it
	// scores low but must not fail the request.
	body, _ := json.Marshal(DecodeRequest{
		Hypotheses: []string{"the cat sat", "the cat sat", ""},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp DecodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got := resp.Output.Best(); got != "the cat sat" {
		t.Errorf("Best() = %q, want the consensus hypothesis", got)
	}
}

func TestBatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	body, _ := json.Marshal(BatchRequest{
		Metric: "exact",
		Pools: []PoolRequest{
			{Hypotheses: []string{"aa", "bb", "aa"}},
			{Hypotheses: []string{"xx", "xx", "yy"}},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var sub SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal submit response: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("submit response has empty job ID")
	}
	if sub.Sentences != 2 {
		t.Errorf("Sentences = %d, want 2", sub.Sentences)
	}

	// Poll until the memory-bus worker finishes the job.
	var view JobView
	deadline := time.Now().Add(5 * time.Second)
	for {
		statusReq := httptest.NewRequest(http.MethodGet, "/v1/batch/"+sub.ID, nil)
		statusRec := httptest.NewRecorder()
		handler.ServeHTTP(statusRec, statusReq)

		if statusRec.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d: %s", statusRec.Code, statusRec.Body.String())
		}
		if err := json.Unmarshal(statusRec.Body.Bytes(), &view); err != nil {
			t.Fatalf("unmarshal job view: %v", err)
		}
		if view.Status == JobCompleted || view.Status == JobFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status = %s", view.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if view.Status != JobCompleted {
		t.Fatalf("job status = %s, want completed: %s", view.Status, view.Error)
	}
	if len(view.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(view.Results))
	}
	// "aa" appears twice, so under exact-match MBR it wins the first pool.
	if got := view.Results[0].Best(); got != "aa" {
		t.Errorf("pool 0 best = %q, want aa", got)
	}
	if got := view.Results[1].Best(); got != "xx" {
		t.Errorf("pool 1 best = %q, want xx", got)
	}
}

func TestBatchUnknownJob(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/batch/deadbeef", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal health response: %v", err)
	}
	// No scoring backend runs in tests, so the check reports degraded.
	if resp.Checks["backend"] == "" {
		t.Error("health response missing backend check")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("mbr_")) {
		t.Error("metrics output missing mbr_ series")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.APIKey = "sekret"

	s, err := New(cfg, logger.Quiet())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.bus.Close() })
	handler := s.routes()

	body := []byte(`{"hypotheses":["a","b"]}`)

	// Missing key
	req := httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	// Wrong key
	req = httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	// Correct key
	req = httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "sekret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("right key: status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// Health stays open
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", rec.Code)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	s := newTestServer(t)
	handler := s.routes()

	body := []byte(`{"metric":"exact","outputs":["a","b"],"references":["a","b"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestJobStoreMaxPending(t *testing.T) {
	store := NewJobStore(1)

	req := BatchRequest{Pools: []PoolRequest{{Hypotheses: []string{"a"}}}}
	if _, err := store.Create(req); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := store.Create(req); err == nil {
		t.Fatal("second Create() should hit the pending cap")
	}
}

func TestJobStoreSweep(t *testing.T) {
	store := NewJobStore(0)
	store.retention = 0

	job, err := store.Create(BatchRequest{Pools: []PoolRequest{{Hypotheses: []string{"a"}}}})
	if err != nil {
		t.Fatal(err)
	}
	store.start(job.ID)
	store.complete(job.ID, nil)

	time.Sleep(time.Millisecond)
	store.Sweep()

	if _, err := store.Get(job.ID); err == nil {
		t.Error("swept job still retrievable")
	}
}

var _ metric.CacheMetrics = (*metrics.Metrics)(nil)

// Ensure the instrumented bus keeps satisfying the Bus interface the
// handlers depend on.
var _ bus.Bus = (*bus.InstrumentedBus)(nil)
