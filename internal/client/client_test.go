package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 5*time.Minute)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.baseURL != "http://localhost:8080" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8080")
		}
	})

	t.Run("custom config", func(t *testing.T) {
		c := New(Config{
			BaseURL: "http://custom:9000",
			Timeout: 60 * time.Second,
		})
		if c.baseURL != "http://custom:9000" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://custom:9000")
		}
	})
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/healthz")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want %q", r.Method, http.MethodGet)
		}

		if err := json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: "1.0.0",
		}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestClientDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/decode" {
			t.Errorf("path = %q, want /v1/decode", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "sekret" {
			t.Errorf("X-API-Key = %q, want sekret", got)
		}

		var req DecodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Hypotheses) != 2 {
			t.Errorf("got %d hypotheses, want 2", len(req.Hypotheses))
		}

		json.NewEncoder(w).Encode(DecodeResponse{
			Decoder: "mbr",
			Metric:  "bleu",
			Output: &Output{
				Indices:   []int{1, 0},
				Sentences: []string{req.Hypotheses[1], req.Hypotheses[0]},
				Scores:    []float64{0.9, 0.1},
			},
		})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, APIKey: "sekret"})
	resp, err := c.Decode(context.Background(), DecodeRequest{
		Hypotheses: []string{"one", "two"},
	})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.Output.Sentences[0] != "two" {
		t.Errorf("best = %q, want two", resp.Output.Sentences[0])
	}
}

func TestClientBatchWait(t *testing.T) {
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/batch":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(SubmitResponse{ID: "abc123", Status: "pending", Sentences: 1})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/batch/abc123":
			polls++
			status := "running"
			if polls >= 2 {
				status = "completed"
			}
			json.NewEncoder(w).Encode(JobStatus{
				ID:     "abc123",
				Status: status,
				Results: []*Output{
					{Sentences: []string{"best"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})

	sub, err := c.SubmitBatch(context.Background(), BatchRequest{
		Pools: []Pool{{Hypotheses: []string{"a", "b"}}},
	})
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if sub.ID != "abc123" {
		t.Fatalf("ID = %q, want abc123", sub.ID)
	}

	status, err := c.WaitForJob(context.Background(), sub.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}
	if status.Status != "completed" {
		t.Errorf("Status = %q, want completed", status.Status)
	}
	if polls < 2 {
		t.Errorf("polls = %d, want at least 2", polls)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "hypotheses are required",
		})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	_, err := c.Decode(context.Background(), DecodeRequest{})
	if err == nil {
		t.Fatal("Decode() expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError: %v", err, err)
	}
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
}

func TestClientEvaluate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/evaluate" {
			t.Errorf("path = %q, want /v1/evaluate", r.URL.Path)
		}
		json.NewEncoder(w).Encode(EvaluateSummary{
			Metric:    "bleu",
			Sentences: 3,
			Mean:      0.42,
		})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	sum, err := c.Evaluate(context.Background(), EvaluateRequest{
		Metric:     "bleu",
		Outputs:    []string{"a", "b", "c"},
		References: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if sum.Mean != 0.42 {
		t.Errorf("Mean = %f, want 0.42", sum.Mean)
	}
}
