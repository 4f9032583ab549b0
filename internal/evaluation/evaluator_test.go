package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

func TestEvaluateCorpusExact(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)

	outputs := []string{"the cat sat", "a dog ran", "hello world"}
	references := []string{"the cat sat", "the dog ran", "hello world"}

	sum, err := e.EvaluateCorpus(context.Background(), "exact", outputs, references, nil)
	if err != nil {
		t.Fatalf("EvaluateCorpus() error = %v", err)
	}

	if sum.Metric != "exact" {
		t.Errorf("Metric = %s, want exact", sum.Metric)
	}
	if sum.Sentences != 3 {
		t.Errorf("Sentences = %d, want 3", sum.Sentences)
	}
	// Two exact matches out of three
	if got, want := sum.Mean, 2.0/3.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Mean = %f, want %f", got, want)
	}
	if sum.Min != 0 || sum.Max != 1 {
		t.Errorf("Min/Max = %f/%f, want 0/1", sum.Min, sum.Max)
	}
	if len(sum.Scores) != 3 {
		t.Fatalf("Scores length = %d, want 3", len(sum.Scores))
	}
	if sum.Scores[1].Score != 0 {
		t.Errorf("Scores[1] = %f, want 0 for mismatch", sum.Scores[1].Score)
	}
}

func TestEvaluateCorpusBLEU(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)

	outputs := []string{"the quick brown fox jumps over the lazy dog"}
	references := []string{"the quick brown fox jumps over the lazy dog"}

	sum, err := e.EvaluateCorpus(context.Background(), "bleu", outputs, references, nil)
	if err != nil {
		t.Fatalf("EvaluateCorpus() error = %v", err)
	}
	// BLEU reports on the 0-100 scale.
	if math.Abs(sum.Mean-100.0) > 1e-9 {
		t.Errorf("Mean BLEU for identical sentences = %f, want 100", sum.Mean)
	}
	if sum.Min != sum.Max {
		t.Errorf("Min/Max = %f/%f, want equal for a single sentence", sum.Min, sum.Max)
	}
}

func TestEvaluateCorpusLengthMismatch(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)

	_, err := e.EvaluateCorpus(context.Background(), "bleu",
		[]string{"a", "b"}, []string{"a"}, nil)
	if err == nil {
		t.Fatal("EvaluateCorpus() expected error for mismatched lengths")
	}
	if !errors.IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestEvaluateCorpusEmpty(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)

	_, err := e.EvaluateCorpus(context.Background(), "exact", nil, nil, nil)
	if err == nil {
		t.Fatal("EvaluateCorpus() expected error for empty corpus")
	}
}

func TestEvaluateCorpusUnknownMetric(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)

	_, err := e.EvaluateCorpus(context.Background(), "nope",
		[]string{"a"}, []string{"a"}, nil)
	if err == nil {
		t.Fatal("EvaluateCorpus() expected error for unknown metric")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestSummarizeStats(t *testing.T) {
	sum := summarize("exact", []float64{0, 0.5, 1})

	if math.Abs(sum.Mean-0.5) > 1e-9 {
		t.Errorf("Mean = %f, want 0.5", sum.Mean)
	}
	if math.Abs(sum.Median-0.5) > 1e-9 {
		t.Errorf("Median = %f, want 0.5", sum.Median)
	}
	if sum.Min != 0 || sum.Max != 1 {
		t.Errorf("Min/Max = %f/%f, want 0/1", sum.Min, sum.Max)
	}
	if sum.StdDev <= 0 {
		t.Errorf("StdDev = %f, want > 0", sum.StdDev)
	}
}

func TestHandlerEvaluate(t *testing.T) {
	e := NewEvaluator(metric.Options{}, nil)
	h := NewHandler(e)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body, _ := json.Marshal(EvaluateRequest{
		Metric:        "exact",
		Outputs:       []string{"a", "b"},
		References:    []string{"a", "c"},
		IncludeScores: true,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if sum.Sentences != 2 {
		t.Errorf("Sentences = %d, want 2", sum.Sentences)
	}
	if len(sum.Scores) != 2 {
		t.Errorf("Scores length = %d, want 2", len(sum.Scores))
	}
}

func TestHandlerEvaluateMissingMetric(t *testing.T) {
	h := NewHandler(NewEvaluator(metric.Options{}, nil))

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewReader([]byte(`{"outputs":["a"]}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
