package metric

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

func backendFor(t *testing.T, handler http.HandlerFunc) *scoring.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return scoring.New(scoring.Config{BaseURL: server.URL}, nil)
}

func TestCOMET_Scores(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req scoring.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if req.Model != DefaultCometModel {
			t.Errorf("Model = %q, want %q", req.Model, DefaultCometModel)
		}
		if len(req.References) != 1 || req.References[0] != "die katze" {
			t.Errorf("References = %v, want broadcast [die katze]", req.References)
		}
		if len(req.Sources) != 1 || req.Sources[0] != "the cat" {
			t.Errorf("Sources = %v, want broadcast [the cat]", req.Sources)
		}

		scores := make([]float64, len(req.Hypotheses))
		for i := range scores {
			scores[i] = 0.8
		}
		if err := json.NewEncoder(w).Encode(scoring.ScoreResponse{Scores: scores}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewCOMET(client, "", false)

	scores, err := m.Scores(context.Background(), []string{"h1", "h2"}, "die katze", "the cat")
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}

	if len(scores) != 2 || scores[0] != 0.8 {
		t.Errorf("scores = %v, want [0.8 0.8]", scores)
	}
}

func TestCOMET_PairwiseScores(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pairwise" {
			t.Errorf("path = %q, want /v1/pairwise", r.URL.Path)
		}

		var req scoring.PairwiseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		rows := make([][]float64, len(req.Hypotheses))
		for i := range req.Hypotheses {
			row := make([]float64, len(req.References))
			for j := range req.References {
				row[j] = float64(i) + float64(j)/10
			}
			rows[i] = row
		}
		if err := json.NewEncoder(w).Encode(scoring.PairwiseResponse{Scores: rows}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewCOMET(client, "custom/model", true)

	grid, err := m.PairwiseScores(context.Background(),
		[]string{"h0", "h1", "h2"}, []string{"r0", "r1"}, "src")
	if err != nil {
		t.Fatalf("PairwiseScores() error = %v", err)
	}

	rows, cols := grid.Dims()
	if rows != 3 || cols != 2 {
		t.Fatalf("Dims() = (%d, %d), want (3, 2)", rows, cols)
	}
	if got := grid.At(2, 1); got != 2.1 {
		t.Errorf("At(2,1) = %v, want 2.1", got)
	}
}

func TestCOMET_ScoreDelegates(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req scoring.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Hypotheses) != 1 {
			t.Errorf("len(Hypotheses) = %d, want 1", len(req.Hypotheses))
		}
		if err := json.NewEncoder(w).Encode(scoring.ScoreResponse{Scores: []float64{0.42}}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewCOMET(client, "", false)

	score, err := m.Score(context.Background(), "h", "r", "s")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 0.42 {
		t.Errorf("Score = %v, want 0.42", score)
	}
}

func TestCOMETQE_Scores(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req scoring.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if req.Model != DefaultCometQEModel {
			t.Errorf("Model = %q, want %q", req.Model, DefaultCometQEModel)
		}
		if len(req.References) != 0 {
			t.Errorf("References = %v, want none for QE", req.References)
		}
		if len(req.Sources) != 1 || req.Sources[0] != "src" {
			t.Errorf("Sources = %v, want broadcast [src]", req.Sources)
		}

		scores := make([]float64, len(req.Hypotheses))
		for i := range scores {
			scores[i] = float64(i)
		}
		if err := json.NewEncoder(w).Encode(scoring.ScoreResponse{Scores: scores}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewCOMETQE(client, "", false)

	scores, err := m.Scores(context.Background(), []string{"h0", "h1", "h2"}, "src")
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}

	if len(scores) != 3 || scores[2] != 2 {
		t.Errorf("scores = %v, want [0 1 2]", scores)
	}
}

func TestCOMETQE_ScoreDelegates(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(scoring.ScoreResponse{Scores: []float64{0.9}}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewCOMETQE(client, "", false)

	score, err := m.Score(context.Background(), "h", "src")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 0.9 {
		t.Errorf("Score = %v, want 0.9", score)
	}
}

func TestBLEURT_Scores(t *testing.T) {
	client := backendFor(t, func(w http.ResponseWriter, r *http.Request) {
		var req scoring.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if req.Model != DefaultBleurtModel {
			t.Errorf("Model = %q, want %q", req.Model, DefaultBleurtModel)
		}
		if len(req.References) != 1 {
			t.Errorf("References = %v, want broadcast reference", req.References)
		}
		if len(req.Sources) != 0 {
			t.Errorf("Sources = %v, want none for BLEURT", req.Sources)
		}

		scores := make([]float64, len(req.Hypotheses))
		if err := json.NewEncoder(w).Encode(scoring.ScoreResponse{Scores: scores}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	})

	m := NewBLEURT(client, "", false)

	if _, err := m.Scores(context.Background(), []string{"h"}, "ref", "ignored src"); err != nil {
		t.Fatalf("Scores() error = %v", err)
	}
}

func TestBackendMetricModels(t *testing.T) {
	client := testBackend()

	if got := NewCOMET(client, "", false).Model(); got != DefaultCometModel {
		t.Errorf("COMET default model = %q, want %q", got, DefaultCometModel)
	}
	if got := NewCOMETQE(client, "", false).Model(); got != DefaultCometQEModel {
		t.Errorf("COMETQE default model = %q, want %q", got, DefaultCometQEModel)
	}
	if got := NewBLEURT(client, "custom", false).Model(); got != "custom" {
		t.Errorf("BLEURT custom model = %q, want custom", got)
	}
}
