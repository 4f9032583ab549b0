package evaluation

import (
	"encoding/json"
	"net/http"

	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// Handler provides the HTTP surface for corpus evaluation.
type Handler struct {
	evaluator *Evaluator
}

// NewHandler creates a new evaluation handler.
func NewHandler(e *Evaluator) *Handler {
	return &Handler{evaluator: e}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluate", h.handleEvaluate)
}

type EvaluateRequest struct {
	Metric     string   `json:"metric"`
	Outputs    []string `json:"outputs"`
	References []string `json:"references,omitempty"`
	Sources    []string `json:"sources,omitempty"`

	// IncludeScores returns per-sentence scores in the response.
	IncludeScores bool `json:"include_scores,omitempty"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body"))
		return
	}

	if req.Metric == "" {
		errors.WriteError(w, errors.ValidationError("metric is required"))
		return
	}

	summary, err := h.evaluator.EvaluateCorpus(r.Context(), req.Metric, req.Outputs, req.References, req.Sources)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if !req.IncludeScores {
		summary.Scores = nil
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
