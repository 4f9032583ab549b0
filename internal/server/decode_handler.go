package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/decoder"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/security"
)

// maxPoolSize caps hypotheses per pool to bound utility matrix cost.
const maxPoolSize = security.MaxPoolSize

// DecodeHandler serves synchronous decode requests.
type DecodeHandler struct {
	svc *DecodeService
}

// NewDecodeHandler creates the decode handler.
func NewDecodeHandler(svc *DecodeService) *DecodeHandler {
	return &DecodeHandler{svc: svc}
}

// RegisterRoutes registers decode routes.
func (h *DecodeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/decode", h.handleDecode)
}

// DecodeRequest is the synchronous decode request body.
type DecodeRequest struct {
	Decoder    string   `json:"decoder,omitempty"`
	Metric     string   `json:"metric,omitempty"`
	NBest      int      `json:"nbest,omitempty"`
	Hypotheses []string `json:"hypotheses"`
	References []string `json:"references,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// DecodeResponse wraps the decoder output with what produced it.
type DecodeResponse struct {
	Decoder   string          `json:"decoder"`
	Metric    string          `json:"metric"`
	Output    *decoder.Output `json:"output"`
	LatencyMS int64           `json:"latency_ms"`
}

func (h *DecodeHandler) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body"))
		return
	}

	validator := security.DecodeRequestValidator{
		Decoder:    req.Decoder,
		Metric:     req.Metric,
		NBest:      req.NBest,
		Hypotheses: req.Hypotheses,
		References: req.References,
		Source:     req.Source,
	}
	if err := validator.Validate(); err != nil {
		errors.WriteError(w, errors.ValidationError(err.Error()))
		return
	}

	decoderName, metricName, nbest := h.svc.resolve(req.Decoder, req.Metric, req.NBest)

	pool := PoolRequest{
		Hypotheses: req.Hypotheses,
		References: req.References,
		Source:     req.Source,
	}.sanitized()

	start := time.Now()
	out, err := h.svc.DecodePool(r.Context(), decoderName, metricName, nbest, pool)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DecodeResponse{
		Decoder:   decoderName,
		Metric:    metricName,
		Output:    out,
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
