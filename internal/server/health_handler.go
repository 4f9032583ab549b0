package server

import (
	"context"
	"net/http"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/metric"
	"github.com/mbrdecode/mbr-decode/internal/scoring"
)

// HealthHandler reports liveness and dependency health.
type HealthHandler struct {
	backend *scoring.Client
	cache   metric.ScoreCache
	version string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(backend *scoring.Client, cache metric.ScoreCache, version string) *HealthHandler {
	return &HealthHandler{backend: backend, cache: cache, version: version}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Checks:  make(map[string]string),
	}

	if h.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.backend.Ping(ctx); err != nil {
			// Lexical metrics still work without the backend.
			resp.Checks["backend"] = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Checks["backend"] = "ok"
		}
	} else {
		resp.Checks["backend"] = "disabled"
	}

	if h.cache != nil {
		resp.Checks["cache"] = "ok"
	} else {
		resp.Checks["cache"] = "disabled"
	}

	writeJSON(w, http.StatusOK, resp)
}
