package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mbrdecode/mbr-decode/internal/bus"
	"github.com/mbrdecode/mbr-decode/internal/metrics"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// serverSource identifies API-server-emitted events on the bus.
const serverSource = "decode-api"

// BatchHandler serves asynchronous batch decode jobs.
type BatchHandler struct {
	store   *JobStore
	bus     bus.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewBatchHandler creates the batch handler.
func NewBatchHandler(store *JobStore, b bus.Bus, log *logger.Logger, m *metrics.Metrics) *BatchHandler {
	if log == nil {
		log = logger.Default()
	}
	return &BatchHandler{store: store, bus: b, log: log, metrics: m}
}

// RegisterRoutes registers batch routes.
func (h *BatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/batch", h.handleSubmit)
	mux.HandleFunc("GET /v1/batch/{id}", h.handleStatus)
}

// SubmitResponse acknowledges an accepted batch job.
type SubmitResponse struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Sentences int       `json:"sentences"`
}

func (h *BatchHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body"))
		return
	}

	if len(req.Pools) == 0 {
		errors.WriteError(w, errors.ValidationError("pools are required"))
		return
	}
	for i, pool := range req.Pools {
		if len(pool.Hypotheses) == 0 {
			errors.WriteError(w, errors.ValidationError("pool has no hypotheses").
				WithDetail("pool", strconv.Itoa(i)))
			return
		}
		if len(pool.Hypotheses) > maxPoolSize {
			errors.WriteError(w, errors.ValidationError("pool too large").
				WithDetail("pool", strconv.Itoa(i)).
				WithDetail("max", strconv.Itoa(maxPoolSize)))
			return
		}
	}

	for i := range req.Pools {
		req.Pools[i] = req.Pools[i].sanitized()
	}

	job, err := h.store.Create(req)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	event := bus.NewEvent(bus.TopicJobRequest, serverSource, job.ID)
	if err := h.bus.Publish(r.Context(), bus.TopicJobRequest, event); err != nil {
		h.store.fail(job.ID, "failed to enqueue job")
		errors.WriteError(w, errors.Wrap(errors.CodeUnavailable, "failed to enqueue job", err))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordJobSubmitted()
	}
	h.log.Info("batch job submitted", "job_id", job.ID, "sentences", len(req.Pools))

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:        job.ID,
		Status:    job.Status,
		Sentences: len(req.Pools),
	})
}

func (h *BatchHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := h.store.Get(id)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
