package server

import (
	"context"
	"fmt"

	"github.com/mbrdecode/mbr-decode/internal/bus"
	"github.com/mbrdecode/mbr-decode/internal/decoder"
	"github.com/mbrdecode/mbr-decode/internal/metrics"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// workerSource identifies worker-emitted events on the bus.
const workerSource = "decode-worker"

// Worker consumes batch decode jobs from the bus and runs them through
// the decode service.
type Worker struct {
	svc     *DecodeService
	store   *JobStore
	bus     bus.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
	sem     chan struct{}
}

// NewWorker creates a worker processing up to concurrency jobs at once.
func NewWorker(svc *DecodeService, store *JobStore, b bus.Bus, concurrency int, log *logger.Logger, m *metrics.Metrics) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &Worker{
		svc:     svc,
		store:   store,
		bus:     b,
		log:     log,
		metrics: m,
		sem:     make(chan struct{}, concurrency),
	}
}

// Start subscribes the worker to the job request topic.
func (w *Worker) Start(ctx context.Context) error {
	return w.bus.Subscribe(ctx, bus.TopicJobRequest, w.handleRequest)
}

func (w *Worker) handleRequest(ctx context.Context, event bus.Event) error {
	jobID, ok := event.Payload.(string)
	if !ok {
		w.log.Warn("job request event with non-string payload", "event_id", event.ID)
		return nil
	}

	job, ok := w.store.start(jobID)
	if !ok {
		// Already picked up by another worker or evicted.
		return nil
	}

	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	if w.metrics != nil {
		w.metrics.RecordJobStarted()
	}

	w.log.Info("batch job started", "job_id", jobID, "sentences", len(job.Request.Pools))
	w.process(ctx, job)
	return nil
}

// process decodes every pool of the job, publishing progress along the
// way and a terminal event at the end.
func (w *Worker) process(ctx context.Context, job *Job) {
	req := job.Request
	results := make([]*decoder.Output, 0, len(req.Pools))

	for i, pool := range req.Pools {
		out, err := w.svc.DecodePool(ctx, req.Decoder, req.Metric, req.NBest, pool)
		if err != nil {
			msg := fmt.Sprintf("sentence %d: %v", i, err)
			w.store.fail(job.ID, msg)
			w.finish(ctx, job, bus.TopicJobFailed, string(JobFailed), i)
			w.log.Error("batch job failed", "job_id", job.ID, "sentence", i, "error", err)
			return
		}
		results = append(results, out)
		w.store.progress(job.ID, i+1)

		if (i+1)%progressEvery == 0 {
			w.publish(ctx, bus.TopicJobProgress, map[string]any{
				"job_id": job.ID,
				"done":   i + 1,
				"total":  len(req.Pools),
			})
		}
	}

	w.store.complete(job.ID, results)
	w.finish(ctx, job, bus.TopicJobCompleted, string(JobCompleted), len(results))
	w.log.Info("batch job completed", "job_id", job.ID, "sentences", len(results))
}

// progressEvery controls how often progress events are published.
const progressEvery = 50

func (w *Worker) finish(ctx context.Context, job *Job, topic, status string, sentences int) {
	if w.metrics != nil {
		w.metrics.RecordJobFinished(status, sentences)
	}
	w.publish(ctx, topic, map[string]any{
		"job_id":    job.ID,
		"status":    status,
		"sentences": sentences,
	})
}

func (w *Worker) publish(ctx context.Context, topic string, payload any) {
	if err := w.bus.Publish(ctx, topic, bus.NewEvent(topic, workerSource, payload)); err != nil {
		w.log.Warn("failed to publish job event", "topic", topic, "error", err)
	}
}
