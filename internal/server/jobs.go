package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/decoder"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/hash"
	"github.com/mbrdecode/mbr-decode/internal/pkg/security"
)

// JobStatus is the lifecycle state of a batch decode job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// PoolRequest is one sentence's candidate pool.
type PoolRequest struct {
	Hypotheses []string `json:"hypotheses"`
	References []string `json:"references,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// sanitized returns a copy of the pool with control characters
// stripped from every sentence. Decoded text is echoed back to clients
// and written to output files, so terminal escapes must not survive
// the round trip.
func (p PoolRequest) sanitized() PoolRequest {
	q := PoolRequest{
		Hypotheses: make([]string, len(p.Hypotheses)),
		References: make([]string, len(p.References)),
		Source:     security.SanitizeSentence(p.Source),
	}
	for i, h := range p.Hypotheses {
		q.Hypotheses[i] = security.SanitizeSentence(h)
	}
	for i, r := range p.References {
		q.References[i] = security.SanitizeSentence(r)
	}
	return q
}

// BatchRequest submits a corpus of candidate pools for decoding.
type BatchRequest struct {
	Decoder string        `json:"decoder,omitempty"`
	Metric  string        `json:"metric,omitempty"`
	NBest   int           `json:"nbest,omitempty"`
	Pools   []PoolRequest `json:"pools"`
}

// Job tracks one batch decode request through its lifecycle.
type Job struct {
	ID          string
	Status      JobStatus
	Request     BatchRequest
	Results     []*decoder.Output
	Err         string
	Done        int
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// JobView is the JSON shape returned by the status endpoint.
type JobView struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Sentences   int               `json:"sentences"`
	Done        int               `json:"done"`
	Results     []*decoder.Output `json:"results,omitempty"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// JobStore holds batch jobs in memory. Finished jobs stay available
// until evicted by the retention sweep.
type JobStore struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	maxPending int
	retention  time.Duration
}

// NewJobStore creates a job store. maxPending caps jobs that are not
// yet finished; zero means no cap.
func NewJobStore(maxPending int) *JobStore {
	return &JobStore{
		jobs:       make(map[string]*Job),
		maxPending: maxPending,
		retention:  time.Hour,
	}
}

// Create registers a new pending job for the request.
func (s *JobStore) Create(req BatchRequest) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxPending > 0 {
		pending := 0
		for _, j := range s.jobs {
			if j.Status == JobPending || j.Status == JobRunning {
				pending++
			}
		}
		if pending >= s.maxPending {
			return nil, errors.RateLimitedError(30)
		}
	}

	now := time.Now()
	payload, _ := json.Marshal(req)
	job := &Job{
		ID:          hash.JobID(payload, now.UTC().Format(time.RFC3339Nano)),
		Status:      JobPending,
		Request:     req,
		SubmittedAt: now,
	}
	s.jobs[job.ID] = job
	return job, nil
}

// Get returns a snapshot of the named job.
func (s *JobStore) Get(id string) (JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobView{}, errors.NotFoundError("job " + id)
	}
	return job.view(), nil
}

// view builds a JSON snapshot. Caller holds the store lock.
func (j *Job) view() JobView {
	v := JobView{
		ID:          j.ID,
		Status:      j.Status,
		Sentences:   len(j.Request.Pools),
		Done:        j.Done,
		Error:       j.Err,
		SubmittedAt: j.SubmittedAt,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		v.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		v.FinishedAt = &t
	}
	if j.Status == JobCompleted {
		v.Results = j.Results
	}
	return v
}

// start marks the job running.
func (s *JobStore) start(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != JobPending {
		return nil, false
	}
	job.Status = JobRunning
	job.StartedAt = time.Now()
	return job, true
}

// progress records completed sentences.
func (s *JobStore) progress(id string, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Done = done
	}
}

// complete stores the results and marks the job done.
func (s *JobStore) complete(id string, results []*decoder.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = JobCompleted
		job.Results = results
		job.Done = len(results)
		job.FinishedAt = time.Now()
	}
}

// fail marks the job failed with the error message.
func (s *JobStore) fail(id string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = JobFailed
		job.Err = errMsg
		job.FinishedAt = time.Now()
	}
}

// Sweep evicts finished jobs older than the retention window.
func (s *JobStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.retention)
	for id, job := range s.jobs {
		if job.Status != JobCompleted && job.Status != JobFailed {
			continue
		}
		if job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
