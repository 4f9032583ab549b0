// Package client provides an HTTP client for the decode service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an HTTP client for the decode service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the decode server.
	BaseURL string

	// APIKey is sent as X-API-Key when non-empty.
	APIKey string

	// Timeout is the request timeout. Decode requests over large pools
	// can be slow, so this defaults generously.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Timeout:         5 * time.Minute,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new decode service client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 100
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost / 5,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
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

// Output holds a decoded candidate ranking.
type Output struct {
	Indices   []int     `json:"indices"`
	Sentences []string  `json:"sentences"`
	Scores    []float64 `json:"scores"`
}

// DecodeResponse is the synchronous decode response.
type DecodeResponse struct {
	Decoder   string  `json:"decoder"`
	Metric    string  `json:"metric"`
	Output    *Output `json:"output"`
	LatencyMS int64   `json:"latency_ms"`
}

// Pool is one sentence's candidate pool in a batch request.
type Pool struct {
	Hypotheses []string `json:"hypotheses"`
	References []string `json:"references,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// BatchRequest submits a corpus of candidate pools.
type BatchRequest struct {
	Decoder string `json:"decoder,omitempty"`
	Metric  string `json:"metric,omitempty"`
	NBest   int    `json:"nbest,omitempty"`
	Pools   []Pool `json:"pools"`
}

// SubmitResponse acknowledges an accepted batch job.
type SubmitResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Sentences int    `json:"sentences"`
}

// JobStatus is a batch job snapshot.
type JobStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Sentences int       `json:"sentences"`
	Done      int       `json:"done"`
	Results   []*Output `json:"results,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// EvaluateRequest scores outputs against references.
type EvaluateRequest struct {
	Metric        string   `json:"metric"`
	Outputs       []string `json:"outputs"`
	References    []string `json:"references,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	IncludeScores bool     `json:"include_scores,omitempty"`
}

// EvaluateSummary holds corpus-level metric statistics.
type EvaluateSummary struct {
	Metric    string  `json:"metric"`
	Sentences int     `json:"sentences"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// APIError represents an API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decode runs a synchronous decode over one candidate pool.
func (c *Client) Decode(ctx context.Context, req DecodeRequest) (*DecodeResponse, error) {
	var resp DecodeResponse
	if err := c.post(ctx, "/v1/decode", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitBatch submits an asynchronous batch decode job.
func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.post(ctx, "/v1/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob fetches the status of a batch job.
func (c *Client) GetJob(ctx context.Context, id string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.get(ctx, "/v1/batch/"+id, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForJob polls a batch job until it finishes or ctx expires.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (*JobStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Status == "completed" || status.Status == "failed" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Evaluate scores a decoded corpus against references on the server.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateSummary, error) {
	var resp EvaluateSummary
	if err := c.post(ctx, "/v1/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
