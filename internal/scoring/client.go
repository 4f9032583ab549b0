// Package scoring provides an HTTP client for remote neural scoring backends.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
)

// Client is an HTTP client for a neural scoring backend.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	batchSize   int
	maxParallel int
	maxRetries  int
	log         *logger.Logger
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the scoring backend.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// BatchSize is the maximum number of hypotheses per request.
	BatchSize int

	// MaxParallel limits concurrent in-flight requests.
	MaxParallel int

	// RequestsPerSecond throttles outgoing requests. Zero means unlimited.
	RequestsPerSecond int

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9090",
		Timeout:     120 * time.Second,
		BatchSize:   64,
		MaxParallel: 4,
		MaxRetries:  3,
	}
}

// New creates a new scoring backend client.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:9090"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}

	transport := &http.Transport{
		MaxIdleConns:      100,
		MaxConnsPerHost:   100,
		IdleConnTimeout:   90 * time.Second,
		ForceAttemptHTTP2: true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter:     limiter,
		batchSize:   cfg.BatchSize,
		maxParallel: cfg.MaxParallel,
		maxRetries:  cfg.MaxRetries,
		log:         log,
	}
}

// ScoreRequest is the wire format for a batched score request.
// References and Sources are either empty, a single broadcast value,
// or aligned one-to-one with Hypotheses.
type ScoreRequest struct {
	Model      string   `json:"model"`
	Hypotheses []string `json:"hypotheses"`
	References []string `json:"references,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	FP16       bool     `json:"fp16,omitempty"`
}

// ScoreResponse is the wire format for a batched score response.
type ScoreResponse struct {
	Scores []float64 `json:"scores"`
	Model  string    `json:"model,omitempty"`
}

// PairwiseRequest is the wire format for a full hypothesis-reference grid.
type PairwiseRequest struct {
	Model      string   `json:"model"`
	Hypotheses []string `json:"hypotheses"`
	References []string `json:"references"`
	Source     string   `json:"source,omitempty"`
	FP16       bool     `json:"fp16,omitempty"`
}

// PairwiseResponse holds one row of scores per hypothesis.
type PairwiseResponse struct {
	Scores [][]float64 `json:"scores"`
	Model  string      `json:"model,omitempty"`
}

// Scores evaluates hypotheses against the backend model in batches.
// refs and srcs follow ScoreRequest broadcast semantics.
func (c *Client) Scores(ctx context.Context, model string, hyps, refs, srcs []string, fp16 bool) ([]float64, error) {
	if len(hyps) == 0 {
		return nil, nil
	}
	if len(refs) > 1 && len(refs) != len(hyps) {
		return nil, errors.ValidationError(fmt.Sprintf("got %d references for %d hypotheses", len(refs), len(hyps)))
	}
	if len(srcs) > 1 && len(srcs) != len(hyps) {
		return nil, errors.ValidationError(fmt.Sprintf("got %d sources for %d hypotheses", len(srcs), len(hyps)))
	}

	out := make([]float64, len(hyps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)

	for start := 0; start < len(hyps); start += c.batchSize {
		end := start + c.batchSize
		if end > len(hyps) {
			end = len(hyps)
		}

		g.Go(func() error {
			req := ScoreRequest{
				Model:      model,
				Hypotheses: hyps[start:end],
				References: sliceArg(refs, start, end),
				Sources:    sliceArg(srcs, start, end),
				FP16:       fp16,
			}

			var resp ScoreResponse
			if err := c.post(gctx, "/v1/scores", req, &resp); err != nil {
				return err
			}

			if len(resp.Scores) != end-start {
				return errors.New(errors.CodeBackend,
					fmt.Sprintf("backend returned %d scores for %d hypotheses", len(resp.Scores), end-start))
			}

			copy(out[start:end], resp.Scores)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// PairwiseScores evaluates every hypothesis against every reference in a
// single request. The backend can embed each segment once, which is much
// cheaper than scoring the pairs independently.
func (c *Client) PairwiseScores(ctx context.Context, model string, hyps, refs []string, source string, fp16 bool) ([][]float64, error) {
	if len(hyps) == 0 || len(refs) == 0 {
		return nil, errors.ValidationError("pairwise scoring requires hypotheses and references")
	}

	req := PairwiseRequest{
		Model:      model,
		Hypotheses: hyps,
		References: refs,
		Source:     source,
		FP16:       fp16,
	}

	var resp PairwiseResponse
	if err := c.post(ctx, "/v1/pairwise", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Scores) != len(hyps) {
		return nil, errors.New(errors.CodeBackend,
			fmt.Sprintf("backend returned %d rows for %d hypotheses", len(resp.Scores), len(hyps)))
	}
	for i, row := range resp.Scores {
		if len(row) != len(refs) {
			return nil, errors.New(errors.CodeBackend,
				fmt.Sprintf("backend row %d has %d scores for %d references", i, len(row), len(refs)))
		}
	}

	return resp.Scores, nil
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return errors.Wrap(errors.CodeBackend, "failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeBackend, "scoring backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeBackend, fmt.Sprintf("scoring backend unhealthy: HTTP %d", resp.StatusCode))
	}

	return nil
}

// sliceArg slices a broadcastable argument to match a hypothesis batch.
func sliceArg(arg []string, start, end int) []string {
	switch {
	case len(arg) == 0:
		return nil
	case len(arg) == 1:
		return arg
	default:
		return arg[start:end]
	}
}

// post executes a JSON POST with retries for transient failures.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(errors.CodeBackend, "scoring request canceled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
			if c.log != nil {
				c.log.Debug("retrying scoring request", "path", path, "attempt", attempt)
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.Wrap(errors.CodeBackend, "rate limiter wait failed", err)
			}
		}

		retryable, err := c.doOnce(ctx, path, data, result)
		if err == nil {
			return nil
		}

		lastErr = err
		if !retryable {
			return err
		}
	}

	return lastErr
}

// doOnce executes a single POST attempt. The bool return reports whether
// the failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, path string, body []byte, result interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, errors.Wrap(errors.CodeBackend, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, errors.Wrap(errors.CodeBackend, "scoring request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, errors.Wrap(errors.CodeBackend, "failed to read response", err)
	}

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests

		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Code != "" {
			return retryable, errors.New(errors.CodeBackend, apiErr.Message).WithDetail("backend_code", apiErr.Code)
		}

		return retryable, errors.New(errors.CodeBackend, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data)))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return false, errors.Wrap(errors.CodeBackend, "failed to unmarshal response", err)
		}
	}

	return false, nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 500 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
