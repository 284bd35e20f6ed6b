package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPRerankerConfig configures the HTTP reranker client.
type HTTPRerankerConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration // per-request deadline (default: 30s)
}

// HTTPReranker calls an external cross-encoder service. The circuit breaker
// stops a dead service from adding a full timeout to every query.
type HTTPReranker struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
	config  HTTPRerankerConfig
}

var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPReranker creates a breaker-protected reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("reranker: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "reranker",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		breaker: breaker,
		config:  cfg,
	}, nil
}

// Score sends one batched rerank request.
func (r *HTTPReranker) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	if len(contents) == 0 {
		return []float64{}, nil
	}

	scores, err := r.breaker.Execute(func() ([]float64, error) {
		return r.scoreRequest(ctx, query, contents)
	})
	if err != nil {
		return nil, err
	}
	if len(scores) != len(contents) {
		return nil, fmt.Errorf("reranker: got %d scores for %d documents", len(scores), len(contents))
	}
	return scores, nil
}

func (r *HTTPReranker) scoreRequest(ctx context.Context, query string, contents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: r.config.Model, Query: query, Documents: contents})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reranker returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Scores, nil
}

// Available reports whether the breaker currently admits requests.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	return r.breaker.State() != gobreaker.StateOpen
}

// Close releases pooled connections.
func (r *HTTPReranker) Close() error {
	if t, ok := r.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
