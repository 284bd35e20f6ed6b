// Package clip provides the cross-modal (text/image shared space) encoder
// used for image recall and text-to-image scoring. The encoder is an opaque
// external service; the HTTP client here is breaker-protected so a dead
// service fails fast instead of stalling every query.
package clip

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

// Encoder embeds text into the shared text/image vector space.
type Encoder interface {
	// EmbedTexts embeds each prompt into the cross-modal space.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// Available checks if the encoder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// HTTPConfig configures the HTTP cross-modal encoder.
type HTTPConfig struct {
	Endpoint   string        // base URL of the encoder service
	Dimensions int           // expected embedding dimension
	Timeout    time.Duration // per-request deadline (default: 30s)
}

// HTTPEncoder calls an external CLIP-style service over HTTP.
type HTTPEncoder struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[][]float32]
	config  HTTPConfig
}

var _ Encoder = (*HTTPEncoder)(nil)

type embedTextsRequest struct {
	Texts []string `json:"texts"`
}

type embedTextsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEncoder creates a breaker-protected encoder client.
func NewHTTPEncoder(cfg HTTPConfig) (*HTTPEncoder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("clip: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "clip-encoder",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &HTTPEncoder{
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

// EmbedTexts embeds prompts through the external service in one batch.
func (e *HTTPEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.breaker.Execute(func() ([][]float32, error) {
		return e.embedRequest(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("clip: got %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func (e *HTTPEncoder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedTextsRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/embed_text", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("clip service returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed embedTextsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEncoder) Dimensions() int { return e.config.Dimensions }

// Available reports whether the breaker currently admits requests and the
// service answers a probe.
func (e *HTTPEncoder) Available(ctx context.Context) bool {
	if e.breaker.State() == gobreaker.StateOpen {
		return false
	}
	_, err := e.EmbedTexts(ctx, []string{"ping"})
	return err == nil
}

// Close releases pooled connections.
func (e *HTTPEncoder) Close() error {
	if t, ok := e.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
