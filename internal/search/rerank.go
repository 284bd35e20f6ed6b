package search

import (
	"context"
	"log/slog"
)

// Reranker scores (query, content) pairs with a precise second-pass model.
type Reranker interface {
	// Score returns one raw relevance score per content, in order.
	Score(ctx context.Context, query string, contents []string) ([]float64, error)

	// Available checks if the reranker is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// RerankStage applies the reranker to a bounded top slice of the aggregated
// candidates. Reranking is the most expensive stage per item, so its input is
// clamped independently of recall size.
type RerankStage struct {
	reranker Reranker
	bounds   RecallBounds
	logger   *slog.Logger
}

// NewRerankStage creates a rerank stage.
func NewRerankStage(reranker Reranker, bounds RecallBounds, logger *slog.Logger) *RerankStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RerankStage{reranker: reranker, bounds: bounds, logger: logger}
}

// Run reranks the top candidates by pre-score in one batched call and writes
// the scores back. Returns whether the signal ran. On failure all candidates
// keep the signal absent and fusion proceeds without it.
func (s *RerankStage) Run(ctx context.Context, query string, agg *Aggregator, topK int) bool {
	if s.reranker == nil || agg.Len() == 0 {
		return false
	}

	n := s.bounds.Size(topK)
	top := agg.TopByPreScore(n)
	return s.Apply(ctx, query, top)
}

// Apply reranks an explicit candidate slice. Used directly by the image
// track, which selects its own input set.
func (s *RerankStage) Apply(ctx context.Context, query string, candidates []*Candidate) bool {
	if s.reranker == nil || len(candidates) == 0 {
		return false
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}

	scores, err := s.reranker.Score(ctx, query, contents)
	if err != nil {
		s.logger.Warn("rerank degraded", "candidates", len(candidates), "error", err)
		return false
	}
	if len(scores) != len(candidates) {
		s.logger.Warn("rerank degraded: score count mismatch",
			"want", len(candidates), "got", len(scores))
		return false
	}

	rank := 1
	for i, c := range candidates {
		norm, ok := NormalizeRerank(scores[i])
		if !ok {
			continue
		}
		c.SetScore(SignalRerank, scores[i], norm)
		c.Ranks[SignalRerank] = rank
		rank++
	}
	return true
}
