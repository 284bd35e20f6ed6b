package search

import (
	"context"
	"log/slog"

	"github.com/kestrel-search/kestrel/internal/embed"
	"github.com/kestrel-search/kestrel/internal/store"
)

// Recall sources wrap one opaque index each and degrade to an empty list on
// failure. The returned ok flag reports whether the signal actually ran,
// which feeds the per-stage response flags.

// DenseSource performs embedding-based vector recall.
type DenseSource struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	logger   *slog.Logger
}

// NewDenseSource creates a dense recall source.
func NewDenseSource(embedder embed.Embedder, vectors store.VectorStore, logger *slog.Logger) *DenseSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DenseSource{embedder: embedder, vectors: vectors, logger: logger}
}

// Recall embeds the query and searches the vector index. Also returns the
// query vector so later stages can reuse it.
func (s *DenseSource) Recall(ctx context.Context, query string, k int) ([]*store.VectorResult, []float32, bool) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("dense recall degraded: embedding failed", "error", err)
		return nil, nil, false
	}

	results, err := s.vectors.Search(ctx, vec, k)
	if err != nil {
		s.logger.Warn("dense recall degraded: vector search failed", "error", err)
		return nil, vec, false
	}
	return results, vec, true
}

// LexicalSource performs term-overlap recall against the lexical index.
type LexicalSource struct {
	index  store.LexicalIndex
	logger *slog.Logger
}

// NewLexicalSource creates a lexical recall source.
func NewLexicalSource(index store.LexicalIndex, logger *slog.Logger) *LexicalSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalSource{index: index, logger: logger}
}

// Recall queries the lexical index.
func (s *LexicalSource) Recall(ctx context.Context, query string, k int) ([]*store.LexicalResult, bool) {
	results, err := s.index.Retrieve(ctx, query, k)
	if err != nil {
		s.logger.Warn("lexical recall degraded", "error", err)
		return nil, false
	}
	return results, true
}

// Score rates contents against the query with the lexical model, for
// secondary scoring of candidates found by other signals. Degrades to absent.
func (s *LexicalSource) Score(ctx context.Context, query string, contents []string) ([]float64, bool) {
	if len(contents) == 0 {
		return nil, true
	}
	scores, err := s.index.Score(ctx, query, contents)
	if err != nil {
		s.logger.Warn("lexical scoring degraded", "error", err)
		return nil, false
	}
	return scores, true
}
