package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// StaticEmbedder produces deterministic hash-based embeddings with no model
// dependency. Quality is far below a learned model, but the output is stable,
// normalized, and token-overlap sensitive, which is enough for offline
// operation and tests.
type StaticEmbedder struct {
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{dims: StaticDimensions}
}

// Embed generates a deterministic embedding for text.
func (s *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dims)

	for _, token := range tokenizeStatic(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		// Each token contributes to a few pseudo-random components.
		for i := 0; i < 4; i++ {
			idx := int((sum >> (i * 16)) & 0xFFFF) % s.dims
			sign := float32(1)
			if (sum>>(i*16+15))&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	return normalize32(vec), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (s *StaticEmbedder) Dimensions() int { return s.dims }

// ModelName returns the model identifier.
func (s *StaticEmbedder) ModelName() string { return "static-fnv" }

// Available always reports true.
func (s *StaticEmbedder) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (s *StaticEmbedder) Close() error { return nil }

func tokenizeStatic(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize32(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
