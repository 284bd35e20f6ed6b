package clip

import "context"

// StaticEncoder is an offline fallback that projects texts with a
// deterministic hash embedder. It keeps the image track wired when no
// cross-modal service is reachable.
type StaticEncoder struct {
	embed textEmbedder
}

// textEmbedder is the subset of the embedding client the fallback needs.
type textEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var _ Encoder = (*StaticEncoder)(nil)

// NewStaticEncoder wraps a deterministic embedder as a cross-modal encoder.
func NewStaticEncoder(embed textEmbedder) *StaticEncoder {
	return &StaticEncoder{embed: embed}
}

func (s *StaticEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed.EmbedBatch(ctx, texts)
}

func (s *StaticEncoder) Dimensions() int { return s.embed.Dimensions() }

func (s *StaticEncoder) Available(ctx context.Context) bool { return true }

func (s *StaticEncoder) Close() error { return nil }
