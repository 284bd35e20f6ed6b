package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kestrel-search/kestrel/internal/store"
)

// contentKeyPrefixLen bounds how much content feeds the fallback hash key.
const contentKeyPrefixLen = 120

// ChunkKey computes the stable candidate key for a chunk. Identity prefers
// the numeric vector id, then (path, chunk index), then (path, content id),
// then a content-prefix hash. Raw records from every signal are resolved to
// their canonical chunk before keying, so the same content reached through
// different signals always produces the same key.
func ChunkKey(c *store.Chunk) string {
	switch {
	case c.VecID != store.NoVecID:
		return fmt.Sprintf("vec:%d", c.VecID)
	case c.DocPath != "" && c.ChunkIndex >= 0:
		return fmt.Sprintf("loc:%s#%d", c.DocPath, c.ChunkIndex)
	case c.DocPath != "" && c.ContentID != "":
		return fmt.Sprintf("cid:%s#%s", c.DocPath, c.ContentID)
	default:
		return contentKey(c.Content)
	}
}

// ImageKey computes the candidate key for an image asset. Image vector ids
// live in their own index, so they get their own key namespace.
func ImageKey(img *store.ImageAsset) string {
	return fmt.Sprintf("img:%d", img.VecID)
}

func contentKey(content string) string {
	prefix := content
	if len(prefix) > contentKeyPrefixLen {
		prefix = prefix[:contentKeyPrefixLen]
	}
	sum := sha256.Sum256([]byte(prefix))
	return "txt:" + hex.EncodeToString(sum[:8])
}

// Aggregator merges raw recall records into a deduplicated candidate set for
// one query. It owns the only mutable candidate map; recall stages hand it
// their complete result lists after the parallel phase finishes.
type Aggregator struct {
	meta       store.MetadataStore
	logger     *slog.Logger
	candidates map[string]*Candidate
}

// NewAggregator creates an empty aggregator for a single query.
func NewAggregator(meta store.MetadataStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		meta:       meta,
		logger:     logger,
		candidates: make(map[string]*Candidate),
	}
}

// AddDense merges dense vector recall results. Records whose vector id does
// not resolve to a chunk are dropped as malformed.
func (a *Aggregator) AddDense(ctx context.Context, results []*store.VectorResult) {
	for i, r := range results {
		chunk, err := a.meta.GetChunkByVecID(ctx, int64(r.ID))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				a.logger.Warn("dense candidate lookup failed", "vec_id", r.ID, "error", err)
			}
			continue
		}
		norm, ok := NormalizeDense(r.Similarity)
		if !ok {
			continue
		}
		c := a.getOrCreate(chunk)
		c.SetScore(SignalDense, r.Similarity, norm)
		c.Ranks[SignalDense] = i + 1
	}
}

// AddLexical merges lexical recall results keyed by chunk id.
func (a *Aggregator) AddLexical(ctx context.Context, results []*store.LexicalResult) {
	for _, r := range results {
		chunk, err := a.meta.GetChunk(ctx, r.DocID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				a.logger.Warn("lexical candidate lookup failed", "doc_id", r.DocID, "error", err)
			}
			continue
		}
		norm, ok := NormalizeLexical(r.Score)
		if !ok {
			continue
		}
		c := a.getOrCreate(chunk)
		c.SetScore(SignalLexical, r.Score, norm)
		c.Ranks[SignalLexical] = r.Rank
	}
}

func (a *Aggregator) getOrCreate(chunk *store.Chunk) *Candidate {
	key := ChunkKey(chunk)
	if c, ok := a.candidates[key]; ok {
		return c
	}
	c := &Candidate{
		Key:     key,
		Chunk:   chunk,
		Content: chunk.Content,
		Scores:  make(map[Signal]SignalScore),
		Ranks:   make(map[Signal]int),
	}
	a.candidates[key] = c
	return c
}

// Len returns the number of distinct candidates.
func (a *Aggregator) Len() int { return len(a.candidates) }

// All returns every candidate in unspecified order.
func (a *Aggregator) All() []*Candidate {
	out := make([]*Candidate, 0, len(a.candidates))
	for _, c := range a.candidates {
		out = append(out, c)
	}
	return out
}

// TopByPreScore returns up to n candidates ordered by pre-score descending,
// with the key as a deterministic tie-break.
func (a *Aggregator) TopByPreScore(n int) []*Candidate {
	all := a.All()
	sort.Slice(all, func(i, j int) bool {
		if all[i].PreScore != all[j].PreScore {
			return all[i].PreScore > all[j].PreScore
		}
		return all[i].Key < all[j].Key
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}
