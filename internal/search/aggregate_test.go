package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/store"
)

func TestChunkKeyPriority(t *testing.T) {
	withVec := testChunk("a", 7, "docs/a.md", 0, "hello world")
	assert.Equal(t, "vec:7", ChunkKey(withVec))

	noVec := testChunk("a", store.NoVecID, "docs/a.md", 2, "hello world")
	assert.Equal(t, "loc:docs/a.md#2", ChunkKey(noVec))

	noIndex := testChunk("a", store.NoVecID, "docs/a.md", -1, "hello world")
	noIndex.ContentID = "c123"
	assert.Equal(t, "cid:docs/a.md#c123", ChunkKey(noIndex))

	bare := &store.Chunk{VecID: store.NoVecID, ChunkIndex: -1, Content: "hello world"}
	key := ChunkKey(bare)
	assert.Contains(t, key, "txt:")
	// Same content, same key.
	assert.Equal(t, key, ChunkKey(&store.Chunk{VecID: store.NoVecID, ChunkIndex: -1, Content: "hello world"}))
}

// Two signals referencing the same chunk through different identity paths
// must merge into one candidate.
func TestAggregatorIdempotentKeying(t *testing.T) {
	ctx := context.Background()
	chunk := testChunk("c1", 3, "docs/a.md", 0, "shared content")
	meta := newFakeMeta(chunk)
	agg := NewAggregator(meta, nil)

	agg.AddDense(ctx, []*store.VectorResult{{ID: 3, Similarity: 0.8}})
	agg.AddLexical(ctx, []*store.LexicalResult{{DocID: "c1", Score: 2.0, Rank: 1}})

	require.Equal(t, 1, agg.Len())
	c := agg.All()[0]
	assert.Equal(t, "vec:3", c.Key)
	assert.ElementsMatch(t, []string{"dense", "lexical"}, c.Sources())

	dense, ok := c.Score(SignalDense)
	require.True(t, ok)
	assert.InDelta(t, 0.9, dense, 1e-9)

	lexical, ok := c.Score(SignalLexical)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, lexical, 1e-9)

	assert.InDelta(t, dense+lexical, c.PreScore, 1e-9)
	assert.Equal(t, 1, c.Ranks[SignalDense])
	assert.Equal(t, 1, c.Ranks[SignalLexical])
}

func TestAggregatorDropsUnresolvable(t *testing.T) {
	ctx := context.Background()
	meta := newFakeMeta(testChunk("c1", 3, "docs/a.md", 0, "content"))
	agg := NewAggregator(meta, nil)

	agg.AddDense(ctx, []*store.VectorResult{
		{ID: 3, Similarity: 0.5},
		{ID: 99, Similarity: 0.9}, // no such chunk
	})
	agg.AddLexical(ctx, []*store.LexicalResult{
		{DocID: "missing", Score: 5, Rank: 1},
	})

	assert.Equal(t, 1, agg.Len())
}

func TestTopByPreScore(t *testing.T) {
	ctx := context.Background()
	meta := newFakeMeta(
		testChunk("c1", 1, "a.md", 0, "one"),
		testChunk("c2", 2, "b.md", 0, "two"),
		testChunk("c3", 3, "c.md", 0, "three"),
	)
	agg := NewAggregator(meta, nil)
	agg.AddDense(ctx, []*store.VectorResult{
		{ID: 2, Similarity: 0.9},
		{ID: 1, Similarity: 0.1},
		{ID: 3, Similarity: 0.5},
	})

	top := agg.TopByPreScore(2)
	require.Len(t, top, 2)
	assert.Equal(t, "vec:2", top[0].Key)
	assert.Equal(t, "vec:3", top[1].Key)
}
