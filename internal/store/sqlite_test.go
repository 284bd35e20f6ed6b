package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := NewSQLiteMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleChunk(id string, vecID int64) *Chunk {
	return &Chunk{
		ID:         id,
		VecID:      vecID,
		DocID:      "doc-1",
		DocPath:    "docs/sample.md",
		Filename:   "sample.md",
		ChunkIndex: int(vecID),
		ContentID:  "cid-" + id,
		Content:    "content of " + id,
	}
}

func TestSQLiteChunkRoundtrip(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*Chunk{sampleChunk("c1", 0), sampleChunk("c2", 1)}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.VecID)
	assert.Equal(t, "content of c1", got.Content)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteChunkUpsert(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	c := sampleChunk("c1", 0)
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{c}))

	c.Content = "updated"
	c.VecID = 9
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{c}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)
	assert.Equal(t, int64(9), got.VecID)
}

func TestSQLiteChunkLookups(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{sampleChunk("c1", 0), sampleChunk("c2", 1)}))

	byVec, err := s.GetChunkByVecID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "c2", byVec.ID)

	byLoc, err := s.GetChunkByLocation(ctx, "docs/sample.md", 0)
	require.NoError(t, err)
	assert.Equal(t, "c1", byLoc.ID)

	_, err = s.GetChunkByVecID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	batch, err := s.GetChunks(ctx, []string{"c1", "c2", "missing"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestSQLiteScanChunks(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{sampleChunk("c1", 0), sampleChunk("c2", 1)}))

	var seen []string
	err := s.ScanChunks(ctx, func(c *Chunk) error {
		seen = append(seen, c.ID)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, seen)
}

func TestSQLiteImages(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	img := &ImageAsset{VecID: 5, DocPath: "docs/sample.md", ChunkIndex: 2, Caption: "a chart", URI: "blob://5"}
	require.NoError(t, s.SaveImages(ctx, []*ImageAsset{img}))

	got, err := s.GetImageByVecID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "a chart", got.Caption)
	assert.Equal(t, "blob://5", got.URI)

	_, err = s.GetImageByVecID(ctx, 6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteHasDocPath(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{sampleChunk("c1", 0)}))

	ok, err := s.HasDocPath(ctx, "docs/sample.md")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasDocPath(ctx, "docs/other.md")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteState(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	val, err := s.GetState(ctx, StateKeyDenseDimensions)
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, s.SetState(ctx, StateKeyDenseDimensions, "768"))
	require.NoError(t, s.SetState(ctx, StateKeyDenseDimensions, "1024"))

	val, err = s.GetState(ctx, StateKeyDenseDimensions)
	require.NoError(t, err)
	assert.Equal(t, "1024", val)
}
