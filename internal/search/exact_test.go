package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/store"
)

func TestExactFindSubstring(t *testing.T) {
	meta := newFakeMeta(
		testChunk("c1", 1, "docs/alpha.md", 0, "The Alpha test content lives here"),
		testChunk("c2", 2, "docs/beta.md", 0, "Beta other text"),
	)
	src := NewExactSource(meta, 80, nil)

	matches, ok := src.Find(context.Background(), "alpha test")
	require.True(t, ok)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, MatchFieldContent, m.Field)
	assert.Equal(t, 4, m.Position)
	assert.Equal(t, len("alpha test"), m.Length)
	assert.False(t, m.Perfect)
	assert.Contains(t, m.Preview, "Alpha test")
}

func TestExactPerfectMatch(t *testing.T) {
	meta := newFakeMeta(
		testChunk("c1", 1, "docs/alpha.md", 0, "Alpha test content"),
		testChunk("c2", 2, "docs/beta.md", 0, "something about alpha test content here"),
	)
	src := NewExactSource(meta, 80, nil)

	matches, ok := src.Find(context.Background(), "ALPHA TEST CONTENT")
	require.True(t, ok)
	require.Len(t, matches, 2)

	// The full-equality hit sorts first.
	assert.True(t, matches[0].Perfect)
	assert.Equal(t, "c1", matches[0].Chunk.ID)
	assert.Equal(t, len("alpha test content"), matches[0].Length)
	assert.False(t, matches[1].Perfect)
}

func TestExactFieldPriority(t *testing.T) {
	byPath := testChunk("c1", 1, "reports/quarterly.md", 0, "nothing relevant")
	byContent := testChunk("c2", 2, "docs/notes.md", 0, "the quarterly numbers")
	meta := newFakeMeta(byPath, byContent)
	src := NewExactSource(meta, 80, nil)

	matches, ok := src.Find(context.Background(), "quarterly")
	require.True(t, ok)
	require.Len(t, matches, 2)
	assert.Equal(t, MatchFieldContent, matches[0].Field)
	assert.Equal(t, "c2", matches[0].Chunk.ID)
}

func TestExactScanFailureDegrades(t *testing.T) {
	meta := newFakeMeta()
	meta.scanErr = errUnavailable
	src := NewExactSource(meta, 80, nil)

	matches, ok := src.Find(context.Background(), "anything")
	assert.False(t, ok)
	assert.Empty(t, matches)
}

func TestPreviewAround(t *testing.T) {
	long := "aaaaaaaaaa needle bbbbbbbbbb"
	got := previewAround(long, 11, 6, 5)
	assert.Equal(t, "…aaaa needle bbbb…", got)

	whole := previewAround("short", 0, 5, 80)
	assert.Equal(t, "short", whole)
}

func TestExactEmptyQuery(t *testing.T) {
	src := NewExactSource(newFakeMeta(testChunk("c1", 1, "a.md", 0, "x")), 80, nil)
	matches, ok := src.Find(context.Background(), "   ")
	assert.True(t, ok)
	assert.Empty(t, matches)
}

func TestImageKeyNamespace(t *testing.T) {
	img := &store.ImageAsset{VecID: 7}
	chunk := testChunk("c", 7, "a.md", 0, "x")
	assert.NotEqual(t, ChunkKey(chunk), ImageKey(img))
}
