package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kestrel-search/kestrel/internal/store"
)

// In-memory collaborator fakes shared by the package tests.

type fakeMeta struct {
	chunks []*store.Chunk
	images map[int64]*store.ImageAsset
	state  map[string]string

	scanErr error
}

func newFakeMeta(chunks ...*store.Chunk) *fakeMeta {
	return &fakeMeta{
		chunks: chunks,
		images: make(map[int64]*store.ImageAsset),
		state:  make(map[string]string),
	}
}

func (m *fakeMeta) SaveChunks(ctx context.Context, chunks []*store.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *fakeMeta) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	for _, c := range m.chunks {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *fakeMeta) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, id := range ids {
		if c, err := m.GetChunk(ctx, id); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *fakeMeta) GetChunkByVecID(ctx context.Context, vecID int64) (*store.Chunk, error) {
	for _, c := range m.chunks {
		if c.VecID == vecID {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *fakeMeta) GetChunkByLocation(ctx context.Context, docPath string, chunkIndex int) (*store.Chunk, error) {
	for _, c := range m.chunks {
		if c.DocPath == docPath && c.ChunkIndex == chunkIndex {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *fakeMeta) ScanChunks(ctx context.Context, fn func(*store.Chunk) error) error {
	if m.scanErr != nil {
		return m.scanErr
	}
	for _, c := range m.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *fakeMeta) SaveImages(ctx context.Context, images []*store.ImageAsset) error {
	for _, img := range images {
		m.images[img.VecID] = img
	}
	return nil
}

func (m *fakeMeta) GetImageByVecID(ctx context.Context, vecID int64) (*store.ImageAsset, error) {
	if img, ok := m.images[vecID]; ok {
		return img, nil
	}
	return nil, store.ErrNotFound
}

func (m *fakeMeta) HasDocPath(ctx context.Context, docPath string) (bool, error) {
	for _, c := range m.chunks {
		if c.DocPath == docPath {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeMeta) GetState(ctx context.Context, key string) (string, error) {
	return m.state[key], nil
}

func (m *fakeMeta) SetState(ctx context.Context, key, value string) error {
	m.state[key] = value
	return nil
}

func (m *fakeMeta) Close() error { return nil }

type fakeVectorStore struct {
	results []*store.VectorResult
	vecs    map[uint64][]float32
	err     error
}

func (v *fakeVectorStore) Add(ctx context.Context, ids []uint64, vectors [][]float32) error {
	return nil
}

func (v *fakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if v.err != nil {
		return nil, v.err
	}
	if len(v.results) > k {
		return v.results[:k], nil
	}
	return v.results, nil
}

func (v *fakeVectorStore) Vector(id uint64) ([]float32, bool) {
	vec, ok := v.vecs[id]
	return vec, ok
}

func (v *fakeVectorStore) Count() int {
	if len(v.vecs) > 0 {
		return len(v.vecs)
	}
	return len(v.results)
}

func (v *fakeVectorStore) Save(path string) error { return nil }
func (v *fakeVectorStore) Load(path string) error { return nil }
func (v *fakeVectorStore) Close() error           { return nil }

type fakeLexical struct {
	results []*store.LexicalResult
	scores  []float64
	err     error
}

func (l *fakeLexical) Index(ctx context.Context, docs []*store.Document) error { return nil }

func (l *fakeLexical) Retrieve(ctx context.Context, query string, k int) ([]*store.LexicalResult, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.results, nil
}

func (l *fakeLexical) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.scores != nil {
		return l.scores, nil
	}
	return make([]float64, len(contents)), nil
}

func (l *fakeLexical) Close() error { return nil }

type fakeEmbedder struct {
	dims int
	err  error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dimensions())
	vec[0] = 1
	return vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := e.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEmbedder) dimensions() int {
	if e.dims > 0 {
		return e.dims
	}
	return 4
}

func (e *fakeEmbedder) Dimensions() int                    { return e.dimensions() }
func (e *fakeEmbedder) ModelName() string                  { return "fake" }
func (e *fakeEmbedder) Available(ctx context.Context) bool { return e.err == nil }
func (e *fakeEmbedder) Close() error                       { return nil }

type fakeReranker struct {
	scores map[string]float64 // content -> raw score
	err    error
}

func (r *fakeReranker) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]float64, len(contents))
	for i, c := range contents {
		out[i] = r.scores[c]
	}
	return out, nil
}

func (r *fakeReranker) Available(ctx context.Context) bool { return r.err == nil }
func (r *fakeReranker) Close() error                       { return nil }

type fakeEncoder struct {
	vec []float32
	err error
}

func (e *fakeEncoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fakeEncoder) Dimensions() int                    { return len(e.vec) }
func (e *fakeEncoder) Available(ctx context.Context) bool { return e.err == nil }
func (e *fakeEncoder) Close() error                       { return nil }

var errUnavailable = errors.New("service unavailable")

func testChunk(id string, vecID int64, path string, idx int, content string) *store.Chunk {
	return &store.Chunk{
		ID:         id,
		VecID:      vecID,
		DocID:      fmt.Sprintf("doc-%s", id),
		DocPath:    path,
		Filename:   path,
		ChunkIndex: idx,
		Content:    content,
	}
}
