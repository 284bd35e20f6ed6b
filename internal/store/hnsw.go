package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig configures an HNSW vector store.
type HNSWConfig struct {
	// Dimensions is the vector dimension. Required.
	Dimensions int

	// M is the max connections per layer (default: 16).
	M int

	// EfSearch is the query-time search width (default: 48).
	EfSearch int
}

// DefaultHNSWConfig returns sensible defaults for the given dimension.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	return HNSWConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   48,
	}
}

// HNSWStore implements VectorStore on coder/hnsw (pure Go, no CGO).
// Vectors are normalized on insert so graph distance is cosine distance and
// similarity can be recovered as 1 - distance.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	// Stored normalized vectors, kept outside the graph so callers can
	// compute similarities against arbitrary query variants.
	vecs map[uint64][]float32

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswSidecar is the gob-persisted companion to the graph export.
type hnswSidecar struct {
	Config HNSWConfig
	Vecs   map[uint64][]float32
}

// NewHNSWStore creates an empty HNSW vector store.
func NewHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 48
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		vecs:   make(map[uint64][]float32),
	}, nil
}

// Add inserts vectors under their ids. Existing ids are replaced lazily:
// the old graph node is orphaned rather than deleted, which avoids
// coder/hnsw edge cases around removing the last node.
func (s *HNSWStore) Add(ctx context.Context, ids []uint64, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("hnsw: ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hnsw: store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return fmt.Errorf("hnsw: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		NormalizeVector(vec)

		s.graph.Add(hnsw.MakeNode(id, vec))
		s.vecs[id] = vec
	}

	return nil
}

// Search returns the k nearest neighbors of query by cosine similarity.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("hnsw: store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, fmt.Errorf("hnsw: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	NormalizeVector(q)

	nodes := s.graph.Search(q, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := s.vecs[node.Key]; !ok {
			continue // orphaned by replacement
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:         node.Key,
			Similarity: 1 - float64(distance),
		})
	}

	return results, nil
}

// Vector returns the stored normalized vector for an id.
func (s *HNSWStore) Vector(id uint64) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}
	v, ok := s.vecs[id]
	return v, ok
}

// Count returns the number of stored vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.vecs)
}

// Save persists the graph and sidecar atomically (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("hnsw: store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveSidecar(path + ".meta")
}

func (s *HNSWStore) saveSidecar(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}
	sidecar := hnswSidecar{Config: s.config, Vecs: s.vecs}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close sidecar file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a previously saved graph and sidecar.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hnsw: store is closed")
	}

	if err := s.loadSidecar(path + ".meta"); err != nil {
		return fmt.Errorf("load sidecar: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	return nil
}

func (s *HNSWStore) loadSidecar(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var sidecar hnswSidecar
	if err := gob.NewDecoder(file).Decode(&sidecar); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}
	s.config = sidecar.Config
	s.vecs = sidecar.Vecs
	return nil
}

// Close marks the store closed. The in-memory graph needs no teardown.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
