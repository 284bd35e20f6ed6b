// Package store provides the index-facing persistence layer: dense and
// cross-modal vector recall (HNSW), lexical recall (Bleve), and chunk/image
// metadata (SQLite). The search engine treats every store as an opaque
// service behind one of the interfaces below.
package store

import (
	"context"
	"fmt"
	"time"
)

// NoVecID marks a chunk or image without an assigned vector identifier.
const NoVecID int64 = -1

// Chunk is a retrievable unit of document content. A chunk may be reachable
// through several identities at once: its numeric vector id, its position
// within a document, its ingestion content id, or its raw content.
type Chunk struct {
	ID         string    // content-addressable id, also the lexical doc id
	VecID      int64     // dense vector id, NoVecID if not embedded
	DocID      string    // parent document id
	DocPath    string    // path relative to the corpus root
	Filename   string    // base name of the source document
	ChunkIndex int       // 0-based position within the document, -1 if unknown
	ContentID  string    // ingestion-assigned content hash, "" if unknown
	Content    string    // full retrievable text
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ImageAsset is an indexed image with its cross-modal vector id and the
// document chunk it was extracted from. Images without a resolvable document
// link are orphans and never surface in results.
type ImageAsset struct {
	VecID      int64  // cross-modal vector id
	DocPath    string // linked document path, "" if orphaned
	ChunkIndex int    // linked chunk position, -1 if none
	Caption    string // OCR/caption text, may be empty
	URI        string // storage location of the image bytes
}

// Document is a unit of content for the lexical index.
type Document struct {
	ID      string // chunk ID
	Content string
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID         uint64  // vector id
	Similarity float64 // cosine similarity in [-1, 1]
}

// LexicalResult is a single lexical retrieval hit.
type LexicalResult struct {
	DocID string  // chunk ID
	Score float64 // raw BM25-family score, unbounded non-negative
	Rank  int     // 1-based position in the retrieval list
}

// VectorStore provides approximate nearest-neighbor recall over unit vectors.
type VectorStore interface {
	// Add inserts vectors under their numeric ids, replacing existing ones.
	Add(ctx context.Context, ids []uint64, vectors [][]float32) error

	// Search returns the k nearest neighbors of query by cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Vector returns the stored (normalized) vector for an id.
	Vector(id uint64) ([]float32, bool)

	// Count returns the number of stored vectors.
	Count() int

	// Persistence.
	Save(path string) error
	Load(path string) error
	Close() error
}

// LexicalIndex provides term-overlap retrieval and pairwise lexical scoring.
type LexicalIndex interface {
	// Index adds documents to the index, replacing documents with equal ids.
	Index(ctx context.Context, docs []*Document) error

	// Retrieve returns up to k documents matching the query, best first.
	Retrieve(ctx context.Context, query string, k int) ([]*LexicalResult, error)

	// Score computes a lexical relevance score for each content string
	// against the query. Contents that do not match score 0.
	Score(ctx context.Context, query string, contents []string) ([]float64, error)

	Close() error
}

// MetadataStore resolves chunk and image identities and persists their
// metadata. It is the source of truth for what exists in the corpus.
type MetadataStore interface {
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunkByVecID(ctx context.Context, vecID int64) (*Chunk, error)
	GetChunkByLocation(ctx context.Context, docPath string, chunkIndex int) (*Chunk, error)

	// ScanChunks streams every chunk to fn. fn returning an error stops the
	// scan and propagates the error.
	ScanChunks(ctx context.Context, fn func(*Chunk) error) error

	SaveImages(ctx context.Context, images []*ImageAsset) error
	GetImageByVecID(ctx context.Context, vecID int64) (*ImageAsset, error)

	// HasDocPath reports whether any chunk references the document path.
	HasDocPath(ctx context.Context, docPath string) (bool, error)

	// Key-value runtime state (index dimensions, schema version, ...).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// ErrNotFound is returned by metadata lookups that resolve nothing.
var ErrNotFound = fmt.Errorf("store: not found")

// State keys recorded by the loader so serving can validate compatibility.
const (
	StateKeyDenseDimensions = "dense_embedding_dimensions"
	StateKeyDenseModel      = "dense_embedding_model"
	StateKeyClipDimensions  = "clip_embedding_dimensions"
)
