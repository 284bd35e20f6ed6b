package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveLexicalIndex implements LexicalIndex on Bleve v2. Bleve's match
// scoring is a BM25-family score: unbounded, non-negative, query-dependent.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveLexicalIndex opens or creates a lexical index at path.
// An empty path creates an in-memory index.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	m := lexicalMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

func lexicalMapping() *mapping.IndexMappingImpl {
	m := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	content := bleve.NewTextFieldMapping()
	doc.AddFieldMappingsAt("content", content)
	m.DefaultMapping = doc
	return m
}

// Index adds documents in one batch, replacing documents with equal ids.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Retrieve returns up to k matching documents, best first, with 1-based ranks.
func (b *BleveLexicalIndex) Retrieve(ctx context.Context, query string, k int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []*LexicalResult{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")

	req := bleve.NewSearchRequest(mq)
	req.Size = k

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*LexicalResult, 0, len(res.Hits))
	for i, hit := range res.Hits {
		results = append(results, &LexicalResult{
			DocID: hit.ID,
			Score: hit.Score,
			Rank:  i + 1,
		})
	}
	return results, nil
}

// Score computes a lexical score per content string against the query by
// indexing the contents into a throwaway in-memory index and querying it.
// Contents the query does not match score 0.
func (b *BleveLexicalIndex) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	if len(contents) == 0 {
		return []float64{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return make([]float64, len(contents)), nil
	}

	scratch, err := bleve.NewMemOnly(lexicalMapping())
	if err != nil {
		return nil, fmt.Errorf("create scratch index: %w", err)
	}
	defer scratch.Close()

	batch := scratch.NewBatch()
	for i, content := range contents {
		if err := batch.Index(strconv.Itoa(i), bleveDocument{Content: content}); err != nil {
			return nil, fmt.Errorf("index scratch document: %w", err)
		}
	}
	if err := scratch.Batch(batch); err != nil {
		return nil, fmt.Errorf("execute scratch batch: %w", err)
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = len(contents)

	res, err := scratch.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("scratch search: %w", err)
	}

	scores := make([]float64, len(contents))
	for _, hit := range res.Hits {
		idx, convErr := strconv.Atoi(hit.ID)
		if convErr != nil || idx < 0 || idx >= len(contents) {
			continue
		}
		scores[idx] = hit.Score
	}
	return scores, nil
}

// Close releases the underlying Bleve index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
