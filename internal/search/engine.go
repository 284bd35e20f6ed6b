package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrel-search/kestrel/internal/clip"
	"github.com/kestrel-search/kestrel/internal/embed"
	"github.com/kestrel-search/kestrel/internal/store"
	"github.com/kestrel-search/kestrel/internal/telemetry"
)

var (
	// ErrEmptyQuery is returned for empty or whitespace-only queries. It is
	// the only error the engine surfaces to callers; everything else
	// degrades to absent signals.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrNilDependency is returned when a required collaborator is missing.
	ErrNilDependency = errors.New("nil dependency")
)

// Deps are the engine's collaborators. Dense, Metadata, and Embedder are
// required; the rest are optional and their signals stay absent when nil.
type Deps struct {
	Dense      store.VectorStore
	Images     store.VectorStore
	Lexical    store.LexicalIndex
	Metadata   store.MetadataStore
	Embedder   embed.Embedder
	CrossModal clip.Encoder
	Reranker   Reranker
}

// Engine orchestrates the full query: exact matching, parallel recall,
// aggregation, reranking, fusion for the text and image tracks, and the
// combined cross-track ranking. It is stateless across queries.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	dense     *DenseSource
	lexical   *LexicalSource
	exact     *ExactSource
	rerank    *RerankStage
	textFuser *Fuser
	images    *ImagePipeline

	metrics *telemetry.Metrics
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine validates dependencies and wires the pipeline stages.
func NewEngine(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	if deps.Dense == nil {
		return nil, fmt.Errorf("%w: dense vector store", ErrNilDependency)
	}
	if deps.Metadata == nil {
		return nil, fmt.Errorf("%w: metadata store", ErrNilDependency)
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}

	e := &Engine{deps: deps, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	e.dense = NewDenseSource(deps.Embedder, deps.Dense, e.logger)
	if deps.Lexical != nil {
		e.lexical = NewLexicalSource(deps.Lexical, e.logger)
	}
	e.exact = NewExactSource(deps.Metadata, cfg.PreviewRadius, e.logger)
	if deps.Reranker != nil {
		e.rerank = NewRerankStage(deps.Reranker, cfg.RerankInput, e.logger)
	}
	e.textFuser = NewFuser(cfg.Text, e.logger)
	if deps.CrossModal != nil && deps.Images != nil {
		e.images = NewImagePipeline(deps.CrossModal, deps.Images, deps.Metadata,
			deps.Embedder, e.lexical, e.rerank, cfg, e.logger)
	}
	return e, nil
}

// Search runs one query end to end.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		e.metrics.QueryCompleted("invalid")
		return nil, ErrEmptyQuery
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	if e.cfg.MaxTopK > 0 && topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}

	queryID := uuid.NewString()
	logger := e.logger.With("query_id", queryID)
	start := time.Now()

	resp := &Response{QueryID: queryID}

	// Exact matching runs first: a perfect full-content match makes the
	// approximate tracks pointless.
	exactStart := time.Now()
	matches, _ := e.exact.Find(ctx, req.Query)
	e.metrics.ObserveStage("exact", time.Since(exactStart))

	resp.Exact = e.buildExactSection(matches)
	if hasPerfect(matches) {
		logger.Debug("perfect match, skipping semantic and image tracks",
			"exact_hits", len(matches))
		resp.Combined = e.buildCombined(resp, topK)
		resp.TookMS = time.Since(start).Milliseconds()
		e.metrics.QueryCompleted("ok")
		return resp, nil
	}

	weights := e.requestWeights(req)
	agg := NewAggregator(e.deps.Metadata, logger)

	denseResults, queryVec, lexResults := e.parallelRecall(ctx, req.Query, topK, logger)
	agg.AddDense(ctx, denseResults)
	resp.Semantic.LexicalPerformed = lexResults != nil
	if lexResults != nil {
		agg.AddLexical(ctx, lexResults)
	}

	seedContents := seedContentsFrom(agg, e.cfg.KeywordSeedCount)

	// Rerank and the image track are both single batched external calls
	// with no shared state, so they run concurrently.
	var imageCands []*Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.rerank != nil {
			rerankStart := time.Now()
			resp.Semantic.RerankPerformed = e.rerank.Run(gctx, req.Query, agg, topK)
			e.metrics.ObserveStage("rerank", time.Since(rerankStart))
			if !resp.Semantic.RerankPerformed {
				e.metrics.SignalDegraded(string(SignalRerank))
			}
		}
		return nil
	})
	g.Go(func() error {
		if e.images != nil {
			imageStart := time.Now()
			imageCands, resp.Semantic.CrossModalPerformed = e.images.Run(gctx, req.Query, queryVec, seedContents, topK)
			e.metrics.ObserveStage("image", time.Since(imageStart))
			if !resp.Semantic.CrossModalPerformed {
				e.metrics.SignalDegraded(string(SignalClip))
			}
		}
		return nil
	})
	_ = g.Wait()

	fuseStart := time.Now()
	limit := topK
	if limit < e.cfg.MinResults {
		limit = e.cfg.MinResults
	}
	fused := e.textFuser.Fuse(agg.All(), weights, topK, limit)
	e.metrics.ObserveStage("fuse", time.Since(fuseStart))

	resp.Semantic.Results = candidateResults(fused)
	resp.Semantic.Total = len(resp.Semantic.Results)
	resp.Image.Results = candidateResults(imageCands)
	resp.Image.Total = len(resp.Image.Results)
	resp.Combined = e.buildCombined(resp, topK)
	resp.TookMS = time.Since(start).Milliseconds()

	logger.Debug("query complete",
		"took_ms", resp.TookMS,
		"exact", resp.Exact.Total,
		"semantic", resp.Semantic.Total,
		"image", resp.Image.Total)
	e.metrics.QueryCompleted("ok")
	return resp, nil
}

// parallelRecall runs dense and lexical recall concurrently. Each source
// degrades internally; a nil lexical slice means the signal did not run.
func (e *Engine) parallelRecall(ctx context.Context, query string, topK int, logger *slog.Logger) ([]*store.VectorResult, []float32, []*store.LexicalResult) {
	var (
		denseResults []*store.VectorResult
		queryVec     []float32
		lexResults   []*store.LexicalResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		denseStart := time.Now()
		results, vec, ok := e.dense.Recall(gctx, query, e.cfg.DenseRecall.Size(topK))
		e.metrics.ObserveStage("dense_recall", time.Since(denseStart))
		if !ok {
			e.metrics.SignalDegraded(string(SignalDense))
		}
		denseResults, queryVec = results, vec
		return nil
	})
	g.Go(func() error {
		if e.lexical == nil {
			return nil
		}
		lexStart := time.Now()
		results, ok := e.lexical.Recall(gctx, query, e.cfg.LexicalRecall.Size(topK))
		e.metrics.ObserveStage("lexical_recall", time.Since(lexStart))
		if !ok {
			e.metrics.SignalDegraded(string(SignalLexical))
			return nil
		}
		if results == nil {
			results = []*store.LexicalResult{}
		}
		lexResults = results
		return nil
	})
	_ = g.Wait()
	return denseResults, queryVec, lexResults
}

// requestWeights applies the per-query weight overrides onto the text track
// defaults. Overrides are clamped to [0,1].
func (e *Engine) requestWeights(req Request) Weights {
	w := e.cfg.Text.Weights
	if req.LexicalWeight != nil {
		w.Lexical = clamp01(*req.LexicalWeight)
	}
	if req.DenseWeight != nil {
		w.Dense = clamp01(*req.DenseWeight)
	}
	return w
}

func (e *Engine) buildExactSection(matches []*ExactMatch) ExactSection {
	results := make([]Result, 0, len(matches))
	for i, m := range matches {
		score := e.cfg.ExactMatchScore
		if m.Perfect {
			score = e.cfg.PerfectMatchScore
		}
		results = append(results, Result{
			DocID:        m.Chunk.DocID,
			Filename:     m.Chunk.Filename,
			Path:         m.Chunk.DocPath,
			ChunkIndex:   m.Chunk.ChunkIndex,
			Content:      m.Chunk.Content,
			MatchPreview: m.Preview,
			MatchField:   m.Field,
			MatchPos:     m.Position,
			MatchLength:  m.Length,
			FinalScore:   score,
			Rank:         i + 1,
			key:          ChunkKey(m.Chunk),
		})
	}
	return ExactSection{Total: len(results), Results: results}
}

// buildCombined concatenates the per-track results, deduplicates by
// candidate key keeping the higher-scored occurrence, and assigns the final
// 1-based combined rank.
func (e *Engine) buildCombined(resp *Response, topK int) CombinedSection {
	all := make([]Result, 0, resp.Exact.Total+resp.Semantic.Total+resp.Image.Total)
	all = append(all, resp.Exact.Results...)
	all = append(all, resp.Semantic.Results...)
	all = append(all, resp.Image.Results...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].FinalScore > all[j].FinalScore
	})

	seen := make(map[string]bool, len(all))
	combined := make([]Result, 0, len(all))
	for _, r := range all {
		if r.key != "" && seen[r.key] {
			continue
		}
		seen[r.key] = true
		r.Rank = len(combined) + 1
		combined = append(combined, r)
		if len(combined) >= topK {
			break
		}
	}
	return CombinedSection{Total: len(combined), Results: combined}
}

func hasPerfect(matches []*ExactMatch) bool {
	for _, m := range matches {
		if m.Perfect {
			return true
		}
	}
	return false
}

// seedContentsFrom snapshots the top candidate contents for keyword mining
// before the rerank and image stages start mutating scores concurrently.
func seedContentsFrom(agg *Aggregator, n int) []string {
	top := agg.TopByPreScore(n)
	out := make([]string, 0, len(top))
	for _, c := range top {
		out = append(out, c.Content)
	}
	return out
}

// candidateResults converts fused candidates into response results with
// per-section 1-based ranks.
func candidateResults(candidates []*Candidate) []Result {
	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		r := Result{
			Content:    c.Content,
			FinalScore: c.FinalScore,
			Sources:    c.Sources(),
			Rank:       i + 1,
			key:        c.Key,
		}
		if c.Chunk != nil {
			r.DocID = c.Chunk.DocID
			r.Filename = c.Chunk.Filename
			r.Path = c.Chunk.DocPath
			r.ChunkIndex = c.Chunk.ChunkIndex
		}
		if c.Image != nil {
			r.ImageURI = c.Image.URI
			if r.Path == "" {
				r.Path = c.Image.DocPath
				r.ChunkIndex = c.Image.ChunkIndex
			}
		}
		r.ScoreBreakdown = make(map[string]float64, len(c.Scores))
		for s, ss := range c.Scores {
			r.ScoreBreakdown[string(s)] = ss.Norm
		}
		if len(c.Weights) > 0 {
			r.ScoreWeights = make(map[string]float64, len(c.Weights))
			for s, w := range c.Weights {
				r.ScoreWeights[string(s)] = w
			}
		}
		results = append(results, r)
	}
	return results
}
