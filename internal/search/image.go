package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kestrel-search/kestrel/internal/clip"
	"github.com/kestrel-search/kestrel/internal/embed"
	"github.com/kestrel-search/kestrel/internal/store"
)

// ImagePipeline runs cross-modal recall and image-specific fusion. It shares
// the normalization and fusion machinery with the text track but carries its
// own weights and gates. Failure of the cross-modal encoder disables the
// whole track for the query.
type ImagePipeline struct {
	encoder  clip.Encoder
	images   store.VectorStore
	meta     store.MetadataStore
	embedder embed.Embedder
	lexical  *LexicalSource
	rerank   *RerankStage
	fuser    *Fuser
	cfg      Config
	logger   *slog.Logger
}

// NewImagePipeline wires the image track. lexical and rerank may be nil when
// those collaborators are not configured.
func NewImagePipeline(
	encoder clip.Encoder,
	images store.VectorStore,
	meta store.MetadataStore,
	embedder embed.Embedder,
	lexical *LexicalSource,
	rerank *RerankStage,
	cfg Config,
	logger *slog.Logger,
) *ImagePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImagePipeline{
		encoder:  encoder,
		images:   images,
		meta:     meta,
		embedder: embedder,
		lexical:  lexical,
		rerank:   rerank,
		fuser:    NewFuser(cfg.Image, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the image track: prompt expansion, aggregate-vector recall,
// per-candidate cross-modal scoring, document-text enrichment with secondary
// dense/lexical/rerank scoring, and image fusion. seedContents are the top
// dense-text results mined for bridge keywords; queryVec is the text query
// embedding reused for secondary dense scoring (may be nil). The returned
// flag reports whether the cross-modal signal ran.
func (p *ImagePipeline) Run(ctx context.Context, query string, queryVec []float32, seedContents []string, topK int) ([]*Candidate, bool) {
	if p.encoder == nil || p.images == nil || p.images.Count() == 0 {
		return nil, false
	}

	keywords := ExtractKeywords(seedContents, p.cfg.MaxKeywordPrompts)
	prompts := ExpandPrompts(query, keywords, p.cfg.MaxKeywordPrompts)

	promptVecs, err := p.encoder.EmbedTexts(ctx, prompts)
	if err != nil {
		p.logger.Warn("image track disabled: cross-modal embedding failed", "error", err)
		return nil, false
	}
	if len(promptVecs) == 0 {
		return nil, false
	}

	aggregate := store.MeanVector(promptVecs)
	hits, err := p.images.Search(ctx, aggregate, p.cfg.DenseRecall.Size(topK))
	if err != nil {
		p.logger.Warn("image track disabled: image recall failed", "error", err)
		return nil, false
	}

	candidates := p.buildCandidates(ctx, promptVecs, hits)
	if len(candidates) == 0 {
		return nil, true
	}

	p.enrich(ctx, query, queryVec, candidates)

	limit := topK
	if limit < p.cfg.MinResults {
		limit = p.cfg.MinResults
	}
	return p.fuser.Fuse(candidates, p.cfg.Image.Weights, topK, limit), true
}

// buildCandidates turns raw image hits into candidates with cross-modal
// scores. Hits without a metadata link are orphans and dropped.
func (p *ImagePipeline) buildCandidates(ctx context.Context, promptVecs [][]float32, hits []*store.VectorResult) []*Candidate {
	candidates := make([]*Candidate, 0, len(hits))
	for _, hit := range hits {
		img, err := p.meta.GetImageByVecID(ctx, int64(hit.ID))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				p.logger.Warn("image lookup failed", "vec_id", hit.ID, "error", err)
			}
			continue
		}
		linked, err := p.meta.HasDocPath(ctx, img.DocPath)
		if err != nil || !linked {
			continue
		}

		vec, ok := p.images.Vector(hit.ID)
		if !ok {
			continue
		}

		best, mean := bestMeanCosine(vec, promptVecs)
		norm, ok := CombineClip(best, mean, p.cfg.ClipBestWeight, p.cfg.ClipMeanWeight)
		if !ok {
			continue
		}

		c := &Candidate{
			Key:     ImageKey(img),
			Image:   img,
			Content: img.Caption,
			Scores:  make(map[Signal]SignalScore),
			Ranks:   make(map[Signal]int),
		}
		c.SetScore(SignalClip, p.cfg.ClipBestWeight*best+p.cfg.ClipMeanWeight*mean, norm)
		c.Ranks[SignalClip] = len(candidates) + 1
		candidates = append(candidates, c)
	}
	return candidates
}

// enrich attaches linked document text to each candidate and computes the
// secondary dense, lexical, and rerank scores over it. Each secondary signal
// degrades independently.
func (p *ImagePipeline) enrich(ctx context.Context, query string, queryVec []float32, candidates []*Candidate) {
	for _, c := range candidates {
		chunk, err := p.meta.GetChunkByLocation(ctx, c.Image.DocPath, c.Image.ChunkIndex)
		if err != nil {
			continue
		}
		c.Chunk = chunk
		if chunk.Content != "" {
			c.Content = chunk.Content
		}
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}

	if queryVec != nil && p.embedder != nil {
		if vecs, err := p.embedder.EmbedBatch(ctx, contents); err != nil {
			p.logger.Warn("image dense enrichment degraded", "error", err)
		} else {
			for i, c := range candidates {
				sim := store.CosineSimilarity(queryVec, vecs[i])
				if norm, ok := NormalizeDense(sim); ok {
					c.SetScore(SignalDense, sim, norm)
				}
			}
		}
	}

	if p.lexical != nil {
		if scores, ok := p.lexical.Score(ctx, query, contents); ok && len(scores) == len(candidates) {
			for i, c := range candidates {
				if norm, ok := NormalizeLexical(scores[i]); ok {
					c.SetScore(SignalLexical, scores[i], norm)
				}
			}
		}
	}

	if p.rerank != nil {
		p.rerank.Apply(ctx, query, candidates)
	}
}

// bestMeanCosine computes the best and mean cosine similarity of one vector
// against the expanded prompt set.
func bestMeanCosine(vec []float32, promptVecs [][]float32) (best, mean float64) {
	if len(promptVecs) == 0 {
		return 0, 0
	}
	best = -1
	sum := 0.0
	for _, pv := range promptVecs {
		sim := store.CosineSimilarity(vec, pv)
		if sim > best {
			best = sim
		}
		sum += sim
	}
	return best, sum / float64(len(promptVecs))
}
