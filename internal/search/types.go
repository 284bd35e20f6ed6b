// Package search implements multi-signal hybrid retrieval: parallel recall
// from dense, lexical, exact-match, and cross-modal sources, score
// normalization onto a shared confidence scale, bounded reranking, and
// weighted fusion with quality gates.
package search

import (
	"github.com/kestrel-search/kestrel/internal/store"
)

// Signal identifies one relevance source.
type Signal string

const (
	SignalDense   Signal = "dense"
	SignalLexical Signal = "lexical"
	SignalRerank  Signal = "reranker"
	SignalClip    Signal = "clip"
)

// SignalScore carries one signal's raw score and its normalized [0,1] value.
// Absence of a signal is modeled by the map entry not existing at all, never
// by a zero score.
type SignalScore struct {
	Raw  float64
	Norm float64
}

// Candidate is the per-query unit of fusion. Candidates are created by the
// Aggregator on first sight, mutated in place as later signals report for the
// same key, and discarded when the query finishes.
type Candidate struct {
	Key     string
	Chunk   *store.Chunk      // nil for image candidates without a chunk link
	Image   *store.ImageAsset // nil for text candidates
	Content string

	Scores map[Signal]SignalScore
	Ranks  map[Signal]int // 1-based rank within each signal, diagnostics only

	// PreScore is the unweighted sum of present normalized scores, used to
	// order candidates cheaply before the rerank stage.
	PreScore float64

	FinalScore float64
	Weights    map[Signal]float64 // renormalized weights actually applied
}

// Sources lists the signals that contributed a score, in a stable order.
func (c *Candidate) Sources() []string {
	out := make([]string, 0, len(c.Scores))
	for _, s := range []Signal{SignalDense, SignalLexical, SignalRerank, SignalClip} {
		if _, ok := c.Scores[s]; ok {
			out = append(out, string(s))
		}
	}
	return out
}

// Score returns the normalized score for a signal and whether it is present.
func (c *Candidate) Score(s Signal) (float64, bool) {
	ss, ok := c.Scores[s]
	if !ok {
		return 0, false
	}
	return ss.Norm, true
}

// SetScore records a signal's raw and normalized score.
func (c *Candidate) SetScore(s Signal, raw, norm float64) {
	c.Scores[s] = SignalScore{Raw: raw, Norm: norm}
	c.recomputePreScore()
}

func (c *Candidate) recomputePreScore() {
	sum := 0.0
	for _, ss := range c.Scores {
		sum += ss.Norm
	}
	c.PreScore = sum
}

// Weights holds the fusion weight per signal. Weights for signals absent on
// a candidate are excluded and the rest renormalized before use.
type Weights struct {
	Lexical float64
	Dense   float64
	Rerank  float64
	Clip    float64
}

// Get returns the configured weight for a signal.
func (w Weights) Get(s Signal) float64 {
	switch s {
	case SignalLexical:
		return w.Lexical
	case SignalDense:
		return w.Dense
	case SignalRerank:
		return w.Rerank
	case SignalClip:
		return w.Clip
	}
	return 0
}

// SignalThresholds holds per-signal score floors used by the strong-top and
// confidence checks. A zero field means the signal does not participate in
// that check.
type SignalThresholds struct {
	Rerank  float64
	Clip    float64
	Dense   float64
	Lexical float64 // paired with Dense in the corroboration form
	Final   float64
}

// TrackConfig holds the gates and weights for one fusion track.
type TrackConfig struct {
	Weights Weights

	// MinComponent drops candidates whose every present score is below it.
	MinComponent float64
	// MinFinal is the hard floor on the fused score.
	MinFinal float64
	// AdmitThreshold is the per-signal floor in the admissibility
	// corroboration rule.
	AdmitThreshold float64
	// KeepFactor is the relative cutoff applied under a strong top result.
	KeepFactor float64

	Strong    SignalThresholds
	Confident SignalThresholds
}

// RecallBounds computes a bounded recall size from the requested result count.
type RecallBounds struct {
	Multiplier int
	Floor      int
	Ceil       int
}

// Size returns clamp(topK*multiplier, floor, ceil).
func (b RecallBounds) Size(topK int) int {
	n := topK * b.Multiplier
	if n < b.Floor {
		n = b.Floor
	}
	if n > b.Ceil {
		n = b.Ceil
	}
	return n
}

// Config collects every tunable of the engine. The defaults are empirically
// tuned starting points, not derived values; callers may override any of them.
type Config struct {
	Text  TrackConfig
	Image TrackConfig

	DenseRecall   RecallBounds
	LexicalRecall RecallBounds
	RerankInput   RecallBounds

	DefaultTopK int
	MaxTopK     int
	MinResults  int // backfill target, max(topK, MinResults)

	PerfectMatchScore float64
	ExactMatchScore   float64

	// Image prompt expansion.
	MaxKeywordPrompts int
	ClipBestWeight    float64
	ClipMeanWeight    float64
	KeywordSeedCount  int // dense-text results mined for bridge keywords

	PreviewRadius int // context window around an exact hit
}

// DefaultConfig returns the tuned defaults for both tracks.
func DefaultConfig() Config {
	return Config{
		Text: TrackConfig{
			Weights:        Weights{Lexical: 0.25, Dense: 0.35, Rerank: 0.40},
			MinComponent:   0.40,
			MinFinal:       0.55,
			AdmitThreshold: 0.40,
			KeepFactor:     0.75,
			Strong:         SignalThresholds{Rerank: 0.55, Clip: 0.58, Dense: 0.60, Lexical: 0.50, Final: 0.62},
			Confident:      SignalThresholds{Rerank: 0.50, Clip: 0.52, Dense: 0.55, Lexical: 0.45, Final: 0.58},
		},
		Image: TrackConfig{
			Weights:        Weights{Lexical: 0.10, Dense: 0.25, Rerank: 0.25, Clip: 0.40},
			MinComponent:   0.35,
			MinFinal:       0.45,
			AdmitThreshold: 0.40,
			KeepFactor:     0.75,
			Strong:         SignalThresholds{Rerank: 0.55, Clip: 0.58, Dense: 0.60, Lexical: 0.50, Final: 0.62},
			Confident:      SignalThresholds{Rerank: 0.50, Clip: 0.52, Dense: 0.55, Lexical: 0.45, Final: 0.58},
		},

		DenseRecall:   RecallBounds{Multiplier: 10, Floor: 120, Ceil: 400},
		LexicalRecall: RecallBounds{Multiplier: 5, Floor: 80, Ceil: 250},
		RerankInput:   RecallBounds{Multiplier: 6, Floor: 60, Ceil: 150},

		DefaultTopK: 10,
		MaxTopK:     100,
		MinResults:  6,

		PerfectMatchScore: 1.0,
		ExactMatchScore:   0.93,

		MaxKeywordPrompts: 12,
		ClipBestWeight:    0.65,
		ClipMeanWeight:    0.35,
		KeywordSeedCount:  5,

		PreviewRadius: 80,
	}
}

// Request is the search input.
type Request struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`

	// Optional per-query overrides of the text recall weights. When set,
	// the remaining configured weights are kept and the whole set is
	// renormalized per candidate as usual.
	LexicalWeight *float64 `json:"lexical_weight,omitempty"`
	DenseWeight   *float64 `json:"dense_weight,omitempty"`
}

// Result is one ranked item in a response section.
type Result struct {
	DocID      string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Path       string `json:"path,omitempty"`
	ChunkIndex int    `json:"chunk_index"`

	Content      string `json:"content,omitempty"`
	MatchPreview string `json:"match_preview,omitempty"`
	MatchField   string `json:"match_field,omitempty"`
	MatchPos     int    `json:"match_position,omitempty"`
	MatchLength  int    `json:"match_length,omitempty"`
	ImageURI     string `json:"image_uri,omitempty"`

	FinalScore     float64            `json:"final_score"`
	Sources        []string           `json:"sources,omitempty"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`
	ScoreWeights   map[string]float64 `json:"score_weights,omitempty"`
	Rank           int                `json:"rank"`

	key string
}

// ExactSection lists literal substring hits.
type ExactSection struct {
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

// SemanticSection lists fused text-track results plus per-stage flags.
type SemanticSection struct {
	Total               int      `json:"total"`
	Results             []Result `json:"results"`
	LexicalPerformed    bool     `json:"lexical_performed"`
	RerankPerformed     bool     `json:"rerank_performed"`
	CrossModalPerformed bool     `json:"cross_modal_performed"`
}

// ImageSection lists fused image-track results.
type ImageSection struct {
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

// CombinedSection is the cross-track merged ranking.
type CombinedSection struct {
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

// Response is the full search output.
type Response struct {
	QueryID  string          `json:"query_id"`
	Exact    ExactSection    `json:"exact_match"`
	Semantic SemanticSection `json:"semantic_match"`
	Image    ImageSection    `json:"image_match"`
	Combined CombinedSection `json:"combined"`

	TookMS int64 `json:"took_ms"`
}
