package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecallBoundsSize(t *testing.T) {
	dense := DefaultConfig().DenseRecall

	assert.Equal(t, 120, dense.Size(1))   // floor
	assert.Equal(t, 200, dense.Size(20))  // 20*10
	assert.Equal(t, 400, dense.Size(100)) // ceiling

	rerank := DefaultConfig().RerankInput
	assert.Equal(t, 60, rerank.Size(5))
	assert.Equal(t, 90, rerank.Size(15))
	assert.Equal(t, 150, rerank.Size(50))
}

func TestWeightsGet(t *testing.T) {
	w := Weights{Lexical: 0.1, Dense: 0.2, Rerank: 0.3, Clip: 0.4}
	assert.Equal(t, 0.1, w.Get(SignalLexical))
	assert.Equal(t, 0.2, w.Get(SignalDense))
	assert.Equal(t, 0.3, w.Get(SignalRerank))
	assert.Equal(t, 0.4, w.Get(SignalClip))
	assert.Equal(t, 0.0, w.Get(Signal("unknown")))
}

func TestCandidateSourcesStableOrder(t *testing.T) {
	c := cand("x", map[Signal]float64{SignalClip: 0.5, SignalDense: 0.5, SignalRerank: 0.5})
	assert.Equal(t, []string{"dense", "reranker", "clip"}, c.Sources())
}
