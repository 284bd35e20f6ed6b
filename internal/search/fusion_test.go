package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(key string, norms map[Signal]float64) *Candidate {
	c := &Candidate{
		Key:    key,
		Scores: make(map[Signal]SignalScore),
		Ranks:  make(map[Signal]int),
	}
	for s, v := range norms {
		c.Scores[s] = SignalScore{Raw: v, Norm: v}
	}
	c.recomputePreScore()
	return c
}

func textFuser(t *testing.T) *Fuser {
	t.Helper()
	return NewFuser(DefaultConfig().Text, nil)
}

func TestFuseWeightRenormalization(t *testing.T) {
	f := textFuser(t)
	weights := DefaultConfig().Text.Weights

	c := cand("a", map[Signal]float64{SignalDense: 0.9, SignalLexical: 0.8})
	f.Fuse([]*Candidate{c}, weights, 10, 10)

	sum := 0.0
	for _, w := range c.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// dense 0.35 and lexical 0.25 renormalize to 7/12 and 5/12.
	want := (0.35*0.9 + 0.25*0.8) / 0.6
	assert.InDelta(t, want, c.FinalScore, 1e-9)
}

func TestFuseSingleSignalFallback(t *testing.T) {
	f := textFuser(t)

	c := cand("a", map[Signal]float64{SignalDense: 0.95})
	out := f.Fuse([]*Candidate{c}, DefaultConfig().Text.Weights, 10, 10)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.95, out[0].FinalScore, 1e-9)
	assert.InDelta(t, 1.0, out[0].Weights[SignalDense], 1e-9)
}

func TestFuseFinalFloor(t *testing.T) {
	f := textFuser(t)
	weights := DefaultConfig().Text.Weights
	cfg := DefaultConfig().Text

	out := f.Fuse([]*Candidate{
		cand("low", map[Signal]float64{SignalDense: 0.5}),  // final 0.5 < 0.55
		cand("high", map[Signal]float64{SignalDense: 0.6}), // final 0.6
	}, weights, 10, 10)

	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].Key)
	for _, c := range out {
		assert.GreaterOrEqual(t, c.FinalScore, cfg.MinFinal)
	}
}

func TestFuseComponentFloor(t *testing.T) {
	cfg := DefaultConfig().Text
	cfg.MinFinal = 0.1 // isolate the component gate
	f := NewFuser(cfg, nil)

	out := f.Fuse([]*Candidate{
		cand("weak", map[Signal]float64{SignalDense: 0.39, SignalLexical: 0.38}),
		cand("ok", map[Signal]float64{SignalDense: 0.41}),
	}, cfg.Weights, 10, 10)

	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Key)
}

// A strong top result suppresses weaker unrelated matches via the relative
// keep factor.
func TestFuseStrongTopCutoff(t *testing.T) {
	f := textFuser(t)

	a := cand("a", map[Signal]float64{SignalDense: 0.95})
	b := cand("b", map[Signal]float64{SignalDense: 0.60})
	out := f.Fuse([]*Candidate{b, a}, DefaultConfig().Text.Weights, 10, 10)

	// a: final 0.95, strong (>= 0.62). cutoff = max(0.55, 0.95*0.75) = 0.7125.
	// b: final 0.60, admissible but below the cutoff.
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Key)
}

func TestFuseBackfillKeepsFloor(t *testing.T) {
	f := textFuser(t)
	weights := DefaultConfig().Text.Weights

	// admissible but not strong: dense-only, final 0.58 < 0.62.
	admissible := cand("adm", map[Signal]float64{SignalDense: 0.58})
	// passes both score gates but fails corroboration: lexical present at 0.35.
	uncorroborated := cand("unc", map[Signal]float64{SignalDense: 0.80, SignalLexical: 0.35})
	// below the final floor: must never appear, backfill or not.
	floored := cand("floor", map[Signal]float64{SignalDense: 0.50})

	out := f.Fuse([]*Candidate{admissible, uncorroborated, floored}, weights, 5, 5)

	require.Len(t, out, 2)
	keys := []string{out[0].Key, out[1].Key}
	assert.ElementsMatch(t, []string{"adm", "unc"}, keys)
	for _, c := range out {
		assert.GreaterOrEqual(t, c.FinalScore, DefaultConfig().Text.MinFinal)
	}
}

func TestFuseAdmissibility(t *testing.T) {
	f := textFuser(t)

	tests := []struct {
		name  string
		norms map[Signal]float64
		want  bool
	}{
		{"strong rerank", map[Signal]float64{SignalRerank: 0.45}, true},
		{"strong clip", map[Signal]float64{SignalClip: 0.45}, true},
		{"corroborated recall", map[Signal]float64{SignalDense: 0.5, SignalLexical: 0.45}, true},
		{"dense alone not held back", map[Signal]float64{SignalDense: 0.5}, true},
		{"lexical contradicts dense", map[Signal]float64{SignalDense: 0.9, SignalLexical: 0.2}, false},
		{"weak rerank only", map[Signal]float64{SignalRerank: 0.3}, false},
		{"nothing", map[Signal]float64{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.isAdmissible(cand("x", tt.norms)))
		})
	}
}

func TestFuseTieBreaks(t *testing.T) {
	cfg := DefaultConfig().Text
	cfg.MinFinal = 0.1
	f := NewFuser(cfg, nil)

	// Identical dense-only finals; rerank breaks the tie.
	a := cand("a", map[Signal]float64{SignalDense: 0.6, SignalRerank: 0.7})
	b := cand("b", map[Signal]float64{SignalDense: 0.6, SignalRerank: 0.5})
	// Force equal finals by giving both the same weighted combination.
	a.Scores[SignalRerank] = SignalScore{Raw: 0.6, Norm: 0.6}
	b.Scores[SignalRerank] = SignalScore{Raw: 0.6, Norm: 0.6}
	a.Scores[SignalDense] = SignalScore{Raw: 0.7, Norm: 0.7}
	b.Scores[SignalDense] = SignalScore{Raw: 0.6, Norm: 0.6}

	candidates := []*Candidate{b, a}
	for _, c := range candidates {
		f.scoreCandidate(c, cfg.Weights)
	}
	// Equalize finals explicitly, then sort.
	a.FinalScore, b.FinalScore = 0.6, 0.6
	sortByFinal(candidates)

	assert.Equal(t, "a", candidates[0].Key) // equal rerank, higher dense
	assert.Equal(t, "b", candidates[1].Key)
}

func TestFuseEmptyInput(t *testing.T) {
	f := textFuser(t)
	assert.Nil(t, f.Fuse(nil, DefaultConfig().Text.Weights, 10, 10))
}
