package search

import (
	"log/slog"
	"sort"
)

// Fuser combines normalized per-signal scores into a final ranking for one
// track (text or image). All thresholds come from the track configuration.
type Fuser struct {
	cfg    TrackConfig
	logger *slog.Logger
}

// NewFuser creates a fuser for one track.
func NewFuser(cfg TrackConfig, logger *slog.Logger) *Fuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{cfg: cfg, logger: logger}
}

// Fuse scores, gates, and ranks candidates. weights is the query-scoped
// weight set (the track default unless the request overrides it). limit is
// the backfill target, normally max(topK, 6).
func (f *Fuser) Fuse(candidates []*Candidate, weights Weights, topK, limit int) []*Candidate {
	if len(candidates) == 0 {
		return nil
	}

	// Score everything first; gating works on fused scores.
	for _, c := range candidates {
		f.scoreCandidate(c, weights)
	}

	var gated, admissible []*Candidate
	for _, c := range candidates {
		if !f.passesComponentFloor(c) || c.FinalScore < f.cfg.MinFinal {
			continue
		}
		gated = append(gated, c)
		if f.isAdmissible(c) {
			admissible = append(admissible, c)
		}
	}
	sortByFinal(admissible)

	if len(admissible) > 0 && f.meetsThresholds(admissible[0], f.cfg.Strong) {
		return f.strongCut(admissible, topK)
	}

	if limit < topK {
		limit = topK
	}
	out := admissible
	if len(out) > limit {
		out = out[:limit]
	}

	// Backfill with gated-but-uncorroborated candidates, keeping the hard
	// final-score floor.
	if len(out) < limit {
		seen := make(map[string]bool, len(out))
		for _, c := range out {
			seen[c.Key] = true
		}
		rest := make([]*Candidate, 0, len(gated))
		for _, c := range gated {
			if !seen[c.Key] {
				rest = append(rest, c)
			}
		}
		sortByFinal(rest)
		for _, c := range rest {
			if len(out) >= limit {
				break
			}
			out = append(out, c)
		}
		sortByFinal(out)
	}
	return out
}

// scoreCandidate restricts weights to present signals, renormalizes them to
// sum to 1, and computes the weighted final score. A candidate whose present
// signals all carry zero configured weight falls back to its best normalized
// score.
func (f *Fuser) scoreCandidate(c *Candidate, weights Weights) {
	total := 0.0
	for s := range c.Scores {
		total += weights.Get(s)
	}

	c.Weights = make(map[Signal]float64, len(c.Scores))
	if total <= 0 {
		best := 0.0
		for _, ss := range c.Scores {
			if ss.Norm > best {
				best = ss.Norm
			}
		}
		c.FinalScore = best
		return
	}

	final := 0.0
	for s, ss := range c.Scores {
		w := weights.Get(s) / total
		if w == 0 {
			continue
		}
		c.Weights[s] = w
		final += w * ss.Norm
	}
	c.FinalScore = final
}

func (f *Fuser) passesComponentFloor(c *Candidate) bool {
	for _, ss := range c.Scores {
		if ss.Norm >= f.cfg.MinComponent {
			return true
		}
	}
	return false
}

// isAdmissible requires one strong precise signal or corroboration between
// the two recall signals. An absent recall signal is not held against the
// candidate, but at least one of dense/lexical must be present for the
// corroboration form to apply.
func (f *Fuser) isAdmissible(c *Candidate) bool {
	t := f.cfg.AdmitThreshold
	if v, ok := c.Score(SignalRerank); ok && v >= t {
		return true
	}
	if v, ok := c.Score(SignalClip); ok && v >= t {
		return true
	}

	dense, denseOK := c.Score(SignalDense)
	lexical, lexicalOK := c.Score(SignalLexical)
	if !denseOK && !lexicalOK {
		return false
	}
	if denseOK && dense < t {
		return false
	}
	if lexicalOK && lexical < t {
		return false
	}
	return true
}

// meetsThresholds checks a candidate against a strength threshold set: one
// strong precise signal, corroborated recall, or a high fused score.
func (f *Fuser) meetsThresholds(c *Candidate, th SignalThresholds) bool {
	if v, ok := c.Score(SignalRerank); ok && th.Rerank > 0 && v >= th.Rerank {
		return true
	}
	if v, ok := c.Score(SignalClip); ok && th.Clip > 0 && v >= th.Clip {
		return true
	}
	if th.Dense > 0 {
		dense, dOK := c.Score(SignalDense)
		lexical, lOK := c.Score(SignalLexical)
		if dOK && lOK && dense >= th.Dense && lexical >= th.Lexical {
			return true
		}
	}
	return th.Final > 0 && c.FinalScore >= th.Final
}

// strongCut applies the relative cutoff under a strong top candidate: only
// candidates within the keep factor of the top that are also individually
// confident survive, so one outstanding match suppresses weak unrelated ones.
func (f *Fuser) strongCut(admissible []*Candidate, topK int) []*Candidate {
	top := admissible[0]
	cutoff := top.FinalScore * f.cfg.KeepFactor
	if cutoff < f.cfg.MinFinal {
		cutoff = f.cfg.MinFinal
	}

	out := make([]*Candidate, 0, topK)
	for _, c := range admissible {
		if c.FinalScore < cutoff {
			break
		}
		if !f.meetsThresholds(c, f.cfg.Confident) {
			continue
		}
		out = append(out, c)
		if len(out) >= topK {
			break
		}
	}
	return out
}

// sortByFinal orders by final score descending with deterministic signal
// tie-breaks: rerank, then dense, then lexical, then key.
func sortByFinal(candidates []*Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		for _, s := range []Signal{SignalRerank, SignalDense, SignalLexical} {
			av, aok := a.Score(s)
			bv, bok := b.Score(s)
			if aok && bok && av != bv {
				return av > bv
			}
			if aok != bok {
				return aok
			}
		}
		return a.Key < b.Key
	})
}
