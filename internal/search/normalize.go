package search

import "math"

// Normalizers map raw, signal-specific scores onto [0,1]. Every function
// returns (value, ok): ok=false means the signal is absent for this record,
// which is distinct from a legitimate zero score. NaN and infinities are
// always absent.

// NormalizeDense maps a cosine or inner-product similarity in [-1,1] onto
// [0,1] with the affine map (v+1)/2, clamped.
func NormalizeDense(raw float64) (float64, bool) {
	if !isFinite(raw) {
		return 0, false
	}
	return clamp01((raw + 1) / 2), true
}

// NormalizeLexical maps an unbounded non-negative relevance score onto [0,1)
// with v/(v+1). Non-positive scores normalize to 0.
func NormalizeLexical(raw float64) (float64, bool) {
	if !isFinite(raw) {
		return 0, false
	}
	if raw <= 0 {
		return 0, true
	}
	return raw / (raw + 1), true
}

// NormalizeRerank clamps a model-native score, already roughly bounded,
// to [0,1].
func NormalizeRerank(raw float64) (float64, bool) {
	if !isFinite(raw) {
		return 0, false
	}
	return clamp01(raw), true
}

// NormalizeClip maps a cross-modal cosine similarity like NormalizeDense.
func NormalizeClip(raw float64) (float64, bool) {
	return NormalizeDense(raw)
}

// CombineClip blends the best and mean cosine similarities over an expanded
// prompt set before the affine map. bestW and meanW should sum to 1.
func CombineClip(best, mean, bestW, meanW float64) (float64, bool) {
	if !isFinite(best) || !isFinite(mean) {
		return 0, false
	}
	return NormalizeClip(bestW*best + meanW*mean)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
