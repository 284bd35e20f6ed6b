package store

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NormalizeVector scales v to unit length in place and returns it.
// Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	for i, x := range v {
		v[i] = float32(float64(x) / mag)
	}
	return v
}

// MeanVector returns the re-normalized mean of the given vectors.
// Returns nil if vecs is empty or dimensions disagree.
func MeanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dims := len(vecs[0])
	mean := make([]float32, dims)
	for _, v := range vecs {
		if len(v) != dims {
			return nil
		}
		for i, x := range v {
			mean[i] += x
		}
	}
	n := float32(len(vecs))
	for i := range mean {
		mean[i] /= n
	}
	return NormalizeVector(mean)
}
