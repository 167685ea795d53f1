package fabric

import "math"

// vectorWidth is the fixed width of fingerprint vectors.
const vectorWidth = 64

// Embedder turns text into a feature vector. The default implementation
// is a cheap positional fingerprint; swap in a model-backed embedder to
// get semantic retrieval without touching the retrieval or governance
// contracts.
type Embedder interface {
	Embed(text string) []float64
}

// FingerprintEmbedder accumulates byte values into fixed-width buckets
// by position. Identical inputs always produce identical vectors, which
// keeps retrieval ranking reproducible.
type FingerprintEmbedder struct{}

// Embed implements Embedder.
func (FingerprintEmbedder) Embed(text string) []float64 {
	vec := make([]float64, vectorWidth)
	for i := 0; i < len(text); i++ {
		vec[i%vectorWidth] += float64(text[i])
	}
	return vec
}

// cosine returns the cosine similarity of two equal-width vectors.
// Zero vectors (and mismatched widths) yield 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
