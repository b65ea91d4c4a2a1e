// Package topicmem implements the topic memory router: embedding-similarity
// assignment of links to persisted centroid clusters.
package topicmem

import (
	"encoding/binary"
	"math"

	"github.com/mkarpis/linkmind/internal/ingest"
)

// TieTolerance is the floating-point window within which two similarities are
// considered equal and the lower topic id wins.
const TieTolerance = 1e-9

// CosineSimilarity computes dot(a,b) / (|a| * |b|). Mismatched lengths or a
// zero-norm operand yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MeanUpdate folds one new vector into a running mean over n prior members:
// (old*n + v) / (n+1).
func MeanUpdate(old []float64, n int, v []float64) []float64 {
	if n <= 0 || len(old) != len(v) {
		return append([]float64(nil), v...)
	}
	out := make([]float64, len(old))
	fn := float64(n)
	for i := range old {
		out[i] = (old[i]*fn + v[i]) / (fn + 1)
	}
	return out
}

// Nearest returns the topic whose centroid is most similar to the embedding.
// Zero-norm centroids are skipped. Ties within TieTolerance resolve to the
// lowest topic id, deterministically across runs.
func Nearest(topics []ingest.TopicEntry, embedding []float64) (best ingest.TopicEntry, sim float64, ok bool) {
	sim = math.Inf(-1)
	for _, t := range topics {
		if zeroNorm(t.Centroid) {
			continue
		}
		s := CosineSimilarity(embedding, t.Centroid)
		switch {
		case !ok || s > sim+TieTolerance:
			best, sim, ok = t, s, true
		case s >= sim-TieTolerance && t.ID < best.ID:
			best = t
			if s > sim {
				sim = s
			}
		}
	}
	return best, sim, ok
}

func zeroNorm(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// EncodeVector serializes an embedding as little-endian float64 bytes for
// storage in a BLOB column.
func EncodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing partial values are
// discarded.
func DecodeVector(b []byte) []float64 {
	n := len(b) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
