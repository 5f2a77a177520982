package store

import (
	"encoding/binary"
	"math"
)

// encodeEmbedding packs a float32 vector into a little-endian byte blob for
// storage in a BLOB column — Laminark has no vector-search SQLite extension,
// so embeddings are always decoded back into []float32 for in-Go distance
// computation.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// decodeEmbedding reverses encodeEmbedding. A malformed (non-multiple-of-4)
// blob decodes to nil rather than erroring the caller.
func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}

// CosineDistance returns 1 - cosine_similarity(a, b), with zero-norm safety:
// if either vector is all-zero (or either is empty), distance is 0, never NaN.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
