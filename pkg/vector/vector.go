// Package vector provides the embedding blob codec and similarity math
// shared by the storage backends and the memory engine.
//
// Embeddings are persisted as little-endian float32 blobs: 4 bytes per
// component, dimension = len(blob)/4.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ToBlob serializes a float32 vector to its little-endian binary form.
// A nil or empty vector serializes to nil.
func ToBlob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// FromBlob deserializes a little-endian float32 blob. The blob length
// must be a multiple of 4; nil and empty blobs yield a nil vector.
func FromBlob(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// Cosine returns the cosine similarity of a and b in [-1,1]. Mismatched
// lengths or zero-magnitude vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
