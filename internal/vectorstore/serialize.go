package vectorstore

import (
	"encoding/binary"
	"math"
)

// SerializeVector converts a float32 embedding to a compact little-endian
// byte slice, 4 bytes per component. Embeddings are already float32
// precision by the time they reach this boundary, so no conversion loss
// occurs here (unlike the teacher's float64-to-float32 packing).
func SerializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DeserializeVector converts a byte slice back to a float32 embedding.
// Supports both the legacy float64 wire format (8 bytes/element) and the
// compact float32 format (4 bytes/element), auto-detecting the same way
// the teacher's store does: 768 is itself a recognized embedding dimension
// in both formats, so the heuristic inspects the actual byte values rather
// than trusting length alone.
func DeserializeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	if len(data)%4 != 0 {
		return nil
	}
	if len(data)%8 == 0 {
		n64 := len(data) / 8
		n32 := len(data) / 4
		if isCommonDim(n64) && !isCommonDim(n32) {
			return deserializeFloat64AsF32(data, n64)
		}
		if isCommonDim(n64) && isCommonDim(n32) {
			if looksLikeFloat64Embedding(data, n64) {
				return deserializeFloat64AsF32(data, n64)
			}
		}
		return deserializeFloat32Direct(data, n32)
	}
	n := len(data) / 4
	return deserializeFloat32Direct(data, n)
}

// isCommonDim returns true if n is a common embedding dimension.
func isCommonDim(n int) bool {
	switch n {
	case 128, 256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096:
		return true
	}
	return false
}

// looksLikeFloat64Embedding checks whether the first few values, read as
// float64, fall in the range a real CLIP embedding component would occupy.
// Float32 bytes misread as float64 produce values near 1e-5 or smaller.
func looksLikeFloat64Embedding(data []byte, n int) bool {
	check := n
	if check > 16 {
		check = 16
	}
	validCount := 0
	for i := 0; i < check; i++ {
		bits := binary.LittleEndian.Uint64(data[i*8:])
		v := math.Float64frombits(bits)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		absV := math.Abs(v)
		if absV > 10 {
			return false
		}
		if absV > 0.001 && absV < 5 {
			validCount++
		}
	}
	return validCount >= check/2
}

func deserializeFloat64AsF32(data []byte, n int) []float32 {
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
	}
	return vec
}

func deserializeFloat32Direct(data []byte, n int) []float32 {
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
