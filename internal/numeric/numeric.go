// Package numeric implements the deterministic building blocks the field
// sampling engine is built from: a 32-bit hash mixer, a seeded uniform PRNG,
// a Gaussian sampler built on top of it, and dense float32 vector arithmetic.
//
// Apart from advancing the state of an RNG passed in, every function here is
// pure and allocates fresh output; inputs are never mutated. Determinism is the entire point of this package — two calls with
// identical arguments must produce bit-identical results on any platform.
package numeric

import "math"

// hashOffsetBasis and hashPrime are the FNV-1a 32-bit constants.
const (
	hashOffsetBasis uint32 = 0x811C9DC5
	hashPrime       uint32 = 0x01000193
)

// Hash32 mixes an ordered sequence of integers into a single uint32 using an
// FNV-1a-style accumulator. Order matters: Hash32(a, b) generally differs
// from Hash32(b, a). Each input is coerced to its unsigned 32-bit
// representation before mixing.
func Hash32(values ...int64) uint32 {
	h := hashOffsetBasis
	for _, v := range values {
		h ^= uint32(v)
		h *= hashPrime
	}
	return h
}

// RNG is a seeded, strictly-sequential pseudo-random generator. It is owned
// exclusively by whichever goroutine creates it — RNG is not safe to share
// across goroutines, and callers must not alias it.
type RNG struct {
	state uint32
}

// NewRNG returns an RNG seeded with the given 32-bit value. Two RNGs created
// with the same seed produce bit-identical sequences.
func NewRNG(seed uint32) *RNG {
	return &RNG{state: seed}
}

// mulberry32Increment is the fixed per-call state advance of the mulberry32
// generator.
const mulberry32Increment uint32 = 0x6D2B79F5

// Float64 advances the generator and returns the next draw in [0, 1).
func (r *RNG) Float64() float64 {
	r.state += mulberry32Increment
	z := r.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	z ^= z >> 14
	return float64(z) / 4294967296.0
}

// gaussianEpsilon guards against log(0) when a draw lands exactly on zero.
const gaussianEpsilon = 1e-9

// Gaussian draws one standard-normal sample via Box-Muller, rejecting zero
// draws to avoid evaluating log(0). The second Box-Muller output is
// discarded; callers needing d independent samples should call
// GaussianVector instead of pairing calls themselves.
func Gaussian(r *RNG) float64 {
	var u1, u2 float64
	for {
		u1 = r.Float64()
		if u1 > gaussianEpsilon {
			break
		}
	}
	for {
		u2 = r.Float64()
		if u2 > gaussianEpsilon {
			break
		}
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// GaussianVector draws d independent standard-normal samples from r.
func GaussianVector(d int, r *RNG) []float32 {
	out := make([]float32, d)
	for i := range out {
		out[i] = float32(Gaussian(r))
	}
	return out
}

// Add returns the elementwise sum of equal-length float32 vectors.
func Add(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// Scale returns a copy of v with every element multiplied by s.
func Scale(v []float32, s float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Normalize returns a unit-length copy of v. A zero vector normalizes to
// itself divided by 1 (a zero vector), rather than dividing by zero.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 {
		n = 1
	}
	return Scale(v, 1/n)
}

// Smoothstep clamps u = (x-e0)/(e1-e0) to [0,1] and returns the cubic
// Hermite interpolation u^2*(3-2u). e1-e0 is floored at 1e-9 to avoid
// division by zero when the edges coincide.
func Smoothstep(e0, e1, x float64) float64 {
	denom := e1 - e0
	if denom < gaussianEpsilon {
		denom = gaussianEpsilon
	}
	u := (x - e0) / denom
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	return u * u * (3 - 2*u)
}

// Lerp linearly interpolates between a and b at parameter t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
