// Package field implements the directional bias transform of spec.md §4.3:
// mapping a focal embedding and a (theta, t) direction/temperature pair to a
// drift-biased query vector, using the PCA basis for the directional
// component and the chunk PRNG for the stochastic one.
package field

import (
	"math"

	"fieldengine/internal/numeric"
	"fieldengine/internal/pca"
)

// maxBiasMagnitude is alpha(1), the bias scale at full temperature.
const maxBiasMagnitude = 0.35

// minSigma and maxSigma bound sigma(t), the Gaussian noise scale.
const (
	minSigma = 0.05
	maxSigma = 0.35
)

// Bias returns the direction-biased offset vector for angle theta and
// temperature t, built from the first two PCA components: d = cos(theta)*u1
// + sin(theta)*u2, normalized, then scaled by alpha(t) = lerp(0, 0.35, t).
func Bias(basis *pca.Basis, theta, t float64) []float32 {
	u1 := basis.Vectors()[0]
	u2 := basis.Vectors()[1]
	d := numeric.Add(
		numeric.Scale(u1, float32(math.Cos(theta))),
		numeric.Scale(u2, float32(math.Sin(theta))),
	)
	d = numeric.Normalize(d)
	alpha := numeric.Lerp(0, maxBiasMagnitude, t)
	return numeric.Scale(d, float32(alpha))
}

// Sigma returns the Gaussian noise scale for temperature t.
func Sigma(t float64) float64 {
	return numeric.Lerp(minSigma, maxSigma, t)
}

// QueryVector composes the drift-biased query vector v' = normalize(v +
// bias(theta,t) + sigma(t)*epsilon), where epsilon is a fresh Gaussian
// vector of v's dimension drawn from rng. v is assumed already unit-length
// (the caller normalizes defensively before calling) but is not mutated.
func QueryVector(v []float32, basis *pca.Basis, theta, t float64, rng *numeric.RNG) []float32 {
	bias := Bias(basis, theta, t)
	sigma := Sigma(t)
	epsilon := numeric.GaussianVector(len(v), rng)
	noisy := numeric.Scale(epsilon, float32(sigma))
	sum := numeric.Add(numeric.Add(v, bias), noisy)
	return numeric.Normalize(sum)
}
