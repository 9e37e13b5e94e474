package field

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/spf13/afero"
	"pgregory.net/rapid"

	"fieldengine/internal/numeric"
	"fieldengine/internal/pca"
)

func testBasis(t *testing.T) *pca.Basis {
	t.Helper()
	// Build a basis via the public Store/Load path so the unexported
	// Basis type is only ever constructed through package pca itself.
	fs := afero.NewMemMapFs()
	data, err := json.Marshal(map[string][][]float32{
		"basis": {
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		},
	})
	if err != nil {
		t.Fatalf("marshal basis: %v", err)
	}
	if err := afero.WriteFile(fs, "basis.json", data, 0o644); err != nil {
		t.Fatalf("write basis: %v", err)
	}
	s := pca.NewStore()
	if err := s.Load(fs, "basis.json"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := s.Basis()
	if err != nil {
		t.Fatalf("Basis: %v", err)
	}
	return b
}

func TestBiasZeroTemperatureIsZero(t *testing.T) {
	b := testBasis(t)
	bias := Bias(b, 0.7, 0)
	for i, x := range bias {
		if x != 0 {
			t.Fatalf("bias[%d] = %v at t=0, want 0", i, x)
		}
	}
}

func TestBiasMagnitudeScalesWithTemperature(t *testing.T) {
	b := testBasis(t)
	rapid.Check(t, func(rt *rapid.T) {
		theta := rapid.Float64Range(-math.Pi, math.Pi).Draw(rt, "theta")
		tt := rapid.Float64Range(0, 1).Draw(rt, "t")
		bias := Bias(b, theta, tt)
		mag := float64(numeric.Norm(bias))
		want := numeric.Lerp(0, maxBiasMagnitude, tt)
		if math.Abs(mag-want) > 1e-4 {
			t.Fatalf("|bias| = %v, want %v (t=%v)", mag, want, tt)
		}
	})
}

func TestSigmaBounds(t *testing.T) {
	if got := Sigma(0); got != minSigma {
		t.Fatalf("Sigma(0) = %v, want %v", got, minSigma)
	}
	if got := Sigma(1); got != maxSigma {
		t.Fatalf("Sigma(1) = %v, want %v", got, maxSigma)
	}
}

func TestQueryVectorUnitLength(t *testing.T) {
	b := testBasis(t)
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint32().Draw(rt, "seed")
		theta := rapid.Float64Range(-math.Pi, math.Pi).Draw(rt, "theta")
		tt := rapid.Float64Range(0, 1).Draw(rt, "t")
		v := numeric.Normalize([]float32{1, 2, 3, 4})
		rng := numeric.NewRNG(seed)
		out := QueryVector(v, b, theta, tt, rng)
		norm := numeric.Norm(out)
		if math.Abs(float64(norm)-1) > 1e-3 {
			t.Fatalf("|v'| = %v, want ~1", norm)
		}
	})
}

func TestQueryVectorDeterministic(t *testing.T) {
	b := testBasis(t)
	v := numeric.Normalize([]float32{1, 2, 3, 4})
	a := QueryVector(v, b, 0.5, 0.3, numeric.NewRNG(7))
	c := QueryVector(v, b, 0.5, 0.3, numeric.NewRNG(7))
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("QueryVector not deterministic at index %d: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestQueryVectorDoesNotMutateInput(t *testing.T) {
	b := testBasis(t)
	v := numeric.Normalize([]float32{1, 2, 3, 4})
	vCopy := append([]float32(nil), v...)
	QueryVector(v, b, 0.1, 0.9, numeric.NewRNG(1))
	for i := range v {
		if v[i] != vCopy[i] {
			t.Fatalf("QueryVector mutated input vector at index %d", i)
		}
	}
}
