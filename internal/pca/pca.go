// Package pca holds the process-wide immutable table of principal-component
// unit vectors used by the field transform. The basis is loaded once at
// startup from a JSON artifact and never mutated afterward. Until Load
// succeeds, Store.Basis returns a PcaUnavailable error; a Store whose Load
// was never called and one whose Load failed report the same error.
package pca

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"fieldengine/internal/fielderr"
	"fieldengine/internal/numeric"
)

// MinRank is the minimum number of basis vectors §4.2 requires for the
// field transform to operate (it only ever consumes the first two).
const MinRank = 2

// artifact mirrors the on-disk JSON shape: {"basis": [[...768 floats...], ...]}.
type artifact struct {
	Basis [][]float32 `json:"basis"`
}

// Basis is the immutable, ordered list of unit principal-component vectors
// for one embedding space.
type Basis struct {
	vectors [][]float32
	dim     int
}

// Store owns the process-wide Basis once loaded. The zero value is unloaded;
// Basis returns an error via the loaded flag until Load succeeds.
type Store struct {
	basis  *Basis
	loaded bool
}

// NewStore returns an empty, unloaded Store.
func NewStore() *Store {
	return &Store{}
}

// Load reads and parses the basis artifact at path using fs, L2-normalizing
// each row. It fails if the file is missing, malformed, or carries fewer
// than MinRank vectors — all surfaced as *fielderr.Error with Kind
// PcaUnavailable so a handler can report it directly.
func (s *Store) Load(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fielderr.Wrap(fielderr.PcaUnavailable, "failed to read PCA basis artifact", err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return fielderr.Wrap(fielderr.PcaUnavailable, "failed to parse PCA basis artifact", err)
	}
	if len(art.Basis) < MinRank {
		return fielderr.New(fielderr.PcaUnavailable,
			fmt.Sprintf("PCA basis has rank %d, need at least %d", len(art.Basis), MinRank))
	}

	dim := len(art.Basis[0])
	if dim == 0 {
		return fielderr.New(fielderr.PcaUnavailable, "PCA basis rows are empty")
	}
	vectors := make([][]float32, len(art.Basis))
	for i, row := range art.Basis {
		if len(row) != dim {
			return fielderr.New(fielderr.PcaUnavailable, "PCA basis rows have inconsistent dimension")
		}
		vectors[i] = numeric.Normalize(row)
	}

	s.basis = &Basis{vectors: vectors, dim: dim}
	s.loaded = true
	return nil
}

// Loaded reports whether a basis has been successfully loaded.
func (s *Store) Loaded() bool {
	return s.loaded
}

// Basis returns the loaded basis, or a PcaUnavailable error if none has been
// loaded (a basis of rank < MinRank is never loaded; Load rejects it). The
// same error is returned whether Load failed or was never called.
func (s *Store) Basis() (*Basis, error) {
	if !s.loaded {
		return nil, fielderr.New(fielderr.PcaUnavailable, "PCA basis not loaded")
	}
	return s.basis, nil
}

// Vectors returns the ordered list of unit principal-component vectors.
func (b *Basis) Vectors() [][]float32 {
	return b.vectors
}

// Dim returns the embedding dimensionality of the basis.
func (b *Basis) Dim() int {
	return b.dim
}

// Rank returns the number of principal-component vectors in the basis.
func (b *Basis) Rank() int {
	return len(b.vectors)
}
