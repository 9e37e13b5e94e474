package pca

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"

	"fieldengine/internal/fielderr"
)

func writeArtifact(t *testing.T, fs afero.Fs, path string, basis [][]float32) {
	t.Helper()
	data, err := json.Marshal(artifact{Basis: basis})
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func TestLoadSuccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	basis := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 2}, // not unit length — Load must normalize it
	}
	writeArtifact(t, fs, "basis.json", basis)

	s := NewStore()
	if err := s.Load(fs, "basis.json"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.Loaded() {
		t.Fatal("expected Loaded() == true")
	}
	b, err := s.Basis()
	if err != nil {
		t.Fatalf("Basis: %v", err)
	}
	if b.Rank() != 3 {
		t.Fatalf("rank = %d, want 3", b.Rank())
	}
	if b.Dim() != 3 {
		t.Fatalf("dim = %d, want 3", b.Dim())
	}
	last := b.Vectors()[2]
	if last[2] != 1 {
		t.Fatalf("expected row normalized to unit length, got %v", last)
	}
}

func TestLoadMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore()
	err := s.Load(fs, "does-not-exist.json")
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if fielderr.KindOf(err) != fielderr.PcaUnavailable {
		t.Fatalf("expected PcaUnavailable, got %v", fielderr.KindOf(err))
	}
	if s.Loaded() {
		t.Fatal("Loaded() should remain false after failed Load")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "bad.json", []byte("{not json"), 0o644)
	s := NewStore()
	err := s.Load(fs, "bad.json")
	if fielderr.KindOf(err) != fielderr.PcaUnavailable {
		t.Fatalf("expected PcaUnavailable, got %v", err)
	}
}

func TestLoadRankTooLow(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "basis.json", [][]float32{{1, 0, 0}})
	s := NewStore()
	err := s.Load(fs, "basis.json")
	if fielderr.KindOf(err) != fielderr.PcaUnavailable {
		t.Fatalf("expected PcaUnavailable for rank 1, got %v", err)
	}
}

func TestBasisBeforeLoad(t *testing.T) {
	s := NewStore()
	_, err := s.Basis()
	if fielderr.KindOf(err) != fielderr.PcaUnavailable {
		t.Fatalf("expected PcaUnavailable before Load, got %v", err)
	}
}

func TestLoadInconsistentDimension(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArtifact(t, fs, "basis.json", [][]float32{{1, 0, 0}, {0, 1}})
	s := NewStore()
	err := s.Load(fs, "basis.json")
	if fielderr.KindOf(err) != fielderr.PcaUnavailable {
		t.Fatalf("expected PcaUnavailable for inconsistent dims, got %v", err)
	}
}
