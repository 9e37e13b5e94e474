package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"pgregory.net/rapid"

	"fieldengine/internal/numeric"
	"fieldengine/internal/pca"
	"fieldengine/internal/pool"
	"fieldengine/internal/vectorstore"
)

const testDim = 8
const testCorpusSize = 1000
const focalID = int32(42)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	db, err := sql.Open("sqlite3", t.TempDir()+"/field.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := vectorstore.EnsureSchema(db); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	store := vectorstore.NewSQLiteVectorStore(db)

	items := make([]vectorstore.Artwork, 0, testCorpusSize)
	rng := numeric.NewRNG(1234)
	for id := int32(1); id <= testCorpusSize; id++ {
		var emb []float32
		if id == focalID {
			emb = make([]float32, testDim)
			emb[0] = 1 // a known unit embedding, axis-aligned with PCA's first component
		} else {
			emb = numeric.GaussianVector(testDim, rng)
		}
		items = append(items, vectorstore.Artwork{
			ID:            id,
			ObjectID:      "obj",
			Title:         "title",
			Artist:        "artist",
			Embedding:     numeric.Normalize(emb),
			LocalImageURL: "local.jpg",
		})
	}
	if err := store.InsertArtworks(context.Background(), items); err != nil {
		t.Fatalf("InsertArtworks: %v", err)
	}

	fs := afero.NewMemMapFs()
	basisVectors := make([][]float32, 2)
	for i := range basisVectors {
		v := make([]float32, testDim)
		v[i] = 1
		basisVectors[i] = v
	}
	data, err := json.Marshal(map[string][][]float32{"basis": basisVectors})
	if err != nil {
		t.Fatalf("marshal basis: %v", err)
	}
	if err := afero.WriteFile(fs, "basis.json", data, 0o644); err != nil {
		t.Fatalf("write basis: %v", err)
	}
	basisStore := pca.NewStore()
	if err := basisStore.Load(fs, "basis.json"); err != nil {
		t.Fatalf("Load basis: %v", err)
	}

	return New(store, basisStore)
}

// S1 — origin: all items are sim-sourced at t=0.
func TestSingleChunkOrigin(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SingleChunk(context.Background(), SingleChunkRequest{
		FocalID: focalID, X: 0, Y: 0, GlobalSeed: 0, Count: 20,
	})
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	if res.R != 0 || res.Theta != 0 || res.T != 0 {
		t.Fatalf("r=%v theta=%v t=%v, want all 0", res.R, res.Theta, res.T)
	}
	if math.Abs(res.Weights.Sim-1) > 1e-9 || res.Weights.Drift != 0 || res.Weights.Rand != 0 {
		t.Fatalf("weights = %+v, want {1,0,0}", res.Weights)
	}
	if len(res.Items) != 20 {
		t.Fatalf("len(items) = %d, want 20", len(res.Items))
	}
	for _, item := range res.Items {
		if item.Source != pool.SourceSim {
			t.Fatalf("item %d has source %q, want sim", item.ID, item.Source)
		}
		if item.ID == focalID {
			t.Fatal("focal id present in results")
		}
	}
}

// S2 — determinism: two invocations of S1 return identical id sequences.
func TestSingleChunkDeterministic(t *testing.T) {
	c := newTestCoordinator(t)
	req := SingleChunkRequest{FocalID: focalID, X: 0, Y: 0, GlobalSeed: 0, Count: 20}
	a, err := c.SingleChunk(context.Background(), req)
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	b, err := c.SingleChunk(context.Background(), req)
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	if len(a.Items) != len(b.Items) {
		t.Fatalf("length mismatch: %d vs %d", len(a.Items), len(b.Items))
	}
	for i := range a.Items {
		if a.Items[i].ID != b.Items[i].ID {
			t.Fatalf("id mismatch at %d: %d vs %d", i, a.Items[i].ID, b.Items[i].ID)
		}
	}
}

// S3 — periphery: far chunk is all-random with nil similarity.
func TestSingleChunkPeriphery(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SingleChunk(context.Background(), SingleChunkRequest{
		FocalID: focalID, X: 10, Y: 10, GlobalSeed: 0, Count: 20,
	})
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	if math.Abs(res.T-1) > 1e-9 {
		t.Fatalf("t = %v, want 1", res.T)
	}
	if res.Weights.Sim != 0 || res.Weights.Drift != 0 || math.Abs(res.Weights.Rand-1) > 1e-9 {
		t.Fatalf("weights = %+v, want {0,0,1}", res.Weights)
	}
	for _, item := range res.Items {
		if item.Source != pool.SourceRand {
			t.Fatalf("item %d has source %q, want rand", item.ID, item.Source)
		}
		if item.Similarity != nil {
			t.Fatalf("item %d has non-nil similarity, want nil for rand source", item.ID)
		}
	}
}

// S5 — exclusion: excluded ids never appear in the result.
func TestSingleChunkExclusion(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SingleChunk(context.Background(), SingleChunkRequest{
		FocalID: focalID, X: 1, Y: 0, GlobalSeed: 0, Count: 5,
		Exclude: []int32{focalID, 99, 100},
	})
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	excluded := map[int32]bool{focalID: true, 99: true, 100: true}
	for _, item := range res.Items {
		if excluded[item.ID] {
			t.Fatalf("excluded id %d present in result", item.ID)
		}
	}
}

// S6 — multi-chunk dedup: no id repeats across the four chunks.
func TestMultiChunkDedup(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.MultiChunk(context.Background(), MultiChunkRequest{
		FocalID: focalID,
		Chunks: []ChunkCoord{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 0}, {X: 1, Y: 1},
		},
		Count:      10,
		GlobalSeed: 0,
	})
	if err != nil {
		t.Fatalf("MultiChunk: %v", err)
	}
	if len(res.Chunks) != 4 {
		t.Fatalf("len(res.Chunks) = %d, want 4", len(res.Chunks))
	}
	seen := make(map[int32]bool)
	total := 0
	for _, cr := range res.Chunks {
		for _, item := range cr.Items {
			if seen[item.ID] {
				t.Fatalf("duplicate id %d across chunks", item.ID)
			}
			seen[item.ID] = true
			total++
		}
	}
	if total > 40 {
		t.Fatalf("total items = %d, want <= 40", total)
	}
}

func TestSingleChunkRejectsNonPositiveFocalID(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.SingleChunk(context.Background(), SingleChunkRequest{FocalID: 0, X: 0, Y: 0, Count: 1})
	if err == nil {
		t.Fatal("expected error for non-positive focalId")
	}
}

func TestMultiChunkRejectsTooManyChunks(t *testing.T) {
	c := newTestCoordinator(t)
	chunks := make([]ChunkCoord, 17)
	_, err := c.MultiChunk(context.Background(), MultiChunkRequest{FocalID: focalID, Chunks: chunks, Count: 1})
	if err == nil {
		t.Fatal("expected error for 17 chunks")
	}
}

// §8 invariant 2: every returned id is eligible and differs from focalId and
// hardExcludes, across random chunk coordinates and seeds.
func TestSingleChunkEligibilityProperty(t *testing.T) {
	c := newTestCoordinator(t)
	rapid.Check(t, func(rt *rapid.T) {
		x := rapid.IntRange(-20, 20).Draw(rt, "x")
		y := rapid.IntRange(-20, 20).Draw(rt, "y")
		seed := rapid.Uint32().Draw(rt, "seed")
		count := rapid.IntRange(1, 50).Draw(rt, "count")

		res, err := c.SingleChunk(context.Background(), SingleChunkRequest{
			FocalID: focalID, X: x, Y: y, GlobalSeed: seed, Count: count,
		})
		if err != nil {
			t.Fatalf("SingleChunk: %v", err)
		}
		if len(res.Items) > count {
			t.Fatalf("len(items) = %d exceeds clamp(count) = %d", len(res.Items), count)
		}
		seen := make(map[int32]bool, len(res.Items))
		for _, item := range res.Items {
			if item.ID == focalID {
				t.Fatalf("focal id %d present in result", focalID)
			}
			if item.Source != pool.SourceRand && (item.Similarity == nil || *item.Similarity < -1-1e-9 || *item.Similarity > 1+1e-9) {
				t.Fatalf("item %d has source %q with out-of-range similarity %v", item.ID, item.Source, item.Similarity)
			}
			if item.Source == pool.SourceRand && item.Similarity != nil {
				t.Fatalf("rand-sourced item %d has non-nil similarity", item.ID)
			}
			if seen[item.ID] {
				t.Fatalf("duplicate id %d within a single chunk's result", item.ID)
			}
			seen[item.ID] = true
		}
	})
}

// §8 invariant 3: the union of returned ids across a multi-chunk request's
// chunks contains no duplicates, for random chunk sets and seeds.
func TestMultiChunkCrossChunkUniquenessProperty(t *testing.T) {
	c := newTestCoordinator(t)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		seed := rapid.Uint32().Draw(rt, "seed")
		count := rapid.IntRange(1, 20).Draw(rt, "count")

		chunks := make([]ChunkCoord, n)
		for i := range chunks {
			chunks[i] = ChunkCoord{
				X: rapid.IntRange(-15, 15).Draw(rt, "cx"),
				Y: rapid.IntRange(-15, 15).Draw(rt, "cy"),
			}
		}

		res, err := c.MultiChunk(context.Background(), MultiChunkRequest{
			FocalID: focalID, Chunks: chunks, Count: count, GlobalSeed: seed,
		})
		if err != nil {
			t.Fatalf("MultiChunk: %v", err)
		}
		seen := make(map[int32]bool)
		for _, cr := range res.Chunks {
			if len(cr.Items) > count {
				t.Fatalf("chunk (%d,%d) returned %d items, exceeds count %d", cr.X, cr.Y, len(cr.Items), count)
			}
			for _, item := range cr.Items {
				if item.ID == focalID {
					t.Fatalf("focal id present in multi-chunk result")
				}
				if seen[item.ID] {
					t.Fatalf("duplicate id %d across chunks", item.ID)
				}
				seen[item.ID] = true
			}
		}
	})
}

func TestSingleChunkCountClampedTo50(t *testing.T) {
	c := newTestCoordinator(t)
	res, err := c.SingleChunk(context.Background(), SingleChunkRequest{
		FocalID: focalID, X: 0, Y: 0, Count: 1000,
	})
	if err != nil {
		t.Fatalf("SingleChunk: %v", err)
	}
	if len(res.Items) > 50 {
		t.Fatalf("len(items) = %d, exceeds clamp of 50", len(res.Items))
	}
}
