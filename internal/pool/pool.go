// Package pool acquires the three tagged candidate pools of spec §4.4
// (tight-similarity, drift-similarity, seeded-random) from the vector
// store. The three retrievals for one chunk have no data dependency on
// each other, so §5 permits issuing them concurrently; this package uses
// an errgroup so that a failure or cancellation on any one query aborts
// the others and discards whatever partial pools were already retrieved,
// matching the "no partial result" propagation policy of §7.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fieldengine/internal/fielderr"
	"fieldengine/internal/vectorstore"
)

// Source labels which retrieval produced a pool item.
type Source string

const (
	SourceSim   Source = "sim"
	SourceDrift Source = "drift"
	SourceRand  Source = "rand"
)

// Item is one candidate tagged with the pool it was drawn from.
type Item struct {
	ID         int32
	Similarity *float64
	Source     Source
}

// Pools holds the three tagged candidate lists for one chunk.
type Pools struct {
	Sim   []Item
	Drift []Item
	Rand  []Item
}

// Sizes carries the per-pool retrieval size, which differs between
// single-chunk and multi-chunk mode (§4.4).
type Sizes struct {
	Tight int
	Drift int
	Rand  int
}

// Single-chunk pool sizes.
const (
	SingleTightSize = 200
	SingleDriftSize = 400
	SingleRandSize  = 800
)

// SingleSizes returns the fixed single-chunk pool sizes.
func SingleSizes() Sizes {
	return Sizes{Tight: SingleTightSize, Drift: SingleDriftSize, Rand: SingleRandSize}
}

// MultiTightSize returns the shared tight-pool size for an N-chunk request:
// min(500, 125*N).
func MultiTightSize(n int) int {
	return minInt(500, 125*n)
}

// MultiDriftSize returns the per-chunk drift-pool size for an N-chunk
// request: min(400, 100*N). The spec names this cap "driftCap" without
// defining its growth rate; 100*N was chosen to sit between the tight
// pool's 125*N and the random pool's 300*N.
func MultiDriftSize(n int) int {
	return minInt(400, 100*n)
}

// MultiRandSize returns the per-chunk random-pool size for an N-chunk
// request: min(800, 300*N).
func MultiRandSize(n int) int {
	return minInt(800, 300*n)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func tag(cands []vectorstore.Candidate, src Source) []Item {
	items := make([]Item, len(cands))
	for i, c := range cands {
		items[i] = Item{ID: c.ID, Similarity: c.Similarity, Source: src}
	}
	return items
}

// AcquireAll acquires all three pools for a single-chunk request
// concurrently, using v for the tight pool, vPrime for the drift pool, and
// storeSeed for the random pool.
func AcquireAll(ctx context.Context, store vectorstore.Store, v, vPrime []float32, storeSeed float64, sizes Sizes, hardExcludes map[int32]bool) (*Pools, error) {
	g, gctx := errgroup.WithContext(ctx)
	var tight, drift, rand []vectorstore.Candidate

	g.Go(func() error {
		var err error
		tight, err = store.NearestNeighbors(gctx, v, sizes.Tight, hardExcludes)
		return err
	})
	g.Go(func() error {
		var err error
		drift, err = store.NearestNeighbors(gctx, vPrime, sizes.Drift, hardExcludes)
		return err
	})
	g.Go(func() error {
		var err error
		rand, err = store.RandomOrder(gctx, storeSeed, sizes.Rand, hardExcludes)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fielderr.Wrap(fielderr.StoreFailure, "pool acquisition failed", err)
	}
	return &Pools{Sim: tag(tight, SourceSim), Drift: tag(drift, SourceDrift), Rand: tag(rand, SourceRand)}, nil
}

// AcquireTight acquires only the tight-similarity pool, used by multi-chunk
// mode to fetch the pool once and share it across chunks.
func AcquireTight(ctx context.Context, store vectorstore.Store, v []float32, topK int, hardExcludes map[int32]bool) ([]Item, error) {
	cands, err := store.NearestNeighbors(ctx, v, topK, hardExcludes)
	if err != nil {
		return nil, fielderr.Wrap(fielderr.StoreFailure, "tight pool acquisition failed", err)
	}
	return tag(cands, SourceSim), nil
}

// AcquireDriftAndRandom acquires the per-chunk drift and random pools
// concurrently, used by multi-chunk mode once the shared tight pool has
// already been fetched.
func AcquireDriftAndRandom(ctx context.Context, store vectorstore.Store, vPrime []float32, storeSeed float64, driftTopK, randTopK int, hardExcludes map[int32]bool) ([]Item, []Item, error) {
	g, gctx := errgroup.WithContext(ctx)
	var drift, rand []vectorstore.Candidate

	g.Go(func() error {
		var err error
		drift, err = store.NearestNeighbors(gctx, vPrime, driftTopK, hardExcludes)
		return err
	})
	g.Go(func() error {
		var err error
		rand, err = store.RandomOrder(gctx, storeSeed, randTopK, hardExcludes)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fielderr.Wrap(fielderr.StoreFailure, "drift/random pool acquisition failed", err)
	}
	return tag(drift, SourceDrift), tag(rand, SourceRand), nil
}
