// Package coordinator implements the request coordinator of spec §4.6: it
// validates a chunk request, runs the field transform and pool acquisition,
// and drives the mixture sampler for both single-chunk and multi-chunk
// modes, threading a monotonically-growing used-id set across chunks in
// the latter.
package coordinator

import (
	"context"
	"math"
	"sort"

	"fieldengine/internal/field"
	"fieldengine/internal/fielderr"
	"fieldengine/internal/mixture"
	"fieldengine/internal/numeric"
	"fieldengine/internal/pca"
	"fieldengine/internal/pool"
	"fieldengine/internal/vectorstore"
)

// minCount and maxCount bound the per-chunk item count (§4.6).
const (
	minCount = 1
	maxCount = 50
)

// maxChunks is the upper bound on chunks per multi-chunk request (§4.6).
const maxChunks = 16

// Coordinator owns the process-wide dependencies the engine needs to serve
// a request: the vector store and the immutable PCA basis.
type Coordinator struct {
	Store vectorstore.Store
	Basis *pca.Store
}

// New returns a Coordinator backed by store and basis.
func New(store vectorstore.Store, basis *pca.Store) *Coordinator {
	return &Coordinator{Store: store, Basis: basis}
}

// ResultItem is one sampled artwork, carrying its source pool and
// similarity (nil for random-sourced items per §4.4/§8 invariant 7).
type ResultItem struct {
	ID         int32
	Similarity *float64
	Source     pool.Source
}

func toResultItems(items []pool.Item) []ResultItem {
	out := make([]ResultItem, len(items))
	for i, it := range items {
		out[i] = ResultItem{ID: it.ID, Similarity: it.Similarity, Source: it.Source}
	}
	return out
}

// SingleChunkRequest is the validated input to SingleChunk.
type SingleChunkRequest struct {
	FocalID    int32
	X, Y       int
	GlobalSeed uint32
	Count      int
	Exclude    []int32
}

// ChunkResult is the derived state and sampled output for one chunk (§3,
// §6's per-chunk meta block).
type ChunkResult struct {
	X, Y    int
	R       float64
	Theta   float64
	T       float64
	Weights mixture.Weights
	Seed    uint32
	Items   []ResultItem
}

func clampCount(count int) int {
	if count < minCount {
		return minCount
	}
	if count > maxCount {
		return maxCount
	}
	return count
}

// SingleChunk validates req and runs the field transform, pool acquisition,
// and mixture sampler once for a single chunk.
func (c *Coordinator) SingleChunk(ctx context.Context, req SingleChunkRequest) (*ChunkResult, error) {
	if req.FocalID <= 0 {
		return nil, fielderr.New(fielderr.BadRequest, "targetId must be a positive integer")
	}

	basis, err := c.Basis.Basis()
	if err != nil {
		return nil, err
	}

	v, err := c.Store.FocalEmbedding(ctx, req.FocalID)
	if err != nil {
		return nil, err
	}
	v = numeric.Normalize(v)

	count := clampCount(req.Count)
	hardExcludes := map[int32]bool{req.FocalID: true}
	for _, id := range req.Exclude {
		hardExcludes[id] = true
	}

	r := math.Hypot(float64(req.X), float64(req.Y))
	theta := math.Atan2(float64(req.Y), float64(req.X))
	t := numeric.Smoothstep(1.5, 12.0, r)

	seed := numeric.Hash32(int64(req.FocalID), int64(req.X), int64(req.Y), int64(req.GlobalSeed))
	rng := numeric.NewRNG(seed)

	vPrime := field.QueryVector(v, basis, theta, t, rng)
	storeSeed := vectorstore.FoldSeed(seed)

	pools, err := pool.AcquireAll(ctx, c.Store, v, vPrime, storeSeed, pool.SingleSizes(), hardExcludes)
	if err != nil {
		return nil, err
	}

	weights := mixture.ComputeWeights(t)
	offset := mixture.Offset(req.X, req.Y, true, 0, req.GlobalSeed)

	used := make(map[int32]bool, len(hardExcludes))
	for id := range hardExcludes {
		used[id] = true
	}
	items := mixture.Sample(pools.Sim, pools.Drift, pools.Rand, weights, count, rng, used, offset)

	return &ChunkResult{
		X: req.X, Y: req.Y,
		R: r, Theta: theta, T: t,
		Weights: weights,
		Seed:    seed,
		Items:   toResultItems(items),
	}, nil
}

// ChunkCoord is one requested chunk coordinate in a multi-chunk request.
type ChunkCoord struct {
	X, Y int
}

// MultiChunkRequest is the validated input to MultiChunk.
type MultiChunkRequest struct {
	FocalID    int32
	Chunks     []ChunkCoord
	Count      int
	GlobalSeed uint32
	ExcludeIDs []int32
}

// MultiChunkResult is the assembled response for a multi-chunk request,
// with Chunks keyed by each requested (unsorted) coordinate.
type MultiChunkResult struct {
	TotalChunks    int
	GlobalExcludes []int32
	Seed           uint32
	T              float64
	Chunks         map[ChunkCoord]*ChunkResult
}

// MultiChunk validates req, sorts the requested chunks by radius ascending,
// acquires the shared tight pool once, and runs the per-chunk drift/random
// acquisition and mixture sampler in that order, threading globalUsed
// across chunks for cross-chunk deduplication.
func (c *Coordinator) MultiChunk(ctx context.Context, req MultiChunkRequest) (*MultiChunkResult, error) {
	if req.FocalID <= 0 {
		return nil, fielderr.New(fielderr.BadRequest, "targetId must be a positive integer")
	}
	n := len(req.Chunks)
	if n < 1 || n > maxChunks {
		return nil, fielderr.New(fielderr.BadRequest, "chunks must contain between 1 and 16 entries")
	}

	basis, err := c.Basis.Basis()
	if err != nil {
		return nil, err
	}

	v, err := c.Store.FocalEmbedding(ctx, req.FocalID)
	if err != nil {
		return nil, err
	}
	v = numeric.Normalize(v)

	count := clampCount(req.Count)
	hardExcludes := map[int32]bool{req.FocalID: true}
	for _, id := range req.ExcludeIDs {
		hardExcludes[id] = true
	}

	type indexed struct {
		idx int
		c   ChunkCoord
		r   float64
	}
	ordered := make([]indexed, n)
	for i, cc := range req.Chunks {
		ordered[i] = indexed{idx: i, c: cc, r: math.Hypot(float64(cc.X), float64(cc.Y))}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].r < ordered[j].r })

	tightItems, err := pool.AcquireTight(ctx, c.Store, v, pool.MultiTightSize(n), hardExcludes)
	if err != nil {
		return nil, err
	}

	driftSize := pool.MultiDriftSize(n)
	randSize := pool.MultiRandSize(n)

	globalUsed := make(map[int32]bool, len(hardExcludes))
	for id := range hardExcludes {
		globalUsed[id] = true
	}

	results := make(map[ChunkCoord]*ChunkResult, n)
	var firstT float64

	for rank, e := range ordered {
		theta := math.Atan2(float64(e.c.Y), float64(e.c.X))
		t := numeric.Smoothstep(1.5, 12.0, e.r)
		if rank == 0 {
			firstT = t
		}

		seed := numeric.Hash32(int64(req.FocalID), int64(e.c.X), int64(e.c.Y), int64(req.GlobalSeed))
		rng := numeric.NewRNG(seed)

		vPrime := field.QueryVector(v, basis, theta, t, rng)
		storeSeed := vectorstore.FoldSeed(seed)

		drift, rnd, err := pool.AcquireDriftAndRandom(ctx, c.Store, vPrime, storeSeed, driftSize, randSize, hardExcludes)
		if err != nil {
			return nil, err
		}

		weights := mixture.ComputeWeights(t)
		offset := mixture.Offset(e.c.X, e.c.Y, false, e.idx, req.GlobalSeed)

		items := mixture.Sample(tightItems, drift, rnd, weights, count, rng, globalUsed, offset)

		results[e.c] = &ChunkResult{
			X: e.c.X, Y: e.c.Y,
			R: e.r, Theta: theta, T: t,
			Weights: weights,
			Seed:    seed,
			Items:   toResultItems(items),
		}
	}

	excludes := make([]int32, 0, len(hardExcludes))
	for id := range hardExcludes {
		excludes = append(excludes, id)
	}
	sort.Slice(excludes, func(i, j int) bool { return excludes[i] < excludes[j] })

	return &MultiChunkResult{
		TotalChunks:    n,
		GlobalExcludes: excludes,
		Seed:           req.GlobalSeed,
		T:              firstT,
		Chunks:         results,
	}, nil
}
