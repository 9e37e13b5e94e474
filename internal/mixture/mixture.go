// Package mixture implements the mixture sampler of spec §4.5: it draws
// count items from the three tagged pools using radius-driven weights,
// a spatial rotation offset to mitigate duplicate picks across nearby
// chunks, and a fixed fallback traversal order when a pool is exhausted.
package mixture

import (
	"fieldengine/internal/numeric"
	"fieldengine/internal/pool"
)

// Weights are the normalized per-pool selection probabilities for a given
// temperature t.
type Weights struct {
	Sim   float64
	Drift float64
	Rand  float64
}

// ComputeWeights returns the normalized mixture weights for temperature t:
// w_sim=(1-t)^2, w_drift=2t(1-t), w_rand=t^2, normalized by their sum (a
// sum of 0 is treated as 1, though algebraically the three terms always
// sum to 1).
func ComputeWeights(t float64) Weights {
	wSim := (1 - t) * (1 - t)
	wDrift := 2 * t * (1 - t)
	wRand := t * t
	w := wSim + wDrift + wRand
	if w == 0 {
		w = 1
	}
	return Weights{Sim: wSim / w, Drift: wDrift / w, Rand: wRand / w}
}

// Offset computes the spatial rotation offset for pool deduplication
// mitigation (§4.5). single reports whether this is single-chunk mode;
// chunkIndex and globalSeed are only meaningful in multi-chunk mode.
func Offset(x, y int, single bool, chunkIndex int, globalSeed uint32) int {
	r := numeric.Norm([]float32{float32(x), float32(y)})
	if single {
		if r < 2 {
			h := numeric.Hash32(int64(x+100), int64(y+100))
			return int(h % 50)
		}
		return 0
	}
	if r < 3 {
		h := numeric.Hash32(int64(x+100), int64(y+100), int64(globalSeed), int64(chunkIndex))
		return int(h % 100)
	}
	return chunkIndex * 25
}

// rotate returns items traversed starting at offset and wrapping: [offset:]
// followed by [:offset]. It does not copy the backing pool; it returns an
// index sequence a caller walks in order.
func rotate(n, offset int) []int {
	if n == 0 {
		return nil
	}
	offset %= n
	order := make([]int, 0, n)
	for i := offset; i < n; i++ {
		order = append(order, i)
	}
	for i := 0; i < offset; i++ {
		order = append(order, i)
	}
	return order
}

// cursor walks one pool's rotated order, skipping ids already in used.
type cursor struct {
	items []pool.Item
	order []int
	pos   int
}

func newCursor(items []pool.Item, offset int) *cursor {
	return &cursor{items: items, order: rotate(len(items), offset)}
}

// next returns the next unused item from the pool, advancing the cursor
// past it, or ok=false if the pool has no more unused items.
func (c *cursor) next(used map[int32]bool) (pool.Item, bool) {
	for c.pos < len(c.order) {
		idx := c.order[c.pos]
		c.pos++
		item := c.items[idx]
		if !used[item.ID] {
			return item, true
		}
	}
	return pool.Item{}, false
}

// fallbackOrder gives the fixed traversal order §4.5 step 3 specifies when
// the primary pool choice is exhausted.
func fallbackOrder(primary pool.Source) []pool.Source {
	switch primary {
	case pool.SourceSim:
		return []pool.Source{pool.SourceDrift, pool.SourceRand}
	case pool.SourceDrift:
		return []pool.Source{pool.SourceSim, pool.SourceRand}
	default:
		return []pool.Source{pool.SourceDrift, pool.SourceSim}
	}
}

// Sample runs the selection loop of §4.5: count draws against the three
// pools, weighted by w, using rng for the primary-pool draw, traversing the
// sim and drift pools rotated by offset, and honoring used as the combined
// hard-exclude/cross-chunk-dedup set. used is mutated in place: every
// selected id is added to it, so a caller threading a shared globalUsed set
// across chunks sees the accumulated picks.
func Sample(sim, drift, rand []pool.Item, w Weights, count int, rng *numeric.RNG, used map[int32]bool, offset int) []pool.Item {
	cursors := map[pool.Source]*cursor{
		pool.SourceSim:   newCursor(sim, offset),
		pool.SourceDrift: newCursor(drift, offset),
		pool.SourceRand:  newCursor(rand, 0), // the random pool is never rotated
	}

	result := make([]pool.Item, 0, count)
	for i := 0; i < count; i++ {
		u := rng.Float64()
		var primary pool.Source
		switch {
		case u < w.Sim:
			primary = pool.SourceSim
		case u < w.Sim+w.Drift:
			primary = pool.SourceDrift
		default:
			primary = pool.SourceRand
		}

		item, ok := cursors[primary].next(used)
		if !ok {
			for _, fb := range fallbackOrder(primary) {
				item, ok = cursors[fb].next(used)
				if ok {
					break
				}
			}
		}
		if !ok {
			break // all three pools exhausted
		}

		used[item.ID] = true
		result = append(result, item)
	}
	return result
}
