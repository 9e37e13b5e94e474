package vectorstore

// FoldSeed maps a chunk's 32-bit hash seed into the [0,1) store-seed space
// of spec §6: storeSeed = hash / 2^32. Callers pass the result to
// RandomOrder so a seeded randomization primitive exposed over SQL (or, as
// here, an in-process shuffle) reproduces the same order for identical
// chunk seeds.
func FoldSeed(hash uint32) float64 {
	return float64(hash) / 4294967296.0
}

// unfoldSeed reverses FoldSeed for stores, like this one, whose native
// random primitive is itself a 32-bit seeded generator.
func unfoldSeed(storeSeed float64) uint32 {
	return uint32(storeSeed * 4294967296.0)
}
