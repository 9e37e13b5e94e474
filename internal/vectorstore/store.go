// Package vectorstore implements the vector store contract of spec §6: an
// indexed corpus of artwork embeddings under cosine distance, a seeded
// deterministic random order, and the eligibility predicate the field
// sampling engine requires at every retrieval boundary.
//
// The concrete SQLiteVectorStore keeps the teacher's in-memory cache shape
// (a flat slice of cached rows plus pre-computed norms, loaded once and kept
// fresh across writes) and its adaptive-worker concurrent similarity scan,
// generalized from document chunks to artwork rows.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"fieldengine/internal/fielderr"
	"fieldengine/internal/numeric"
)

// Artwork is the projected artwork record of spec §3. Fields beyond those
// the core consumes directly (title, artist, the three image URLs) pass
// through untouched to the HTTP payload.
type Artwork struct {
	ID               int32
	ObjectID         string
	Title            string
	Artist           string
	Embedding        []float32
	LocalImageURL    string
	SmallImageURL    string
	OriginalImageURL string
}

// Displayable reports whether a is displayable: a non-empty local image URL.
func (a *Artwork) Displayable() bool {
	return a.LocalImageURL != ""
}

// Eligible reports whether a may be retrieved, sampled, or returned by the
// engine: an embedding is present and the record is displayable.
func (a *Artwork) Eligible() bool {
	return len(a.Embedding) > 0 && a.Displayable()
}

// Candidate is one row retrieved from a pool query. Similarity is nil for
// rows retrieved through the random-order path.
type Candidate struct {
	ID         int32
	Similarity *float64
}

// Store is the contract the field sampling engine depends on. The retrieval
// methods (FocalEmbedding, NearestNeighbors, RandomOrder) honor the
// eligibility predicate; Lookup returns any matching row. All methods
// accept a context so a caller can cancel an in-flight query and discard
// its result.
type Store interface {
	// FocalEmbedding returns a copy of focalID's embedding as stored (it is
	// not re-normalized here), or a fielderr.Error of kind TargetNotFound if
	// no eligible row exists.
	FocalEmbedding(ctx context.Context, focalID int32) ([]float32, error)

	// NearestNeighbors returns up to topK eligible rows ranked by cosine
	// distance ascending (similarity descending) against query, excluding
	// any id present in exclude.
	NearestNeighbors(ctx context.Context, query []float32, topK int, exclude map[int32]bool) ([]Candidate, error)

	// RandomOrder returns up to topK eligible rows in a seeded pseudo-random
	// order, tie-broken by id ascending, excluding any id present in
	// exclude. storeSeed is the folded chunk seed of spec §6, a float in
	// [0,1).
	RandomOrder(ctx context.Context, storeSeed float64, topK int, exclude map[int32]bool) ([]Candidate, error)

	// Lookup fetches the full display record for each id, for assembling
	// the response payload. Ids with no matching row are omitted.
	Lookup(ctx context.Context, ids []int32) (map[int32]*Artwork, error)
}

// cachedArtwork is the in-memory projection of one artworks row, with its
// L2 norm pre-computed the way the teacher's cachedChunk pre-computes norm
// and bigrams once at load time rather than per query.
type cachedArtwork struct {
	id               int32
	vector           []float32
	norm             float32
	objectID         string
	title            string
	artist           string
	localImageURL    string
	smallImageURL    string
	originalImageURL string
}

func (c *cachedArtwork) eligible() bool {
	return len(c.vector) > 0 && c.localImageURL != ""
}

// SQLiteVectorStore implements Store using SQLite for persistence and an
// in-memory cache for fast similarity search and random ordering.
type SQLiteVectorStore struct {
	db *sql.DB

	mu          sync.RWMutex
	cache       []cachedArtwork
	idIndex     map[int32]int
	eligibleIdx []int // indices into cache, in ascending id order
	loaded      bool
}

// NewSQLiteVectorStore creates a new SQLiteVectorStore with the given
// database connection. The cache is populated lazily on first use.
func NewSQLiteVectorStore(db *sql.DB) *SQLiteVectorStore {
	return &SQLiteVectorStore{db: db}
}

// EnsureSchema creates the artworks table if it does not already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS artworks (
		id                 INTEGER PRIMARY KEY,
		object_id          TEXT NOT NULL DEFAULT '',
		title              TEXT NOT NULL DEFAULT '',
		artist             TEXT NOT NULL DEFAULT '',
		embedding          BLOB,
		local_image_url    TEXT NOT NULL DEFAULT '',
		small_image_url    TEXT NOT NULL DEFAULT '',
		original_image_url TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("failed to create artworks table: %w", err)
	}
	return nil
}

// loadCache reads every artwork row into memory in ascending id order, the
// same order the random-order path and its id-ascending tie-break depend on.
// Must be called with mu held for writing.
func (s *SQLiteVectorStore) loadCache(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, object_id, title, artist, embedding,
		local_image_url, small_image_url, original_image_url FROM artworks ORDER BY id ASC`)
	if err != nil {
		return fielderr.Wrap(fielderr.StoreFailure, "failed to query artworks", err)
	}
	defer rows.Close()

	var cache []cachedArtwork
	idIndex := make(map[int32]int)
	var eligibleIdx []int

	for rows.Next() {
		var row cachedArtwork
		var embeddingBytes []byte
		if err := rows.Scan(&row.id, &row.objectID, &row.title, &row.artist, &embeddingBytes,
			&row.localImageURL, &row.smallImageURL, &row.originalImageURL); err != nil {
			return fielderr.Wrap(fielderr.StoreFailure, "failed to scan artwork row", err)
		}
		row.vector = DeserializeVector(embeddingBytes)
		row.norm = vectorNormF32(row.vector)

		idx := len(cache)
		cache = append(cache, row)
		idIndex[row.id] = idx
		if row.eligible() {
			eligibleIdx = append(eligibleIdx, idx)
		}
	}
	if err := rows.Err(); err != nil {
		return fielderr.Wrap(fielderr.StoreFailure, "error iterating artwork rows", err)
	}

	s.cache = cache
	s.idIndex = idIndex
	s.eligibleIdx = eligibleIdx
	s.loaded = true
	return nil
}

func (s *SQLiteVectorStore) ensureCache(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.loadCache(ctx)
}

func vectorNormF32(v []float32) float32 {
	return numeric.Norm(v)
}

// InsertArtworks inserts or replaces a batch of artwork rows and refreshes
// the in-memory cache. Used by cmd/fieldgen to seed a store.
func (s *SQLiteVectorStore) InsertArtworks(ctx context.Context, items []Artwork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fielderr.Wrap(fielderr.StoreFailure, "failed to begin transaction", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO artworks
		(id, object_id, title, artist, embedding, local_image_url, small_image_url, original_image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fielderr.Wrap(fielderr.StoreFailure, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, a := range items {
		_, err := stmt.ExecContext(ctx, a.ID, a.ObjectID, a.Title, a.Artist, SerializeVector(a.Embedding),
			a.LocalImageURL, a.SmallImageURL, a.OriginalImageURL)
		if err != nil {
			tx.Rollback()
			return fielderr.Wrap(fielderr.StoreFailure, fmt.Sprintf("failed to insert artwork %d", a.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fielderr.Wrap(fielderr.StoreFailure, "failed to commit transaction", err)
	}

	s.loaded = false
	return nil
}

// FocalEmbedding implements Store.
func (s *SQLiteVectorStore) FocalEmbedding(ctx context.Context, focalID int32) ([]float32, error) {
	s.mu.Lock()
	if err := s.ensureCache(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	idx, ok := s.idIndex[focalID]
	if !ok || !s.cache[idx].eligible() {
		s.mu.Unlock()
		return nil, fielderr.New(fielderr.TargetNotFound, fmt.Sprintf("no eligible artwork for id %d", focalID))
	}
	v := append([]float32(nil), s.cache[idx].vector...)
	s.mu.Unlock()
	return v, nil
}

// dotProductF32Unrolled computes a dot product with 4-way loop unrolling,
// adapted from the teacher's query-time similarity scan for better ILP.
func dotProductF32Unrolled(a, b []float32) float32 {
	n := len(a)
	var sum0, sum1, sum2, sum3 float32
	i := 0
	for ; i <= n-4; i += 4 {
		sum0 += a[i] * b[i]
		sum1 += a[i+1] * b[i+1]
		sum2 += a[i+2] * b[i+2]
		sum3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		sum0 += a[i] * b[i]
	}
	return sum0 + sum1 + sum2 + sum3
}

// minWorkersThreshold is the minimum number of candidates per worker below
// which the concurrent scan falls back to a single goroutine.
const minWorkersThreshold = 500

// NearestNeighbors implements Store.
func (s *SQLiteVectorStore) NearestNeighbors(ctx context.Context, query []float32, topK int, exclude map[int32]bool) ([]Candidate, error) {
	s.mu.RLock()
	if err := s.upgradeAndLoad(ctx); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	cache := s.cache
	eligibleIdx := s.eligibleIdx
	s.mu.RUnlock()

	queryNorm := numeric.Norm(query)
	if queryNorm == 0 || len(eligibleIdx) == 0 {
		return nil, nil
	}

	type scored struct {
		id    int32
		score float32
	}

	numWorkers := runtime.NumCPU()
	if len(eligibleIdx) < minWorkersThreshold {
		numWorkers = 1
	} else if numWorkers > len(eligibleIdx)/minWorkersThreshold {
		numWorkers = len(eligibleIdx) / minWorkersThreshold
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	results := make([]scored, 0, len(eligibleIdx))
	var mu sync.Mutex
	var wg sync.WaitGroup
	chunkSize := (len(eligibleIdx) + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if start >= len(eligibleIdx) {
			break
		}
		if end > len(eligibleIdx) {
			end = len(eligibleIdx)
		}
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			local := make([]scored, 0, len(indices))
			for _, idx := range indices {
				c := &cache[idx]
				if exclude[c.id] {
					continue
				}
				if c.norm == 0 {
					continue
				}
				dot := dotProductF32Unrolled(query, c.vector)
				sim := dot / (queryNorm * c.norm)
				local = append(local, scored{id: c.id, score: sim})
			}
			mu.Lock()
			results = append(results, local...)
			mu.Unlock()
		}(eligibleIdx[start:end])
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	if topK < len(results) {
		results = results[:topK]
	}

	out := make([]Candidate, len(results))
	for i, r := range results {
		sim := float64(r.score)
		out[i] = Candidate{ID: r.id, Similarity: &sim}
	}
	return out, nil
}

// RandomOrder implements Store. It fulfils the §6 seeded-random contract in
// process: eligible ids are taken in ascending order (the store's native
// `ORDER BY id ASC` tie-break), then a seeded Fisher-Yates shuffle is
// applied using storeSeed folded back to a native 32-bit state, per the §9
// design note that a store lacking its own seeded random order must shuffle
// a retrieved sample in-process.
func (s *SQLiteVectorStore) RandomOrder(ctx context.Context, storeSeed float64, topK int, exclude map[int32]bool) ([]Candidate, error) {
	s.mu.RLock()
	if err := s.upgradeAndLoad(ctx); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	cache := s.cache
	eligibleIdx := s.eligibleIdx
	s.mu.RUnlock()

	ids := make([]int32, 0, len(eligibleIdx))
	for _, idx := range eligibleIdx {
		id := cache[idx].id
		if exclude[id] {
			continue
		}
		ids = append(ids, id)
	}

	rng := numeric.NewRNG(unfoldSeed(storeSeed))
	for i := len(ids) - 1; i > 0; i-- {
		j := int(rng.Float64() * float64(i+1))
		if j > i {
			j = i
		}
		ids[i], ids[j] = ids[j], ids[i]
	}

	if topK < len(ids) {
		ids = ids[:topK]
	}
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Similarity: nil}
	}
	return out, nil
}

// Lookup implements Store.
func (s *SQLiteVectorStore) Lookup(ctx context.Context, ids []int32) (map[int32]*Artwork, error) {
	s.mu.RLock()
	if err := s.upgradeAndLoad(ctx); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	cache := s.cache
	idIndex := s.idIndex
	s.mu.RUnlock()

	out := make(map[int32]*Artwork, len(ids))
	for _, id := range ids {
		idx, ok := idIndex[id]
		if !ok {
			continue
		}
		c := &cache[idx]
		out[id] = &Artwork{
			ID:               c.id,
			ObjectID:         c.objectID,
			Title:            c.title,
			Artist:           c.artist,
			Embedding:        c.vector,
			LocalImageURL:    c.localImageURL,
			SmallImageURL:    c.smallImageURL,
			OriginalImageURL: c.originalImageURL,
		}
	}
	return out, nil
}

// upgradeAndLoad loads the cache if necessary. It is called with a read
// lock held; since loadCache needs the write lock, it must release and
// re-acquire around the load, matching the pattern the caller's RLock/RLock
// pair expects (load happens at most once per store lifetime per mutation).
func (s *SQLiteVectorStore) upgradeAndLoad(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	s.mu.RUnlock()
	s.mu.Lock()
	err := s.ensureCache(ctx)
	s.mu.Unlock()
	s.mu.RLock()
	return err
}
