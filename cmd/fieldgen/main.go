// Command fieldgen seeds a fresh data directory with a synthetic artwork
// corpus and a random PCA basis, so the field sampling engine's HTTP
// surface can be exercised locally without a CLIP embedding pipeline or an
// offline PCA basis builder attached.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fieldengine/internal/db"
	"fieldengine/internal/numeric"
	"fieldengine/internal/vectorstore"
)

const embeddingDim = 768

func main() {
	dataDir := "./data"
	count := 2000
	rank := 8
	var seed uint32 = 1

	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		switch {
		case strings.HasPrefix(arg, "--datadir="):
			dataDir = strings.TrimPrefix(arg, "--datadir=")
		case strings.HasPrefix(arg, "--count="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--count="))
			if err != nil {
				fmt.Printf("invalid --count: %v\n", err)
				os.Exit(1)
			}
			count = n
		case strings.HasPrefix(arg, "--rank="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--rank="))
			if err != nil {
				fmt.Printf("invalid --rank: %v\n", err)
				os.Exit(1)
			}
			rank = n
		case strings.HasPrefix(arg, "--seed="):
			n, err := strconv.ParseUint(strings.TrimPrefix(arg, "--seed="), 10, 32)
			if err != nil {
				fmt.Printf("invalid --seed: %v\n", err)
				os.Exit(1)
			}
			seed = uint32(n)
		case arg == "help", arg == "-h", arg == "--help":
			printUsage()
			return
		default:
			fmt.Printf("unrecognized argument: %s\n", arg)
			printUsage()
			os.Exit(1)
		}
	}

	if err := run(dataDir, count, rank, seed); err != nil {
		log.Fatalf("fieldgen: %v", err)
	}
}

func printUsage() {
	fmt.Println(`Usage:
  fieldgen [--datadir=<path>] [--count=<n>] [--rank=<k>] [--seed=<n>]

Seeds <datadir>/field.db with <count> synthetic eligible artworks (random
unit embeddings, displayable) and writes <datadir>/pca_basis.json with a
random <rank>-vector basis. Defaults: datadir=./data, count=2000, rank=8,
seed=1.`)
}

func run(dataDir string, count, rank int, seed uint32) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	rng := numeric.NewRNG(seed)

	dbPath := filepath.Join(dataDir, "field.db")
	database, err := db.InitDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	store := vectorstore.NewSQLiteVectorStore(database)

	artworks := make([]vectorstore.Artwork, count)
	for i := 0; i < count; i++ {
		id := int32(i + 1)
		artworks[i] = vectorstore.Artwork{
			ID:               id,
			ObjectID:         fmt.Sprintf("obj-%06d", id),
			Title:            fmt.Sprintf("Untitled Study No. %d", id),
			Artist:           fmt.Sprintf("Artist %d", id%257),
			Embedding:        numeric.Normalize(numeric.GaussianVector(embeddingDim, rng)),
			LocalImageURL:    fmt.Sprintf("/images/%06d.jpg", id),
			SmallImageURL:    fmt.Sprintf("https://example.org/met/small/%06d.jpg", id),
			OriginalImageURL: fmt.Sprintf("https://example.org/met/original/%06d.jpg", id),
		}
	}

	ctx := context.Background()
	const batchSize = 500
	for start := 0; start < len(artworks); start += batchSize {
		end := start + batchSize
		if end > len(artworks) {
			end = len(artworks)
		}
		if err := store.InsertArtworks(ctx, artworks[start:end]); err != nil {
			return fmt.Errorf("failed to insert artworks [%d:%d): %w", start, end, err)
		}
	}
	fmt.Printf("seeded %d artworks into %s\n", count, dbPath)

	basis := make([][]float32, rank)
	for i := range basis {
		basis[i] = numeric.GaussianVector(embeddingDim, rng)
	}
	basisPath := filepath.Join(dataDir, "pca_basis.json")
	data, err := json.MarshalIndent(map[string]interface{}{"basis": basis}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PCA basis: %w", err)
	}
	if err := os.WriteFile(basisPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write PCA basis: %w", err)
	}
	fmt.Printf("wrote rank-%d PCA basis to %s\n", rank, basisPath)

	return nil
}
