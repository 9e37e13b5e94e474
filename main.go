// Command fieldengine serves the Field Sampling Engine's HTTP surface: the
// two field-chunk endpoints of spec.md §6, backed by a SQLite-indexed
// vector store and a PCA basis loaded once at startup.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"fieldengine/internal/config"
	"fieldengine/internal/coordinator"
	"fieldengine/internal/db"
	"fieldengine/internal/errlog"
	"fieldengine/internal/fielderr"
	"fieldengine/internal/handler"
	"fieldengine/internal/pca"
	"fieldengine/internal/router"
	"fieldengine/internal/vectorstore"
)

func main() {
	dataDir := parseDataDirFlag()

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "help", "-h", "--help":
			printUsage()
			return
		}
	}

	if err := run(dataDir); err != nil {
		log.Fatalf("fieldengine: %v", err)
	}
}

// parseDataDirFlag extracts the --datadir flag from command-line arguments.
func parseDataDirFlag() string {
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, "--datadir=") {
			return strings.TrimPrefix(arg, "--datadir=")
		}
		if arg == "--datadir" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return "./data"
}

// parsePortFlag extracts the --port or -p flag.
func parsePortFlag() int {
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, "--port=") {
			if port, err := strconv.Atoi(strings.TrimPrefix(arg, "--port=")); err == nil {
				return port
			}
		}
		if (arg == "--port" || arg == "-p") && i+1 < len(os.Args) {
			if port, err := strconv.Atoi(os.Args[i+1]); err == nil {
				return port
			}
		}
	}
	return 0
}

// parseBindFlag extracts the --bind flag.
func parseBindFlag() string {
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, "--bind=") {
			return strings.TrimPrefix(arg, "--bind=")
		}
		if arg == "--bind" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return ""
}

func printUsage() {
	fmt.Println(`Usage:
  fieldengine                            Start HTTP service (default port 8080)
  fieldengine --bind=<addr>              Specify listen address
  fieldengine --port=<port>              Specify service port (or -p <port>)
  fieldengine --datadir=<path>           Specify data directory (default ./data)
  fieldengine help                       Show this help information

The data directory holds config.json, the SQLite vector store, and the
PCA basis artifact (pca_basis.json by default). Use cmd/fieldgen to seed a
fresh data directory with synthetic artworks and a random PCA basis.`)
}

// run wires the engine's dependencies and serves until interrupted.
func run(dataDir string) error {
	if err := errlog.Init(); err != nil {
		log.Printf("warning: error logger init failed: %v (errors will not be persisted to file)", err)
	} else {
		defer errlog.Close()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fs := afero.NewOsFs()
	configPath := filepath.Join(dataDir, "config.json")
	cm, err := config.NewConfigManager(fs, configPath)
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := cm.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := cm.Get()

	if bind := parseBindFlag(); bind != "" {
		cfg.Server.Bind = bind
	}
	if port := parsePortFlag(); port > 0 {
		cfg.Server.Port = port
	}

	dbPath := cfg.VectorStore.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(dataDir, dbPath)
	}
	database, err := db.InitDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store database: %w", err)
	}
	defer database.Close()

	store := vectorstore.NewSQLiteVectorStore(database)

	basisStore := pca.NewStore()
	pcaPath := cfg.PCA.ArtifactPath
	if !filepath.IsAbs(pcaPath) {
		pcaPath = filepath.Join(dataDir, pcaPath)
	}
	if err := basisStore.Load(fs, pcaPath); err != nil {
		if fielderr.KindOf(err) == fielderr.PcaUnavailable {
			log.Printf("warning: PCA basis unavailable (%v) — field endpoints will report pca_unavailable until a valid basis is loaded", err)
		} else {
			return err
		}
	}

	coord := coordinator.New(store, basisStore)
	app := handler.NewApp(coord)
	mux := router.New(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	if strings.Contains(cfg.Server.Bind, ":") && !strings.HasPrefix(cfg.Server.Bind, "[") {
		addr = fmt.Sprintf("[%s]:%d", cfg.Server.Bind, cfg.Server.Port)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Field] fieldengine starting on http://%s (data directory: %s)", server.Addr, dataDir)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("[Field] received shutdown signal, shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
