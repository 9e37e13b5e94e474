// Package db provides SQLite database initialization for the field
// sampling engine's vector store.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"fieldengine/internal/vectorstore"
)

// InitDB opens a SQLite database connection at dbPath, enables WAL mode,
// and creates the artworks table idempotently.
func InitDB(dbPath string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool for SQLite.
	// WAL mode allows concurrent readers with one writer.
	database.SetMaxOpenConns(4)
	database.SetMaxIdleConns(4)
	database.SetConnMaxLifetime(0)

	if err := configurePragmas(database); err != nil {
		database.Close()
		return nil, err
	}

	if err := vectorstore.EnsureSchema(database); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

func configurePragmas(database *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA wal_autocheckpoint=1000",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}
	return nil
}
