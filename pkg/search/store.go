package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pcbuild-agent/pkg/logger"
)

// Store persists raw search result sets to SQLite for offline inspection.
// It is a debug artifact: writes are best effort and must never block or
// fail a search call.
type Store struct {
	db     *sql.DB
	logger logger.ExtendedLogger
}

// OpenStore opens or creates the search log database at path.
func OpenStore(path string, log logger.ExtendedLogger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search log database: %w", err)
	}

	store := &Store{db: db, logger: log}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// OpenStoreInMemory creates an in-memory store, useful for testing.
func OpenStoreInMemory(log logger.ExtendedLogger) (*Store, error) {
	return OpenStore(":memory:", log)
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS search_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			title TEXT NOT NULL,
			snippet TEXT NOT NULL,
			url TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(query);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one row per result for the given query.
func (s *Store) Record(ctx context.Context, query string, results []Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO search_results (query, title, snippet, url) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, query, r.Title, r.Snippet, r.URL); err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}
	return tx.Commit()
}

// RecordAsync persists results in the background. Failures are logged and
// otherwise ignored.
func (s *Store) RecordAsync(query string, results []Result) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Record(ctx, query, results); err != nil {
			s.logger.Warnf("search log write failed: %v", err)
		}
	}()
}

// Count returns the number of stored result rows, mainly for tests.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_results").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
