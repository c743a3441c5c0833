// Package store persists finished fact-check results in a local SQLite
// database so the server and the CLI can list and replay past runs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"factseeker/internal/core"
)

// Store is the SQLite-backed result history.
type Store struct {
	db   *sql.DB
	path string
}

// StoredResult is one saved run with its identifying row fields.
type StoredResult struct {
	ID        string
	Source    string // video id or article URL
	Score     int    // aggregate confidence at save time
	Summary   string
	CreatedAt time.Time
	Result    *core.PipelineResult
}

// NewStore opens (creating if needed) the result database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "factseeker.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		score INTEGER NOT NULL,
		summary TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
	CREATE INDEX IF NOT EXISTS idx_results_source ON results(source);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult stores one pipeline result and returns its record ID.
func (s *Store) SaveResult(result *core.PipelineResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO results (id, source, score, summary, result_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, result.Source(), result.AggregateScore(), result.Summary, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}
	return id, nil
}

// GetResult loads one saved run by record ID. A missing row returns
// (nil, nil).
func (s *Store) GetResult(id string) (*StoredResult, error) {
	row := s.db.QueryRow(
		`SELECT id, source, score, summary, result_json, created_at FROM results WHERE id = ?`, id)

	stored, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", id, err)
	}
	return stored, nil
}

// GetRecentResults returns the newest saved runs, newest first.
func (s *Store) GetRecentResults(limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, source, score, summary, result_json, created_at FROM results ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		stored, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, *stored)
	}
	return results, rows.Err()
}

// Stats summarizes the stored history.
type Stats struct {
	ResultCount int
	DBSizeBytes int64
}

// GetStats reports the row count and on-disk size of the history database.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&stats.ResultCount); err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}
	return stats, nil
}

// Clear deletes all stored results.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM results`); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*StoredResult, error) {
	var (
		stored  StoredResult
		payload string
	)
	if err := row.Scan(&stored.ID, &stored.Source, &stored.Score, &stored.Summary, &payload, &stored.CreatedAt); err != nil {
		return nil, err
	}
	var result core.PipelineResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("corrupt result payload: %w", err)
	}
	stored.Result = &result
	return &stored, nil
}
