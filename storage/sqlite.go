package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/theseus/agent"
)

// SqliteStore implements CheckpointStore on a SQLite database file.
// Checkpoints are stored as one JSON document per run; sql.DB handles
// connection pooling and concurrent access.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			next_step INTEGER NOT NULL,
			checkpoint TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_runs_updated
		ON runs(updated_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveCheckpoint implements CheckpointStore.
func (s *SqliteStore) SaveCheckpoint(ctx context.Context, cp agent.Checkpoint) error {
	data, err := cp.Serialize()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, goal, next_step, checkpoint, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(run_id) DO UPDATE SET
			goal = excluded.goal,
			next_step = excluded.next_step,
			checkpoint = excluded.checkpoint,
			updated_at = datetime('now')
	`, cp.RunID, cp.Goal, cp.NextStep, string(data))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements CheckpointStore.
func (s *SqliteStore) LoadCheckpoint(ctx context.Context, runID string) (agent.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT checkpoint FROM runs WHERE run_id = ?", runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return agent.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return agent.RestoreCheckpoint([]byte(data))
}

// ListRuns implements CheckpointStore.
func (s *SqliteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, goal, next_step, updated_at
		FROM runs ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var summary RunSummary
		var updated string
		if err := rows.Scan(&summary.RunID, &summary.Goal, &summary.NextStep, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if t, err := time.Parse("2006-01-02 15:04:05", updated); err == nil {
			summary.UpdatedAt = t
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// DeleteRun implements CheckpointStore.
func (s *SqliteStore) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
