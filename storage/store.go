// Package storage persists run checkpoints.
//
// Information Hiding:
// - SQLite connection management hidden behind the CheckpointStore interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/richinex/theseus/agent"
)

// ErrNotFound is returned when no checkpoint exists for a run.
var ErrNotFound = errors.New("checkpoint not found")

// RunSummary is one row of a checkpoint listing.
type RunSummary struct {
	RunID     string
	Goal      string
	NextStep  int
	UpdatedAt time.Time
}

// CheckpointStore persists and retrieves run checkpoints.
type CheckpointStore interface {
	// SaveCheckpoint upserts the checkpoint for its run.
	SaveCheckpoint(ctx context.Context, cp agent.Checkpoint) error
	// LoadCheckpoint returns the latest checkpoint for a run.
	LoadCheckpoint(ctx context.Context, runID string) (agent.Checkpoint, error)
	// ListRuns returns all stored runs, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)
	// DeleteRun removes a run's checkpoint.
	DeleteRun(ctx context.Context, runID string) error
}
