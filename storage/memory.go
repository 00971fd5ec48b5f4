package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richinex/theseus/agent"
)

// MemoryStore is an in-memory CheckpointStore, useful for tests and
// one-shot runs that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	byRun   map[string]agent.Checkpoint
	touched map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRun:   make(map[string]agent.Checkpoint),
		touched: make(map[string]time.Time),
	}
}

// SaveCheckpoint implements CheckpointStore.
func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp agent.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRun[cp.RunID] = cp
	s.touched[cp.RunID] = time.Now()
	return nil
}

// LoadCheckpoint implements CheckpointStore.
func (s *MemoryStore) LoadCheckpoint(ctx context.Context, runID string) (agent.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byRun[runID]
	if !ok {
		return agent.Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

// ListRuns implements CheckpointStore.
func (s *MemoryStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]RunSummary, 0, len(s.byRun))
	for id, cp := range s.byRun {
		summaries = append(summaries, RunSummary{
			RunID:     id,
			Goal:      cp.Goal,
			NextStep:  cp.NextStep,
			UpdatedAt: s.touched[id],
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// DeleteRun implements CheckpointStore.
func (s *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRun, runID)
	delete(s.touched, runID)
	return nil
}
