package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/richinex/theseus/agent"
)

func testCheckpoint(runID string, nextStep int) agent.Checkpoint {
	return agent.Checkpoint{
		RunID:    runID,
		Goal:     "find the weather in Berlin",
		NextStep: nextStep,
		SubGoals: []agent.SubGoal{
			{ID: "g1", Text: "find the weather in Berlin", Status: agent.SubGoalInProgress},
		},
		Summary: agent.HistorySummary{Running: "navigated to the forecast"},
		History: []agent.HistoryEntry{
			{Kind: agent.HistoryAction, Step: 1, Tool: "navigate", Success: true, Result: "https://weather.example.com"},
		},
		VisitedURLs: map[string]int{"https://weather.example.com": 1},
	}
}

func TestSqliteSaveAndLoad(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	original := testCheckpoint("run-1", 5)

	if err := store.SaveCheckpoint(ctx, original); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.NextStep != 5 {
		t.Errorf("next step = %d, want 5", loaded.NextStep)
	}
	if loaded.Goal != original.Goal {
		t.Errorf("goal = %q, want %q", loaded.Goal, original.Goal)
	}
	if len(loaded.SubGoals) != 1 || loaded.SubGoals[0].Status != agent.SubGoalInProgress {
		t.Errorf("sub-goals not restored: %+v", loaded.SubGoals)
	}
	if loaded.VisitedURLs["https://weather.example.com"] != 1 {
		t.Error("visited urls not restored")
	}
}

func TestSqliteUpsertReplacesCheckpoint(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveCheckpoint(ctx, testCheckpoint("run-1", 3)); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, testCheckpoint("run-1", 9)); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.NextStep != 9 {
		t.Errorf("next step = %d, want 9 after upsert", loaded.NextStep)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run after upsert, got %d", len(runs))
	}
}

func TestSqliteLoadMissing(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	_, err = store.LoadCheckpoint(context.Background(), "no-such-run")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSqliteDeleteRun(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveCheckpoint(ctx, testCheckpoint("run-1", 2)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.LoadCheckpoint(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveCheckpoint(ctx, testCheckpoint("run-1", 4)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, testCheckpoint("run-2", 1)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.NextStep != 4 {
		t.Errorf("next step = %d, want 4", loaded.NextStep)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.LoadCheckpoint(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
