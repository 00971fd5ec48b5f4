package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/richinex/theseus/llm"
)

func TestCompactorEvictsWholeTurns(t *testing.T) {
	c := newHistoryCompactor()
	c.windowChars = 500

	c.append(0, llm.SystemMessage("system prompt"), llm.UserMessage("Goal: find the thing"))
	for step := 1; step <= 5; step++ {
		c.append(step,
			llm.AssistantMessage(strings.Repeat("thinking about the thing ", 10)),
			llm.UserMessage(strings.Repeat("observation text ", 10)))
	}

	if c.totalChars() > c.windowChars+500 {
		t.Errorf("window not bounded: %d chars", c.totalChars())
	}

	summary := c.historySummary()
	if summary.EvictedMessages == 0 {
		t.Fatal("expected evictions")
	}
	if len(summary.Pending) == 0 {
		t.Error("evicted turns must land in the pending buffer")
	}
	if len(summary.RAGEntries) == 0 {
		t.Error("evicted turns must be archived for retrieval")
	}
	if summary.EvictedChars == 0 {
		t.Error("evicted char accounting missing")
	}

	// The system message survives every eviction.
	window := c.window()
	if len(window) == 0 || window[0].Role != "system" {
		t.Error("system message must never be evicted")
	}
}

func TestCompactorKeepsSummaryWithItsResults(t *testing.T) {
	// A reasoning summary and the action-results message it produced
	// are one turn: eviction may drop them together, never split them.
	c := newHistoryCompactor()
	c.windowChars = 400

	c.append(0, llm.SystemMessage("system prompt"), llm.UserMessage("Goal: find the thing"))
	for step := 1; step <= 6; step++ {
		c.append(step,
			llm.AssistantMessage(strings.Repeat("reasoning ", 10)),
			llm.UserMessage(actionResultsPrefix+"\n"+strings.Repeat("observation ", 10)))
	}

	summary := c.historySummary()
	if len(summary.Pending) == 0 {
		t.Fatal("expected evictions")
	}
	for _, chunk := range summary.Pending {
		if strings.Contains(chunk, actionResultsPrefix) && !strings.Contains(chunk, "[assistant]") {
			t.Errorf("results evicted without their summary:\n%s", chunk)
		}
	}
	// No orphaned results message may lead the surviving window.
	for _, m := range c.window() {
		if m.Role == "system" {
			continue
		}
		if strings.HasPrefix(m.Content, actionResultsPrefix) {
			t.Error("window starts with an orphaned action-results message")
		}
		break
	}
}

func TestCompactorMergePending(t *testing.T) {
	c := newHistoryCompactor()
	c.summary.Pending = []string{"visited the pricing page", "found the trial banner"}
	c.summary.Running = "started from the home page"

	backend := &scriptedBackend{}
	usage, err := c.mergePending(context.Background(), backend, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = usage

	if backend.completes != 1 {
		t.Errorf("expected 1 merge call, got %d", backend.completes)
	}
	if c.summary.Running != "merged summary" {
		t.Errorf("running summary = %q", c.summary.Running)
	}
	if len(c.summary.Pending) != 0 {
		t.Error("pending buffer must be cleared after merge")
	}
}

func TestCompactorMergeSkippedByPreflight(t *testing.T) {
	c := newHistoryCompactor()
	c.summary.Pending = []string{"raw chunk"}

	backend := &scriptedBackend{}
	_, err := c.mergePending(context.Background(), backend, func(string) bool { return false })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if backend.completes != 0 {
		t.Error("merge must be skipped when the pre-check fails")
	}
	if len(c.summary.Pending) != 1 {
		t.Error("raw chunks must be kept when the merge is skipped")
	}
}

func TestCompactorMergeNoopWhenEmpty(t *testing.T) {
	c := newHistoryCompactor()
	backend := &scriptedBackend{}
	if _, err := c.mergePending(context.Background(), backend, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.completes != 0 {
		t.Error("nothing pending, nothing to merge")
	}
}

func TestCompactorRetrieveRanksByOverlap(t *testing.T) {
	c := newHistoryCompactor()
	c.summary.RAGEntries = []ArchiveEntry{
		{ID: "1", Step: 1, Text: "notes about gardening tools"},
		{ID: "2", Step: 2, Text: "the Berlin weather forecast page showed rain"},
		{ID: "3", Step: 3, Text: "Berlin has many museums"},
		{ID: "4", Step: 4, Text: "weather stations measure wind"},
		{ID: "5", Step: 5, Text: "Berlin weather archive for last year"},
	}

	got := c.retrieve("find today's weather in Berlin")
	if len(got) > archiveRetrieveTopN {
		t.Fatalf("retrieved %d entries, cap is %d", len(got), archiveRetrieveTopN)
	}
	if len(got) == 0 {
		t.Fatal("expected matches")
	}
	// Both-keyword entries outrank single-keyword ones.
	if got[0].ID != "2" && got[0].ID != "5" {
		t.Errorf("best match should hit both keywords, got entry %s", got[0].ID)
	}
	for _, e := range got {
		if e.ID == "1" {
			t.Error("zero-overlap entry must not be retrieved")
		}
	}
}

func TestCompactorContextPrefix(t *testing.T) {
	c := newHistoryCompactor()
	if c.contextPrefix("any goal") != "" {
		t.Error("empty compactor yields an empty prefix")
	}

	c.summary.Running = "progress so far"
	prefix := c.contextPrefix("any goal")
	if !strings.Contains(prefix, "progress so far") {
		t.Errorf("prefix missing running summary: %q", prefix)
	}
}
