package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/theseus/llm"
)

// actionResultsPrefix marks the user-role message carrying one step's
// observed results; the compactor keeps it attached to the assistant
// summary that produced it.
const actionResultsPrefix = "Action results:"

// historyCompactor keeps the working conversation bounded. Tier 1
// evicts the oldest complete turns into a pending buffer plus a small
// retrievable archive; tier 2 merges the pending buffer into one
// running summary through the reasoning backend. Evicted content is
// never silently dropped.
type historyCompactor struct {
	messages    []llm.ChatMessage
	summary     HistorySummary
	windowChars int
}

func newHistoryCompactor() *historyCompactor {
	return &historyCompactor{windowChars: historyWindowChars}
}

func restoreHistoryCompactor(summary HistorySummary) *historyCompactor {
	return &historyCompactor{summary: summary, windowChars: historyWindowChars}
}

func (c *historyCompactor) historySummary() HistorySummary { return c.summary }

// append adds messages to the working window, then evicts whole turns
// from the front until the window fits. step tags archive entries for
// later retrieval.
func (c *historyCompactor) append(step int, messages ...llm.ChatMessage) {
	c.messages = append(c.messages, messages...)
	for c.totalChars() > c.windowChars {
		if !c.evictOldestTurn(step) {
			break
		}
	}
}

// window returns the live conversation messages.
func (c *historyCompactor) window() []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *historyCompactor) totalChars() int {
	total := 0
	for _, m := range c.messages {
		total += len(m.Content)
	}
	return total
}

// evictOldestTurn removes the oldest complete turn: an assistant
// message with tool calls is evicted together with its tool results so
// a reasoning/results group is never split. The system message is
// never evicted.
func (c *historyCompactor) evictOldestTurn(step int) bool {
	start := 0
	for start < len(c.messages) && c.messages[start].Role == "system" {
		start++
	}
	if start >= len(c.messages)-1 {
		// Keep at least the newest message in the window.
		return false
	}

	end := start + 1
	switch {
	case c.messages[start].Role == "assistant" && len(c.messages[start].ToolCalls) > 0:
		for end < len(c.messages) && c.messages[end].Role == "tool" {
			end++
		}
	case c.messages[start].Role == "assistant":
		// A reasoning summary and the action results it produced are
		// one turn.
		if end < len(c.messages) && c.messages[end].Role == "user" &&
			strings.HasPrefix(c.messages[end].Content, actionResultsPrefix) {
			end++
		}
	}
	if end >= len(c.messages) {
		return false
	}

	var chunk strings.Builder
	for _, m := range c.messages[start:end] {
		fmt.Fprintf(&chunk, "[%s] %s\n", m.Role, m.Content)
	}
	text := chunk.String()

	c.summary.Pending = append(c.summary.Pending, text)
	c.summary.EvictedMessages += end - start
	c.summary.EvictedChars += len(text)

	archived := truncateText(text, 600)
	c.summary.RAGEntries = append(c.summary.RAGEntries, ArchiveEntry{
		ID:        uuid.New().String(),
		Step:      step,
		Text:      archived,
		CreatedAt: time.Now(),
	})

	c.messages = append(c.messages[:start], c.messages[end:]...)
	return true
}

// mergePending asks the backend to fold the pending buffer into the
// running summary, preserving blockers and key facts. preflight gets
// the merge request text; a false return skips the merge and keeps the
// raw chunks. Returns the usage of the merge call, nil when skipped.
func (c *historyCompactor) mergePending(ctx context.Context, backend llm.Provider, preflight func(string) bool) (*llm.TokenUsage, error) {
	if len(c.summary.Pending) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(
		"Merge the following earlier progress notes into one concise running summary. Preserve unresolved blockers, key facts, and figures.\n\nCurrent summary:\n%s\n\nNew notes:\n%s",
		c.summary.Running, strings.Join(c.summary.Pending, "\n---\n"))

	if preflight != nil && !preflight(prompt) {
		return nil, nil
	}

	proposal, err := backend.Complete(ctx, []llm.ChatMessage{llm.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("merge history summary: %w", err)
	}

	c.summary.Running = strings.TrimSpace(proposal.Text)
	c.summary.Pending = nil
	return proposal.Usage, nil
}

// retrieve returns the archive entries whose text best overlaps the
// goal's keywords, best first, at most archiveRetrieveTopN.
func (c *historyCompactor) retrieve(goal string) []ArchiveEntry {
	words := keywords(goal)
	if len(words) == 0 || len(c.summary.RAGEntries) == 0 {
		return nil
	}

	type scored struct {
		entry ArchiveEntry
		hits  int
	}
	var candidates []scored
	for _, e := range c.summary.RAGEntries {
		if hits := keywordHits(words, e.Text); hits > 0 {
			candidates = append(candidates, scored{entry: e, hits: hits})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].hits > candidates[j].hits })

	if len(candidates) > archiveRetrieveTopN {
		candidates = candidates[:archiveRetrieveTopN]
	}
	out := make([]ArchiveEntry, len(candidates))
	for i, s := range candidates {
		out[i] = s.entry
	}
	return out
}

// contextPrefix renders the running summary plus retrieved archive
// fragments for inclusion in the next backend request.
func (c *historyCompactor) contextPrefix(goal string) string {
	var b strings.Builder
	if c.summary.Running != "" {
		b.WriteString("Earlier progress summary:\n")
		b.WriteString(c.summary.Running)
		b.WriteString("\n")
	}
	if len(c.summary.Pending) > 0 {
		b.WriteString("Unmerged earlier notes:\n")
		b.WriteString(strings.Join(c.summary.Pending, "\n"))
		b.WriteString("\n")
	}
	for _, e := range c.retrieve(goal) {
		fmt.Fprintf(&b, "Archived note (step %d): %s\n", e.Step, e.Text)
	}
	return b.String()
}
