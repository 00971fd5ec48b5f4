// Package agent implements the orchestration loop: the reflect, gate,
// act cycle that drives a page driver toward a natural-language goal.
//
// Information Hiding:
// - The reasoning backend is hidden behind llm.Provider
// - Page mechanics are hidden behind driver.Driver
// - The controller owns typed sub-components (budget monitor, loop
//   detector, sub-goal tracker, history compactor) and calls them
//   directly; there is no runtime composition
// - All run state is single-writer: only the control goroutine mutates it
package agent

import (
	"time"

	"github.com/richinex/theseus/driver"
)

// ReflectionState is the single structured reasoning output per
// iteration. It is consumed immediately after creation; only the
// confidence normalizer rewrites it.
type ReflectionState struct {
	Facts       []string        `json:"facts"`
	Unknowns    []string        `json:"unknowns"`
	Sufficiency bool            `json:"sufficiency"`
	Confidence  float64         `json:"confidence"`
	Summary     string          `json:"summary"`
	Answer      string          `json:"answer"`
	Actions     []PlannedAction `json:"actions"`

	// Breakdown is filled in by the normalizer, not the backend.
	Breakdown ConfidenceBreakdown `json:"breakdown,omitempty"`
}

// PlannedAction is one proposed tool call. Ephemeral: the loop detector
// validates or rewrites it before dispatch.
type PlannedAction struct {
	Tool driver.Tool    `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// Call converts the planned action to a driver call.
func (a PlannedAction) Call() driver.ToolCall {
	return driver.ToolCall{Tool: a.Tool, Args: a.Args}
}

// ConfidenceBreakdown records how raw confidence was adjusted.
type ConfidenceBreakdown struct {
	Raw               float64 `json:"raw"`
	StagnationPenalty float64 `json:"stagnation_penalty"`
	LoopPenalty       float64 `json:"loop_penalty"`
	ProgressRatio     float64 `json:"progress_ratio"`
}

// SubGoalStatus tracks one sub-goal's lifecycle.
type SubGoalStatus string

const (
	SubGoalPending    SubGoalStatus = "pending"
	SubGoalInProgress SubGoalStatus = "in_progress"
	SubGoalCompleted  SubGoalStatus = "completed"
	SubGoalBlocked    SubGoalStatus = "blocked"
)

// SubGoal is an atomic, independently trackable piece of the task goal.
// Sub-goals are created once at task start and only ever transition;
// they are never deleted.
type SubGoal struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	Status          SubGoalStatus `json:"status"`
	Confidence      float64       `json:"confidence"`
	Attempts        int           `json:"attempts"`
	Evidence        []string      `json:"evidence,omitempty"` // most-recent-first, capped
	LastTool        string        `json:"last_tool,omitempty"`
	LastUpdatedStep int           `json:"last_updated_step"`
}

// Budget holds the resource ceilings for a run. A zero ceiling disables
// that dimension. Immutable for a run unless the operator explicitly
// overrides after a budget pause.
type Budget struct {
	MaxWallClock        time.Duration `json:"max_wall_clock_ms"`
	MaxTotalTokens      uint64        `json:"max_total_tokens"`
	MaxEstimatedCostUSD float64       `json:"max_estimated_cost_usd"`
}

// BudgetUsage is the live consumption compared against Budget.
type BudgetUsage struct {
	Elapsed    time.Duration `json:"elapsed_ms"`
	TokensUsed uint64        `json:"tokens_used"`
	CostUSD    float64       `json:"cost_usd"`
}

// HistoryKind tags a history entry.
type HistoryKind string

const (
	HistoryThought HistoryKind = "thought"
	HistoryAction  HistoryKind = "action"
	HistoryError   HistoryKind = "error"
	HistoryPause   HistoryKind = "pause"
)

// HistoryEntry is one entry of the append-only run log. Entries are
// appended in wall-clock step order even when a dispatch batch executed
// concurrently.
type HistoryEntry struct {
	Kind    HistoryKind    `json:"kind"`
	Step    int            `json:"step"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	Success bool           `json:"success,omitempty"`
}

// ArchiveEntry is one retrievable fragment of evicted history.
type ArchiveEntry struct {
	ID        string    `json:"id"`
	Step      int       `json:"step"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// HistorySummary holds everything the compactor evicted from the
// working window: a running digest, raw chunks awaiting merge, and a
// small retrievable archive. Evicted content is never silently lost.
type HistorySummary struct {
	Running         string         `json:"running,omitempty"`
	Pending         []string       `json:"pending,omitempty"`
	RAGEntries      []ArchiveEntry `json:"rag_entries,omitempty"`
	EvictedMessages int            `json:"evicted_messages"`
	EvictedChars    int            `json:"evicted_chars"`
}

// Blocker is one human-readable reason the run paused for guidance.
type Blocker struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Checkpoint is a serializable snapshot sufficient to resume a run
// after interruption.
type Checkpoint struct {
	RunID       string           `json:"run_id"`
	Goal        string           `json:"goal"`
	NextStep    int              `json:"next_step"`
	History     []HistoryEntry   `json:"history"`
	Scratchpad  string           `json:"scratchpad,omitempty"`
	SubGoals    []SubGoal        `json:"sub_goals"`
	Summary     HistorySummary   `json:"history_summary"`
	Reflection  *ReflectionState `json:"reflection,omitempty"`
	Usage       BudgetUsage      `json:"usage"`
	VisitedURLs map[string]int   `json:"visited_urls,omitempty"`
	Escalations int              `json:"escalations"`
	CreatedAt   time.Time        `json:"created_at"`
}

// State names the controller's position in its run lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateRunning           State = "running"
	StatePausedWaitingUser State = "paused_waiting_user"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// resumeOutcome is the tagged completion of a pause. Exactly one is
// delivered per pause via a one-shot channel.
type resumeOutcome struct {
	guidance string
	aborted  bool
}
