// Package model provides domain types shared across packages.
package model

import "strings"

// Status classifies how a run ended.
type Status string

const (
	// StatusComplete means the goal was accomplished and verified.
	StatusComplete Status = "complete"
	// StatusPartial means some sub-goals were covered, others were not.
	StatusPartial Status = "partial"
	// StatusFailed means the run ended on an unrecoverable error.
	StatusFailed Status = "failed"
	// StatusTimeout means a resource ceiling (steps, tokens, time, cost) was hit.
	StatusTimeout Status = "timeout"
	// StatusStuck means the run could not make progress (repeated completion
	// rejections or loops with no viable fallback).
	StatusStuck Status = "stuck"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(s)) {
	case StatusComplete, StatusPartial, StatusFailed, StatusTimeout, StatusStuck:
		return Status(strings.ToLower(s)), true
	}
	return "", false
}

// PartialResult describes what was and was not accomplished when a run ends
// without full completion. Attached to failed/timeout/stuck results whenever
// any evidence was collected, so the caller never gets a bare failure.
type PartialResult struct {
	Status            Status   `json:"status"`
	Reason            string   `json:"reason"`
	RemainingSubGoals []string `json:"remaining_subgoals,omitempty"`
	Suggestion        string   `json:"suggestion,omitempty"`
}

// TerminalResult is the single immutable outcome of a run.
type TerminalResult struct {
	Success       bool           `json:"success"`
	Status        Status         `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Answer        string         `json:"answer,omitempty"`
	Steps         int            `json:"steps"`
	PartialResult *PartialResult `json:"partial_result,omitempty"`
}

// ResultText returns the best human-readable payload of the result.
func (r TerminalResult) ResultText() string {
	if r.Answer != "" {
		return r.Answer
	}
	if r.Summary != "" {
		return r.Summary
	}
	return r.Reason
}

// ToolMetrics contains metrics about a single dispatched tool invocation.
// Used for diagnostics and run accounting.
type ToolMetrics struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
