package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// Completion-quality rejection codes.
const (
	CodePrematureDone      = "PREMATURE_DONE"
	CodeDoneQualityFailed  = "DONE_QUALITY_FAILED"
	CodeDoneCoverageFailed = "DONE_COVERAGE_FAILED"
)

var factualSignalPattern = regexp.MustCompile(`\d|https?://|"[^"]+"`)

// gateVerdict is the completion gate's decision on one done claim.
type gateVerdict struct {
	accepted bool
	code     string
	reason   string
	// unverified lists sub-tasks allowed through under budget pressure
	// without keyword coverage. Non-empty only on acceptance.
	unverified []string
}

// completionGate vets every done claim, explicit or reflection-driven,
// before the controller may emit a complete result. It tracks a
// rejection streak: after rejectionForceEvidence rejections the
// controller must force an evidence-gathering action, and after
// rejectionStuck the run fails as stuck.
type completionGate struct {
	rejections int
}

func (g *completionGate) rejectionStreak() int { return g.rejections }

func (g *completionGate) mustForceEvidence() bool {
	return g.rejections >= rejectionForceEvidence
}

func (g *completionGate) stuck() bool {
	return g.rejections >= rejectionStuck
}

// reject records a streak increment and returns the verdict.
func (g *completionGate) reject(code, reason string) gateVerdict {
	g.rejections++
	return gateVerdict{code: code, reason: reason}
}

// evaluate runs the three guards in order: premature-done, quality,
// coverage. budgetTight relaxes the coverage guard into an explicit
// unverified-parts addendum instead of a hard rejection.
func (g *completionGate) evaluate(goal string, state *ReflectionState, history []HistoryEntry, tracker *SubGoalTracker, budgetTight bool) gateVerdict {
	if verdict, rejected := g.checkPremature(history); rejected {
		return verdict
	}
	if verdict, rejected := g.checkQuality(goal, state, history); rejected {
		return verdict
	}

	verdict := g.checkCoverage(goal, state, history, tracker, budgetTight)
	if verdict.accepted {
		g.rejections = 0
	}
	return verdict
}

func (g *completionGate) checkPremature(history []HistoryEntry) (gateVerdict, bool) {
	var actions []HistoryEntry
	for _, e := range history {
		if e.Kind == HistoryAction {
			actions = append(actions, e)
		}
	}

	if len(actions) == 0 {
		return g.reject(CodePrematureDone, "no actions were taken"), true
	}

	succeeded := 0
	for _, a := range actions {
		if a.Success {
			succeeded++
		}
	}
	if succeeded == 0 {
		return g.reject(CodePrematureDone, "no action succeeded"), true
	}

	// Majority-failure rule over the recent window: half or more
	// failed and none of the successes was a read.
	recent := actions
	if len(recent) > failureWindow {
		recent = recent[len(recent)-failureWindow:]
	}
	failed, readSucceeded := 0, false
	for _, a := range recent {
		if !a.Success {
			failed++
		} else if isReadTool(a.Tool) {
			readSucceeded = true
		}
	}
	if failed*2 >= len(recent) && !readSucceeded {
		return g.reject(CodePrematureDone,
			fmt.Sprintf("%d of last %d actions failed with no successful read", failed, len(recent))), true
	}
	return gateVerdict{}, false
}

func (g *completionGate) checkQuality(goal string, state *ReflectionState, history []HistoryEntry) (gateVerdict, bool) {
	combined := strings.TrimSpace(state.Summary + " " + state.Answer)
	if combined == "" {
		return g.reject(CodeDoneQualityFailed, "summary and answer are both empty"), true
	}

	if !isInformationSeeking(goal) {
		return gateVerdict{}, false
	}
	if len(combined) >= minAnswerLength || factualSignalPattern.MatchString(combined) {
		return gateVerdict{}, false
	}
	if hasHighSignalObservation(history) {
		return gateVerdict{}, false
	}
	return g.reject(CodeDoneQualityFailed,
		"answer is short and carries no factual signal (numbers, URLs, quotes)"), true
}

func (g *completionGate) checkCoverage(goal string, state *ReflectionState, history []HistoryEntry, tracker *SubGoalTracker, budgetTight bool) gateVerdict {
	corpus := evidenceCorpus(state, history)
	tracker.Recheck(corpus)

	var uncovered []string
	for _, text := range DecomposeGoal(goal) {
		if !coverageMet(text, corpus, defaultMinKeywordHits) {
			uncovered = append(uncovered, text)
		}
	}
	if len(uncovered) == 0 {
		return gateVerdict{accepted: true}
	}
	if budgetTight {
		g.rejections = 0
		return gateVerdict{accepted: true, unverified: uncovered}
	}
	return g.reject(CodeDoneCoverageFailed,
		"evidence does not cover: "+strings.Join(uncovered, "; "))
}

// evidenceCorpus assembles the text the coverage guard matches against:
// the claimed summary and answer plus recent tool results.
func evidenceCorpus(state *ReflectionState, history []HistoryEntry) string {
	var b strings.Builder
	b.WriteString(state.Summary)
	b.WriteString(" ")
	b.WriteString(state.Answer)
	b.WriteString(" ")
	b.WriteString(strings.Join(state.Facts, " "))

	recent := history
	if len(recent) > failureWindow*2 {
		recent = recent[len(recent)-failureWindow*2:]
	}
	for _, e := range recent {
		if e.Kind == HistoryAction && e.Success {
			b.WriteString(" ")
			b.WriteString(e.Result)
		}
	}
	return b.String()
}

func isReadTool(tool string) bool {
	switch tool {
	case "read_page", "read_text", "extract", "find_element", "screenshot":
		return true
	}
	return false
}

// isInformationSeeking classifies goals whose answer is a fact rather
// than a side effect.
func isInformationSeeking(goal string) bool {
	lower := strings.ToLower(goal)
	if strings.Contains(lower, "?") {
		return true
	}
	for _, prefix := range []string{"find", "what", "who", "when", "where", "how", "search", "look up", "get", "check", "compare", "list"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// hasHighSignalObservation scans recent history for a successful action
// whose result carried substantial text or matches.
func hasHighSignalObservation(history []HistoryEntry) bool {
	recent := history
	if len(recent) > failureWindow*2 {
		recent = recent[len(recent)-failureWindow*2:]
	}
	for _, e := range recent {
		if e.Kind != HistoryAction || !e.Success {
			continue
		}
		if len(e.Result) >= highSignalTextLength || strings.Contains(e.Result, "matches") {
			return true
		}
	}
	return false
}
