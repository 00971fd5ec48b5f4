package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/richinex/theseus/driver"
)

// truncateText cuts s to at most max bytes without splitting a UTF-8
// rune.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "get": true, "go": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "then": true,
	"this": true, "to": true, "up": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "will": true,
	"with": true, "find": true, "out": true, "me": true, "please": true,
	"today": true, "todays": true, "current": true,
}

var (
	quotedSpanPattern = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	comparePattern    = regexp.MustCompile(`(?i)\bcompare\b.+\band\b`)
	boundaryPattern   = regexp.MustCompile(`(?i)\s*(?:;|\.\s|\bthen\b|\band then\b|\balso\b|\bas well as\b|\band\b)\s*`)
)

// keywords tokenizes text, lowercases, and drops stopwords and
// one-character tokens.
func keywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, text)

	seen := make(map[string]bool)
	var words []string
	for _, token := range strings.Fields(strings.ToLower(cleaned)) {
		if len(token) < 2 || stopwords[token] || seen[token] {
			continue
		}
		seen[token] = true
		words = append(words, token)
	}
	return words
}

// keywordHits counts how many of the keywords appear in the corpus.
func keywordHits(words []string, corpus string) int {
	lower := strings.ToLower(corpus)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return hits
}

// coverageMet reports whether the corpus keyword-covers the text: at
// least min(minHits, keyword count) of its keywords must appear.
func coverageMet(text, corpus string, minHits int) bool {
	words := keywords(text)
	if len(words) == 0 {
		return true
	}
	need := minHits
	if len(words) < need {
		need = len(words)
	}
	return keywordHits(words, corpus) >= need
}

// DecomposeGoal splits a goal into atomic sub-tasks on conjunction and
// punctuation boundaries. Quoted spans and two-entity comparison goals
// ("compare A and B") are protected from splitting.
func DecomposeGoal(goal string) []string {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil
	}

	// Comparison goals read as one unit even though they contain "and".
	if comparePattern.MatchString(goal) {
		return []string{goal}
	}

	// Mask quoted spans so boundaries inside them are not split on.
	masked := goal
	spans := quotedSpanPattern.FindAllString(goal, -1)
	placeholders := make(map[string]string, len(spans))
	for i, span := range spans {
		key := fmt.Sprintf("\x00Q%d\x00", i)
		placeholders[key] = span
		masked = strings.Replace(masked, span, key, 1)
	}

	var parts []string
	for _, piece := range boundaryPattern.Split(masked, -1) {
		piece = strings.TrimSpace(piece)
		for key, span := range placeholders {
			piece = strings.ReplaceAll(piece, key, span)
		}
		// Fragments with no content words are connective debris.
		if piece == "" || len(keywords(piece)) == 0 {
			continue
		}
		parts = append(parts, piece)
	}
	if len(parts) == 0 {
		return []string{goal}
	}
	return parts
}

// SubGoalTracker owns the run's sub-goals. All mutation happens on the
// control goroutine.
type SubGoalTracker struct {
	goals   []SubGoal
	minHits int
}

// NewSubGoalTracker decomposes the goal and creates one pending
// sub-goal per sub-task.
func NewSubGoalTracker(goal string) *SubGoalTracker {
	tracker := &SubGoalTracker{minHits: defaultMinKeywordHits}
	for _, text := range DecomposeGoal(goal) {
		tracker.goals = append(tracker.goals, SubGoal{
			ID:     uuid.New().String(),
			Text:   text,
			Status: SubGoalPending,
		})
	}
	return tracker
}

// RestoreSubGoalTracker rebuilds a tracker from checkpointed sub-goals.
func RestoreSubGoalTracker(goals []SubGoal) *SubGoalTracker {
	return &SubGoalTracker{goals: goals, minHits: defaultMinKeywordHits}
}

// Goals returns a copy of the current sub-goal states.
func (t *SubGoalTracker) Goals() []SubGoal {
	out := make([]SubGoal, len(t.goals))
	copy(out, t.goals)
	return out
}

// Remaining returns the texts of sub-goals not yet completed.
func (t *SubGoalTracker) Remaining() []string {
	var texts []string
	for _, g := range t.goals {
		if g.Status != SubGoalCompleted {
			texts = append(texts, g.Text)
		}
	}
	return texts
}

// CompletedCount returns how many sub-goals are completed.
func (t *SubGoalTracker) CompletedCount() int {
	n := 0
	for _, g := range t.goals {
		if g.Status == SubGoalCompleted {
			n++
		}
	}
	return n
}

// ProgressRatio is completed over total; 0 when there are no sub-goals.
func (t *SubGoalTracker) ProgressRatio() float64 {
	if len(t.goals) == 0 {
		return 0
	}
	return float64(t.CompletedCount()) / float64(len(t.goals))
}

// isHighSignal classifies a tool result as carrying new, non-trivial
// evidence: a nonzero structured extraction, a found match, or a
// substantial page-text read.
func isHighSignal(res driver.Result) bool {
	if !res.Success {
		return false
	}
	if res.Matches > 0 || len(res.Links) > 0 {
		return true
	}
	return len(res.Text) >= highSignalTextLength
}

// Observe matches one dispatched action against the open sub-goals and
// updates the best one or two matches. A sub-goal only completes when
// the observation is itself high-signal and its keywords are covered.
func (t *SubGoalTracker) Observe(step int, call driver.ToolCall, res driver.Result) {
	evidence := call.String() + " " + res.Evidence()

	type match struct {
		index int
		hits  int
	}
	var matches []match
	for i, g := range t.goals {
		if g.Status == SubGoalCompleted {
			continue
		}
		hits := keywordHits(keywords(g.Text), evidence)
		if hits > 0 {
			matches = append(matches, match{index: i, hits: hits})
		}
	}
	if len(matches) == 0 {
		return
	}

	// Best two matches receive the update.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].hits > matches[i].hits {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if len(matches) > 2 {
		matches = matches[:2]
	}

	for _, m := range matches {
		g := &t.goals[m.index]
		g.Attempts++
		g.LastTool = string(call.Tool)
		g.LastUpdatedStep = step

		snippet := truncateText(res.Evidence(), 300)
		g.Evidence = append([]string{snippet}, g.Evidence...)
		if len(g.Evidence) > maxEvidencePerSubGoal {
			g.Evidence = g.Evidence[:maxEvidencePerSubGoal]
		}

		if g.Status == SubGoalPending {
			g.Status = SubGoalInProgress
		}

		if isHighSignal(res) && coverageMet(g.Text, evidence, t.minHits) {
			g.Status = SubGoalCompleted
			g.Confidence = 0.9
		} else if res.Success {
			g.Confidence = clamp(g.Confidence+0.1, 0, 0.8)
		} else {
			g.Confidence = clamp(g.Confidence-0.1, 0, 1)
			if res.Blocked() && g.Attempts >= 3 {
				g.Status = SubGoalBlocked
			}
		}
	}
}

// Recheck re-verifies completed sub-goals against a fresh evidence
// corpus. This is the only path by which a completed sub-goal may
// regress to in_progress.
func (t *SubGoalTracker) Recheck(corpus string) {
	for i := range t.goals {
		g := &t.goals[i]
		if g.Status != SubGoalCompleted {
			continue
		}
		if !coverageMet(g.Text, corpus+" "+strings.Join(g.Evidence, " "), t.minHits) {
			g.Status = SubGoalInProgress
			g.Confidence = clamp(g.Confidence-0.2, 0, 1)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
