package agent

import (
	"strings"
	"testing"
)

func actionEntry(step int, tool string, success bool, result string) HistoryEntry {
	return HistoryEntry{Kind: HistoryAction, Step: step, Tool: tool, Success: success, Result: result}
}

func TestGateRejectsWithNoActions(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "finished", Answer: "the answer is 42"}
	tracker := NewSubGoalTracker("find the answer")

	verdict := gate.evaluate("find the answer", state, nil, tracker, false)
	if verdict.accepted {
		t.Fatal("expected rejection with empty history")
	}
	if verdict.code != CodePrematureDone {
		t.Errorf("expected %s, got %s", CodePrematureDone, verdict.code)
	}
}

func TestGateRejectsWithNoSuccesses(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "finished", Answer: "the answer is 42"}
	tracker := NewSubGoalTracker("find the answer")
	history := []HistoryEntry{
		actionEntry(1, "navigate", false, "error SITE_BLOCKED: denied"),
		actionEntry(2, "click", false, "error ELEMENT_NOT_FOUND: gone"),
	}

	verdict := gate.evaluate("find the answer", state, history, tracker, false)
	if verdict.accepted || verdict.code != CodePrematureDone {
		t.Errorf("expected PREMATURE_DONE, got %+v", verdict)
	}
}

func TestGateRejectsMajorityFailuresWithoutRead(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "finished", Answer: "the answer is 42"}
	tracker := NewSubGoalTracker("find the answer")

	var history []HistoryEntry
	// One early success, then a failing window with no successful read.
	history = append(history, actionEntry(1, "navigate", true, "https://example.com"))
	for i := 2; i <= 9; i++ {
		if i%2 == 0 {
			history = append(history, actionEntry(i, "click", false, "error ELEMENT_NOT_FOUND"))
		} else {
			history = append(history, actionEntry(i, "navigate", true, "https://example.com/next"))
		}
	}

	verdict := gate.evaluate("find the answer", state, history, tracker, false)
	if verdict.accepted || verdict.code != CodePrematureDone {
		t.Errorf("expected PREMATURE_DONE for failing window, got %+v", verdict)
	}
}

func TestGateRejectsEmptyAnswer(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{}
	tracker := NewSubGoalTracker("find the answer")
	history := []HistoryEntry{actionEntry(1, "read_text", true, berlinPageText)}

	verdict := gate.evaluate("find the answer", state, history, tracker, false)
	if verdict.accepted || verdict.code != CodeDoneQualityFailed {
		t.Errorf("expected DONE_QUALITY_FAILED, got %+v", verdict)
	}
}

func TestGateRejectsShortAnswerWithoutSignal(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "done", Answer: "it is fine"}
	tracker := NewSubGoalTracker("what is the weather in Berlin")
	history := []HistoryEntry{actionEntry(1, "read_text", true, "short")}

	verdict := gate.evaluate("what is the weather in Berlin", state, history, tracker, false)
	if verdict.accepted || verdict.code != CodeDoneQualityFailed {
		t.Errorf("expected DONE_QUALITY_FAILED, got %+v", verdict)
	}
}

func TestGateAcceptsShortAnswerWithFactualSignal(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "checked the forecast", Answer: "Berlin weather: 21 degrees"}
	tracker := NewSubGoalTracker("what is the weather in Berlin")
	history := []HistoryEntry{actionEntry(1, "read_text", true, berlinPageText)}

	verdict := gate.evaluate("what is the weather in Berlin", state, history, tracker, false)
	if !verdict.accepted {
		t.Errorf("expected acceptance, got %+v", verdict)
	}
}

func TestGateRejectsUncoveredSubTasks(t *testing.T) {
	goal := "find the weather in Berlin and list the top news headline"
	gate := &completionGate{}
	state := &ReflectionState{
		Summary: "found the Berlin forecast",
		Answer:  "Berlin weather is 21 degrees and sunny today",
	}
	tracker := NewSubGoalTracker(goal)
	history := []HistoryEntry{actionEntry(1, "read_text", true, berlinPageText)}

	verdict := gate.evaluate(goal, state, history, tracker, false)
	if verdict.accepted {
		t.Fatal("expected coverage rejection: the news sub-task has no evidence")
	}
	if verdict.code != CodeDoneCoverageFailed {
		t.Errorf("expected %s, got %s", CodeDoneCoverageFailed, verdict.code)
	}
	if !strings.Contains(verdict.reason, "news") {
		t.Errorf("rejection should name the uncovered sub-task: %q", verdict.reason)
	}
}

func TestGateBudgetTightAllowsUnverified(t *testing.T) {
	goal := "find the weather in Berlin and list the top news headline"
	gate := &completionGate{}
	state := &ReflectionState{
		Summary: "found the Berlin forecast",
		Answer:  "Berlin weather is 21 degrees and sunny today",
	}
	tracker := NewSubGoalTracker(goal)
	history := []HistoryEntry{actionEntry(1, "read_text", true, berlinPageText)}

	verdict := gate.evaluate(goal, state, history, tracker, true)
	if !verdict.accepted {
		t.Fatalf("expected acceptance under budget pressure, got %+v", verdict)
	}
	if len(verdict.unverified) == 0 {
		t.Error("the uncovered sub-task must be listed as unverified")
	}
}

func TestGateRejectionStreak(t *testing.T) {
	gate := &completionGate{}
	state := &ReflectionState{Summary: "done", Answer: ""}
	tracker := NewSubGoalTracker("find the answer")

	for i := 0; i < rejectionForceEvidence; i++ {
		gate.evaluate("find the answer", state, nil, tracker, false)
	}
	if !gate.mustForceEvidence() {
		t.Errorf("expected forced evidence after %d rejections", rejectionForceEvidence)
	}
	if gate.stuck() {
		t.Error("should not be stuck yet")
	}

	for i := rejectionForceEvidence; i < rejectionStuck; i++ {
		gate.evaluate("find the answer", state, nil, tracker, false)
	}
	if !gate.stuck() {
		t.Errorf("expected stuck after %d rejections", rejectionStuck)
	}
}

func TestGateStreakResetsOnAcceptance(t *testing.T) {
	gate := &completionGate{}
	tracker := NewSubGoalTracker("what is the weather in Berlin")
	history := []HistoryEntry{actionEntry(1, "read_text", true, berlinPageText)}

	gate.evaluate("what is the weather in Berlin", &ReflectionState{}, history, tracker, false)
	if gate.rejectionStreak() != 1 {
		t.Fatalf("expected streak 1, got %d", gate.rejectionStreak())
	}

	good := &ReflectionState{Summary: "checked the forecast", Answer: "Berlin weather: 21 degrees"}
	verdict := gate.evaluate("what is the weather in Berlin", good, history, tracker, false)
	if !verdict.accepted {
		t.Fatalf("expected acceptance, got %+v", verdict)
	}
	if gate.rejectionStreak() != 0 {
		t.Errorf("streak should reset on acceptance, got %d", gate.rejectionStreak())
	}
}
