package agent

import (
	"fmt"

	"github.com/richinex/theseus/driver"
)

// escalationInput is the snapshot the guidance decision runs on.
type escalationInput struct {
	confidence       float64
	breakdown        ConfidenceBreakdown
	factCount        int
	noProgressStreak int
	rejectionStreak  int
	loopSignals      int
	stepsRemaining   int
	maxSteps         int
	actions          []PlannedAction
	escalationsUsed  int
	maxEscalations   int
}

// shouldEscalate decides whether to pause for human guidance instead of
// grinding on. All of the following must hold: confidence sits in the
// medium band (strict, or loose plus a stagnation/loop signal), some
// evidence exists, there is pressure, and the planned actions are
// mostly low-signal. Returns the blockers that justify the pause.
func shouldEscalate(in escalationInput) ([]Blocker, bool) {
	if in.escalationsUsed >= in.maxEscalations {
		return nil, false
	}
	if in.factCount == 0 {
		return nil, false
	}

	stalled := in.noProgressStreak > 0 || in.loopSignals > 0

	strictBand := in.confidence >= escalationStrictLow && in.confidence <= escalationStrictHigh
	looseBand := in.confidence >= escalationLooseLow && in.confidence <= escalationLooseHigh && stalled
	if !strictBand && !looseBand {
		return nil, false
	}

	lowBudget := in.maxSteps > 0 && in.stepsRemaining <= in.maxSteps/5
	pressure := in.noProgressStreak >= 2 || in.rejectionStreak >= 1 || lowBudget
	if !pressure {
		return nil, false
	}

	if !mostlyLowSignal(in.actions) {
		return nil, false
	}

	var blockers []Blocker
	blockers = append(blockers, Blocker{
		Kind:   "confidence_gap",
		Detail: fmt.Sprintf("confidence %.2f is too low to finish and too high to abandon", in.confidence),
	})
	if in.noProgressStreak > 0 {
		blockers = append(blockers, Blocker{
			Kind:   "stagnation",
			Detail: fmt.Sprintf("%d consecutive steps without sub-goal progress", in.noProgressStreak),
		})
	}
	if in.loopSignals > 0 {
		blockers = append(blockers, Blocker{
			Kind:   "loop_signals",
			Detail: fmt.Sprintf("%d repeated or cyclic actions were rewritten", in.loopSignals),
		})
	}
	if in.rejectionStreak > 0 {
		blockers = append(blockers, Blocker{
			Kind:   "completion_rejected",
			Detail: fmt.Sprintf("%d completion attempts were rejected by the gate", in.rejectionStreak),
		})
	}
	blockers = append(blockers, Blocker{
		Kind:   "low_signal_plan",
		Detail: "the next planned actions are passive re-reads unlikely to produce new evidence",
	})
	if lowBudget {
		blockers = append(blockers, Blocker{
			Kind:   "budget",
			Detail: fmt.Sprintf("only %d of %d steps remain", in.stepsRemaining, in.maxSteps),
		})
	}
	return blockers, true
}

// mostlyLowSignal reports whether more than half the planned actions
// are passive observations rather than moves that can produce new
// evidence.
func mostlyLowSignal(actions []PlannedAction) bool {
	if len(actions) == 0 {
		return true
	}
	low := 0
	for _, a := range actions {
		switch a.Tool {
		case driver.ToolNavigate, driver.ToolExtract, driver.ToolClick, driver.ToolTypeText:
			// Signalful: changes the page or pulls structured data.
		default:
			low++
		}
	}
	return low*2 > len(actions)
}
