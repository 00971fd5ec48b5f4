package agent

import (
	"testing"

	"github.com/richinex/theseus/driver"
)

func baseEscalation() escalationInput {
	return escalationInput{
		confidence:       0.45,
		factCount:        2,
		noProgressStreak: 3,
		stepsRemaining:   20,
		maxSteps:         40,
		actions:          []PlannedAction{{Tool: driver.ToolReadPage}, {Tool: driver.ToolScroll}},
		maxEscalations:   DefaultMaxEscalations,
	}
}

func TestEscalatesInMediumBandUnderPressure(t *testing.T) {
	blockers, ok := shouldEscalate(baseEscalation())
	if !ok {
		t.Fatal("expected escalation")
	}
	if len(blockers) == 0 {
		t.Fatal("escalation must carry blockers")
	}

	kinds := make(map[string]bool)
	for _, b := range blockers {
		if b.Detail == "" {
			t.Errorf("blocker %s has no detail", b.Kind)
		}
		kinds[b.Kind] = true
	}
	if !kinds["confidence_gap"] || !kinds["stagnation"] {
		t.Errorf("expected confidence_gap and stagnation blockers, got %v", kinds)
	}
}

func TestNoEscalationWithoutFacts(t *testing.T) {
	in := baseEscalation()
	in.factCount = 0
	if _, ok := shouldEscalate(in); ok {
		t.Error("no evidence yet: keep working instead of asking for help")
	}
}

func TestNoEscalationAtHighConfidence(t *testing.T) {
	in := baseEscalation()
	in.confidence = 0.85
	if _, ok := shouldEscalate(in); ok {
		t.Error("high confidence never escalates")
	}
}

func TestNoEscalationWithoutPressure(t *testing.T) {
	in := baseEscalation()
	in.noProgressStreak = 0
	in.rejectionStreak = 0
	in.loopSignals = 0
	if _, ok := shouldEscalate(in); ok {
		t.Error("no stagnation, rejections, or budget pressure: keep working")
	}
}

func TestNoEscalationWithActivePlan(t *testing.T) {
	in := baseEscalation()
	in.actions = []PlannedAction{
		{Tool: driver.ToolNavigate, Args: map[string]any{"url": "https://example.com"}},
		{Tool: driver.ToolExtract, Args: map[string]any{"what": "prices"}},
	}
	if _, ok := shouldEscalate(in); ok {
		t.Error("a plan full of signalful moves does not need guidance")
	}
}

func TestLooseBandNeedsStallSignal(t *testing.T) {
	in := baseEscalation()
	in.confidence = 0.6 // outside strict band, inside loose band

	if _, ok := shouldEscalate(in); !ok {
		t.Error("loose band plus stagnation should escalate")
	}

	in.noProgressStreak = 0
	in.loopSignals = 0
	in.rejectionStreak = 2 // pressure without a stall signal
	if _, ok := shouldEscalate(in); ok {
		t.Error("loose band without a stall signal must not escalate")
	}
}

func TestEscalationBudgetExhausted(t *testing.T) {
	in := baseEscalation()
	in.escalationsUsed = in.maxEscalations
	if _, ok := shouldEscalate(in); ok {
		t.Error("escalations are bounded per run")
	}
}
