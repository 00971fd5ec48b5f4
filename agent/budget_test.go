package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/richinex/theseus/llm"
)

func TestBudgetZeroCeilingsDisable(t *testing.T) {
	m := newBudgetMonitor(Budget{}, BudgetUsage{TokensUsed: 1_000_000}, 0.002)
	if stop := m.check(10, 40); stop.exceeded {
		t.Errorf("zero ceilings must never trip: %+v", stop)
	}
	if stop := m.preflight(strings.Repeat("x", 100_000)); stop.exceeded {
		t.Errorf("preflight with no token ceiling must pass: %+v", stop)
	}
}

func TestBudgetTokenCeiling(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxTotalTokens: 400}, BudgetUsage{}, 0.002)
	m.record(&llm.TokenUsage{TotalTokens: 500})

	stop := m.check(2, 40)
	if !stop.exceeded || stop.dimension != "tokens" {
		t.Errorf("expected token stop, got %+v", stop)
	}
}

func TestBudgetPreflightRejectsBeforeCall(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxTotalTokens: 1000}, BudgetUsage{TokensUsed: 995}, 0.002)

	stop := m.preflight("a request of a good many words that certainly estimates above five tokens")
	if !stop.exceeded {
		t.Fatal("a nonzero estimate on top of 995/1000 must be rejected")
	}
	if stop.dimension != "tokens" {
		t.Errorf("expected tokens dimension, got %s", stop.dimension)
	}
}

func TestBudgetPreflightRejectsExactCeiling(t *testing.T) {
	// A request landing exactly on the ceiling is refused too. The
	// chars-per-token fallback makes the estimate deterministic.
	m := newBudgetMonitor(Budget{MaxTotalTokens: 1000}, BudgetUsage{TokensUsed: 995}, 0.002)
	m.encoder = nil

	if stop := m.preflight(strings.Repeat("x", 5*charsPerToken)); !stop.exceeded {
		t.Error("995 used + 5 estimated must be rejected against a 1000 ceiling")
	}
}

func TestBudgetWallClockCeiling(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxWallClock: time.Minute}, BudgetUsage{Elapsed: 2 * time.Minute}, 0.002)

	stop := m.check(1, 40)
	if !stop.exceeded || stop.dimension != "wall_clock" {
		t.Errorf("expected wall-clock stop, got %+v", stop)
	}
}

func TestBudgetCostCeiling(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxEstimatedCostUSD: 0.01}, BudgetUsage{}, 0.01)
	m.record(&llm.TokenUsage{TotalTokens: 2000}) // 2k tokens at $0.01/1k

	stop := m.check(1, 40)
	if !stop.exceeded || stop.dimension != "cost" {
		t.Errorf("expected cost stop, got %+v", stop)
	}
}

func TestBudgetBurnRateProjection(t *testing.T) {
	// 60% of the budget gone by step 5 of 40 projects far past the
	// ceiling: stop early instead of burning the rest.
	m := newBudgetMonitor(Budget{MaxTotalTokens: 10_000}, BudgetUsage{TokensUsed: 6000}, 0.002)

	stop := m.check(5, 40)
	if !stop.exceeded || stop.dimension != "burn_rate" {
		t.Errorf("expected burn-rate stop, got %+v", stop)
	}

	// Same consumption but before the minimum step count: no
	// projection yet.
	early := newBudgetMonitor(Budget{MaxTotalTokens: 10_000}, BudgetUsage{TokensUsed: 6000}, 0.002)
	if stop := early.check(burnRateMinSteps-1, 40); stop.exceeded {
		t.Errorf("projection must wait for %d steps, got %+v", burnRateMinSteps, stop)
	}
}

func TestBudgetOverrideDisablesEnforcement(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxTotalTokens: 100}, BudgetUsage{TokensUsed: 500}, 0.002)
	if stop := m.check(1, 40); !stop.exceeded {
		t.Fatal("precondition: over budget")
	}

	m.disable()
	if stop := m.check(1, 40); stop.exceeded {
		t.Error("enforcement must stay off after the operator override")
	}
	if stop := m.preflight(strings.Repeat("words ", 1000)); stop.exceeded {
		t.Error("preflight must stay off after the operator override")
	}
}

func TestBudgetTight(t *testing.T) {
	m := newBudgetMonitor(Budget{MaxTotalTokens: 1000}, BudgetUsage{TokensUsed: 900}, 0.002)
	if !m.tight(5, 40) {
		t.Error("90% token consumption should read as tight")
	}

	fresh := newBudgetMonitor(Budget{MaxTotalTokens: 1000}, BudgetUsage{}, 0.002)
	if fresh.tight(5, 40) {
		t.Error("a fresh run is not tight")
	}
	if !fresh.tight(39, 40) {
		t.Error("the last steps of the run are tight regardless of tokens")
	}
}
