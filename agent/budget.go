package agent

import (
	"fmt"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/richinex/theseus/llm"
)

// budgetStop classifies why the monitor wants the run stopped.
type budgetStop struct {
	exceeded  bool
	dimension string // "wall_clock", "tokens", "cost", "burn_rate"
	reason    string
}

// budgetMonitor enforces the wall-clock, token, and cost ceilings. A
// zero ceiling disables its dimension. All checks happen on the control
// goroutine.
type budgetMonitor struct {
	budget  Budget
	started time.Time

	// elapsedOffset carries consumption restored from a checkpoint.
	elapsedOffset time.Duration
	tokensUsed    uint64
	costUSD       float64

	costPer1KTokens float64

	// disabled is the one-time operator override.
	disabled bool

	encoder *tiktoken.Tiktoken
}

func newBudgetMonitor(budget Budget, restored BudgetUsage, costPer1KTokens float64) *budgetMonitor {
	// Best effort; estimation falls back to a chars-per-token
	// heuristic when the encoding is unavailable.
	encoder, _ := tiktoken.GetEncoding("cl100k_base")
	return &budgetMonitor{
		budget:          budget,
		started:         time.Now(),
		elapsedOffset:   restored.Elapsed,
		tokensUsed:      restored.TokensUsed,
		costUSD:         restored.CostUSD,
		costPer1KTokens: costPer1KTokens,
		encoder:         encoder,
	}
}

func (m *budgetMonitor) elapsed() time.Duration {
	return m.elapsedOffset + time.Since(m.started)
}

func (m *budgetMonitor) usage() BudgetUsage {
	return BudgetUsage{
		Elapsed:    m.elapsed(),
		TokensUsed: m.tokensUsed,
		CostUSD:    m.costUSD,
	}
}

// disable turns off all further enforcement for this run. Operator
// override; cannot be undone.
func (m *budgetMonitor) disable() { m.disabled = true }

// record folds one backend call's usage into the running totals.
func (m *budgetMonitor) record(usage *llm.TokenUsage) {
	if usage == nil {
		return
	}
	m.tokensUsed += uint64(usage.TotalTokens)
	m.costUSD += float64(usage.TotalTokens) / 1000 * m.costPer1KTokens
}

// estimateTokens predicts the token count of text with the real
// tokenizer when available, otherwise chars-per-token.
func (m *budgetMonitor) estimateTokens(text string) uint64 {
	if m.encoder != nil {
		return uint64(len(m.encoder.Encode(text, nil, nil)))
	}
	return uint64(len(text) / charsPerToken)
}

// check runs the pre-step ceiling checks plus the early burn-rate
// projection.
func (m *budgetMonitor) check(step, maxSteps int) budgetStop {
	if m.disabled {
		return budgetStop{}
	}

	if m.budget.MaxWallClock > 0 && m.elapsed() >= m.budget.MaxWallClock {
		return budgetStop{
			exceeded:  true,
			dimension: "wall_clock",
			reason:    fmt.Sprintf("elapsed %s exceeds ceiling %s", m.elapsed().Round(time.Second), m.budget.MaxWallClock),
		}
	}
	if m.budget.MaxTotalTokens > 0 && m.tokensUsed >= m.budget.MaxTotalTokens {
		return budgetStop{
			exceeded:  true,
			dimension: "tokens",
			reason:    fmt.Sprintf("%d tokens used, ceiling %d", m.tokensUsed, m.budget.MaxTotalTokens),
		}
	}
	if m.budget.MaxEstimatedCostUSD > 0 && m.costUSD >= m.budget.MaxEstimatedCostUSD {
		return budgetStop{
			exceeded:  true,
			dimension: "cost",
			reason:    fmt.Sprintf("estimated $%.4f spent, ceiling $%.4f", m.costUSD, m.budget.MaxEstimatedCostUSD),
		}
	}

	// Burn-rate projection: stop early when the token ceiling will
	// clearly be hit before the step budget runs out.
	if m.budget.MaxTotalTokens > 0 && step >= burnRateMinSteps && maxSteps > 0 {
		consumed := float64(m.tokensUsed) / float64(m.budget.MaxTotalTokens)
		projected := float64(m.tokensUsed) / float64(step) * float64(maxSteps) / float64(m.budget.MaxTotalTokens)
		if consumed > burnRateConsumed && projected > burnRateProjected {
			return budgetStop{
				exceeded:  true,
				dimension: "burn_rate",
				reason: fmt.Sprintf("%.0f%% of token budget used by step %d; projected %.0f%% by step %d",
					consumed*100, step, projected*100, maxSteps),
			}
		}
	}

	return budgetStop{}
}

// preflight rejects a backend request whose estimated size would push
// token usage over the ceiling, so the over-budget call is never
// issued.
func (m *budgetMonitor) preflight(requestText string) budgetStop {
	if m.disabled || m.budget.MaxTotalTokens == 0 {
		return budgetStop{}
	}
	// >= so a request landing exactly on the ceiling is still refused.
	estimate := m.estimateTokens(requestText)
	if m.tokensUsed+estimate >= m.budget.MaxTotalTokens {
		return budgetStop{
			exceeded:  true,
			dimension: "tokens",
			reason: fmt.Sprintf("request estimated at %d tokens would exceed ceiling %d (%d used)",
				estimate, m.budget.MaxTotalTokens, m.tokensUsed),
		}
	}
	return budgetStop{}
}

// tight reports whether the run is near a ceiling, which relaxes the
// coverage guard into an unverified-parts addendum.
func (m *budgetMonitor) tight(step, maxSteps int) bool {
	if maxSteps > 0 && maxSteps-step <= 2 {
		return true
	}
	if m.disabled {
		return false
	}
	if m.budget.MaxTotalTokens > 0 && float64(m.tokensUsed) > 0.85*float64(m.budget.MaxTotalTokens) {
		return true
	}
	if m.budget.MaxWallClock > 0 && float64(m.elapsed()) > 0.85*float64(m.budget.MaxWallClock) {
		return true
	}
	return false
}
