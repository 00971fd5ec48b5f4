package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/theseus/driver"
	ijson "github.com/richinex/theseus/internal/json"
	"github.com/richinex/theseus/llm"
)

// submitReflectionName is the single structured call the backend must
// answer with each iteration. Free-form tool calls outside it are
// ignored.
const submitReflectionName = "submit_reflection"

var errMalformedReflection = errors.New("malformed reflection: missing required fields")

func reflectionToolSchema() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        submitReflectionName,
		Description: "Submit your structured assessment of the current state and the next actions to take.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"facts": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Verified facts gathered so far",
				},
				"unknowns": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Open questions still blocking the goal",
				},
				"sufficiency": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the gathered evidence is sufficient to answer the goal",
				},
				"confidence": map[string]interface{}{
					"type":        "number",
					"description": "Confidence in the current answer, 0 to 1",
				},
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "One-paragraph summary of progress",
				},
				"answer": map[string]interface{}{
					"type":        "string",
					"description": "Best current answer to the goal, empty if none",
				},
				"actions": map[string]interface{}{
					"type":        "array",
					"description": "1-4 next tool calls, in order",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"tool": map[string]interface{}{"type": "string"},
							"args": map[string]interface{}{"type": "object"},
						},
						"required": []string{"tool"},
					},
				},
			},
			"required": []string{"facts", "unknowns", "sufficiency", "confidence", "summary", "actions"},
		},
	}
}

// reflector runs the one reasoning call per iteration.
type reflector struct {
	backend llm.Provider
	timeout time.Duration
}

// reflect asks the backend for a structured state. On soft timeout it
// synthesizes a conservative fallback instead of blocking the loop;
// malformed output is returned as a recoverable error.
func (r *reflector) reflect(ctx context.Context, messages []llm.ChatMessage) (*ReflectionState, *llm.TokenUsage, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	proposal, err := r.backend.Propose(callCtx, messages, []llm.ToolDefinition{reflectionToolSchema()})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fallbackState(), nil, nil
		}
		return nil, nil, fmt.Errorf("reflection call: %w", err)
	}

	state, err := parseReflection(proposal)
	if err != nil {
		return nil, proposal.Usage, err
	}
	return state, proposal.Usage, nil
}

// fallbackState is the conservative stand-in used when the backend is
// too slow: not sufficient, low confidence, one safe observation.
func fallbackState() *ReflectionState {
	return &ReflectionState{
		Sufficiency: false,
		Confidence:  0.2,
		Summary:     "reasoning timed out; taking a safe observation step",
		Actions: []PlannedAction{
			{Tool: driver.ToolReadPage},
		},
	}
}

func parseReflection(proposal llm.Proposal) (*ReflectionState, error) {
	var state ReflectionState

	if call, ok := proposal.Call(submitReflectionName); ok {
		if err := json.Unmarshal(call.Arguments, &state); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedReflection, err)
		}
	} else if proposal.Text != "" {
		// Some backends answer in prose with an embedded JSON object.
		parsed, err := ijson.ExtractJSONFromResponse[ReflectionState](proposal.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: no structured call and no parseable text", errMalformedReflection)
		}
		state = parsed
	} else {
		return nil, errMalformedReflection
	}

	return validateReflection(&state)
}

// validateReflection enforces the structural invariants: confidence in
// range, at most maxPlannedActions known tools, and either a
// sufficiency claim or at least one action.
func validateReflection(state *ReflectionState) (*ReflectionState, error) {
	state.Confidence = clamp(state.Confidence, 0, 1)

	var actions []PlannedAction
	for _, a := range state.Actions {
		if !driver.Known(a.Tool) {
			continue
		}
		actions = append(actions, a)
		if len(actions) == maxPlannedActions {
			break
		}
	}
	state.Actions = actions

	if !state.Sufficiency && len(state.Actions) == 0 {
		return nil, fmt.Errorf("%w: neither sufficient nor any valid action", errMalformedReflection)
	}
	return state, nil
}
