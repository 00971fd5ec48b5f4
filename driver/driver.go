package driver

import (
	"context"
	"fmt"
	"strings"
)

// ToolCall is one request to the page driver.
type ToolCall struct {
	// ID correlates the call with its cached result inside a dispatch
	// batch. Assigned by the dispatcher.
	ID   string         `json:"id,omitempty"`
	Tool Tool           `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// SalientArg returns the argument that identifies the call's logical
// target: the URL for navigation, the element id for interaction, the
// query for searches. Used for loop fingerprinting.
func (c ToolCall) SalientArg() string {
	keys := []string{"url", "target", "query", "what", "text", "direction"}
	for _, k := range keys {
		if v, ok := c.Args[k]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// Fingerprint returns a compact (tool, salient-arg) identity for cycle
// detection.
func (c ToolCall) Fingerprint() string {
	return string(c.Tool) + ":" + c.SalientArg()
}

// String renders the call for logs and history entries.
func (c ToolCall) String() string {
	if len(c.Args) == 0 {
		return string(c.Tool)
	}
	var args []string
	for _, k := range []string{"url", "target", "query", "what", "text", "direction", "amount"} {
		if v, ok := c.Args[k]; ok {
			args = append(args, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return fmt.Sprintf("%s(%s)", c.Tool, strings.Join(args, ", "))
}

// Driver executes page primitives against a live page. Implementations
// hide the browser mechanics entirely; the orchestration loop only sees
// typed results. Execute must honor ctx cancellation.
type Driver interface {
	Execute(ctx context.Context, call ToolCall) Result
}

// Func adapts a function to the Driver interface.
type Func func(ctx context.Context, call ToolCall) Result

// Execute implements Driver.
func (f Func) Execute(ctx context.Context, call ToolCall) Result {
	return f(ctx, call)
}

// InterventionChecker is optionally implemented by drivers that can
// detect page states requiring a human (CAPTCHA, login walls). The
// controller polls it before each step and pauses when intervention is
// needed.
type InterventionChecker interface {
	CheckIntervention(ctx context.Context) (reason string, needed bool)
}
