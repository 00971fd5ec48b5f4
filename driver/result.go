package driver

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Failure codes returned by drivers. The orchestration loop treats the
// blocked subset specially for loop-guard purposes.
const (
	CodeSiteBlocked          = "SITE_BLOCKED"
	CodeHTTPRequestBlocked   = "HTTP_REQUEST_BLOCKED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeInvalidTarget        = "INVALID_TARGET"
	CodeElementNotFound      = "ELEMENT_NOT_FOUND"
	CodeInvalidAction        = "INVALID_ACTION"
	CodeDuplicateCall        = "DUPLICATE_CALL"
	CodeActionLoopGuard      = "ACTION_LOOP_GUARD"
	CodeRateLimited          = "RATE_LIMITED"
	CodeTimeout              = "TIMEOUT"
)

var blockedCodes = map[string]bool{
	CodeSiteBlocked:          true,
	CodeHTTPRequestBlocked:   true,
	CodeConfirmationRequired: true,
	CodeInvalidTarget:        true,
	CodeElementNotFound:      true,
	CodeInvalidAction:        true,
	CodeDuplicateCall:        true,
	CodeActionLoopGuard:      true,
}

// IsBlockedCode reports whether the code counts as "blocked" for
// loop-guard purposes.
func IsBlockedCode(code string) bool {
	return blockedCodes[code]
}

// Hint names a suggested next call when a driver rejects an action.
type Hint struct {
	NextTool Tool           `json:"next_tool"`
	Args     map[string]any `json:"args,omitempty"`
	Note     string         `json:"note,omitempty"`
}

// Result is the outcome of one driver call. Success results carry
// tool-specific payload fields; failures carry a code, a reason, and an
// optional fallback hint.
type Result struct {
	Success bool `json:"success"`

	// Success payload. Which fields are set depends on the tool.
	URL     string   `json:"url,omitempty"`     // navigate, go_back, switch_tab
	Title   string   `json:"title,omitempty"`   // navigate, read_page
	Text    string   `json:"text,omitempty"`    // read_page, read_text, find_element, screenshot caption
	Links   []string `json:"links,omitempty"`   // extract
	Matches int      `json:"matches,omitempty"` // extract, find_element
	Moved   bool     `json:"moved,omitempty"`   // scroll: viewport visibly moved

	// Failure payload.
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Hint      *Hint  `json:"hint,omitempty"`
}

// Ok creates a bare success result.
func Ok() Result {
	return Result{Success: true}
}

// TextOk creates a success result carrying page text.
func TextOk(text string) Result {
	return Result{Success: true, Text: text}
}

// NavOk creates a success result for a navigation.
func NavOk(url, title string) Result {
	return Result{Success: true, URL: url, Title: title}
}

// ExtractOk creates a success result for a structured extraction.
func ExtractOk(links []string) Result {
	return Result{Success: true, Links: links, Matches: len(links)}
}

// Fail creates a failure result.
func Fail(code, reason string) Result {
	return Result{Code: code, Reason: reason}
}

// Failf creates a failure result with a formatted reason.
func Failf(code, format string, args ...interface{}) Result {
	return Result{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// WithHint attaches a fallback hint to a failure result.
func (r Result) WithHint(hint Hint) Result {
	r.Hint = &hint
	return r
}

// WithRetryable marks a failure as transiently retryable.
func (r Result) WithRetryable() Result {
	r.Retryable = true
	return r
}

// Blocked reports whether this is a failure with a blocked code.
func (r Result) Blocked() bool {
	return !r.Success && IsBlockedCode(r.Code)
}

// Evidence renders the key result fields as text for sub-goal matching
// and coverage checks. Long text is truncated; the caller decides what
// counts as a high-signal observation.
func (r Result) Evidence() string {
	if !r.Success {
		return fmt.Sprintf("error %s: %s", r.Code, r.Reason)
	}

	var parts []string
	if r.URL != "" {
		parts = append(parts, r.URL)
	}
	if r.Title != "" {
		parts = append(parts, r.Title)
	}
	if r.Text != "" {
		text := r.Text
		if len(text) > 2000 {
			cut := 2000
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		parts = append(parts, text)
	}
	if len(r.Links) > 0 {
		parts = append(parts, strings.Join(r.Links, " "))
	}
	if r.Matches > 0 {
		parts = append(parts, fmt.Sprintf("%d matches", r.Matches))
	}
	return strings.Join(parts, " | ")
}
