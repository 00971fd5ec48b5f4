package agent

import (
	"fmt"
	"strings"

	"github.com/richinex/theseus/driver"
)

// sanitizeOutcome is the loop detector's decision on one planned call.
type sanitizeOutcome struct {
	call      driver.ToolCall
	rewritten bool
	note      string
}

// loopDetector runs before every dispatch. Five layers, in order:
// exact repeat, read-only vacillation, A-B-A-B-A cycles, semantic
// repeats, and the search-results-page guard. A firing layer
// substitutes a concrete fallback call rather than erroring, so
// forward progress stays possible.
type loopDetector struct {
	lastFingerprint string
	lastMoved       bool
	repeatAllowance map[string]bool

	// fingerprints sanitized in the current plan but not yet executed;
	// duplicates within one multi-action plan are caught against this
	// set. Cleared when results start coming back.
	pendingPlan map[string]bool

	fingerprints []string

	consecutiveReadOnly int

	// low-signal and failing results per (tool, salient-arg, page).
	weakResults map[string]int

	// consecutive blocked failures per fingerprint, for the fatal
	// no-viable-fallback escalation.
	blockedStreak  map[string]int
	lastBlockedKey string
	lastHadHint    bool

	currentURL      string
	serpReads       int
	discoveredLinks []string

	signals int
}

func newLoopDetector() *loopDetector {
	return &loopDetector{
		repeatAllowance: make(map[string]bool),
		weakResults:     make(map[string]int),
		blockedStreak:   make(map[string]int),
	}
}

// loopSignals is the count of detector fires since the last page
// mutation; it feeds the confidence loop penalty.
func (d *loopDetector) loopSignals() int { return d.signals }

// sanitize validates or rewrites one planned call before dispatch. The
// call that will actually execute is remembered so later actions in the
// same plan are checked against it too.
func (d *loopDetector) sanitize(call driver.ToolCall) sanitizeOutcome {
	if d.pendingPlan == nil {
		d.pendingPlan = make(map[string]bool)
	}
	outcome := d.sanitizeOne(call)
	d.pendingPlan[outcome.call.Fingerprint()] = true
	return outcome
}

func (d *loopDetector) sanitizeOne(call driver.ToolCall) sanitizeOutcome {
	fp := call.Fingerprint()

	// (a) exact repeat of the immediately previous call, or of a call
	// already queued in this plan. Repeat tolerant tools get one
	// allowance while their effect is visibly changing.
	if fp == d.lastFingerprint || d.pendingPlan[fp] {
		if driver.IsRepeatTolerant(call.Tool) && d.lastMoved && !d.repeatAllowance[fp] {
			d.repeatAllowance[fp] = true
			return sanitizeOutcome{call: call}
		}
		d.signals++
		fallback := d.fallbackFor(call)
		return sanitizeOutcome{
			call:      fallback,
			rewritten: true,
			note:      fmt.Sprintf("duplicate %s replaced with %s", call, fallback),
		}
	}

	// (b) read-only vacillation: passive tools called over and over
	// with nothing changing the page in between.
	if driver.IsReadOnly(call.Tool) && d.consecutiveReadOnly >= vacillationThreshold {
		d.signals++
		fallback := d.outboundFallback()
		return sanitizeOutcome{
			call:      fallback,
			rewritten: true,
			note:      fmt.Sprintf("%d consecutive reads; forcing %s", d.consecutiveReadOnly, fallback.Tool),
		}
	}

	// (c) A-B-A-B-A cycle over the recent fingerprint window.
	if d.detectCycle(fp) {
		d.signals++
		fallback := d.outboundFallback()
		return sanitizeOutcome{
			call:      fallback,
			rewritten: true,
			note:      fmt.Sprintf("cyclic pattern on %s; forcing %s", call.Tool, fallback.Tool),
		}
	}

	// (d) semantic repeat: same tool and intent on the same logical
	// page, already weak or failing at least twice.
	if d.weakResults[d.semanticKey(call)] >= semanticRepeatThreshold {
		d.signals++
		fallback := d.fallbackFor(call)
		return sanitizeOutcome{
			call:      fallback,
			rewritten: true,
			note:      fmt.Sprintf("%s keeps yielding nothing here; trying %s", call.Tool, fallback.Tool),
		}
	}

	// (e) SERP guard: re-reading a search-results page instead of
	// following any result.
	if driver.IsReadOnly(call.Tool) && isSearchResultsURL(d.currentURL) && d.serpReads >= serpReadThreshold {
		d.signals++
		fallback := d.serpFallback()
		return sanitizeOutcome{
			call:      fallback,
			rewritten: true,
			note:      "stuck on search results; " + fallback.String(),
		}
	}

	return sanitizeOutcome{call: call}
}

// record folds one executed call and its result back into the
// detector's counters.
func (d *loopDetector) record(call driver.ToolCall, res driver.Result) {
	fp := call.Fingerprint()

	d.pendingPlan = nil

	if fp != d.lastFingerprint {
		delete(d.repeatAllowance, d.lastFingerprint)
	}
	d.lastFingerprint = fp
	d.lastMoved = res.Moved

	d.fingerprints = append(d.fingerprints, fp)
	if len(d.fingerprints) > cycleWindow {
		d.fingerprints = d.fingerprints[len(d.fingerprints)-cycleWindow:]
	}

	if driver.IsReadOnly(call.Tool) {
		d.consecutiveReadOnly++
		if isSearchResultsURL(d.currentURL) {
			d.serpReads++
		}
	} else {
		d.consecutiveReadOnly = 0
		d.serpReads = 0
		if res.Success {
			d.signals = 0
		}
	}

	if res.Success && res.URL != "" {
		if d.currentURL != res.URL {
			d.serpReads = 0
		}
		d.currentURL = res.URL
	}
	if len(res.Links) > 0 {
		d.discoveredLinks = res.Links
	}

	key := d.semanticKey(call)
	if !res.Success || !isHighSignal(res) && driver.IsReadOnly(call.Tool) {
		d.weakResults[key]++
	} else {
		delete(d.weakResults, key)
	}

	if res.Blocked() {
		d.blockedStreak[fp]++
		d.lastBlockedKey = fp
		d.lastHadHint = res.Hint != nil
	} else {
		delete(d.blockedStreak, fp)
		if d.lastBlockedKey == fp {
			d.lastBlockedKey = ""
		}
	}
}

// fatalBlocked reports whether the same action has now been policy
// blocked twice in a row with no fallback hint to follow.
func (d *loopDetector) fatalBlocked() (string, bool) {
	if d.lastBlockedKey == "" || d.lastHadHint {
		return "", false
	}
	if d.blockedStreak[d.lastBlockedKey] >= 2 {
		return d.lastBlockedKey, true
	}
	return "", false
}

func (d *loopDetector) semanticKey(call driver.ToolCall) string {
	return call.Fingerprint() + "@" + d.currentURL
}

// detectCycle looks for A-B-A-B-A: the proposed fingerprint alternating
// with one other over the full window.
func (d *loopDetector) detectCycle(next string) bool {
	if len(d.fingerprints) < cycleWindow-1 {
		return false
	}
	window := append(append([]string{}, d.fingerprints[len(d.fingerprints)-(cycleWindow-1):]...), next)
	a, b := window[0], window[1]
	if a == b {
		return false
	}
	for i, fp := range window {
		want := a
		if i%2 == 1 {
			want = b
		}
		if fp != want {
			return false
		}
	}
	return true
}

// fallbackFor picks a concrete alternative to a flagged call: blocked
// interactions fall back to re-observing, blocked observations fall
// back to structured extraction.
func (d *loopDetector) fallbackFor(call driver.ToolCall) driver.ToolCall {
	if driver.IsReadOnly(call.Tool) {
		if call.Tool == driver.ToolExtract {
			return d.outboundFallback()
		}
		return driver.ToolCall{Tool: driver.ToolExtract, Args: map[string]any{"what": "main content and links"}}
	}
	return driver.ToolCall{Tool: driver.ToolReadPage}
}

// outboundFallback moves the run somewhere new: open a discovered link
// when one exists, otherwise extract links so the next step has one.
func (d *loopDetector) outboundFallback() driver.ToolCall {
	if len(d.discoveredLinks) > 0 {
		return driver.ToolCall{Tool: driver.ToolNavigate, Args: map[string]any{"url": d.discoveredLinks[0]}}
	}
	return driver.ToolCall{Tool: driver.ToolExtract, Args: map[string]any{"what": "result links"}}
}

// serpFallback implements the SERP guard's forced choice: follow a
// result link, or extract the result links first.
func (d *loopDetector) serpFallback() driver.ToolCall {
	return d.outboundFallback()
}

// isSearchResultsURL recognizes search-results pages by their URL shape.
func isSearchResultsURL(url string) bool {
	if url == "" {
		return false
	}
	lower := strings.ToLower(url)
	for _, marker := range []string{"/search?", "?q=", "&q=", "?query=", "/results?", "search_query="} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
