package agent

import "time"

// Heuristic constants tuned empirically. Kept as named, adjustable
// parameters rather than literals buried in the logic.
const (
	// DefaultMaxSteps bounds the number of loop iterations per run.
	DefaultMaxSteps = 40

	// DefaultReflectionTimeout is the soft ceiling on one reasoning
	// call; on expiry a conservative fallback state is synthesized.
	DefaultReflectionTimeout = 30 * time.Second

	// defaultMinKeywordHits is the coverage requirement per sub-task:
	// min(defaultMinKeywordHits, keyword count) hits in the evidence
	// corpus.
	defaultMinKeywordHits = 2

	// stagnationFloor and loopFloor bound how far the penalties can
	// push confidence down.
	stagnationFloor = 0.3
	loopFloor       = 0.3

	// rejectionForceEvidence is the completion-gate rejection streak
	// after which one concrete evidence-gathering action is forced
	// before another done is considered. rejectionStuck is the streak
	// at which the run fails as stuck.
	rejectionForceEvidence = 2
	rejectionStuck         = 5

	// cycleWindow is how many recent fingerprints the A-B-A-B-A
	// detector inspects.
	cycleWindow = 5

	// failureWindow is how many recent actions the premature-done
	// guard inspects for the failed-majority rule.
	failureWindow = 8

	// serpReadThreshold is the number of consecutive read-only actions
	// on a search-results page before the SERP guard forces an
	// outbound move.
	serpReadThreshold = 3

	// vacillationThreshold is the number of consecutive read-only
	// calls, with no intervening mutation, before the vacillation
	// layer fires.
	vacillationThreshold = 4

	// semanticRepeatThreshold is how many low-signal or failing
	// results on the same tool+intent+page trigger the semantic layer.
	semanticRepeatThreshold = 2

	// confidenceDoneThreshold is the reflection confidence above which
	// a sufficiency claim is routed through the completion gate.
	confidenceDoneThreshold = 0.7

	// The strict and loose bands define "medium" confidence for
	// human-guidance escalation. The loose band additionally requires
	// a stagnation or loop signal.
	escalationStrictLow  = 0.4
	escalationStrictHigh = 0.55
	escalationLooseLow   = 0.35
	escalationLooseHigh  = 0.65

	// DefaultMaxEscalations bounds guidance pauses per run.
	DefaultMaxEscalations = 2

	// maxConsecutiveErrors is the non-rate-limit error threshold
	// before the run fails.
	maxConsecutiveErrors = 3

	// maxRateLimitRetries bounds backoff retries on rate limiting.
	maxRateLimitRetries = 5

	// charsPerToken is the estimation heuristic used when no real
	// tokenizer is available for the model.
	charsPerToken = 4

	// burnRateMinSteps is the minimum elapsed steps before the
	// burn-rate projection may pre-empt a run. burnRateConsumed and
	// burnRateProjected are the trip thresholds.
	burnRateMinSteps  = 5
	burnRateConsumed  = 0.5
	burnRateProjected = 1.2

	// historyWindowChars bounds the working conversation before the
	// compactor evicts whole turns. archiveRetrieveTopN is how many
	// archive entries are pulled back per request.
	historyWindowChars  = 24000
	archiveRetrieveTopN = 3

	// scratchpadMaxChars bounds the accumulated fact notes carried in
	// every request and checkpoint; oldest lines drop first.
	scratchpadMaxChars = 4000

	// minAnswerLength is the quality-guard minimum for information
	// seeking goals without a prior high-signal observation.
	minAnswerLength = 40

	// maxEvidencePerSubGoal caps the most-recent-first evidence list.
	maxEvidencePerSubGoal = 4

	// maxPlannedActions caps actions accepted from one reflection.
	maxPlannedActions = 4

	// highSignalTextLength is the page-text length above which a read
	// counts as a high-signal observation.
	highSignalTextLength = 200
)
