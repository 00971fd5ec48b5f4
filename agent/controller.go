package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/theseus/driver"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/model"
)

const systemPromptTemplate = `You are an autonomous web agent working toward a goal by observing pages and issuing tool calls.

Each turn you MUST answer with exactly one %s call describing:
- the facts you have verified so far
- the unknowns still blocking the goal
- whether the evidence is sufficient to answer
- your confidence (0 to 1)
- a progress summary and your best current answer
- 1-4 next tool calls

Available tools:

%s

Never claim sufficiency without evidence from actual page observations.`

// Notifier delivers the terminal result to an external sink. Delivery
// failures are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, message string, meta map[string]string) error
}

// CheckpointSaver persists checkpoints as the run progresses.
type CheckpointSaver interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Controller is the top-level orchestration loop. One controller drives
// one run; all run state is mutated only by the goroutine inside Run.
type Controller struct {
	id      string
	goal    string
	backend llm.Provider
	drv     driver.Driver

	logger          *zap.Logger
	notifier        Notifier
	saver           CheckpointSaver
	maxSteps        int
	budget          Budget
	reflectTimeout  time.Duration
	maxEscalations  int
	costPer1KTokens float64
	// interactiveBudget routes budget stops through a pause so the
	// operator can override; otherwise a budget stop is terminal.
	interactiveBudget bool

	mu       sync.Mutex
	state    State
	resumeCh chan resumeOutcome
	aborted  bool
	partial  bool
	snapshot Checkpoint

	// Run-loop state, control goroutine only.
	step              int
	history           []HistoryEntry
	scratchpad        string
	tracker           *SubGoalTracker
	compactor         *historyCompactor
	monitor           *budgetMonitor
	gate              completionGate
	detector          *loopDetector
	warns             *warnThrottle
	lastReflection    *ReflectionState
	visitedURLs       map[string]int
	noProgressStreak  int
	consecutiveErrors int
	escalations       int
	guidance          []string

	restored *Checkpoint
}

// New creates a controller for one run.
func New(goal string, backend llm.Provider, drv driver.Driver) *Controller {
	return &Controller{
		id:              uuid.New().String(),
		goal:            goal,
		backend:         backend,
		drv:             drv,
		logger:          zap.NewNop(),
		maxSteps:        DefaultMaxSteps,
		reflectTimeout:  DefaultReflectionTimeout,
		maxEscalations:  DefaultMaxEscalations,
		costPer1KTokens: 0.002,
		state:           StateIdle,
		visitedURLs:     make(map[string]int),
		warns:           newWarnThrottle(30 * time.Second),
	}
}

// NewFromCheckpoint creates a controller that resumes a checkpointed
// run with history, sub-goals, summary, budgets consumed, and
// visited-URL counters restored.
func NewFromCheckpoint(cp Checkpoint, backend llm.Provider, drv driver.Driver) *Controller {
	c := New(cp.Goal, backend, drv)
	c.id = cp.RunID
	c.restored = &cp
	return c
}

// WithLogger sets the structured logger.
func (c *Controller) WithLogger(logger *zap.Logger) *Controller {
	c.logger = logger
	return c
}

// WithBudget sets the resource ceilings.
func (c *Controller) WithBudget(budget Budget) *Controller {
	c.budget = budget
	return c
}

// WithMaxSteps bounds loop iterations.
func (c *Controller) WithMaxSteps(n int) *Controller {
	if n > 0 {
		c.maxSteps = n
	}
	return c
}

// WithReflectionTimeout sets the soft ceiling on one reasoning call.
func (c *Controller) WithReflectionTimeout(d time.Duration) *Controller {
	if d > 0 {
		c.reflectTimeout = d
	}
	return c
}

// WithMaxEscalations bounds guidance pauses per run.
func (c *Controller) WithMaxEscalations(n int) *Controller {
	if n >= 0 {
		c.maxEscalations = n
	}
	return c
}

// WithNotifier sets the terminal-result sink.
func (c *Controller) WithNotifier(n Notifier) *Controller {
	c.notifier = n
	return c
}

// WithCheckpointSaver persists a checkpoint after every step.
func (c *Controller) WithCheckpointSaver(s CheckpointSaver) *Controller {
	c.saver = s
	return c
}

// WithCostPer1KTokens sets the cost-estimation rate.
func (c *Controller) WithCostPer1KTokens(rate float64) *Controller {
	if rate > 0 {
		c.costPer1KTokens = rate
	}
	return c
}

// WithInteractiveBudget routes budget stops through a pause offering a
// one-time operator override instead of stopping immediately.
func (c *Controller) WithInteractiveBudget() *Controller {
	c.interactiveBudget = true
	return c
}

// WithGuidance queues operator guidance for the next reasoning step.
// Used when resuming a stored run with fresh instructions.
func (c *Controller) WithGuidance(text string) *Controller {
	if text != "" {
		c.guidance = append(c.guidance, text)
	}
	return c
}

// ID returns the run identifier.
func (c *Controller) ID() string { return c.id }

// State returns the controller's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Abort requests cooperative cancellation. Checked at step boundaries
// and pause points; an in-flight driver call is not interrupted.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	if c.resumeCh != nil {
		c.resumeCh <- resumeOutcome{aborted: true}
		c.resumeCh = nil
	}
}

// Resume completes a pause with optional guidance text, injected as a
// priority instruction. Returns false when the run is not paused.
func (c *Controller) Resume(guidance string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumeCh == nil {
		return false
	}
	c.resumeCh <- resumeOutcome{guidance: guidance}
	c.resumeCh = nil
	return true
}

// RequestPartialCompletion forces an immediate best-effort terminal
// result at the next step boundary (or right away when paused).
func (c *Controller) RequestPartialCompletion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partial = true
	if c.resumeCh != nil {
		c.resumeCh <- resumeOutcome{}
		c.resumeCh = nil
	}
	return true
}

// Checkpoint returns the latest snapshot of the run.
func (c *Controller) Checkpoint() Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes the loop until a terminal result. It must be called at
// most once per controller.
func (c *Controller) Run(ctx context.Context) model.TerminalResult {
	c.setState(StateRunning)
	c.initRunState()

	result := c.loop(ctx)

	if result.Success {
		c.setState(StateDone)
	} else {
		c.setState(StateFailed)
	}
	c.publishCheckpoint(ctx)
	c.notifyResult(ctx, result)
	return result
}

func (c *Controller) initRunState() {
	if c.restored != nil {
		cp := c.restored
		c.step = cp.NextStep - 1
		if c.step < 0 {
			c.step = 0
		}
		c.history = cp.History
		c.scratchpad = cp.Scratchpad
		c.tracker = RestoreSubGoalTracker(cp.SubGoals)
		c.compactor = restoreHistoryCompactor(cp.Summary)
		c.monitor = newBudgetMonitor(c.budget, cp.Usage, c.costPer1KTokens)
		c.lastReflection = cp.Reflection
		if cp.VisitedURLs != nil {
			c.visitedURLs = cp.VisitedURLs
		}
		c.escalations = cp.Escalations
	} else {
		c.tracker = NewSubGoalTracker(c.goal)
		c.compactor = newHistoryCompactor()
		c.monitor = newBudgetMonitor(c.budget, BudgetUsage{}, c.costPer1KTokens)
	}
	c.detector = newLoopDetector()

	system := fmt.Sprintf(systemPromptTemplate, submitReflectionName, driver.Description())
	c.compactor.append(c.step, llm.SystemMessage(system), llm.UserMessage("Goal: "+c.goal))

	c.logger.Info("run started",
		zap.String("run_id", c.id),
		zap.String("goal", c.goal),
		zap.Int("sub_goals", len(c.tracker.Goals())),
		zap.String("backend", c.backend.Name()))
}

func (c *Controller) loop(ctx context.Context) model.TerminalResult {
	ref := &reflector{backend: c.backend, timeout: c.reflectTimeout}
	rateLimitRetries := 0

	for {
		c.step++

		if c.isAborted() || ctx.Err() != nil {
			return c.terminal(model.StatusFailed, "run aborted")
		}
		if c.partialRequested() {
			return c.terminal(model.StatusPartial, "partial completion requested by operator")
		}
		if c.step > c.maxSteps {
			return c.terminal(model.StatusTimeout, fmt.Sprintf("step budget of %d exhausted", c.maxSteps))
		}

		if stop := c.monitor.check(c.step, c.maxSteps); stop.exceeded {
			if result, final := c.handleBudgetStop(ctx, stop); final {
				return result
			}
			// Operator allowed continuation.
		}

		if result, final := c.checkIntervention(ctx); final {
			return result
		}

		messages := c.buildMessages()

		if stop := c.monitor.preflight(concatContents(messages)); stop.exceeded {
			if result, final := c.handleBudgetStop(ctx, stop); final {
				return result
			}
			// Enforcement was just disabled; issue the call after all.
		}

		state, usage, err := ref.reflect(ctx, messages)
		c.monitor.record(usage)
		if err != nil {
			result, final, retried := c.handleStepError(ctx, err, &rateLimitRetries)
			if final {
				return result
			}
			if retried {
				c.step--
			}
			continue
		}
		rateLimitRetries = 0
		c.consecutiveErrors = 0

		confidence, breakdown := normalizeConfidence(
			state.Confidence, c.noProgressStreak, c.detector.loopSignals(), c.tracker.ProgressRatio())
		state.Confidence = confidence
		state.Breakdown = breakdown
		c.lastReflection = state
		c.updateScratchpad(state)

		c.appendHistory(HistoryEntry{
			Kind: HistoryThought, Step: c.step,
			Content: fmt.Sprintf("%s (confidence %.2f)", state.Summary, confidence),
		})
		c.logger.Debug("reflection",
			zap.Int("step", c.step),
			zap.Float64("confidence", confidence),
			zap.Float64("raw_confidence", breakdown.Raw),
			zap.Bool("sufficiency", state.Sufficiency),
			zap.Int("actions", len(state.Actions)))

		// Completion path.
		if state.Sufficiency || confidence >= confidenceDoneThreshold {
			verdict := c.gate.evaluate(c.goal, state, c.history, c.tracker, c.monitor.tight(c.step, c.maxSteps))
			if verdict.accepted {
				return c.acceptCompletion(state, verdict)
			}
			c.appendHistory(HistoryEntry{
				Kind: HistoryError, Step: c.step,
				Content: fmt.Sprintf("completion rejected (%s): %s", verdict.code, verdict.reason),
			})
			c.logger.Info("completion rejected",
				zap.String("code", verdict.code),
				zap.String("reason", verdict.reason),
				zap.Int("streak", c.gate.rejectionStreak()))

			if c.gate.stuck() {
				return c.terminal(model.StatusStuck,
					fmt.Sprintf("completion rejected %d times in a row", c.gate.rejectionStreak()))
			}
			if c.gate.mustForceEvidence() {
				state.Actions = []PlannedAction{c.forcedEvidenceAction(verdict)}
			}
			c.compactor.append(c.step, llm.UserMessage(
				fmt.Sprintf("Your completion claim was rejected (%s): %s. Gather concrete evidence before claiming done again.",
					verdict.code, verdict.reason)))
		}

		// Guidance escalation.
		if result, final := c.maybeEscalate(ctx, state); final {
			return result
		}

		if len(state.Actions) == 0 {
			c.noProgressStreak++
			continue
		}

		c.dispatch(ctx, state)

		if key, fatal := c.detector.fatalBlocked(); fatal {
			return c.terminal(model.StatusFailed,
				fmt.Sprintf("policy conflict: %s blocked repeatedly with no viable fallback", key))
		}

		if len(c.compactor.historySummary().Pending) > 0 {
			c.mergeHistory(ctx)
		}
		c.publishCheckpoint(ctx)
	}
}

// dispatch sanitizes, executes, and folds in one step's actions.
func (c *Controller) dispatch(ctx context.Context, state *ReflectionState) {
	completedBefore := c.tracker.CompletedCount()
	highSignal := false

	calls := make([]driver.ToolCall, 0, len(state.Actions))
	for _, action := range state.Actions {
		outcome := c.detector.sanitize(action.Call())
		if outcome.rewritten {
			c.appendHistory(HistoryEntry{
				Kind: HistoryError, Step: c.step,
				Content: "loop guard: " + outcome.note,
			})
			if c.warns.Allow("loop:" + string(outcome.call.Tool)) {
				c.logger.Warn("loop guard rewrote action", zap.String("note", outcome.note))
			}
		}
		calls = append(calls, outcome.call)
	}

	var resultTexts []string
	for _, d := range dispatchBatch(ctx, c.drv, calls) {
		c.detector.record(d.call, d.result)
		c.tracker.Observe(c.step, d.call, d.result)

		if d.result.Success && d.result.URL != "" {
			c.visitedURLs[d.result.URL]++
		}
		if isHighSignal(d.result) {
			highSignal = true
		}

		summary := truncateText(d.result.Evidence(), 1500)
		c.appendHistory(HistoryEntry{
			Kind: HistoryAction, Step: c.step,
			Tool: string(d.call.Tool), Args: d.call.Args,
			Result: summary, Success: d.result.Success,
		})
		resultTexts = append(resultTexts, fmt.Sprintf("%s -> %s", d.call, summary))

		c.logger.Debug("action executed",
			zap.String("tool", d.metrics.Name),
			zap.Bool("success", d.metrics.Success),
			zap.Uint64("duration_ms", d.metrics.DurationMs),
			zap.Int("output_size", d.metrics.OutputSize),
			zap.String("code", d.result.Code))
	}

	c.compactor.append(c.step,
		llm.AssistantMessage(state.Summary),
		llm.UserMessage(actionResultsPrefix+"\n"+strings.Join(resultTexts, "\n")))

	if c.tracker.CompletedCount() > completedBefore || highSignal {
		c.noProgressStreak = 0
	} else {
		c.noProgressStreak++
	}
}

// updateScratchpad folds newly reported facts into the persistent
// working notes: deduplicated, oldest first, bounded. The scratchpad
// survives compaction evictions and checkpoint restores.
func (c *Controller) updateScratchpad(state *ReflectionState) {
	for _, fact := range state.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" || strings.Contains(c.scratchpad, fact) {
			continue
		}
		if c.scratchpad != "" {
			c.scratchpad += "\n"
		}
		c.scratchpad += fact
	}
	for len(c.scratchpad) > scratchpadMaxChars {
		i := strings.IndexByte(c.scratchpad, '\n')
		if i < 0 {
			c.scratchpad = truncateText(c.scratchpad, scratchpadMaxChars)
			break
		}
		c.scratchpad = c.scratchpad[i+1:]
	}
}

// buildMessages assembles the next backend request: working window plus
// the compacted-context prefix, the fact scratchpad, and any pending
// operator guidance.
func (c *Controller) buildMessages() []llm.ChatMessage {
	messages := c.compactor.window()

	prefix := c.compactor.contextPrefix(c.goal)
	if c.scratchpad != "" {
		prefix += "Facts gathered so far:\n" + c.scratchpad + "\n"
	}
	if prefix != "" {
		// Insert after the system message so the window stays intact.
		withPrefix := make([]llm.ChatMessage, 0, len(messages)+1)
		inserted := false
		for _, m := range messages {
			withPrefix = append(withPrefix, m)
			if !inserted && m.Role == "system" {
				withPrefix = append(withPrefix, llm.UserMessage(prefix))
				inserted = true
			}
		}
		messages = withPrefix
	}

	for _, g := range c.guidance {
		messages = append(messages, llm.UserMessage("PRIORITY OPERATOR GUIDANCE: "+g))
	}
	c.guidance = nil

	return messages
}

func (c *Controller) mergeHistory(ctx context.Context) {
	usage, err := c.compactor.mergePending(ctx, c.backend, func(request string) bool {
		return !c.monitor.preflight(request).exceeded
	})
	c.monitor.record(usage)
	if err != nil && c.warns.Allow("merge") {
		c.logger.Warn("history merge failed, keeping raw chunks", zap.Error(err))
	}
}

// handleStepError classifies a per-step failure. Rate limits back off
// exponentially up to a bounded retry count; other errors fail the run
// after maxConsecutiveErrors, otherwise a corrective instruction is
// injected and the loop continues.
func (c *Controller) handleStepError(ctx context.Context, err error, rateLimitRetries *int) (model.TerminalResult, bool, bool) {
	c.appendHistory(HistoryEntry{Kind: HistoryError, Step: c.step, Content: err.Error()})

	if isRateLimitError(err) {
		*rateLimitRetries++
		if *rateLimitRetries > maxRateLimitRetries {
			return c.terminal(model.StatusFailed,
				fmt.Sprintf("backend rate limited after %d retries", maxRateLimitRetries)), true, false
		}
		delay := backoffDelay(*rateLimitRetries)
		c.logger.Warn("backend rate limited, backing off",
			zap.Int("attempt", *rateLimitRetries),
			zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return c.terminal(model.StatusFailed, "run aborted"), true, false
		}
		return model.TerminalResult{}, false, true
	}

	c.consecutiveErrors++
	if c.consecutiveErrors >= maxConsecutiveErrors {
		return c.terminal(model.StatusFailed,
			fmt.Sprintf("%d consecutive step errors, last: %v", c.consecutiveErrors, err)), true, false
	}
	c.logger.Warn("step error, continuing", zap.Error(err), zap.Int("consecutive", c.consecutiveErrors))
	c.compactor.append(c.step, llm.UserMessage(
		"Your previous response could not be processed: "+err.Error()+
			". Answer with exactly one "+submitReflectionName+" call."))
	return model.TerminalResult{}, false, false
}

// handleBudgetStop either pauses for a one-time operator override or
// returns a terminal timeout with a best-effort partial answer.
func (c *Controller) handleBudgetStop(ctx context.Context, stop budgetStop) (model.TerminalResult, bool) {
	c.logger.Info("budget stop",
		zap.String("dimension", stop.dimension),
		zap.String("reason", stop.reason))

	if c.interactiveBudget {
		c.appendHistory(HistoryEntry{Kind: HistoryPause, Step: c.step, Content: "budget: " + stop.reason})
		outcome := c.pause(ctx)
		if outcome.aborted {
			return c.terminal(model.StatusTimeout, stop.reason), true
		}
		if c.partialRequested() {
			return c.terminal(model.StatusPartial, "partial completion requested during budget pause"), true
		}
		// One-time override: further enforcement is disabled.
		c.monitor.disable()
		c.interactiveBudget = false
		if outcome.guidance != "" {
			c.guidance = append(c.guidance, outcome.guidance)
		}
		return model.TerminalResult{}, false
	}

	return c.terminal(model.StatusTimeout, stop.reason), true
}

// checkIntervention asks the driver whether the page needs a human
// (CAPTCHA, login wall) and pauses until resumed.
func (c *Controller) checkIntervention(ctx context.Context) (model.TerminalResult, bool) {
	checker, ok := c.drv.(driver.InterventionChecker)
	if !ok {
		return model.TerminalResult{}, false
	}
	reason, needed := checker.CheckIntervention(ctx)
	if !needed {
		return model.TerminalResult{}, false
	}

	c.appendHistory(HistoryEntry{Kind: HistoryPause, Step: c.step, Content: "manual intervention: " + reason})
	c.logger.Info("paused for manual intervention", zap.String("reason", reason))

	outcome := c.pause(ctx)
	if outcome.aborted {
		return c.terminal(model.StatusFailed, "aborted during manual intervention"), true
	}
	if c.partialRequested() {
		return c.terminal(model.StatusPartial, "partial completion requested during intervention"), true
	}
	if outcome.guidance != "" {
		c.guidance = append(c.guidance, outcome.guidance)
	}
	return model.TerminalResult{}, false
}

// maybeEscalate pauses for human guidance when the run is stalled at
// medium confidence with mostly passive plans.
func (c *Controller) maybeEscalate(ctx context.Context, state *ReflectionState) (model.TerminalResult, bool) {
	blockers, escalate := shouldEscalate(escalationInput{
		confidence:       state.Confidence,
		breakdown:        state.Breakdown,
		factCount:        len(state.Facts),
		noProgressStreak: c.noProgressStreak,
		rejectionStreak:  c.gate.rejectionStreak(),
		loopSignals:      c.detector.loopSignals(),
		stepsRemaining:   c.maxSteps - c.step,
		maxSteps:         c.maxSteps,
		actions:          state.Actions,
		escalationsUsed:  c.escalations,
		maxEscalations:   c.maxEscalations,
	})
	if !escalate {
		return model.TerminalResult{}, false
	}

	c.escalations++
	var lines []string
	for _, b := range blockers {
		lines = append(lines, b.Kind+": "+b.Detail)
	}
	c.appendHistory(HistoryEntry{Kind: HistoryPause, Step: c.step, Content: "guidance requested:\n" + strings.Join(lines, "\n")})
	c.logger.Info("paused for guidance",
		zap.Int("escalation", c.escalations),
		zap.Strings("blockers", lines))

	outcome := c.pause(ctx)
	if outcome.aborted {
		return c.terminal(model.StatusFailed, "aborted while waiting for guidance"), true
	}
	if c.partialRequested() {
		return c.terminal(model.StatusPartial, "partial completion requested instead of guidance"), true
	}
	if outcome.guidance != "" {
		c.guidance = append(c.guidance, outcome.guidance)
	}
	return model.TerminalResult{}, false
}

// pause blocks on a one-shot resume channel. Completed by Resume,
// Abort, RequestPartialCompletion, or context cancellation.
func (c *Controller) pause(ctx context.Context) resumeOutcome {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return resumeOutcome{aborted: true}
	}
	ch := make(chan resumeOutcome, 1)
	c.resumeCh = ch
	c.state = StatePausedWaitingUser
	c.mu.Unlock()

	var outcome resumeOutcome
	select {
	case outcome = <-ch:
	case <-ctx.Done():
		outcome = resumeOutcome{aborted: true}
	}

	c.mu.Lock()
	c.resumeCh = nil
	c.state = StateRunning
	c.mu.Unlock()
	return outcome
}

// forcedEvidenceAction picks one concrete evidence-gathering call after
// repeated completion rejections.
func (c *Controller) forcedEvidenceAction(verdict gateVerdict) PlannedAction {
	if verdict.code == CodeDoneCoverageFailed {
		return PlannedAction{Tool: driver.ToolExtract, Args: map[string]any{"what": "evidence for: " + c.goal}}
	}
	return PlannedAction{Tool: driver.ToolReadText}
}

// acceptCompletion builds the terminal result for a gated done. Parts
// the gate let through unverified downgrade the status to partial with
// the uncovered sub-tasks listed.
func (c *Controller) acceptCompletion(state *ReflectionState, verdict gateVerdict) model.TerminalResult {
	if len(verdict.unverified) > 0 {
		result := c.terminal(model.StatusPartial,
			"completed with unverified parts: "+strings.Join(verdict.unverified, "; "))
		result.Summary = state.Summary
		result.Answer = state.Answer
		return result
	}

	c.logger.Info("run complete",
		zap.Int("steps", c.step),
		zap.Float64("confidence", state.Confidence))
	return model.TerminalResult{
		Success: true,
		Status:  model.StatusComplete,
		Reason:  "all sub-goals covered by evidence",
		Summary: state.Summary,
		Answer:  state.Answer,
		Steps:   c.step,
	}
}

// terminal builds a non-complete result, attaching a best-effort
// partial answer whenever any evidence was collected.
func (c *Controller) terminal(status model.Status, reason string) model.TerminalResult {
	result := model.TerminalResult{
		Status: status,
		Reason: reason,
		Steps:  c.step,
	}
	if c.lastReflection != nil {
		result.Summary = c.lastReflection.Summary
		result.Answer = c.lastReflection.Answer
	}
	remaining := c.tracker.Remaining()
	if c.lastReflection != nil && (len(c.lastReflection.Facts) > 0 || c.lastReflection.Answer != "") {
		result.PartialResult = &model.PartialResult{
			Status:            status,
			Reason:            reason,
			RemainingSubGoals: remaining,
			Suggestion:        suggestionFor(status, remaining),
		}
	}
	c.logger.Info("run ended",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("steps", c.step))
	return result
}

func suggestionFor(status model.Status, remaining []string) string {
	switch status {
	case model.StatusTimeout:
		return "re-run with a larger budget or a narrower goal"
	case model.StatusStuck:
		if len(remaining) > 0 {
			return "provide guidance on: " + strings.Join(remaining, "; ")
		}
		return "rephrase the goal with more specific targets"
	default:
		if len(remaining) > 0 {
			return "resume from the checkpoint to finish: " + strings.Join(remaining, "; ")
		}
		return ""
	}
}

func (c *Controller) appendHistory(entry HistoryEntry) {
	c.history = append(c.history, entry)
}

func (c *Controller) isAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

func (c *Controller) partialRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.partial {
		return false
	}
	c.partial = false
	return true
}

// publishCheckpoint snapshots the run and hands it to the saver.
func (c *Controller) publishCheckpoint(ctx context.Context) {
	cp := Checkpoint{
		RunID:       c.id,
		Goal:        c.goal,
		NextStep:    c.step + 1,
		History:     append([]HistoryEntry{}, c.history...),
		Scratchpad:  c.scratchpad,
		SubGoals:    c.tracker.Goals(),
		Summary:     c.compactor.historySummary(),
		Reflection:  c.lastReflection,
		Usage:       c.monitor.usage(),
		VisitedURLs: copyCounts(c.visitedURLs),
		Escalations: c.escalations,
		CreatedAt:   time.Now(),
	}

	c.mu.Lock()
	c.snapshot = cp
	c.mu.Unlock()

	if c.saver != nil {
		if err := c.saver.SaveCheckpoint(ctx, cp); err != nil && c.warns.Allow("checkpoint") {
			c.logger.Warn("checkpoint save failed", zap.Error(err))
		}
	}
}

func (c *Controller) notifyResult(ctx context.Context, result model.TerminalResult) {
	if c.notifier == nil {
		return
	}
	meta := map[string]string{
		"run_id": c.id,
		"status": string(result.Status),
		"steps":  fmt.Sprintf("%d", result.Steps),
	}
	if err := c.notifier.Notify(ctx, result.ResultText(), meta); err != nil {
		c.logger.Warn("result notification failed", zap.Error(err))
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func concatContents(messages []llm.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// isRateLimitError classifies backend errors worth backing off on.
func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "429", "too many requests", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// backoffDelay is exponential from 100ms, capped at 5s.
func backoffDelay(attempt int) time.Duration {
	delay := 100 * time.Millisecond << uint(attempt-1)
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}
