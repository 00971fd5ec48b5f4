// Package cli wires settings, backend, driver, storage, and sinks into
// runnable commands.
//
// Information Hiding:
// - Component wiring is hidden behind Run/Resume
// - Pause handling (operator prompts) is a CLI concern, not the loop's
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/theseus/agent"
	"github.com/richinex/theseus/config"
	"github.com/richinex/theseus/driver"
	"github.com/richinex/theseus/llm"
	"github.com/richinex/theseus/model"
	"github.com/richinex/theseus/notify"
	"github.com/richinex/theseus/storage"
)

// Options carries the global CLI flags.
type Options struct {
	Provider string
	Model    string
	MaxSteps int
	Verbose  bool
	DBPath   string
}

// Run executes one goal end to end and prints the terminal result.
func Run(ctx context.Context, goal string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	return runWith(ctx, goal, settings, opts, nil)
}

// RunFile executes the goal described by a YAML run-options file.
func RunFile(ctx context.Context, path string, opts Options) error {
	runOpts, err := config.LoadRunOptions(path)
	if err != nil {
		return err
	}
	if runOpts.Provider != "" && opts.Provider == "" {
		opts.Provider = runOpts.Provider
	}
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	settings = runOpts.Apply(settings)
	return runWith(ctx, runOpts.Goal, settings, opts, nil)
}

// Resume restarts a checkpointed run, optionally with guidance.
func Resume(ctx context.Context, runID, guidance string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	store, err := openStore(settings, opts)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no checkpoint database configured: set --db or AGENT_CHECKPOINT_PATH")
	}

	cp, err := store.LoadCheckpoint(ctx, runID)
	closeStore(store)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	return runWith(ctx, cp.Goal, settings, opts, &resumeState{checkpoint: cp, guidance: guidance})
}

// Checkpoints prints the stored runs.
func Checkpoints(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	store, err := openStore(settings, opts)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no checkpoint database configured: set --db or AGENT_CHECKPOINT_PATH")
	}
	defer closeStore(store)

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no stored runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  step %-4d %s  %s\n", r.RunID, r.NextStep, r.UpdatedAt.Format(time.RFC3339), r.Goal)
	}
	return nil
}

// Tools prints the page-driver vocabulary.
func Tools() {
	fmt.Println(driver.Description())
}

type resumeState struct {
	checkpoint agent.Checkpoint
	guidance   string
}

func runWith(ctx context.Context, goal string, settings config.Settings, opts Options, resume *resumeState) error {
	logger, err := buildLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := buildBackend(settings)
	if err != nil {
		return err
	}

	drv := driver.NewHTTPDriver(settings.Driver.BaseURL)

	var ctrl *agent.Controller
	if resume != nil {
		ctrl = agent.NewFromCheckpoint(resume.checkpoint, backend, drv)
	} else {
		ctrl = agent.New(goal, backend, drv)
	}

	ctrl.WithLogger(logger).
		WithMaxSteps(settings.Agent.MaxSteps).
		WithReflectionTimeout(settings.Agent.ReflectionTimeout).
		WithMaxEscalations(settings.Agent.MaxEscalations).
		WithBudget(agent.Budget{
			MaxWallClock:        settings.Budget.MaxWallClock,
			MaxTotalTokens:      settings.Budget.MaxTotalTokens,
			MaxEstimatedCostUSD: settings.Budget.MaxEstimatedCostUSD,
		}).
		WithCostPer1KTokens(settings.Budget.CostPer1KTokensUSD).
		WithInteractiveBudget()

	store, err := openStore(settings, opts)
	if err != nil {
		return err
	}
	if store != nil {
		defer closeStore(store)
		ctrl.WithCheckpointSaver(store)
	}

	if notifier := buildNotifier(settings, logger); notifier != nil {
		ctrl.WithNotifier(notifier)
	}

	stopWatcher := watchPauses(ctx, ctrl)
	defer stopWatcher()

	if resume != nil && resume.guidance != "" {
		ctrl.WithGuidance(resume.guidance)
		fmt.Printf("resuming %s with guidance: %s\n", ctrl.ID(), resume.guidance)
	}

	fmt.Printf("run %s\ngoal: %s\n\n", ctrl.ID(), goal)
	result := ctrl.Run(ctx)
	printResult(result)

	if !result.Success {
		return fmt.Errorf("run ended %s: %s", result.Status, result.Reason)
	}
	return nil
}

// watchPauses prompts the operator whenever the controller pauses and
// feeds the answer back in. Returns a stop function.
func watchPauses(ctx context.Context, ctrl *agent.Controller) func() {
	done := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if ctrl.State() != agent.StatePausedWaitingUser {
				continue
			}

			printPauseReason(ctrl.Checkpoint())
			fmt.Print("paused. [c]ontinue, [g]uide <text>, [p]artial result, [a]bort: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				ctrl.Abort()
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "a":
				ctrl.Abort()
			case line == "p":
				ctrl.RequestPartialCompletion()
			case strings.HasPrefix(line, "g "):
				ctrl.Resume(strings.TrimSpace(strings.TrimPrefix(line, "g ")))
			default:
				ctrl.Resume("")
			}
		}
	}()
	return func() { close(done) }
}

func printPauseReason(cp agent.Checkpoint) {
	for i := len(cp.History) - 1; i >= 0; i-- {
		if cp.History[i].Kind == agent.HistoryPause {
			fmt.Println(cp.History[i].Content)
			return
		}
	}
}

func printResult(result model.TerminalResult) {
	fmt.Printf("\nstatus: %s (%d steps)\n", result.Status, result.Steps)
	if result.Reason != "" {
		fmt.Printf("reason: %s\n", result.Reason)
	}
	if result.Summary != "" {
		fmt.Printf("summary: %s\n", result.Summary)
	}
	if result.Answer != "" {
		fmt.Printf("\n%s\n", result.Answer)
	}
	if pr := result.PartialResult; pr != nil {
		if len(pr.RemainingSubGoals) > 0 {
			fmt.Printf("\nremaining sub-goals:\n")
			for _, g := range pr.RemainingSubGoals {
				fmt.Printf("  - %s\n", g)
			}
		}
		if pr.Suggestion != "" {
			fmt.Printf("suggestion: %s\n", pr.Suggestion)
		}
	}
}

func loadSettings(opts Options) (config.Settings, error) {
	provider := opts.Provider
	if provider == "" {
		provider = os.Getenv("LLM_PROVIDER")
	}
	if provider == "" {
		provider = "anthropic"
	}
	settings, err := config.New(provider)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}
	if opts.MaxSteps > 0 {
		settings.Agent.MaxSteps = opts.MaxSteps
	}
	return settings, nil
}

func buildBackend(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewProvider(providerType, llm.Options{
		Model:       settings.LLM.Model,
		APIKey:      apiKey,
		MaxTokens:   settings.LLM.MaxTokens,
		Temperature: float32(settings.LLM.Temperature),
	})
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func openStore(settings config.Settings, opts Options) (*storage.SqliteStore, error) {
	path := opts.DBPath
	if path == "" {
		path = settings.Agent.CheckpointPath
	}
	if path == "" {
		return nil, nil
	}
	return storage.OpenSqlite(path)
}

func closeStore(store *storage.SqliteStore) {
	if store != nil {
		store.Close()
	}
}

func buildNotifier(settings config.Settings, logger *zap.Logger) *notify.Notifier {
	var sinks []notify.Sink
	if settings.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(settings.Notify.WebhookURL))
	}
	if settings.Notify.SlackWebhookURL != "" {
		sinks = append(sinks, notify.NewSlackSink(settings.Notify.SlackWebhookURL))
	}
	if settings.Notify.TelegramToken != "" && settings.Notify.TelegramChatID != "" {
		sinks = append(sinks, notify.NewTelegramSink(settings.Notify.TelegramToken, settings.Notify.TelegramChatID))
	}
	if len(sinks) == 0 {
		return nil
	}
	return notify.NewNotifier(sinks, notify.WithLogger(logger))
}
