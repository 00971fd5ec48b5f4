package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/theseus/cli"
	"github.com/richinex/theseus/config"
)

var (
	provider string
	model    string
	maxSteps int
	verbose  bool
	dbPath   string
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "theseus",
		Short: "Goal-driven web agent with budgets, checkpoints, and loop guards",
		Long: `Theseus runs an autonomous reflect-and-act loop against a page-driver
service: the reasoning backend proposes actions, a completion gate
verifies claimed answers against observed evidence, and resource
budgets, loop detection, and checkpointing keep long runs honest.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "",
		"reasoning backend ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "override the backend model")
	rootCmd.PersistentFlags().IntVar(&maxSteps, "max-steps", 0, "override the step ceiling")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "checkpoint database path (default AGENT_CHECKPOINT_PATH)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(checkpointsCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider: provider,
		Model:    model,
		MaxSteps: maxSteps,
		Verbose:  verbose,
		DBPath:   dbPath,
	}
}

func runCmd() *cobra.Command {
	var optionsFile string

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run the agent against a goal",
		Example: `  theseus run "find today's weather in Berlin and the air quality index"
  theseus run --options run.yaml
  theseus run -p openai --max-steps 25 "compare the top two results for Go web frameworks"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if optionsFile != "" {
				return cli.RunFile(cmd.Context(), optionsFile, options())
			}
			if len(args) == 0 {
				return fmt.Errorf("provide a goal or --options file")
			}
			return cli.Run(cmd.Context(), args[0], options())
		},
	}

	cmd.Flags().StringVarP(&optionsFile, "options", "o", "", "YAML run-options file (goal, budget, provider)")
	return cmd
}

func resumeCmd() *cobra.Command {
	var guidance string

	cmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume a checkpointed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Resume(cmd.Context(), args[0], guidance, options())
		},
	}

	cmd.Flags().StringVarP(&guidance, "guidance", "g", "", "operator guidance to inject on resume")
	return cmd
}

func checkpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Checkpoints(cmd.Context(), options())
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the page-driver tool vocabulary",
		Run: func(cmd *cobra.Command, args []string) {
			cli.Tools()
		},
	}
}
