package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunOptions is the YAML run-options file: per-run overrides layered
// on top of environment settings.
//
//	goal: find today's weather in Berlin
//	max_steps: 25
//	budget:
//	  max_wall_clock: 10m
//	  max_total_tokens: 200000
//	  max_cost_usd: 0.50
type RunOptions struct {
	Goal     string `yaml:"goal"`
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	MaxSteps int    `yaml:"max_steps,omitempty"`
	Budget   struct {
		MaxWallClock   string  `yaml:"max_wall_clock,omitempty"`
		MaxTotalTokens uint64  `yaml:"max_total_tokens,omitempty"`
		MaxCostUSD     float64 `yaml:"max_cost_usd,omitempty"`
	} `yaml:"budget,omitempty"`
}

// LoadRunOptions parses a YAML run-options file.
func LoadRunOptions(path string) (RunOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunOptions{}, fmt.Errorf("read run options: %w", err)
	}

	var opts RunOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return RunOptions{}, fmt.Errorf("parse run options: %w", err)
	}
	if opts.Goal == "" {
		return RunOptions{}, fmt.Errorf("run options %s: goal is required", path)
	}
	if opts.Budget.MaxWallClock != "" {
		if _, err := time.ParseDuration(opts.Budget.MaxWallClock); err != nil {
			return RunOptions{}, fmt.Errorf("run options %s: invalid max_wall_clock: %w", path, err)
		}
	}
	return opts, nil
}

// Apply overlays the run options onto settings.
func (o RunOptions) Apply(s Settings) Settings {
	if o.Provider != "" {
		s.LLM.Provider = normalizeProvider(o.Provider)
	}
	if o.Model != "" {
		s.LLM.Model = o.Model
	}
	if o.MaxSteps > 0 {
		s.Agent.MaxSteps = o.MaxSteps
	}
	if o.Budget.MaxWallClock != "" {
		if d, err := time.ParseDuration(o.Budget.MaxWallClock); err == nil {
			s.Budget.MaxWallClock = d
		}
	}
	if o.Budget.MaxTotalTokens > 0 {
		s.Budget.MaxTotalTokens = o.Budget.MaxTotalTokens
	}
	if o.Budget.MaxCostUSD > 0 {
		s.Budget.MaxEstimatedCostUSD = o.Budget.MaxCostUSD
	}
	return s
}
