package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWithDefaults(t *testing.T) {
	for _, key := range []string{"LLM_MAX_TOKENS", "LLM_TEMPERATURE", "AGENT_MAX_STEPS", "BUDGET_MAX_TOTAL_TOKENS"} {
		original := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, original)
	}

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q", settings.LLM.Provider)
	}
	if settings.LLM.MaxTokens != 4096 {
		t.Errorf("max tokens = %d, want default 4096", settings.LLM.MaxTokens)
	}
	if settings.Agent.MaxSteps != 40 {
		t.Errorf("max steps = %d, want default 40", settings.Agent.MaxSteps)
	}
	if settings.Budget.MaxTotalTokens != 0 {
		t.Errorf("token budget = %d, want disabled by default", settings.Budget.MaxTotalTokens)
	}
	if settings.Agent.ReflectionTimeout != 30*time.Second {
		t.Errorf("reflection timeout = %v", settings.Agent.ReflectionTimeout)
	}
}

func TestNewProviderAliases(t *testing.T) {
	cases := map[string]string{
		"claude": "anthropic",
		"google": "gemini",
		"gpt":    "openai",
		"OpenAI": "openai",
	}
	for alias, want := range cases {
		settings, err := New(alias)
		if err != nil {
			t.Fatalf("New(%q): %v", alias, err)
		}
		if settings.LLM.Provider != want {
			t.Errorf("New(%q).Provider = %q, want %q", alias, settings.LLM.Provider, want)
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("cohere"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewInvalidEnvValue(t *testing.T) {
	original := os.Getenv("AGENT_MAX_STEPS")
	os.Setenv("AGENT_MAX_STEPS", "plenty")
	defer os.Setenv("AGENT_MAX_STEPS", original)

	if _, err := New("anthropic"); err == nil {
		t.Error("expected error for non-numeric AGENT_MAX_STEPS")
	}
}

func TestEnvOverrides(t *testing.T) {
	overrides := map[string]string{
		"BUDGET_MAX_TOTAL_TOKENS": "50000",
		"BUDGET_MAX_WALL_CLOCK":   "5m",
		"AGENT_MAX_STEPS":         "12",
	}
	for key, val := range overrides {
		original := os.Getenv(key)
		os.Setenv(key, val)
		defer os.Setenv(key, original)
	}

	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Budget.MaxTotalTokens != 50000 {
		t.Errorf("token budget = %d", settings.Budget.MaxTotalTokens)
	}
	if settings.Budget.MaxWallClock != 5*time.Minute {
		t.Errorf("wall clock = %v", settings.Budget.MaxWallClock)
	}
	if settings.Agent.MaxSteps != 12 {
		t.Errorf("max steps = %d", settings.Agent.MaxSteps)
	}
}

func TestAPIKeyFor(t *testing.T) {
	original := os.Getenv("DEEPSEEK_API_KEY")
	os.Setenv("DEEPSEEK_API_KEY", "sk-test")
	defer os.Setenv("DEEPSEEK_API_KEY", original)

	key, err := APIKeyFor("deepseek")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-test" {
		t.Errorf("key = %q", key)
	}

	os.Unsetenv("DEEPSEEK_API_KEY")
	if _, err := APIKeyFor("deepseek"); err == nil {
		t.Error("expected error when the key is unset")
	}
}

func TestLoadRunOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
goal: find today's weather in Berlin
provider: claude
max_steps: 25
budget:
  max_wall_clock: 10m
  max_total_tokens: 200000
  max_cost_usd: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write run file: %v", err)
	}

	opts, err := LoadRunOptions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Goal != "find today's weather in Berlin" {
		t.Errorf("goal = %q", opts.Goal)
	}

	settings := opts.Apply(MustNew("openai"))
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("provider override failed: %q", settings.LLM.Provider)
	}
	if settings.Agent.MaxSteps != 25 {
		t.Errorf("max steps = %d", settings.Agent.MaxSteps)
	}
	if settings.Budget.MaxWallClock != 10*time.Minute {
		t.Errorf("wall clock = %v", settings.Budget.MaxWallClock)
	}
	if settings.Budget.MaxTotalTokens != 200000 {
		t.Errorf("tokens = %d", settings.Budget.MaxTotalTokens)
	}
}

func TestLoadRunOptionsRequiresGoal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("max_steps: 5\n"), 0644); err != nil {
		t.Fatalf("write run file: %v", err)
	}
	if _, err := LoadRunOptions(path); err == nil {
		t.Error("expected error for a run file without a goal")
	}
}
