// Package config provides application settings loaded from environment
// variables, with an optional YAML run-options file layered on top.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM    LLMConfig
	Agent  AgentConfig
	Budget BudgetConfig
	Notify NotifyConfig
	Driver DriverConfig
}

// LLMConfig holds reasoning backend configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// AgentConfig holds orchestration loop configuration.
type AgentConfig struct {
	MaxSteps          int
	ReflectionTimeout time.Duration
	MaxEscalations    int
	CheckpointPath    string
}

// BudgetConfig holds resource ceilings. Zero disables a dimension.
type BudgetConfig struct {
	MaxWallClock        time.Duration
	MaxTotalTokens      uint64
	MaxEstimatedCostUSD float64
	CostPer1KTokensUSD  float64
}

// NotifyConfig holds notification sink configuration. Empty values
// disable the corresponding sink.
type NotifyConfig struct {
	WebhookURL      string
	SlackWebhookURL string
	TelegramToken   string
	TelegramChatID  string
}

// DriverConfig holds page-driver service configuration.
type DriverConfig struct {
	BaseURL string
}

// providerInfo holds configuration for a specific backend provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-5.2", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-opus-4-5", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-3-flash-preview", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from
// environment variables. Returns an error if the provider is unknown or
// environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxSteps, err := getEnvInt("AGENT_MAX_STEPS", 40)
	if err != nil {
		return Settings{}, err
	}
	reflectionTimeout, err := getEnvDuration("AGENT_REFLECTION_TIMEOUT", 30*time.Second)
	if err != nil {
		return Settings{}, err
	}
	maxEscalations, err := getEnvInt("AGENT_MAX_ESCALATIONS", 2)
	if err != nil {
		return Settings{}, err
	}

	maxWallClock, err := getEnvDuration("BUDGET_MAX_WALL_CLOCK", 0)
	if err != nil {
		return Settings{}, err
	}
	maxTotalTokens, err := getEnvUint64("BUDGET_MAX_TOTAL_TOKENS", 0)
	if err != nil {
		return Settings{}, err
	}
	maxCost, err := getEnvFloat64("BUDGET_MAX_COST_USD", 0)
	if err != nil {
		return Settings{}, err
	}
	costPer1K, err := getEnvFloat64("BUDGET_COST_PER_1K_TOKENS_USD", 0.002)
	if err != nil {
		return Settings{}, err
	}

	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Agent: AgentConfig{
			MaxSteps:          maxSteps,
			ReflectionTimeout: reflectionTimeout,
			MaxEscalations:    maxEscalations,
			CheckpointPath:    os.Getenv("AGENT_CHECKPOINT_PATH"),
		},
		Budget: BudgetConfig{
			MaxWallClock:        maxWallClock,
			MaxTotalTokens:      maxTotalTokens,
			MaxEstimatedCostUSD: maxCost,
			CostPer1KTokensUSD:  costPer1K,
		},
		Notify: NotifyConfig{
			WebhookURL:      os.Getenv("NOTIFY_WEBHOOK_URL"),
			SlackWebhookURL: os.Getenv("NOTIFY_SLACK_WEBHOOK_URL"),
			TelegramToken:   os.Getenv("NOTIFY_TELEGRAM_TOKEN"),
			TelegramChatID:  os.Getenv("NOTIFY_TELEGRAM_CHAT_ID"),
		},
		Driver: DriverConfig{
			BaseURL: getEnvString("DRIVER_BASE_URL", "http://127.0.0.1:9333"),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are
// invalid. Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment
// variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvUint64(key string, defaultVal uint64) (uint64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
