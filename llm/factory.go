// Provider factory.
//
// Quick start:
//
//	// Use defaults, read API key from environment
//	backend, err := llm.ProviderAnthropic.FromEnv()
//
//	// Full configuration
//	backend, err := llm.NewProvider(llm.ProviderOpenAI, llm.Options{
//	    Model:       llm.ModelOpenAIGPT4o,
//	    APIKey:      "sk-...",
//	    MaxTokens:   8192,
//	    Temperature: 0.3,
//	})

package llm

import (
	"fmt"
	"os"
	"strings"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// ProviderType represents supported reasoning backends.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT52
	case ProviderAnthropic:
		return ModelAnthropicClaudeOpus45
	case ProviderDeepSeek:
		return ModelDeepSeekV32
	case ProviderGemini:
		return ModelGeminiFlash3
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// Options configures provider construction. Zero fields take defaults.
type Options struct {
	Model       string
	APIKey      string
	MaxTokens   uint32
	Temperature float32
}

// FromEnv creates a provider with defaults, reading the API key from
// the environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProvider(p, Options{})
}

// NewProvider creates a provider of the given type. Missing options fall
// back to the provider defaults; a missing API key is read from the
// provider's environment variable.
func NewProvider(p ProviderType, opts Options) (Provider, error) {
	if opts.Model == "" {
		opts.Model = p.DefaultModel()
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(p.EnvVar())
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%s environment variable not set", p.EnvVar())
		}
	}

	switch p {
	case ProviderOpenAI:
		return NewOpenAIProvider(opts.APIKey, opts.Model, opts.MaxTokens, opts.Temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(opts.APIKey, opts.Model, opts.MaxTokens, opts.Temperature), nil
	case ProviderDeepSeek:
		return NewOpenAICompatibleProvider("deepseek", deepseekBaseURL, opts.APIKey, opts.Model, opts.MaxTokens, opts.Temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(opts.APIKey, opts.Model, opts.MaxTokens, opts.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %d", p)
	}
}
