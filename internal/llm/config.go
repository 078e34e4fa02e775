package llm

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config selects and configures the text-generation provider.
type Config struct {
	// Provider is one of "openai", "anthropic", "gemini", "mock".
	Provider string `validate:"required,oneof=openai anthropic gemini mock"`

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
}

// OpenAIConfig holds settings for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `validate:"required_if=Enabled true"`
	Model   string `validate:"required_if=Enabled true"`
	BaseURL string `validate:"omitempty,url"`
	Enabled bool
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey  string `validate:"required_if=Enabled true"`
	Model   string `validate:"required_if=Enabled true"`
	BaseURL string `validate:"omitempty,url"`
	Enabled bool
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey  string `validate:"required_if=Enabled true"`
	Model   string `validate:"required_if=Enabled true"`
	BaseURL string `validate:"omitempty,url"`
	Enabled bool
}

// NewConfig builds a Config for the named provider from a single key/model/URL
// triple, which is how the CLI exposes it.
func NewConfig(provider, apiKey, modelName, baseURL string) Config {
	cfg := Config{Provider: provider}
	switch provider {
	case "openai":
		cfg.OpenAI = OpenAIConfig{APIKey: apiKey, Model: modelName, BaseURL: baseURL, Enabled: true}
	case "anthropic":
		cfg.Anthropic = AnthropicConfig{APIKey: apiKey, Model: modelName, BaseURL: baseURL, Enabled: true}
	case "gemini":
		cfg.Gemini = GeminiConfig{APIKey: apiKey, Model: modelName, BaseURL: baseURL, Enabled: true}
	}
	return cfg
}

// Validate checks that the selected provider has its required settings.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	return nil
}
