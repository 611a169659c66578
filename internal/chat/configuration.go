package chat

import (
	"strings"
)

const (
	defaultAPIKeyEnvironmentConstant = "OPENAI_API_KEY"
	defaultModelConstant             = "gpt-4.1-mini"
	defaultTimeoutSecondsConstant    = 60
)

// Configuration captures the chat backend settings.
type Configuration struct {
	BaseURL             string  `mapstructure:"base_url"`
	Model               string  `mapstructure:"model"`
	APIKeyEnv           string  `mapstructure:"api_key_env"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	MaxCompletionTokens int     `mapstructure:"max_completion_tokens"`
	Temperature         float64 `mapstructure:"temperature"`
}

// DefaultConfiguration provides baseline chat settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		APIKeyEnv:      defaultAPIKeyEnvironmentConstant,
		Model:          defaultModelConstant,
		TimeoutSeconds: defaultTimeoutSecondsConstant,
	}
}

// Sanitize normalizes configuration values.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.BaseURL = strings.TrimSpace(configuration.BaseURL)

	apiKeyEnv := strings.TrimSpace(configuration.APIKeyEnv)
	if apiKeyEnv == "" {
		apiKeyEnv = defaultAPIKeyEnvironmentConstant
	}
	sanitized.APIKeyEnv = apiKeyEnv

	model := strings.TrimSpace(configuration.Model)
	if model == "" {
		model = defaultModelConstant
	}
	sanitized.Model = model

	if configuration.MaxCompletionTokens < 0 {
		sanitized.MaxCompletionTokens = 0
	}
	if configuration.Temperature < 0 {
		sanitized.Temperature = 0
	}
	if configuration.TimeoutSeconds <= 0 {
		sanitized.TimeoutSeconds = defaultTimeoutSecondsConstant
	}
	return sanitized
}
