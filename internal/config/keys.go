package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when a hosted provider has no API key configured.
var ErrNoAPIKey = errors.New("no API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "aws_credentials"
	KeySourceNone    KeySource = "none"
)

// envKeyFor names the conventional environment variable for a provider.
func envKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func configKeyFor(cfg *Config, provider string) string {
	if cfg == nil {
		return ""
	}
	switch provider {
	case "anthropic":
		return cfg.LLM.Anthropic.APIKey
	case "openai":
		return cfg.LLM.OpenAI.APIKey
	default:
		return ""
	}
}

// GetAPIKey returns the API key for the configured provider.
// It checks in order: environment variable, config file.
// Ollama needs no key and always returns an empty key with no error.
func GetAPIKey(cfg *Config) (string, error) {
	provider := cfg.LLM.Provider
	if provider == "ollama" || (provider == "anthropic" && cfg.LLM.Anthropic.UseBedrock) {
		return "", nil
	}

	if env := envKeyFor(provider); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}

	if key := os.ExpandEnv(configKeyFor(cfg, provider)); key != "" && !strings.HasPrefix(key, "${") {
		return key, nil
	}

	// OpenAI-compatible local servers often run without auth.
	if provider == "openai" && cfg.LLM.OpenAI.BaseURL != "" {
		return "", nil
	}

	return "", ErrNoAPIKey
}

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	provider := cfg.LLM.Provider
	if provider == "anthropic" && cfg.LLM.Anthropic.UseBedrock {
		return KeySourceBedrock
	}
	if env := envKeyFor(provider); env != "" && os.Getenv(env) != "" {
		return KeySourceEnv
	}
	if key := os.ExpandEnv(configKeyFor(cfg, provider)); key != "" && !strings.HasPrefix(key, "${") {
		return KeySourceConfig
	}
	return KeySourceNone
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}
