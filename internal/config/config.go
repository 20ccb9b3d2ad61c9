// Package config handles configuration loading and management for devteam.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/devteam/pkg/models"
)

// ProjectConfigName is the per-project override file searched for upward from cwd.
const ProjectConfigName = ".devteam.yaml"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for devteam.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Team      TeamConfig      `mapstructure:"team"`
	Retry     RetryConfig     `mapstructure:"retry"`
	History   HistoryConfig   `mapstructure:"history"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LLMConfig holds language model settings shared by every agent.
type LLMConfig struct {
	Provider       string          `mapstructure:"provider"`
	ModelName      string          `mapstructure:"model_name"`
	Temperature    float64         `mapstructure:"temperature"`
	TopP           float64         `mapstructure:"top_p"`
	MaxTokens      int             `mapstructure:"max_tokens"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	OllamaHost     string          `mapstructure:"ollama_host"`
	Anthropic      AnthropicConfig `mapstructure:"anthropic"`
	OpenAI         OpenAIConfig    `mapstructure:"openai"`
}

// Timeout returns the per-call generation budget.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds settings for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// TeamConfig holds delegation and orchestration settings.
type TeamConfig struct {
	MaxRevisions        int    `mapstructure:"max_revisions"`
	DefaultAssigneeRole string `mapstructure:"default_assignee_role"`
	MaxParallel         int    `mapstructure:"max_parallel"`
	FailFast            bool   `mapstructure:"fail_fast"`
	Integrate           bool   `mapstructure:"integrate"`
	ProfilesFile        string `mapstructure:"profiles_file"`
	MaxContextMessages  int    `mapstructure:"max_context_messages"`
	SolveTimeoutSeconds int    `mapstructure:"solve_timeout_seconds"`
}

// SolveTimeout returns the budget of a whole solve. Zero means unbounded.
func (c TeamConfig) SolveTimeout() time.Duration {
	return time.Duration(c.SolveTimeoutSeconds) * time.Second
}

// DefaultRole returns the parsed fallback assignee role.
func (c TeamConfig) DefaultRole() models.Role {
	r, err := models.ParseRole(c.DefaultAssigneeRole)
	if err != nil {
		return models.RoleBackend
	}
	return r
}

// RetryConfig holds boundary retry settings.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// HistoryConfig holds archive settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// SignalsConfig holds the file-signal watcher settings.
type SignalsConfig struct {
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (DEVTEAM_*, OLLAMA_HOST, ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.devteam.yaml in current directory or parent)
// 3. User config (~/.config/devteam/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.Anthropic.APIKey = os.ExpandEnv(cfg.LLM.Anthropic.APIKey)
	cfg.LLM.OpenAI.APIKey = os.ExpandEnv(cfg.LLM.OpenAI.APIKey)
	cfg.History.DBPath = expandHome(cfg.History.DBPath)
	cfg.Team.ProfilesFile = expandHome(cfg.Team.ProfilesFile)

	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("DEVTEAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("llm.ollama_host", "DEVTEAM_LLM_OLLAMA_HOST", "OLLAMA_HOST")
	_ = v.BindEnv("llm.anthropic.api_key", "DEVTEAM_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai.api_key", "DEVTEAM_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.openai.base_url", "DEVTEAM_LLM_OPENAI_BASE_URL", "OPENAI_BASE_URL")
}

// Validate checks values that would otherwise fail deep inside a solve.
func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.Provider {
	case "ollama", "anthropic", "openai":
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not one of ollama, anthropic, openai", c.LLM.Provider))
	}
	if c.LLM.ModelName == "" {
		problems = append(problems, "llm.model_name is empty")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		problems = append(problems, "llm.timeout_seconds must be positive")
	}
	if c.Team.MaxRevisions < 0 {
		problems = append(problems, "team.max_revisions must not be negative")
	}
	if c.Team.MaxParallel < 0 {
		problems = append(problems, "team.max_parallel must not be negative")
	}
	if c.Team.MaxContextMessages < 0 {
		problems = append(problems, "team.max_context_messages must not be negative")
	}
	if c.Team.SolveTimeoutSeconds < 0 {
		problems = append(problems, "team.solve_timeout_seconds must not be negative")
	}
	if r, err := models.ParseRole(c.Team.DefaultAssigneeRole); err != nil || !r.IsWorker() {
		problems = append(problems, fmt.Sprintf("team.default_assignee_role %q is not a worker role", c.Team.DefaultAssigneeRole))
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("llm.provider", cfg.LLM.Provider)
	v.Set("llm.model_name", cfg.LLM.ModelName)
	v.Set("llm.temperature", cfg.LLM.Temperature)
	v.Set("llm.top_p", cfg.LLM.TopP)
	v.Set("llm.max_tokens", cfg.LLM.MaxTokens)
	v.Set("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.Set("llm.ollama_host", cfg.LLM.OllamaHost)
	v.Set("llm.anthropic.use_bedrock", cfg.LLM.Anthropic.UseBedrock)
	v.Set("llm.anthropic.aws_region", cfg.LLM.Anthropic.AWSRegion)
	v.Set("llm.anthropic.aws_profile", cfg.LLM.Anthropic.AWSProfile)
	v.Set("llm.openai.base_url", cfg.LLM.OpenAI.BaseURL)
	v.Set("team.max_revisions", cfg.Team.MaxRevisions)
	v.Set("team.default_assignee_role", cfg.Team.DefaultAssigneeRole)
	v.Set("team.max_parallel", cfg.Team.MaxParallel)
	v.Set("team.fail_fast", cfg.Team.FailFast)
	v.Set("team.integrate", cfg.Team.Integrate)
	v.Set("team.profiles_file", cfg.Team.ProfilesFile)
	v.Set("team.max_context_messages", cfg.Team.MaxContextMessages)
	v.Set("team.solve_timeout_seconds", cfg.Team.SolveTimeoutSeconds)
	v.Set("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.Set("retry.initial_interval", cfg.Retry.InitialInterval.String())
	v.Set("retry.max_interval", cfg.Retry.MaxInterval.String())
	v.Set("history.enabled", cfg.History.Enabled)
	v.Set("history.db_path", cfg.History.DBPath)
	v.Set("signals.dir", cfg.Signals.Dir)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.endpoint", cfg.Telemetry.Endpoint)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model_name", d.LLM.ModelName)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.top_p", d.LLM.TopP)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)
	v.SetDefault("llm.ollama_host", d.LLM.OllamaHost)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.use_bedrock", false)
	v.SetDefault("llm.anthropic.aws_region", "")
	v.SetDefault("llm.anthropic.aws_profile", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.base_url", "")

	v.SetDefault("team.max_revisions", d.Team.MaxRevisions)
	v.SetDefault("team.default_assignee_role", d.Team.DefaultAssigneeRole)
	v.SetDefault("team.max_parallel", d.Team.MaxParallel)
	v.SetDefault("team.fail_fast", d.Team.FailFast)
	v.SetDefault("team.integrate", d.Team.Integrate)
	v.SetDefault("team.profiles_file", "")
	v.SetDefault("team.max_context_messages", d.Team.MaxContextMessages)
	v.SetDefault("team.solve_timeout_seconds", d.Team.SolveTimeoutSeconds)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval.String())
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval.String())

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_path", d.History.DBPath)

	v.SetDefault("signals.dir", d.Signals.Dir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
}

// getUserConfigDir returns the XDG config directory for devteam.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "devteam")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "devteam")
	}
	return filepath.Join(home, ".config", "devteam")
}

// getUserDataDir returns the XDG data directory for devteam.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "devteam")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "devteam")
	}
	return filepath.Join(home, ".local", "share", "devteam")
}

// findProjectConfig searches for .devteam.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return os.ExpandEnv(p)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "ollama",
			ModelName:      "deepseek-r1:1.5b",
			Temperature:    0.7,
			TopP:           0.9,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
			OllamaHost:     "http://localhost:11434",
		},
		Team: TeamConfig{
			MaxRevisions:        2,
			DefaultAssigneeRole: string(models.RoleBackend),
			MaxParallel:         2,
			FailFast:            true,
			MaxContextMessages:  50,
			SolveTimeoutSeconds: 300,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			MaxInterval:     8 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(getUserDataDir(), "devteam.db"),
		},
		Signals: SignalsConfig{
			Dir: ".devteam",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
