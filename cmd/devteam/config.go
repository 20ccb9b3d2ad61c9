package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/devteam/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify devteam configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/devteam/config.yaml
Project-specific overrides can be placed in .devteam.yaml
API keys are read from the environment and cannot be set here.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigUnvalidated()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config files in use",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Fprintf(out, "project: %s\n", p)
		}
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
}

// configField reads and writes one dot-notation key.
type configField struct {
	key string
	get func(*config.Config) string
	set func(*config.Config, string) error
}

func stringField(key string, ptr func(*config.Config) *string) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return *ptr(c) },
		set: func(c *config.Config, v string) error { *ptr(c) = v; return nil },
	}
}

func intField(key string, ptr func(*config.Config) *int) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*ptr(c) = n
			return nil
		},
	}
}

func floatField(key string, ptr func(*config.Config) *float64) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.FormatFloat(*ptr(c), 'g', -1, 64) },
		set: func(c *config.Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*ptr(c) = f
			return nil
		},
	}
}

func boolField(key string, ptr func(*config.Config) *bool) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return strconv.FormatBool(*ptr(c)) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean for %s: %w", key, err)
			}
			*ptr(c) = b
			return nil
		},
	}
}

func durationField(key string, ptr func(*config.Config) *time.Duration) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return ptr(c).String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", key, err)
			}
			*ptr(c) = d
			return nil
		},
	}
}

func secretField(key string, ptr func(*config.Config) *string) configField {
	return configField{
		key: key,
		get: func(c *config.Config) string { return config.MaskAPIKey(*ptr(c)) },
		set: func(*config.Config, string) error {
			return fmt.Errorf("%s is read from the environment and cannot be set here", key)
		},
	}
}

var configFields = []configField{
	stringField("llm.provider", func(c *config.Config) *string { return &c.LLM.Provider }),
	stringField("llm.model_name", func(c *config.Config) *string { return &c.LLM.ModelName }),
	floatField("llm.temperature", func(c *config.Config) *float64 { return &c.LLM.Temperature }),
	floatField("llm.top_p", func(c *config.Config) *float64 { return &c.LLM.TopP }),
	intField("llm.max_tokens", func(c *config.Config) *int { return &c.LLM.MaxTokens }),
	intField("llm.timeout_seconds", func(c *config.Config) *int { return &c.LLM.TimeoutSeconds }),
	stringField("llm.ollama_host", func(c *config.Config) *string { return &c.LLM.OllamaHost }),
	secretField("llm.anthropic.api_key", func(c *config.Config) *string { return &c.LLM.Anthropic.APIKey }),
	boolField("llm.anthropic.use_bedrock", func(c *config.Config) *bool { return &c.LLM.Anthropic.UseBedrock }),
	stringField("llm.anthropic.aws_region", func(c *config.Config) *string { return &c.LLM.Anthropic.AWSRegion }),
	stringField("llm.anthropic.aws_profile", func(c *config.Config) *string { return &c.LLM.Anthropic.AWSProfile }),
	secretField("llm.openai.api_key", func(c *config.Config) *string { return &c.LLM.OpenAI.APIKey }),
	stringField("llm.openai.base_url", func(c *config.Config) *string { return &c.LLM.OpenAI.BaseURL }),
	intField("team.max_revisions", func(c *config.Config) *int { return &c.Team.MaxRevisions }),
	stringField("team.default_assignee_role", func(c *config.Config) *string { return &c.Team.DefaultAssigneeRole }),
	intField("team.max_parallel", func(c *config.Config) *int { return &c.Team.MaxParallel }),
	boolField("team.fail_fast", func(c *config.Config) *bool { return &c.Team.FailFast }),
	boolField("team.integrate", func(c *config.Config) *bool { return &c.Team.Integrate }),
	stringField("team.profiles_file", func(c *config.Config) *string { return &c.Team.ProfilesFile }),
	intField("team.max_context_messages", func(c *config.Config) *int { return &c.Team.MaxContextMessages }),
	intField("team.solve_timeout_seconds", func(c *config.Config) *int { return &c.Team.SolveTimeoutSeconds }),
	intField("retry.max_attempts", func(c *config.Config) *int { return &c.Retry.MaxAttempts }),
	durationField("retry.initial_interval", func(c *config.Config) *time.Duration { return &c.Retry.InitialInterval }),
	durationField("retry.max_interval", func(c *config.Config) *time.Duration { return &c.Retry.MaxInterval }),
	boolField("history.enabled", func(c *config.Config) *bool { return &c.History.Enabled }),
	stringField("history.db_path", func(c *config.Config) *string { return &c.History.DBPath }),
	stringField("signals.dir", func(c *config.Config) *string { return &c.Signals.Dir }),
	stringField("log.level", func(c *config.Config) *string { return &c.Log.Level }),
	stringField("log.file", func(c *config.Config) *string { return &c.Log.File }),
	boolField("telemetry.enabled", func(c *config.Config) *bool { return &c.Telemetry.Enabled }),
	stringField("telemetry.endpoint", func(c *config.Config) *string { return &c.Telemetry.Endpoint }),
}

func lookupField(key string) (configField, error) {
	key = strings.ToLower(key)
	for _, f := range configFields {
		if f.key == key {
			return f, nil
		}
	}
	return configField{}, fmt.Errorf("unknown configuration key: %s", key)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, f := range configFields {
		fmt.Fprintf(w, "%s: %s\n", f.key, f.get(cfg))
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	f, err := lookupField(key)
	if err != nil {
		return "", err
	}
	return f.get(cfg), nil
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	f, err := lookupField(key)
	if err != nil {
		return err
	}
	return f.set(cfg, value)
}
