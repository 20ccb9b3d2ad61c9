package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/internal/config"
)

var (
	initForce        bool
	initWithProfiles bool
)

const profilesFileName = "profiles.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up devteam in the current directory",
	Long: `Initialize devteam for the project in the current directory.

This will:
  - Check that the configured LLM provider has credentials
  - Create the signals directory used by 'devteam stop'
  - Add the signals directory to .gitignore, if there is one
  - Write a .devteam.yaml project config

With --with-profiles the built-in agent personas are written to
.devteam/profiles.yaml so they can be edited.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing project config")
	initCmd.Flags().BoolVar(&initWithProfiles, "with-profiles", false, "Write editable agent profiles")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnvalidated()
	if err != nil {
		return err
	}
	applyGlobalFlags(cfg)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing devteam in %s...\n\n", cwd)

	keyMissing := checkProvider(cmd, cfg)

	signalsDir := filepath.Join(cwd, cfg.Signals.Dir, "signals")
	if filepath.IsAbs(cfg.Signals.Dir) {
		signalsDir = filepath.Join(cfg.Signals.Dir, "signals")
	}
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	printStatus(out, "✓", "Created "+signalsDir, color.FgGreen)

	if updated, err := updateGitignore(cwd, cfg.Signals.Dir); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	} else if updated {
		printStatus(out, "✓", "Updated .gitignore", color.FgGreen)
	}

	profilesPath := ""
	if initWithProfiles {
		profilesPath = filepath.Join(cfg.Signals.Dir, profilesFileName)
		if err := writeProfiles(filepath.Join(cwd, profilesPath)); err != nil {
			return err
		}
		printStatus(out, "✓", "Wrote "+profilesPath, color.FgGreen)
	}

	projectConfig := filepath.Join(cwd, config.ProjectConfigName)
	if _, err := os.Stat(projectConfig); err == nil && !initForce {
		printStatus(out, "⚠", config.ProjectConfigName+" exists, use --force to overwrite", color.FgYellow)
	} else {
		if err := writeProjectConfig(projectConfig, cfg, profilesPath); err != nil {
			return err
		}
		printStatus(out, "✓", "Wrote "+config.ProjectConfigName, color.FgGreen)
	}

	fmt.Fprintf(out, "\n%s devteam initialization complete!\n\n", color.GreenString("✓"))
	fmt.Fprintln(out, "Next steps:")
	if keyMissing != "" {
		fmt.Fprintf(out, "  export %s=your-key-here\n", keyMissing)
	}
	fmt.Fprintln(out, `  devteam solve "your request here"`)
	fmt.Fprintln(out, "  # or: devteam (for interactive mode)")
	return nil
}

// checkProvider reports whether the configured provider can authenticate.
// It returns the name of the missing environment variable, if any.
func checkProvider(cmd *cobra.Command, cfg *config.Config) string {
	out := cmd.OutOrStdout()
	switch cfg.LLM.Provider {
	case "ollama":
		printStatus(out, "✓", fmt.Sprintf("Using Ollama at %s with %s", cfg.LLM.OllamaHost, cfg.LLM.ModelName), color.FgGreen)
		return ""
	case "anthropic", "openai":
	default:
		printStatus(out, "✗", fmt.Sprintf("Unknown provider %q", cfg.LLM.Provider), color.FgRed)
		return ""
	}

	key, err := config.GetAPIKey(cfg)
	if errors.Is(err, config.ErrNoAPIKey) {
		env := strings.ToUpper(cfg.LLM.Provider) + "_API_KEY"
		printStatus(out, "⚠", env+" not set (you can set it later)", color.FgYellow)
		return env
	}
	source := config.GetAPIKeySource(cfg)
	if source == config.KeySourceBedrock {
		printStatus(out, "✓", "Anthropic via Bedrock, AWS credentials come from the default chain", color.FgGreen)
		return ""
	}
	printStatus(out, "✓", fmt.Sprintf("%s API key %s (from %s)", cfg.LLM.Provider, config.MaskAPIKey(key), source), color.FgGreen)
	return ""
}

// updateGitignore appends the signals directory to an existing .gitignore.
func updateGitignore(dir, entry string) (bool, error) {
	if filepath.IsAbs(entry) {
		return false, nil
	}
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	line := strings.TrimSuffix(entry, "/") + "/"
	for _, existing := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(existing) == line {
			return false, nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n# devteam\n" + line + "\n"
	return true, os.WriteFile(path, []byte(content), 0644)
}

type projectTeamConfig struct {
	MaxRevisions        int    `yaml:"max_revisions"`
	DefaultAssigneeRole string `yaml:"default_assignee_role"`
	MaxParallel         int    `yaml:"max_parallel"`
	FailFast            bool   `yaml:"fail_fast"`
	Integrate           bool   `yaml:"integrate"`
	ProfilesFile        string `yaml:"profiles_file,omitempty"`
}

type projectLLMConfig struct {
	Provider  string `yaml:"provider"`
	ModelName string `yaml:"model_name"`
}

type projectConfig struct {
	LLM  projectLLMConfig  `yaml:"llm"`
	Team projectTeamConfig `yaml:"team"`
}

func writeProjectConfig(path string, cfg *config.Config, profilesPath string) error {
	pc := projectConfig{
		LLM: projectLLMConfig{
			Provider:  cfg.LLM.Provider,
			ModelName: cfg.LLM.ModelName,
		},
		Team: projectTeamConfig{
			MaxRevisions:        cfg.Team.MaxRevisions,
			DefaultAssigneeRole: cfg.Team.DefaultAssigneeRole,
			MaxParallel:         cfg.Team.MaxParallel,
			FailFast:            cfg.Team.FailFast,
			Integrate:           cfg.Team.Integrate,
			ProfilesFile:        profilesPath,
		},
	}
	data, err := yaml.Marshal(pc)
	if err != nil {
		return fmt.Errorf("encode project config: %w", err)
	}
	header := "# devteam project configuration. Values here override ~/.config/devteam/config.yaml.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeProfiles(path string) error {
	if _, err := os.Stat(path); err == nil && !initForce {
		return nil
	}
	data, err := yaml.Marshal(agent.DefaultProfiles())
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
