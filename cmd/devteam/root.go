package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/config"
	"github.com/ShayCichocki/devteam/internal/notify"
	"github.com/ShayCichocki/devteam/internal/tui"
	"github.com/ShayCichocki/devteam/internal/version"
)

var (
	flagVerbose    bool
	flagModel      string
	flagProvider   string
	flagConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "devteam",
	Short: "A coordinator with a frontend and a backend developer",
	Long: `devteam hands a software request to a small team of language model agents.

The coordinator splits the request into subtasks, delegates each one to the
frontend or backend developer, reviews what comes back and asks for revisions
until the work is accepted or the revision limit is reached.

With no arguments, launches interactive mode where you can type requests and
watch the team work on them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output and print team events")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model name (overrides llm.model_name)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider: ollama, anthropic or openai (overrides llm.provider)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file to use instead of the user and project files")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration, applies the global flags and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := loadConfigUnvalidated()
	if err != nil {
		return nil, err
	}
	applyGlobalFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigUnvalidated loads config for editing, so a bad value can be fixed.
func loadConfigUnvalidated() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigPath != "" {
		cfg, err = config.LoadFromPath(flagConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func applyGlobalFlags(cfg *config.Config) {
	if flagProvider != "" {
		cfg.LLM.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.LLM.ModelName = flagModel
	}
	if flagVerbose {
		cfg.Log.Level = "debug"
	}
}

// runInteractive starts the TUI. Requests typed into it are solved one at a time.
func runInteractive(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg, runtimeOptions{interactive: true, events: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	solve := func(ctx context.Context, request string) (string, error) {
		ctx, release := watchKill(ctx, cfg.Signals.Dir, rt.logger)
		defer release()
		return rt.orch.Solve(ctx, request)
	}

	app := tui.NewApp(solve, rt.emitter.Events(), version.Get())
	if err := tui.Run(ctx, app); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

// watchKill cancels the returned context when `devteam stop` writes a kill
// file. If no watcher can be started ctx is returned unchanged.
func watchKill(ctx context.Context, dir string, logger *zap.Logger) (context.Context, func()) {
	watcher, err := notify.New(dir, logger)
	if err != nil {
		logger.Warn("kill signal watcher disabled", zap.String("dir", dir), zap.Error(err))
		return ctx, func() {}
	}
	ctx, cancel := watcher.Watch(ctx)
	return ctx, func() {
		cancel()
		_ = watcher.Close()
		_ = watcher.Clear()
	}
}
