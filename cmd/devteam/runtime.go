package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/internal/config"
	"github.com/ShayCichocki/devteam/internal/conversation"
	"github.com/ShayCichocki/devteam/internal/llm"
	"github.com/ShayCichocki/devteam/internal/logging"
	"github.com/ShayCichocki/devteam/internal/orchestrator"
	"github.com/ShayCichocki/devteam/internal/state"
	"github.com/ShayCichocki/devteam/internal/telemetry"
	"github.com/ShayCichocki/devteam/internal/version"
)

var (
	_ orchestrator.Recorder = (*state.DB)(nil)
	_ conversation.Archiver = (*state.DB)(nil)
)

const (
	// eventBufferSize is the capacity of the orchestrator event channel.
	eventBufferSize = 256
	// telemetryFlushTimeout bounds the final export on shutdown.
	telemetryFlushTimeout = 2 * time.Second
)

type runtimeOptions struct {
	// interactive turns the console log off so it cannot tear the TUI.
	interactive bool
	// events creates an event emitter. Only set it when something reads
	// the events, otherwise every emit waits out the send timeout.
	events bool
	// console overrides where log lines go. Nil means stderr.
	console io.Writer
}

// runtime is everything one command needs to run the team.
type runtime struct {
	logger  *zap.Logger
	orch    *orchestrator.Orchestrator
	emitter *orchestrator.EventEmitter
	db      *state.DB
	tokens  *llm.TokenTracker

	closeLog          func() error
	shutdownTelemetry telemetry.ShutdownFunc
}

// newRuntime wires configuration into a ready orchestrator.
func newRuntime(cfg *config.Config, opts runtimeOptions) (_ *runtime, err error) {
	console := opts.console
	if console == nil && !opts.interactive {
		console = os.Stderr
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: console,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	rt := &runtime{
		logger:   logger,
		tokens:   llm.NewTokenTracker(),
		closeLog: closeLog,
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.shutdownTelemetry, err = telemetry.Start(context.Background(), telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    "devteam",
		ServiceVersion: version.Get(),
	})
	if err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}

	gen, err := llm.New(llm.FactoryConfig{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.ModelName,
		OllamaHost:    cfg.LLM.OllamaHost,
		AnthropicKey:  cfg.LLM.Anthropic.APIKey,
		UseBedrock:    cfg.LLM.Anthropic.UseBedrock,
		AWSRegion:     cfg.LLM.Anthropic.AWSRegion,
		AWSProfile:    cfg.LLM.Anthropic.AWSProfile,
		OpenAIKey:     cfg.LLM.OpenAI.APIKey,
		OpenAIBaseURL: cfg.LLM.OpenAI.BaseURL,
		Tracker:       rt.tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}

	var profiles agent.Profiles
	if cfg.Team.ProfilesFile != "" {
		profiles, err = agent.LoadProfiles(cfg.Team.ProfilesFile)
		if err != nil {
			return nil, err
		}
	}

	team, err := agent.Build(gen, profiles, agent.Settings{
		Options: llm.Options{
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Timeout:            cfg.LLM.Timeout(),
		MaxContextMessages: cfg.Team.MaxContextMessages,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build team: %w", err)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if opts.events {
		rt.emitter = orchestrator.NewEventEmitter(eventBufferSize, logger)
		orchOpts = append(orchOpts, orchestrator.WithEventEmitter(rt.emitter))
	}
	if cfg.History.Enabled {
		db, err := state.Open(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		rt.db = db
		orchOpts = append(orchOpts, orchestrator.WithRecorder(db), orchestrator.WithArchiver(db))
	}

	rt.orch, err = orchestrator.New(team, orchestratorConfig(cfg), orchOpts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("runtime ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.ModelName),
		zap.Bool("history", cfg.History.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled))
	return rt, nil
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		MaxRevisions: cfg.Team.MaxRevisions,
		DefaultRole:  cfg.Team.DefaultRole(),
		MaxParallel:  cfg.Team.MaxParallel,
		FailFast:     cfg.Team.FailFast,
		Integrate:    cfg.Team.Integrate,
		SolveTimeout: cfg.Team.SolveTimeout(),
		Retry: agent.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
	}
}

// Close releases the history database, the emitter, the telemetry
// exporters and the log sinks.
func (r *runtime) Close() {
	if r.emitter != nil {
		r.emitter.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("close history", zap.Error(err))
		}
	}
	if r.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		if err := r.shutdownTelemetry(ctx); err != nil {
			r.logger.Warn("flush telemetry", zap.Error(err))
		}
		cancel()
	}
	if r.closeLog != nil {
		_ = r.closeLog()
	}
}
