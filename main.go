// NErase serves a single-page background remover backed by remove.bg.
//
// Configuration comes from the environment (and an optional .env file):
// REMOVE_BG_API_KEY, HOST, PORT, HISTORY_DB and friends; see core.LoadConfig.
package main

import (
	"context"
	"fmt"
	"os"

	"nerase/core"
	"nerase/core/validation"
	"nerase/logging"
	"nerase/shutdown"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if handled, err := HandleServiceCommand(os.Args, os.Stdout, run); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	if isService, err := RunAsService(run); isService {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	if code := exitCodeFor(run(context.Background()), os.Stderr); code != core.ExitCodeSuccess {
		os.Exit(code)
	}
}

// run loads configuration, starts the app and blocks until it has shut down.
// A signal-driven shutdown returns an exitStatus carrying 130 or 143.
func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: failed to read .env: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}

	checks := validation.NewValidationSuite().WithSkipNetwork(cfg.SkipNetworkChecks).Validate(ctx, cfg)
	if !checks.Success {
		return checks.GetFirstError()
	}

	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		Level:       cfg.LogLevel,
		File: logging.FileWriterConfig{
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
			Compress:   true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Configuration loaded",
		zap.String("version", core.Version),
		zap.String("listen", cfg.ListenAddr()),
		zap.String("removebg_url", cfg.RemoveBGURL),
		zap.Bool("api_key_set", cfg.HasAPIKey()),
		zap.Duration("removebg_timeout", cfg.RemoveBGTimeout),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
		zap.Int64("max_file_size", cfg.MaxFileSize),
		zap.Bool("history", cfg.HistoryEnabled()),
		zap.Bool("dev_mode", cfg.DevMode),
	)
	for _, step := range checks.Steps {
		if step.Status == validation.StepWarning {
			logger.Warn("Startup check warning",
				zap.String("check", step.Name),
				zap.String("message", step.Message),
				zap.Error(step.Error))
		}
	}

	mgr := shutdown.NewManager(logger)
	app, err := NewApp(cfg, logger, mgr)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		_ = logger.Sync()
		return err
	}

	core.PrintBanner(os.Stdout, cfg, app.SampleCount())
	mgr.Start()

	err = app.Run(ctx)
	code := mgr.ExitCode()
	logger.Info("Goodbye!",
		zap.String("exit", core.ExitCodeName(code)),
		zap.Bool("signalled", core.IsSignalExit(code)))
	_ = logger.Sync()
	return shutdownResult(err, code)
}
