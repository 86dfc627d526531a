package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"anchoredit/engine/internal/config"
	"anchoredit/engine/internal/logging"
)

var (
	debugFlag bool

	rootCmd = &cobra.Command{
		Use:           "anchoredit",
		Short:         "Anchor-based document editing driven by a model, gated by human approval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging (also ANCHOREDIT_DEBUG)")
	rootCmd.AddCommand(serveCmd, chatCmd, applyCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "anchoredit:", err)
		os.Exit(1)
	}
}

// runtimeEnv is the shared setup for commands that run the engine.
type runtimeEnv struct {
	cfg    config.Config
	logger *slog.Logger
	close  func() error
}

// bootstrap loads .env and configuration, then sets up logging. fileLog sends
// logs to the data directory; otherwise they go to stderr.
func bootstrap(fileLog bool) (runtimeEnv, error) {
	envResult := config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return runtimeEnv{}, err
	}
	cfg.Debug = cfg.Debug || debugFlag

	env := runtimeEnv{cfg: cfg, close: func() error { return nil }}
	if fileLog {
		logSetup, logErr := logging.NewFileLogger(cfg.DataDir, cfg.Debug)
		env.logger = logSetup.Logger
		env.close = logSetup.Close
		if logSetup.Enabled {
			env.logger.Info("engine.logging_enabled", "path", logSetup.Path)
		}
		if logErr != nil {
			env.logger.Warn("engine.log_setup_failed", "error", logErr.Error())
		}
	} else {
		env.logger = logging.NewStderrLogger(cfg.Debug)
	}
	if env.logger == nil {
		env.logger = logging.Nop()
	}
	if envResult.Loaded {
		env.logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		env.logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	return env, nil
}
