// Package cmd wires the telepilot command tree.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seralabs/telepilot/internal/config"
	"github.com/seralabs/telepilot/internal/observability"
	"github.com/seralabs/telepilot/internal/server/handlers"
)

// VersionInfo carries build metadata injected by the linker.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo installs build metadata for --version and /version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
	rootCmd.Version = version
	handlers.SetVersionInfo(handlers.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
}

var rootCmd = &cobra.Command{
	Use:   "telepilot",
	Short: "Browser automation service for Telegram Web",
	Long: `telepilot drives Telegram Web through a real browser: multi-step
phone login (OTP and optional 2FA), saved-session reuse, and per-run
telemetry with markdown reports.

Run 'telepilot serve' for the HTTP API, or 'telepilot login' for an
interactive login from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootLogLevel string
	rootLogFile  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Override log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFile, "log-file", "", "Also write logs to this file (rotated)")
}

// loadConfig loads configuration with flag overrides applied, then
// initializes logging from the result.
func loadConfig(ctx context.Context) (*config.Config, error) {
	overrides := map[string]any{}
	if rootLogLevel != "" {
		overrides["logging"] = map[string]any{"level": rootLogLevel}
	}
	if rootLogFile != "" {
		logging, _ := overrides["logging"].(map[string]any)
		if logging == nil {
			logging = map[string]any{}
		}
		logging["file"] = rootLogFile
		overrides["logging"] = logging
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := observability.Init(observability.Options{
		Level:   cfg.Logging.Level,
		Profile: cfg.Logging.Profile,
		File:    cfg.Logging.File,
	}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
		return err
	}
	return nil
}
