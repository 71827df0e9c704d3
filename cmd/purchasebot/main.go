// Package main implements the purchasebot CLI: the slash-command server and
// the offline tools that recover purchase requests from channel history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/config"
	"github.com/fyrsmithlabs/purchasebot/internal/logging"
	"github.com/fyrsmithlabs/purchasebot/internal/telemetry"
)

var (
	// configPath overrides the default config file location
	configPath string
	// logLevel overrides log.level from the config
	logLevel string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "purchasebot",
	Short: "Slack purchase request bot",
	Long: `purchasebot records purchase requests submitted through the /purchase_request
slash command and recovers historical requests from a channel's history.

Configuration is read from ~/.config/purchasebot/config.yaml and from
environment variables such as SLACK_BOT_TOKEN, SLACK_CHANNEL and
STORAGE_ROOT.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/purchasebot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the purchasebot version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("purchasebot %s\n", version)
	},
}

// app bundles what every long-running command needs.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// setup loads configuration and starts telemetry, then logging on top of
// its log provider. The returned cleanup flushes both.
func setup(ctx context.Context) (*app, func(), error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.NewConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("logging config: %w", err)
	}
	logCfg.Output.OTEL = tel.LoggerProvider() != nil
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	if degraded, cause := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(cause))
	}

	cleanup := func() {
		_ = logger.Sync()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.ShutdownWait)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	return &app{cfg: cfg, logger: logger, telemetry: tel}, cleanup, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
