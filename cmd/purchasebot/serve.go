package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/events"
	httpserver "github.com/fyrsmithlabs/purchasebot/internal/http"
	"github.com/fyrsmithlabs/purchasebot/internal/slackclient"
	"github.com/fyrsmithlabs/purchasebot/internal/storage"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serveCmd runs the slash-command endpoint
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the /purchase_request slash command",
	Long: `Start the HTTP server that receives /purchase_request slash commands.

Each valid submission is appended to the current month's JSON and CSV
files under <storage.root>/purchase_requests/ and announced in the
configured channel. The server also exposes /health and /metrics.

Examples:
  # Serve with ~/.config/purchasebot/config.yaml
  purchasebot serve

  # Serve with an explicit config and verbose logs
  purchasebot serve --config /etc/purchasebot/config.yaml --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := a.cfg
	if err := cfg.RequireSlack(); err != nil {
		return err
	}
	if err := cfg.RequireStorage(); err != nil {
		return err
	}
	logger := a.logger.Underlying()

	client, err := slackclient.New(slackclient.Config{
		Token:     cfg.Slack.BotToken.Value(),
		APIURL:    cfg.Slack.APIURL,
		RateLimit: cfg.Slack.RateLimit,
		Burst:     cfg.Slack.RateBurst,
	}, logger.Named("slack"))
	if err != nil {
		return fmt.Errorf("creating slack client: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.Root, storage.LiveLayout, logger.Named("storage"))
	if err != nil {
		return err
	}

	pub, err := newPublisher(cfg.Events.NATSURL, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	srv, err := httpserver.NewServer(httpserver.Deps{
		Notifier:  client,
		Directory: client,
		Store:     store,
		Publisher: pub,
		Tracer:    a.telemetry.Tracer("github.com/fyrsmithlabs/purchasebot/internal/http"),
	}, logger.Named("http"), &httpserver.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		Channel:       cfg.Slack.Channel,
		SigningSecret: cfg.Slack.SigningSecret.Value(),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if !cfg.Slack.SigningSecret.IsSet() {
		logger.Warn("slack.signing_secret not set, requests are not verified")
	}

	logger.Info("starting purchasebot",
		zap.String("version", version),
		zap.String("addr", srv.Addr()),
		zap.String("channel", cfg.Slack.Channel),
		zap.String("storage", store.Dir()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := withTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newPublisher connects to NATS when url is set and otherwise returns a
// publisher that drops every event.
func newPublisher(url string, logger *zap.Logger) (events.Publisher, error) {
	if url == "" {
		return events.Nop{}, nil
	}
	p, err := events.Connect(url, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return p, nil
}
