package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/conversation"
	"github.com/fyrsmithlabs/purchasebot/internal/events"
	"github.com/fyrsmithlabs/purchasebot/internal/identity"
	"github.com/fyrsmithlabs/purchasebot/internal/logging"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
	"github.com/fyrsmithlabs/purchasebot/internal/slackclient"
	"github.com/fyrsmithlabs/purchasebot/internal/storage"
)

var (
	extractDryRun    bool
	extractExportDir string
	extractChannel   string
	extractJSON      bool
)

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "Analyze without writing files or publishing events")
	extractCmd.Flags().StringVar(&extractExportDir, "export-dir", "", "Read a workspace export directory instead of the Web API")
	extractCmd.Flags().StringVar(&extractChannel, "channel", "", "Channel to extract (default slack.channel)")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print the run summary as JSON")
}

// extractCmd recovers purchase requests from channel history
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Recover historical purchase requests from channel history",
	Long: `Fetch the full history of the channel, pick the messages worth parsing,
recognize purchase requests in every known message format, link each
bot acknowledgment to the message that triggered it, and write the
records by month under <storage.root>/purchase_requests/historical/.

Existing month files for the buckets found are overwritten.

Examples:
  # Extract from the configured channel
  purchasebot extract

  # Preview without writing anything
  purchasebot extract --dry-run

  # Extract offline from a workspace export
  purchasebot extract --export-dir ./export --channel purchase-requests`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := a.cfg
	if extractChannel != "" {
		cfg.Slack.Channel = extractChannel
	}
	if err := cfg.RequireStorage(); err != nil {
		return err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := a.logger.Underlying().With(zap.String("run.id", runID))

	var (
		history conversation.History
		lookup  identity.Lookup = noLookup{}
	)
	if extractExportDir != "" {
		if cfg.Slack.Channel == "" {
			return fmt.Errorf("--channel is required with --export-dir")
		}
		history = conversation.NewExportReader(extractExportDir)
	} else {
		if err := cfg.RequireSlack(); err != nil {
			return err
		}
		client, err := slackclient.New(slackclient.Config{
			Token:     cfg.Slack.BotToken.Value(),
			APIURL:    cfg.Slack.APIURL,
			RateLimit: cfg.Slack.RateLimit,
			Burst:     cfg.Slack.RateBurst,
		}, logger.Named("slack"))
		if err != nil {
			return fmt.Errorf("creating slack client: %w", err)
		}
		history = client
		lookup = client
	}

	store, err := storage.NewStore(cfg.Storage.Root, storage.HistoricalLayout, logger.Named("storage"))
	if err != nil {
		return err
	}

	var pub events.Publisher = events.Nop{}
	if !extractDryRun {
		pub, err = newPublisher(cfg.Events.NATSURL, logger)
		if err != nil {
			return err
		}
	}
	defer pub.Close()

	const scope = "github.com/fyrsmithlabs/purchasebot/internal/conversation"
	svcCfg := conversation.DefaultServiceConfig()
	svcCfg.Tracer = a.telemetry.Tracer(scope)
	svcCfg.Meter = a.telemetry.Meter(scope)

	svc := conversation.NewService(
		history,
		identity.NewResolver(lookup, logger.Named("identity")),
		store,
		pub,
		logger.Named("extraction"),
		svcCfg,
	)

	result, err := svc.Extract(ctx, conversation.ExtractOptions{
		Channel: cfg.Slack.Channel,
		DryRun:  extractDryRun,
	})
	if err != nil {
		return err
	}

	if extractJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printSummary(cmd.OutOrStdout(), result, extractDryRun)
	return nil
}

func printSummary(w io.Writer, result *conversation.ExtractResult, dryRun bool) {
	fmt.Fprintf(w, "Channel:  %s\n", result.ChannelID)
	fmt.Fprintf(w, "Messages: %d fetched, %d analyzed (%s)\n",
		result.MessagesFetched, result.MessagesAnalyzed, result.Selection.Mode)
	if len(result.Selection.Senders) > 0 {
		fmt.Fprintf(w, "Senders:  %v\n", result.Selection.Senders)
	}
	fmt.Fprintf(w, "Records:  %d\n", len(result.Records))

	months := make([]string, 0, len(result.ByMonth))
	for m := range result.ByMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		fmt.Fprintf(w, "  %s: %d\n", m, result.ByMonth[m])
	}

	formats := make([]purchase.FormatType, 0, len(result.ByFormat))
	for f := range result.ByFormat {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	for _, f := range formats {
		fmt.Fprintf(w, "  %s: %d\n", f, result.ByFormat[f])
	}

	if result.HistoryErr != nil {
		fmt.Fprintf(w, "Warning: history was only partially read: %v\n", result.HistoryErr)
	}
	if dryRun {
		fmt.Fprintln(w, "Dry run, nothing written.")
		return
	}
	for _, f := range result.Files {
		fmt.Fprintf(w, "Wrote %s\n", f)
	}
}

// noLookup resolves nothing, so every sender keeps its id.
type noLookup struct{}

func (noLookup) DisplayName(context.Context, string) (string, bool) { return "", false }
