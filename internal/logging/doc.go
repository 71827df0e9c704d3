// Package logging provides structured logging for purchasebot binaries.
//
// Logger wraps zap with:
//   - a Trace level below Debug
//   - stdout (or any writer) plus an optional OpenTelemetry bridge
//   - request and extraction-run correlation fields taken from the context
//   - redaction of Slack tokens, webhook URLs and bearer headers
//   - sampling below error level
//
// Library packages take a plain *zap.Logger; binaries build a Logger and
// hand its Underlying() logger down.
//
//	cfg, err := logging.NewConfig("info", "json")
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//	logger.Info(ctx, "request saved", zap.String("bucket", "2024-05"))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
