package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/events"
	"github.com/fyrsmithlabs/purchasebot/internal/extraction"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// UnknownRequester is the requester name when no identity was found.
const UnknownRequester = "Unknown"

const instrumentationName = "github.com/fyrsmithlabs/purchasebot/internal/conversation"

// Service runs extraction passes over a channel.
type Service struct {
	history    History
	identities IdentityResolver
	writer     BucketWriter
	publisher  Publisher
	logger     *zap.Logger

	parser     extraction.Recognizer
	classifier *extraction.Classifier
	linker     *extraction.Linker
	location   *time.Location

	tracer  trace.Tracer
	records metric.Int64Counter
}

// ServiceConfig holds configuration for the extraction service.
type ServiceConfig struct {
	Classifier extraction.ClassifierConfig
	Linker     extraction.LinkerConfig

	// Location is the zone month buckets are computed in. Nil means the
	// process local zone.
	Location *time.Location

	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter
}

// DefaultServiceConfig returns the default classifier and linker tunables.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Classifier: extraction.DefaultClassifierConfig(),
		Linker:     extraction.DefaultLinkerConfig(),
	}
}

// NewService creates an extraction service. A nil publisher disables events.
func NewService(
	history History,
	identities IdentityResolver,
	writer BucketWriter,
	publisher Publisher,
	logger *zap.Logger,
	cfg ServiceConfig,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(instrumentationName)
	}
	records, err := cfg.Meter.Int64Counter("purchasebot.extraction.records",
		metric.WithDescription("Purchase requests recovered from channel history, by message format"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		logger.Warn("failed to create records counter", zap.Error(err))
	}
	return &Service{
		history:    history,
		identities: identities,
		writer:     writer,
		publisher:  publisher,
		logger:     logger,
		parser:     extraction.NewParser(),
		classifier: extraction.NewClassifier(cfg.Classifier),
		linker:     extraction.NewLinker(cfg.Linker),
		location:   cfg.Location,
		tracer:     cfg.Tracer,
		records:    records,
	}
}

// Extract fetches the channel timeline, recovers every purchase request it
// can, and persists the records by month. A message that yields no record
// is skipped; lookup failures degrade the record rather than abort the run.
func (s *Service) Extract(ctx context.Context, opts ExtractOptions) (result *ExtractResult, err error) {
	startTime := time.Now()
	ctx, span := s.tracer.Start(ctx, "extraction.run", trace.WithAttributes(
		attribute.String("channel", opts.Channel),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if result != nil {
			span.SetAttributes(
				attribute.Int("messages.fetched", result.MessagesFetched),
				attribute.Int("records", len(result.Records)),
				attribute.String("mode", string(result.Selection.Mode)),
			)
		}
		span.End()
	}()

	channelID, err := s.history.ChannelID(ctx, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("resolving channel %q: %w", opts.Channel, err)
	}
	s.logger.Info("starting extraction",
		zap.String("channel", opts.Channel),
		zap.String("channel_id", channelID),
		zap.Bool("dry_run", opts.DryRun),
	)

	timeline, histErr := s.history.History(ctx, channelID)
	if histErr != nil {
		s.logger.Warn("channel history incomplete",
			zap.Error(histErr),
			zap.Int("messages", len(timeline)),
		)
	}
	if len(timeline) == 0 {
		if histErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoMessages, histErr)
		}
		return nil, ErrNoMessages
	}

	sel := s.classifier.Select(timeline)
	s.logger.Info("selected working set",
		zap.String("mode", string(sel.Mode)),
		zap.Strings("senders", sel.Senders),
		zap.Int("messages", len(sel.Messages)),
	)

	result = &ExtractResult{
		ChannelID:        channelID,
		MessagesFetched:  len(timeline),
		MessagesAnalyzed: len(sel.Messages),
		Selection:        sel,
		Buckets:          make(map[string][]purchase.Record),
		ByMonth:          make(map[string]int),
		ByFormat:         make(map[purchase.FormatType]int),
		HistoryErr:       histErr,
	}

	sorted := purchase.SortByTimestamp(sel.Messages)
	for i, msg := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, ok := s.parser.Recognize(msg.Text)
		if !ok {
			continue
		}
		rec = s.complete(ctx, sorted, i, rec)

		bucket := purchase.MonthBucket(msg.Timestamp, s.location)
		result.Buckets[bucket] = append(result.Buckets[bucket], rec)
		result.Records = append(result.Records, rec)
		result.ByMonth[bucket]++
		result.ByFormat[rec.Format]++
		if s.records != nil {
			s.records.Add(ctx, 1, metric.WithAttributes(attribute.String("format", string(rec.Format))))
		}

		s.logger.Debug("found request",
			zap.String("format", string(rec.Format)),
			zap.String("confidence", string(rec.Confidence)),
			zap.String("requester", rec.RequesterName),
			zap.String("item", rec.ItemName),
		)
	}

	if !opts.DryRun && len(result.Buckets) > 0 {
		files, err := s.writer.WriteBuckets(result.Buckets)
		result.Files = files
		if err != nil {
			return result, fmt.Errorf("saving requests: %w", err)
		}
	}

	if !opts.DryRun {
		s.announce(ctx, opts.Channel, result)
	}

	s.logger.Info("extraction complete",
		zap.Int("fetched", result.MessagesFetched),
		zap.Int("analyzed", result.MessagesAnalyzed),
		zap.Int("records", len(result.Records)),
		zap.Int("months", len(result.Buckets)),
		zap.Int("files", len(result.Files)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return result, nil
}

// complete fills in requester identity and timestamps for a record parsed
// from timeline[idx].
func (s *Service) complete(ctx context.Context, timeline []purchase.ChatMessage, idx int, rec purchase.Record) purchase.Record {
	msg := timeline[idx]
	rec.SlackTimestamp = msg.Timestamp
	rec.ExtractedDate = purchase.ExtractedDate(msg.Timestamp, s.location)

	switch {
	case rec.Format == purchase.FormatDirectCommand && msg.Sender != "":
		rec.RequesterID = msg.Sender
		rec.IdentitySource = purchase.IdentityCommand
	default:
		if sender, ok := s.linker.Resolve(timeline, idx, rec); ok {
			rec.RequesterID = sender
			rec.IdentitySource = purchase.IdentityLinked
		} else if msg.Sender != "" {
			rec.RequesterID = msg.Sender
			rec.IdentitySource = purchase.IdentitySender
		}
	}

	switch {
	case rec.RequesterID != "":
		rec.RequesterName = s.identities.Resolve(ctx, rec.RequesterID)
	case rec.RequesterName == "":
		rec.RequesterName = UnknownRequester
	}
	return rec
}

func (s *Service) announce(ctx context.Context, channel string, result *ExtractResult) {
	summary := Summary{
		Channel:          channel,
		Mode:             result.Selection.Mode,
		Senders:          result.Selection.Senders,
		MessagesFetched:  result.MessagesFetched,
		MessagesAnalyzed: result.MessagesAnalyzed,
		Records:          len(result.Records),
		ByMonth:          result.ByMonth,
		ByFormat:         result.ByFormat,
		Partial:          result.HistoryErr != nil,
	}
	if err := s.publisher.Publish(ctx, events.SubjectExtractionCompleted, summary); err != nil {
		s.logger.Warn("publishing extraction summary failed", zap.Error(err))
	}
}
