package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/purchasebot/internal/events"
	"github.com/fyrsmithlabs/purchasebot/internal/extraction"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
	"github.com/fyrsmithlabs/purchasebot/internal/telemetry"
)

type fakeHistory struct {
	channels map[string]string
	messages []purchase.ChatMessage
	err      error
}

func (f *fakeHistory) ChannelID(_ context.Context, name string) (string, error) {
	if id, ok := f.channels[name]; ok {
		return id, nil
	}
	return "", ErrChannelNotFound
}

func (f *fakeHistory) History(_ context.Context, _ string) ([]purchase.ChatMessage, error) {
	return f.messages, f.err
}

type fakeResolver struct {
	names map[string]string
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, id string) string {
	f.calls++
	if n, ok := f.names[id]; ok {
		return n
	}
	return id
}

type fakeWriter struct {
	buckets map[string][]purchase.Record
	err     error
}

func (f *fakeWriter) WriteBuckets(b map[string][]purchase.Record) ([]string, error) {
	f.buckets = b
	var files []string
	for k := range b {
		files = append(files, "historical_requests_"+k+".json")
	}
	return files, f.err
}

type fakePublisher struct {
	subjects []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data any) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

type fixture struct {
	history   *fakeHistory
	resolver  *fakeResolver
	writer    *fakeWriter
	publisher *fakePublisher
	svc       *Service
}

func newFixture(t *testing.T, msgs []purchase.ChatMessage, logger *zap.Logger) *fixture {
	t.Helper()
	f := &fixture{
		history:   &fakeHistory{channels: map[string]string{"#lab-orders": "C123"}, messages: msgs},
		resolver:  &fakeResolver{names: map[string]string{"U1": "Uma", "BOT": "Order Bot"}},
		writer:    &fakeWriter{},
		publisher: &fakePublisher{},
	}
	cfg := DefaultServiceConfig()
	cfg.Location = time.UTC
	f.svc = NewService(f.history, f.resolver, f.writer, f.publisher, logger, cfg)
	return f
}

func notification(requester, item string) string {
	return purchase.NotificationText(requester, purchase.Submission{
		Item:          item,
		Quantity:      "1",
		CatalogNumber: "X-1",
		Link:          "https://example.com",
		Date:          "2024-05-01",
	})
}

func TestService_Extract_DirectCommand(t *testing.T) {
	f := newFixture(t, []purchase.ChatMessage{
		{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
	}, zap.NewNop())

	result, err := f.svc.Extract(context.Background(), ExtractOptions{Channel: "#lab-orders"})
	require.NoError(t, err)

	assert.Equal(t, "C123", result.ChannelID)
	assert.Equal(t, extraction.ModeDirectSubmitters, result.Selection.Mode)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, purchase.FormatDirectCommand, rec.Format)
	assert.Equal(t, purchase.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, "U1", rec.RequesterID)
	assert.Equal(t, "Uma", rec.RequesterName)
	assert.Equal(t, purchase.IdentityCommand, rec.IdentitySource)
	assert.Equal(t, "Beakers", rec.ItemName)
	assert.Equal(t, "1000", rec.SlackTimestamp)
	assert.Equal(t, "1970-01-01 00:16:40", rec.ExtractedDate)

	require.Contains(t, f.writer.buckets, "1970-01")
	assert.Len(t, f.writer.buckets, 1)
	assert.Equal(t, map[string]int{"1970-01": 1}, result.ByMonth)
	assert.Equal(t, map[purchase.FormatType]int{purchase.FormatDirectCommand: 1}, result.ByFormat)
	assert.Len(t, result.Files, 1)

	require.Equal(t, []string{events.SubjectExtractionCompleted}, f.publisher.subjects)
	summary, ok := f.publisher.payloads[0].(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Records)
	assert.False(t, summary.Partial)
}

func TestService_Extract_AutomatedSource(t *testing.T) {
	var msgs []purchase.ChatMessage
	for i := 0; i < 6; i++ {
		msgs = append(msgs, purchase.ChatMessage{
			Sender:    "BOT",
			Timestamp: fmt.Sprintf("%d", 1714567890+i*60),
			Text:      notification("alice", fmt.Sprintf("Item %d", i)),
		})
	}
	msgs = append(msgs, purchase.ChatMessage{Sender: "U9", Timestamp: "1714567000", Text: "morning"})
	f := newFixture(t, msgs, zap.NewNop())

	result, err := f.svc.Extract(context.Background(), ExtractOptions{Channel: "#lab-orders"})
	require.NoError(t, err)

	assert.Equal(t, extraction.ModeAutomatedSource, result.Selection.Mode)
	assert.Equal(t, 7, result.MessagesFetched)
	assert.Equal(t, 6, result.MessagesAnalyzed)
	require.Len(t, result.Records, 6)
	for i, rec := range result.Records {
		assert.Equal(t, fmt.Sprintf("Item %d", i), rec.ItemName, "records keep timestamp order")
		assert.Equal(t, purchase.FormatStructuredReply, rec.Format)
		assert.Equal(t, purchase.IdentitySender, rec.IdentitySource)
		assert.Equal(t, "BOT", rec.RequesterID)
		assert.Equal(t, "Order Bot", rec.RequesterName)
	}
	assert.Equal(t, map[string]int{"2024-05": 6}, result.ByMonth)
}

func TestService_Complete(t *testing.T) {
	f := newFixture(t, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("structured reply linked to its command", func(t *testing.T) {
		timeline := []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "995", Text: "/purchase_request Beakers, 10, CAT-1"},
			{Sender: "BOT", Timestamp: "1000", Text: notification("someone", "Beakers")},
		}
		rec, ok := extraction.Parse(timeline[1].Text)
		require.True(t, ok)

		got := f.svc.complete(ctx, timeline, 1, rec)
		assert.Equal(t, "U1", got.RequesterID)
		assert.Equal(t, "Uma", got.RequesterName)
		assert.Equal(t, purchase.IdentityLinked, got.IdentitySource)
	})

	t.Run("header name kept without any sender", func(t *testing.T) {
		timeline := []purchase.ChatMessage{
			{Timestamp: "1000", Text: notification("bob", "Flasks")},
		}
		rec, ok := extraction.Parse(timeline[0].Text)
		require.True(t, ok)

		got := f.svc.complete(ctx, timeline, 0, rec)
		assert.Empty(t, got.RequesterID)
		assert.Empty(t, got.IdentitySource)
		assert.Equal(t, "bob", got.RequesterName)
	})

	t.Run("unknown requester", func(t *testing.T) {
		timeline := []purchase.ChatMessage{
			{Timestamp: "bogus", Text: "I've requested *Beakers*"},
		}
		rec, ok := extraction.Parse(timeline[0].Text)
		require.True(t, ok)

		got := f.svc.complete(ctx, timeline, 0, rec)
		assert.Equal(t, UnknownRequester, got.RequesterName)
		assert.Equal(t, purchase.UnknownBucket, got.ExtractedDate)
	})
}

func TestService_Extract_DryRun(t *testing.T) {
	f := newFixture(t, []purchase.ChatMessage{
		{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
	}, zap.NewNop())

	result, err := f.svc.Extract(context.Background(), ExtractOptions{Channel: "#lab-orders", DryRun: true})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Nil(t, f.writer.buckets)
	assert.Empty(t, f.publisher.subjects)
}

func TestService_Extract_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown channel", func(t *testing.T) {
		f := newFixture(t, nil, zap.NewNop())
		_, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#nope"})
		assert.ErrorIs(t, err, ErrChannelNotFound)
	})

	t.Run("empty history", func(t *testing.T) {
		f := newFixture(t, nil, zap.NewNop())
		_, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#lab-orders"})
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("history failure without messages", func(t *testing.T) {
		f := newFixture(t, nil, zap.NewNop())
		apiErr := errors.New("ratelimited")
		f.history.err = apiErr
		_, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#lab-orders"})
		assert.ErrorIs(t, err, ErrNoMessages)
		assert.ErrorIs(t, err, apiErr)
	})

	t.Run("partial history still extracts", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newFixture(t, []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
		}, zap.New(core))
		f.history.err = errors.New("page 2 failed")

		result, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#lab-orders"})
		require.NoError(t, err)
		assert.Len(t, result.Records, 1)
		assert.Error(t, result.HistoryErr)
		assert.Equal(t, 1, logs.FilterMessage("channel history incomplete").Len())

		summary := f.publisher.payloads[0].(Summary)
		assert.True(t, summary.Partial)
	})

	t.Run("write failure", func(t *testing.T) {
		f := newFixture(t, []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
		}, zap.NewNop())
		f.writer.err = errors.New("disk full")

		result, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#lab-orders"})
		require.Error(t, err)
		require.NotNil(t, result)
		assert.Len(t, result.Records, 1)
	})

	t.Run("publish failure is not fatal", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newFixture(t, []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
		}, zap.New(core))
		f.publisher.err = errors.New("no responders")

		_, err := f.svc.Extract(ctx, ExtractOptions{Channel: "#lab-orders"})
		require.NoError(t, err)
		assert.Equal(t, 1, logs.FilterMessage("publishing extraction summary failed").Len())
	})

	t.Run("canceled context", func(t *testing.T) {
		f := newFixture(t, []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
		}, zap.NewNop())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.svc.Extract(cctx, ExtractOptions{Channel: "#lab-orders"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestService_Extract_Telemetry(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	history := &fakeHistory{
		channels: map[string]string{"#lab-orders": "C123"},
		messages: []purchase.ChatMessage{
			{Sender: "U1", Timestamp: "1000", Text: "/purchase_request Beakers, 10, CAT-1"},
			{Sender: "U1", Timestamp: "1010", Text: "/purchase_request Flasks, 2, CAT-2"},
		},
	}
	cfg := DefaultServiceConfig()
	cfg.Location = time.UTC
	cfg.Tracer = tel.Tracer("test")
	cfg.Meter = tel.Meter("test")
	svc := NewService(history, &fakeResolver{}, &fakeWriter{}, nil, zap.NewNop(), cfg)

	_, err := svc.Extract(context.Background(), ExtractOptions{Channel: "#lab-orders", DryRun: true})
	require.NoError(t, err)

	tel.AssertSpanExists(t, "extraction.run")
	tel.AssertSpanAttribute(t, "extraction.run", "channel", "#lab-orders")
	tel.AssertSpanAttribute(t, "extraction.run", "records", int64(2))
	tel.AssertSpanAttribute(t, "extraction.run", "mode", string(extraction.ModeDirectSubmitters))
	assert.Equal(t, int64(2), tel.CounterValue(t, "purchasebot.extraction.records",
		attribute.String("format", string(purchase.FormatDirectCommand))))

	_, err = svc.Extract(context.Background(), ExtractOptions{Channel: "#missing"})
	require.Error(t, err)
}
