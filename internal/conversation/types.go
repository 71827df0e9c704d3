package conversation

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/purchasebot/internal/extraction"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

var (
	// ErrChannelNotFound is returned when the channel name cannot be resolved.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNoMessages is returned when the channel history is empty.
	ErrNoMessages = errors.New("no messages found")
)

// History reads a channel timeline. History may return a non-nil error
// together with the messages gathered before the failure.
type History interface {
	ChannelID(ctx context.Context, name string) (string, error)
	History(ctx context.Context, channelID string) ([]purchase.ChatMessage, error)
}

// IdentityResolver maps a sender id to a display name, falling back to
// the id itself.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) string
}

// BucketWriter persists records grouped by month bucket and returns the
// files it wrote.
type BucketWriter interface {
	WriteBuckets(buckets map[string][]purchase.Record) ([]string, error)
}

// Publisher announces pipeline events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// ExtractOptions controls one extraction run.
type ExtractOptions struct {
	// Channel is the channel name, with or without a leading '#'.
	Channel string

	// DryRun skips writing files and publishing events.
	DryRun bool
}

// ExtractResult summarizes one extraction run.
type ExtractResult struct {
	ChannelID        string                       `json:"channel_id"`
	MessagesFetched  int                          `json:"messages_fetched"`
	MessagesAnalyzed int                          `json:"messages_analyzed"`
	Selection        extraction.Selection         `json:"selection"`
	Records          []purchase.Record            `json:"-"`
	Buckets          map[string][]purchase.Record `json:"-"`
	ByMonth          map[string]int               `json:"by_month"`
	ByFormat         map[purchase.FormatType]int  `json:"by_format"`
	Files            []string                     `json:"files,omitempty"`

	// HistoryErr is set when the timeline was only partially read.
	HistoryErr error `json:"-"`
}

// Summary is the payload of the extraction-completed event.
type Summary struct {
	Channel          string                      `json:"channel"`
	Mode             extraction.Mode             `json:"mode"`
	Senders          []string                    `json:"senders,omitempty"`
	MessagesFetched  int                         `json:"messages_fetched"`
	MessagesAnalyzed int                         `json:"messages_analyzed"`
	Records          int                         `json:"records"`
	ByMonth          map[string]int              `json:"by_month"`
	ByFormat         map[purchase.FormatType]int `json:"by_format"`
	Partial          bool                        `json:"partial"`
}
