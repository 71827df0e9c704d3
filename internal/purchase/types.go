// Package purchase defines the purchase-request record shared by the live
// submission endpoint and the historical extraction pipeline.
package purchase

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatType identifies which message shape a record was recovered from.
type FormatType string

const (
	// FormatDirectCommand is a slash command typed by a human.
	FormatDirectCommand FormatType = "direct_command"
	// FormatStructuredReply is the bot's own formatted acknowledgment.
	FormatStructuredReply FormatType = "structured_reply"
	// FormatHeuristic is a keyword/pattern match with lower trust.
	FormatHeuristic FormatType = "heuristic"
)

// Confidence is the trust level attached to an extracted record.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IdentitySource records how the requester identifier was obtained.
type IdentitySource string

const (
	// IdentityCommand means the record is itself the triggering command.
	IdentityCommand IdentitySource = "command"
	// IdentityLinked means the record linker matched a triggering command.
	IdentityLinked IdentitySource = "linked"
	// IdentitySender means the matched message's own sender was used.
	IdentitySender IdentitySource = "sender"
)

// ChatMessage is one message of a channel timeline.
type ChatMessage struct {
	Sender    string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
}

// Seconds parses the fractional-seconds timestamp.
func (m ChatMessage) Seconds() (float64, error) {
	ts := strings.TrimSpace(m.Timestamp)
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	v, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing timestamp %q: %w", m.Timestamp, err)
	}
	return v, nil
}

// SecondsOrZero returns the timestamp, or 0 when it cannot be parsed.
func (m ChatMessage) SecondsOrZero() float64 {
	v, err := m.Seconds()
	if err != nil {
		return 0
	}
	return v
}

// Record is a single purchase request. Records are built once and not
// mutated afterwards; optional fields are empty strings when unknown.
type Record struct {
	ItemName       string         `json:"item_name"`
	Quantity       string         `json:"quantity"`
	CatalogNumber  string         `json:"catalog_number"`
	Link           string         `json:"link"`
	DateOfRequest  string         `json:"date_of_request"`
	RequesterName  string         `json:"requester_name,omitempty"`
	RequesterID    string         `json:"original_user_id,omitempty"`
	SlackTimestamp string         `json:"slack_timestamp,omitempty"`
	Format         FormatType     `json:"format_type,omitempty"`
	Confidence     Confidence     `json:"confidence,omitempty"`
	ExtractedDate  string         `json:"extracted_date,omitempty"`
	IdentitySource IdentitySource `json:"identity_source,omitempty"`
	SubmittedAt    string         `json:"submitted_at,omitempty"`

	// MessageText is the source message of a heuristic match, kept so the
	// medium-confidence guesses can be audited.
	MessageText string `json:"message_text,omitempty"`
}
