package purchase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SubmissionFields is the exact number of comma-separated values a
// slash-command submission must carry.
const SubmissionFields = 5

var (
	// ErrTooFewFields is returned when a submission has fewer than five values.
	ErrTooFewFields = errors.New("too few fields")
	// ErrTooManyFields is returned when a submission has more than five values.
	ErrTooManyFields = errors.New("too many fields")
)

// slackLinkPattern matches Slack's escaped link syntax, <url> or <url|label>.
var slackLinkPattern = regexp.MustCompile(`<(https?://[^>|]+)(?:\|[^>]*)?>`)

// Submission is the five-field payload of a live slash command.
type Submission struct {
	Item          string
	Quantity      string
	CatalogNumber string
	Link          string
	Date          string
}

// ParseSubmission validates and splits slash-command text of the form
// "Item, Quantity, Catalog Number, Link, Date". Values are kept verbatim
// apart from whitespace trimming and unwrapping Slack's <url> link syntax.
func ParseSubmission(text string) (Submission, error) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) < SubmissionFields:
		return Submission{}, fmt.Errorf("%w: got %d, want %d", ErrTooFewFields, len(parts), SubmissionFields)
	case len(parts) > SubmissionFields:
		return Submission{}, fmt.Errorf("%w: got %d, want %d", ErrTooManyFields, len(parts), SubmissionFields)
	}
	return Submission{
		Item:          parts[0],
		Quantity:      parts[1],
		CatalogNumber: parts[2],
		Link:          UnwrapLink(parts[3]),
		Date:          parts[4],
	}, nil
}

// UnwrapLink returns the URL inside Slack link markup, or s unchanged.
func UnwrapLink(s string) string {
	if m := slackLinkPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ExtractLink returns the URL carried by s: the target of Slack link markup,
// s itself when it already starts with a URL scheme, or "".
func ExtractLink(s string) string {
	if m := slackLinkPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if strings.HasPrefix(s, "http") {
		return s
	}
	return ""
}

// Record builds the stored record for a submission.
func (s Submission) Record(requesterName, requesterID, submittedAt string) Record {
	return Record{
		ItemName:      s.Item,
		Quantity:      s.Quantity,
		CatalogNumber: s.CatalogNumber,
		Link:          s.Link,
		DateOfRequest: s.Date,
		RequesterName: requesterName,
		RequesterID:   requesterID,
		SubmittedAt:   submittedAt,
	}
}
