package purchase

import (
	"errors"
	"fmt"
	"strings"
)

// Command is the slash-command token users type to submit a request.
const Command = "/purchase_request"

const usageLine = "`Item, Quantity, Catalog Number, Link, Date`"

// Messages returned to the submitter.
const (
	TextTooFew       = "Invalid format. Use:\n" + usageLine
	TextTooMany      = "Too many commas in input. Use exactly:\n" + usageLine
	TextPostFailed   = "❌ Failed to post to Slack channel. Check logs and try again."
	TextUnexpected   = "❌ An error occurred while processing your request. Please try again."
	notificationHead = "*New Purchase Request by %s:*\n"
)

// ValidationText maps a ParseSubmission error to the message shown to the
// submitter. It returns "" for errors that are not validation errors.
func ValidationText(err error) string {
	switch {
	case errors.Is(err, ErrTooFewFields):
		return TextTooFew
	case errors.Is(err, ErrTooManyFields):
		return TextTooMany
	}
	return ""
}

// NotificationText is the channel post for a submission. Its shape is the
// structured reply the history parser recognizes.
func NotificationText(requester string, s Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, notificationHead, requester)
	writeFields(&b, s)
	return b.String()
}

// AckText is the private acknowledgment returned to the submitter.
func AckText(s Submission, channel string) string {
	var b strings.Builder
	b.WriteString("✅ Your purchase request has been submitted!\n\n*What you submitted:*\n")
	writeFields(&b, s)
	fmt.Fprintf(&b, "\n\nThis has been posted to %s for the team to see.", channel)
	return b.String()
}

func writeFields(b *strings.Builder, s Submission) {
	fmt.Fprintf(b, "• *Item:* %s\n", s.Item)
	fmt.Fprintf(b, "• *Quantity:* %s\n", s.Quantity)
	fmt.Fprintf(b, "• *Catalog #:* %s\n", s.CatalogNumber)
	fmt.Fprintf(b, "• *Link:* %s\n", s.Link)
	fmt.Fprintf(b, "• *Date:* %s", s.Date)
}
