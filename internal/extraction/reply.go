package extraction

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

var replyHeader = regexp.MustCompile(`\*New Purchase Request by (.+?):\*`)

// replyField is one bulleted line of the bot's acknowledgment.
type replyField struct {
	re  *regexp.Regexp
	set func(*purchase.Record, string)
}

var replyFields = []replyField{
	{regexp.MustCompile(`• \*Item:\* (.+?)(?:\n|$)`), func(r *purchase.Record, v string) { r.ItemName = v }},
	{regexp.MustCompile(`• \*Quantity:\* (.+?)(?:\n|$)`), func(r *purchase.Record, v string) { r.Quantity = v }},
	{regexp.MustCompile(`• \*Catalog #:\* (.+?)(?:\n|$)`), func(r *purchase.Record, v string) { r.CatalogNumber = v }},
	{regexp.MustCompile(`• \*Link:\* (.+?)(?:\n|$)`), func(r *purchase.Record, v string) { r.Link = purchase.ExtractLink(v) }},
	{regexp.MustCompile(`• \*Date:\* (.+?)(?:\n|$)`), func(r *purchase.Record, v string) { r.DateOfRequest = v }},
}

// ReplyRecognizer reads the bot's own notification: a header naming the
// requester followed by one bullet per field. All five bullets are required.
type ReplyRecognizer struct{}

// NewReplyRecognizer creates a structured-reply recognizer.
func NewReplyRecognizer() *ReplyRecognizer {
	return &ReplyRecognizer{}
}

// Name implements Recognizer.
func (r *ReplyRecognizer) Name() string { return string(purchase.FormatStructuredReply) }

// Recognize implements Recognizer.
func (r *ReplyRecognizer) Recognize(text string) (purchase.Record, bool) {
	header := replyHeader.FindStringSubmatch(text)
	if header == nil {
		return purchase.Record{}, false
	}

	rec := purchase.Record{
		RequesterName: header[1],
		Format:        purchase.FormatStructuredReply,
		Confidence:    purchase.ConfidenceHigh,
	}
	for _, f := range replyFields {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			return purchase.Record{}, false
		}
		f.set(&rec, strings.TrimSpace(m[1]))
	}
	return rec, true
}
