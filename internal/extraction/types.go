// Package extraction recovers purchase requests from free-form channel
// messages. It provides the message-format recognizers, the author
// classifier that picks which senders to analyze, and the record linker
// that ties a recovered request back to the person who issued the command.
package extraction

import (
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// Recognizer attempts to read one message's text as a purchase request.
// Implementations are pure: the same text always yields the same result.
type Recognizer interface {
	// Name identifies the recognizer in logs.
	Name() string

	// Recognize returns the recovered record and true on a match.
	Recognize(text string) (purchase.Record, bool)
}

// Chain runs recognizers in order and returns the first success. Partial
// matches are never merged across recognizers.
type Chain []Recognizer

// Name implements Recognizer.
func (c Chain) Name() string { return "chain" }

// Recognize implements Recognizer.
func (c Chain) Recognize(text string) (purchase.Record, bool) {
	for _, r := range c {
		if rec, ok := r.Recognize(text); ok {
			return rec, true
		}
	}
	return purchase.Record{}, false
}

// Pattern is a named regular expression with the capture groups that hold
// record fields. A zero group index means the pattern does not capture it.
type Pattern struct {
	Name     string `json:"name"`
	Regex    string `json:"regex"`
	Item     int    `json:"item,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Catalog  int    `json:"catalog,omitempty"`
}

// NewParser returns the default recognizer chain: direct command, then the
// structured bot reply, then the keyword heuristic.
func NewParser() Chain {
	return Chain{
		NewCommandRecognizer(),
		NewReplyRecognizer(),
		mustHeuristic(DefaultHeuristicConfig()),
	}
}

var defaultParser = NewParser()

// Parse runs the default recognizer chain over text.
func Parse(text string) (purchase.Record, bool) {
	return defaultParser.Recognize(text)
}

// Ensure the recognizers implement Recognizer.
var (
	_ Recognizer = Chain(nil)
	_ Recognizer = (*CommandRecognizer)(nil)
	_ Recognizer = (*ReplyRecognizer)(nil)
	_ Recognizer = (*HeuristicRecognizer)(nil)
)
