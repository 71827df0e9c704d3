package extraction

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// MinCommandParams is the fewest comma-separated values (item, quantity,
// catalog) a direct command needs to be recognized.
const MinCommandParams = 3

var (
	commandPattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(purchase.Command) + `\s+(.+)`)
	emphasisChars  = regexp.MustCompile(`[*"']`)
)

// CommandRecognizer reads a slash command followed by a comma-separated
// parameter list: item, quantity, catalog, link, date.
type CommandRecognizer struct{}

// NewCommandRecognizer creates a direct-command recognizer.
func NewCommandRecognizer() *CommandRecognizer {
	return &CommandRecognizer{}
}

// Name implements Recognizer.
func (r *CommandRecognizer) Name() string { return string(purchase.FormatDirectCommand) }

// Recognize implements Recognizer.
func (r *CommandRecognizer) Recognize(text string) (purchase.Record, bool) {
	m := commandPattern.FindStringSubmatch(text)
	if m == nil {
		return purchase.Record{}, false
	}

	parts := strings.Split(strings.TrimSpace(m[1]), ",")
	if len(parts) < MinCommandParams {
		return purchase.Record{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	rec := purchase.Record{
		ItemName:      stripEmphasis(parts[0]),
		Quantity:      stripEmphasis(parts[1]),
		CatalogNumber: stripEmphasis(parts[2]),
		Format:        purchase.FormatDirectCommand,
		Confidence:    purchase.ConfidenceHigh,
	}
	if len(parts) >= 4 {
		rec.Link = purchase.ExtractLink(parts[3])
	}
	if len(parts) >= 5 {
		rec.DateOfRequest = parts[4]
	}
	return rec, true
}

// ContainsCommand reports whether text mentions the slash command,
// ignoring case.
func ContainsCommand(text string) bool {
	return strings.Contains(strings.ToLower(text), purchase.Command)
}

func stripEmphasis(s string) string {
	return strings.TrimSpace(emphasisChars.ReplaceAllString(s, ""))
}
