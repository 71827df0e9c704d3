package storage

import (
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// Column is one CSV column: its header and how to render a record.
type Column struct {
	Header string
	Value  func(purchase.Record) string
}

// Layout names a family of month files and their CSV shape.
type Layout struct {
	// Dir is relative to the store root.
	Dir string

	// Prefix starts every file name: <Prefix>_<bucket>.json / .csv.
	Prefix string

	Columns []Column
}

func col(header string, value func(purchase.Record) string) Column {
	return Column{Header: header, Value: value}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var (
	itemName      = col("item_name", func(r purchase.Record) string { return r.ItemName })
	quantity      = col("quantity", func(r purchase.Record) string { return r.Quantity })
	catalogNumber = col("catalog_number", func(r purchase.Record) string { return r.CatalogNumber })
	link          = col("link", func(r purchase.Record) string { return r.Link })
	dateOfRequest = col("date_of_request", func(r purchase.Record) string { return r.DateOfRequest })
)

// LiveLayout holds the files written by the submission endpoint. Its CSV
// leaves out requester identity.
var LiveLayout = Layout{
	Dir:     "purchase_requests",
	Prefix:  "purchase_requests",
	Columns: []Column{itemName, quantity, catalogNumber, link, dateOfRequest},
}

// HistoricalLayout holds the files written by the extraction pipeline.
var HistoricalLayout = Layout{
	Dir:    "purchase_requests/historical",
	Prefix: "historical_requests",
	Columns: []Column{
		col("requester_name", func(r purchase.Record) string { return orDefault(r.RequesterName, "Unknown") }),
		itemName,
		quantity,
		catalogNumber,
		link,
		dateOfRequest,
		col("slack_timestamp", func(r purchase.Record) string { return r.SlackTimestamp }),
		col("format_type", func(r purchase.Record) string { return string(r.Format) }),
		col("confidence", func(r purchase.Record) string { return orDefault(string(r.Confidence), string(purchase.ConfidenceHigh)) }),
		col("extracted_date", func(r purchase.Record) string { return r.ExtractedDate }),
		col("original_user_id", func(r purchase.Record) string { return r.RequesterID }),
	},
}

// Headers returns the CSV header row.
func (l Layout) Headers() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = c.Header
	}
	return out
}
