package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// minDelimitedItemLen is the number of characters a delimited substring must
// exceed to be taken as an item name by the fallback scan.
const minDelimitedItemLen = 3

// HeuristicConfig holds the pattern cascades of the heuristic recognizer.
type HeuristicConfig struct {
	// Indicators gate the recognizer: at least one must appear in the text
	// (case-insensitive substring).
	Indicators []string `json:"indicators"`

	// ItemPatterns are tried in order; the first with a non-empty item
	// capture wins.
	ItemPatterns []Pattern `json:"item_patterns"`

	// DelimitedPatterns find *item*, "item" or 'item' when no item pattern
	// matched. Capture group 1 holds the candidate.
	DelimitedPatterns []string `json:"delimited_patterns"`

	// ExcludedItems are delimited candidates that are field labels, not items.
	ExcludedItems []string `json:"excluded_items"`

	// Field cascades; group 1 holds the value, first match wins.
	QuantityPatterns []string `json:"quantity_patterns"`
	CatalogPatterns  []string `json:"catalog_patterns"`
	URLPattern       string   `json:"url_pattern"`
	DatePatterns     []string `json:"date_patterns"`
}

// DefaultHeuristicConfig returns the patterns for the message shapes seen in
// the ordering channel over time.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		Indicators: []string{"purchase request", "catalog", "quantity", "requested", "added:", "item"},
		ItemPatterns: []Pattern{
			{
				// Purchase request added: *item* (Quantity: X, Catalog #: Y)
				Name:     "added",
				Regex:    `(?is)Purchase request added:\s*\*?["']?([^*"']+?)\*?["']?\s*\((?:.*?Quantity:\s*["']?([^,"']+)["']?)?(?:.*?Catalog #?:\s*["']?([^,"']+)["']?)?\)`,
				Item:     1,
				Quantity: 2,
				Catalog:  3,
			},
			{
				// Item Name (Quantity: X, Catalog: Y)
				Name:     "parenthesized",
				Regex:    `(?is)\*?["']?([^*"'()]+?)\*?["']?\s*\(\s*(?:Quantity:\s*["']?([^,"']+)["']?)?(?:.*?Catalog[^:]*:\s*["']?([^,"']+)["']?)?\)`,
				Item:     1,
				Quantity: 2,
				Catalog:  3,
			},
			{
				// Product name: X (Quantity: Y)
				Name:     "product_name",
				Regex:    `(?is)Product name:\s*\*?["']?([^*"']+?)\*?["']?\s*\(\s*(?:Quantity:\s*["']?([^,"']+)["']?)?`,
				Item:     1,
				Quantity: 2,
			},
			{
				// "item" ... Catalog: Y ... Quantity: X
				Name:     "quoted",
				Regex:    `(?is)["']([^"']+)["'].*?(?:Catalog[^:]*:\s*["']?([^,"']+)["']?)?.*?(?:Quantity:\s*["']?([^,"']+)["']?)?`,
				Item:     1,
				Catalog:  2,
				Quantity: 3,
			},
			{
				// *item* (anything)
				Name:  "emphasized",
				Regex: `(?is)\*([^*]+)\*\s*\([^)]*\)`,
				Item:  1,
			},
		},
		DelimitedPatterns: []string{`\*([^*]+)\*`, `"([^"]+)"`, `'([^']+)'`},
		ExcludedItems:     []string{"quantity", "catalog", "link", "date"},
		QuantityPatterns: []string{
			`(?i)quantity[:\s]+["']?(\d+(?:\.\d+)?)["']?`,
			`(?i)qty[:\s]+["']?(\d+(?:\.\d+)?)["']?`,
			`(?i)\(\s*quantity[:\s]*["']?(\d+(?:\.\d+)?)["']?`,
			`(?i)(\d+)\s*(?:units?|pcs?|pieces?)`,
		},
		CatalogPatterns: []string{
			`(?i)catalog[^:]*:\s*["']?([A-Z0-9\-_.]+)["']?`,
			`(?i)cat[^:]*:\s*["']?([A-Z0-9\-_.]+)["']?`,
			`(?i)part[^:]*:\s*["']?([A-Z0-9\-_.]+)["']?`,
			`(?i)#\s*([A-Z0-9\-_.]+)`,
		},
		URLPattern: `https?://[^\s)>]+`,
		DatePatterns: []string{
			`(?i)(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`,
			`(?i)(\d{4}-\d{1,2}-\d{1,2})`,
			`(?i)on\s+["']?([^"']+)["']?`,
		},
	}
}

// compiledPattern holds a pre-compiled item pattern.
type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// HeuristicRecognizer finds purchase requests in loosely formatted text
// using keyword gating and pattern cascades.
type HeuristicRecognizer struct {
	indicators []string
	items      []*compiledPattern
	delimited  []*regexp.Regexp
	excluded   map[string]bool
	quantity   []*regexp.Regexp
	catalog    []*regexp.Regexp
	url        *regexp.Regexp
	date       []*regexp.Regexp
}

// NewHeuristicRecognizer compiles cfg. An invalid pattern is an error.
func NewHeuristicRecognizer(cfg HeuristicConfig) (*HeuristicRecognizer, error) {
	h := &HeuristicRecognizer{
		excluded: make(map[string]bool, len(cfg.ExcludedItems)),
	}
	for _, ind := range cfg.Indicators {
		h.indicators = append(h.indicators, strings.ToLower(ind))
	}
	for _, w := range cfg.ExcludedItems {
		h.excluded[strings.ToLower(w)] = true
	}

	for _, p := range cfg.ItemPatterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling item pattern %q: %w", p.Name, err)
		}
		h.items = append(h.items, &compiledPattern{Pattern: p, regex: re})
	}

	var err error
	if h.delimited, err = compileAll("delimited", cfg.DelimitedPatterns); err != nil {
		return nil, err
	}
	if h.quantity, err = compileAll("quantity", cfg.QuantityPatterns); err != nil {
		return nil, err
	}
	if h.catalog, err = compileAll("catalog", cfg.CatalogPatterns); err != nil {
		return nil, err
	}
	if h.date, err = compileAll("date", cfg.DatePatterns); err != nil {
		return nil, err
	}
	if cfg.URLPattern != "" {
		if h.url, err = regexp.Compile(cfg.URLPattern); err != nil {
			return nil, fmt.Errorf("compiling url pattern: %w", err)
		}
	}
	return h, nil
}

func mustHeuristic(cfg HeuristicConfig) *HeuristicRecognizer {
	h, err := NewHeuristicRecognizer(cfg)
	if err != nil {
		panic(err)
	}
	return h
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s pattern %q: %w", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Name implements Recognizer.
func (h *HeuristicRecognizer) Name() string { return string(purchase.FormatHeuristic) }

// Recognize implements Recognizer. Text carrying the slash command belongs to
// the command recognizer alone, so a malformed command yields nothing here.
func (h *HeuristicRecognizer) Recognize(text string) (purchase.Record, bool) {
	if ContainsCommand(text) || !h.hasIndicator(text) {
		return purchase.Record{}, false
	}

	rec, ok := h.matchItemPattern(text)
	if !ok {
		item := h.firstDelimited(text)
		if item == "" {
			return purchase.Record{}, false
		}
		rec.ItemName = item
	}
	rec.Format = purchase.FormatHeuristic
	rec.Confidence = purchase.ConfidenceMedium
	rec.MessageText = text

	if v := firstCapture(h.quantity, text); v != "" {
		rec.Quantity = v
	}
	if v := firstCapture(h.catalog, text); v != "" {
		rec.CatalogNumber = v
	}
	if h.url != nil {
		if v := h.url.FindString(text); v != "" {
			rec.Link = v
		}
	}
	if v := firstCapture(h.date, text); v != "" {
		rec.DateOfRequest = v
	}
	return rec, true
}

func (h *HeuristicRecognizer) hasIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range h.indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// matchItemPattern returns the fields of the first item pattern that
// captures a non-empty item name.
func (h *HeuristicRecognizer) matchItemPattern(text string) (purchase.Record, bool) {
	for _, p := range h.items {
		m := p.regex.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		item := group(m, p.Item)
		if item == "" {
			continue
		}
		return purchase.Record{
			ItemName:      item,
			Quantity:      group(m, p.Quantity),
			CatalogNumber: group(m, p.Catalog),
		}, true
	}
	return purchase.Record{}, false
}

// firstDelimited returns the earliest delimited substring, in document
// order across all delimiter kinds, that is long enough and not a label.
func (h *HeuristicRecognizer) firstDelimited(text string) string {
	type candidate struct {
		pos   int
		value string
	}
	var candidates []candidate
	for _, re := range h.delimited {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			candidates = append(candidates, candidate{pos: loc[0], value: text[loc[2]:loc[3]]})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].pos < candidates[j].pos })

	for _, c := range candidates {
		v := strings.TrimSpace(c.value)
		if utf8.RuneCountInString(v) > minDelimitedItemLen && !h.excluded[strings.ToLower(v)] {
			return v
		}
	}
	return ""
}

func firstCapture(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil && len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func group(m []string, idx int) string {
	if idx <= 0 || idx >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[idx])
}
