package extraction

import (
	"strings"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// Classifier defaults.
const (
	TopVolumeSenders    = 5
	SampleSize          = 20
	AutomatedMinMatches = 5
	TopCommandSenders   = 10
)

// DefaultKeywords mark a message as purchase-related for the automated
// source check.
var DefaultKeywords = []string{"purchase", "request", "added", "order", "item", "catalog"}

// Mode describes which working set the classifier chose.
type Mode string

const (
	ModeDirectSubmitters Mode = "direct_submitters"
	ModeAutomatedSource  Mode = "automated_source"
	ModeUnfiltered       Mode = "unfiltered"
)

// ClassifierConfig tunes sender ranking and selection.
type ClassifierConfig struct {
	TopVolumeSenders    int      `json:"top_volume_senders"`
	SampleSize          int      `json:"sample_size"`
	AutomatedMinMatches int      `json:"automated_min_matches"`
	TopCommandSenders   int      `json:"top_command_senders"`
	Keywords            []string `json:"keywords"`
}

// DefaultClassifierConfig returns the default thresholds and keyword set.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		TopVolumeSenders:    TopVolumeSenders,
		SampleSize:          SampleSize,
		AutomatedMinMatches: AutomatedMinMatches,
		TopCommandSenders:   TopCommandSenders,
		Keywords:            DefaultKeywords,
	}
}

// SenderStats summarizes one sender in the timeline.
type SenderStats struct {
	Sender   string `json:"sender"`
	Messages int    `json:"messages"`

	// KeywordMatches counts sampled messages containing a keyword. Only
	// computed for the top volume senders.
	KeywordMatches int `json:"keyword_matches"`

	// Commands counts messages containing the command token. Only computed
	// for the top command senders.
	Commands int `json:"commands"`

	Automated       bool `json:"automated"`
	DirectSubmitter bool `json:"direct_submitter"`
}

// Selection is the working message set chosen by the classifier.
type Selection struct {
	Mode     Mode                   `json:"mode"`
	Senders  []string               `json:"senders,omitempty"`
	Messages []purchase.ChatMessage `json:"-"`
	Ranking  []SenderStats          `json:"ranking"`
}

// Classifier picks the subset of a timeline worth parsing.
type Classifier struct {
	cfg      ClassifierConfig
	keywords []string
}

// NewClassifier creates a classifier. Zero-valued thresholds take defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.TopVolumeSenders <= 0 {
		cfg.TopVolumeSenders = def.TopVolumeSenders
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.AutomatedMinMatches <= 0 {
		cfg.AutomatedMinMatches = def.AutomatedMinMatches
	}
	if cfg.TopCommandSenders <= 0 {
		cfg.TopCommandSenders = def.TopCommandSenders
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = def.Keywords
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		keywords = append(keywords, strings.ToLower(k))
	}
	return &Classifier{cfg: cfg, keywords: keywords}
}

// Select ranks senders and returns the working set. Direct submitters win
// over an automated source; with neither, the whole timeline is kept.
// Select does not modify timeline.
func (c *Classifier) Select(timeline []purchase.ChatMessage) Selection {
	ranking := c.rank(timeline)

	var submitters []string
	for i := range ranking {
		if i >= c.cfg.TopCommandSenders {
			break
		}
		s := &ranking[i]
		for _, m := range timeline {
			if m.Sender == s.Sender && ContainsCommand(m.Text) {
				s.Commands++
			}
		}
		if s.Commands > 0 {
			s.DirectSubmitter = true
			submitters = append(submitters, s.Sender)
		}
	}

	best := -1
	for i := range ranking {
		if i >= c.cfg.TopVolumeSenders {
			break
		}
		s := &ranking[i]
		s.KeywordMatches = c.sampleMatches(timeline, s.Sender)
		if s.KeywordMatches >= c.cfg.AutomatedMinMatches {
			s.Automated = true
			if best < 0 || s.KeywordMatches > ranking[best].KeywordMatches {
				best = i
			}
		}
	}

	switch {
	case len(submitters) > 0:
		return Selection{
			Mode:     ModeDirectSubmitters,
			Senders:  submitters,
			Messages: filterSenders(timeline, submitters),
			Ranking:  ranking,
		}
	case best >= 0:
		senders := []string{ranking[best].Sender}
		return Selection{
			Mode:     ModeAutomatedSource,
			Senders:  senders,
			Messages: filterSenders(timeline, senders),
			Ranking:  ranking,
		}
	default:
		all := make([]purchase.ChatMessage, len(timeline))
		copy(all, timeline)
		return Selection{Mode: ModeUnfiltered, Messages: all, Ranking: ranking}
	}
}

// rank orders senders by message count. Ties keep first-appearance order.
// Messages without a sender are not ranked.
func (c *Classifier) rank(timeline []purchase.ChatMessage) []SenderStats {
	index := make(map[string]int)
	var ranking []SenderStats
	for _, m := range timeline {
		if m.Sender == "" {
			continue
		}
		i, ok := index[m.Sender]
		if !ok {
			i = len(ranking)
			index[m.Sender] = i
			ranking = append(ranking, SenderStats{Sender: m.Sender})
		}
		ranking[i].Messages++
	}

	// Insertion sort keeps equal counts in first-appearance order.
	for i := 1; i < len(ranking); i++ {
		for j := i; j > 0 && ranking[j].Messages > ranking[j-1].Messages; j-- {
			ranking[j], ranking[j-1] = ranking[j-1], ranking[j]
		}
	}
	return ranking
}

func (c *Classifier) sampleMatches(timeline []purchase.ChatMessage, sender string) int {
	sampled, matches := 0, 0
	for _, m := range timeline {
		if m.Sender != sender {
			continue
		}
		if sampled == c.cfg.SampleSize {
			break
		}
		sampled++
		if c.hasKeyword(m.Text) {
			matches++
		}
	}
	return matches
}

func (c *Classifier) hasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func filterSenders(timeline []purchase.ChatMessage, senders []string) []purchase.ChatMessage {
	keep := make(map[string]bool, len(senders))
	for _, s := range senders {
		keep[s] = true
	}
	var out []purchase.ChatMessage
	for _, m := range timeline {
		if keep[m.Sender] {
			out = append(out, m)
		}
	}
	return out
}
