package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

// Linker defaults. A structured reply is posted within seconds of the
// command that triggered it, so the primary window only needs to cover
// slow round trips; the fallback window is tighter because it accepts any
// nearby command without comparing items.
const (
	PrimaryLookback = 50
	PrimaryWindow   = 60 * time.Second
	MinSharedTokens = 2
	FallbackBefore  = 10
	FallbackAfter   = 3
	FallbackWindow  = 30 * time.Second
)

// LinkerConfig tunes the requester search.
type LinkerConfig struct {
	PrimaryLookback int           `json:"primary_lookback"`
	PrimaryWindow   time.Duration `json:"primary_window"`
	MinSharedTokens int           `json:"min_shared_tokens"`
	FallbackBefore  int           `json:"fallback_before"`
	FallbackAfter   int           `json:"fallback_after"`
	FallbackWindow  time.Duration `json:"fallback_window"`
}

// DefaultLinkerConfig returns the default windows and thresholds.
func DefaultLinkerConfig() LinkerConfig {
	return LinkerConfig{
		PrimaryLookback: PrimaryLookback,
		PrimaryWindow:   PrimaryWindow,
		MinSharedTokens: MinSharedTokens,
		FallbackBefore:  FallbackBefore,
		FallbackAfter:   FallbackAfter,
		FallbackWindow:  FallbackWindow,
	}
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9\s]`)

// Linker recovers who issued the command behind a non-command record.
type Linker struct {
	cfg     LinkerConfig
	command *CommandRecognizer
}

// NewLinker creates a linker.
func NewLinker(cfg LinkerConfig) *Linker {
	return &Linker{cfg: cfg, command: NewCommandRecognizer()}
}

// Resolve returns the sender of the command message that most likely
// produced rec, which was parsed from timeline[idx]. timeline must be in
// ascending timestamp order.
//
// The primary pass walks backward through the lookback window and accepts
// the first command whose item matches rec's item. The fallback pass
// accepts the first command close enough in time, scanning from the
// earliest message of its window.
func (l *Linker) Resolve(timeline []purchase.ChatMessage, idx int, rec purchase.Record) (string, bool) {
	if idx < 0 || idx >= len(timeline) {
		return "", false
	}
	if sender, ok := l.primary(timeline, idx, rec); ok {
		return sender, true
	}
	return l.fallback(timeline, idx)
}

func (l *Linker) primary(timeline []purchase.ChatMessage, idx int, rec purchase.Record) (string, bool) {
	at := timeline[idx].SecondsOrZero()
	window := l.cfg.PrimaryWindow.Seconds()
	target := normalizeItem(rec.ItemName)

	stop := idx - l.cfg.PrimaryLookback
	if stop < 0 {
		stop = 0
	}
	for i := idx - 1; i >= stop; i-- {
		cand := timeline[i]
		if at-cand.SecondsOrZero() > window {
			break
		}
		if cand.Sender == "" || !ContainsCommand(cand.Text) {
			continue
		}
		cmd, ok := l.command.Recognize(cand.Text)
		if !ok {
			continue
		}
		if l.itemsMatch(normalizeItem(cmd.ItemName), target) {
			return cand.Sender, true
		}
	}
	return "", false
}

func (l *Linker) fallback(timeline []purchase.ChatMessage, idx int) (string, bool) {
	at := timeline[idx].SecondsOrZero()
	window := l.cfg.FallbackWindow.Seconds()

	start := idx - l.cfg.FallbackBefore
	if start < 0 {
		start = 0
	}
	end := idx + l.cfg.FallbackAfter
	if end > len(timeline)-1 {
		end = len(timeline) - 1
	}
	for i := start; i <= end; i++ {
		if i == idx {
			continue
		}
		cand := timeline[i]
		dt := at - cand.SecondsOrZero()
		if dt < 0 {
			dt = -dt
		}
		if dt > window || cand.Sender == "" {
			continue
		}
		if ContainsCommand(cand.Text) {
			return cand.Sender, true
		}
	}
	return "", false
}

// itemsMatch reports whether two normalized item names refer to the same
// thing: equal, one containing the other, or sharing enough tokens.
func (l *Linker) itemsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return sharedTokens(a, b) >= l.cfg.MinSharedTokens
}

// normalizeItem lowercases s and strips everything but letters, digits and
// whitespace.
func normalizeItem(s string) string {
	return strings.TrimSpace(nonAlnumPattern.ReplaceAllString(strings.ToLower(s), ""))
}

func sharedTokens(a, b string) int {
	seen := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		seen[t] = true
	}
	n := 0
	for _, t := range strings.Fields(b) {
		if seen[t] {
			n++
			delete(seen, t)
		}
	}
	return n
}
