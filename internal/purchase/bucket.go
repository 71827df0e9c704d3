package purchase

import (
	"math"
	"sort"
	"time"
)

// UnknownBucket is the bucket for records whose timestamp cannot be parsed.
const UnknownBucket = "unknown"

const (
	bucketLayout        = "2006-01"
	extractedDateLayout = "2006-01-02 15:04:05"
)

// MonthBucket returns the calendar year-month of ts in loc. A nil loc means
// the process local zone. Buckets follow the wall clock of the machine doing
// the extraction, not the zone the message was originally sent from.
func MonthBucket(ts string, loc *time.Location) string {
	t, ok := toTime(ts, loc)
	if !ok {
		return UnknownBucket
	}
	return t.Format(bucketLayout)
}

// ExtractedDate renders ts as a local date-time, or "unknown".
func ExtractedDate(ts string, loc *time.Location) string {
	t, ok := toTime(ts, loc)
	if !ok {
		return UnknownBucket
	}
	return t.Format(extractedDateLayout)
}

// CurrentBucket is the bucket for a live submission received at now.
func CurrentBucket(now time.Time) string {
	return now.Format(bucketLayout)
}

func toTime(ts string, loc *time.Location) (time.Time, bool) {
	secs, err := ChatMessage{Timestamp: ts}.Seconds()
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).In(loc), true
}

// SortByTimestamp returns a copy of msgs in ascending timestamp order.
// Messages with equal timestamps keep their relative order.
func SortByTimestamp(msgs []ChatMessage) []ChatMessage {
	sorted := make([]ChatMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SecondsOrZero() < sorted[j].SecondsOrZero()
	})
	return sorted
}
