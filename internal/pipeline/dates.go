package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// absoluteLayouts are tried in order before the loose parser.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 MST",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC822,
	time.RFC822Z,
	"2006-01-02",
	"January 2, 2006 3:04pm",
	"Jan 2, 2006 3:04 pm",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon, 02 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
	"Mon Jan 2 15:04:05 2006",
}

var (
	relativeAgo   = regexp.MustCompile(`^(\d+|an?)\s+(second|minute|min|hour|day|week|month|year)s?\s+ago$`)
	relativeShort = regexp.MustCompile(`^(\d+)\s*(s|m|h|d|w|mon|y)$`)
	epochDigits   = regexp.MustCompile(`^\d{10}(\d{3})?$`)
)

// ParseTimestamp normalizes a raw timestamp to UTC. Relative expressions are
// resolved against ref. ok is false when nothing matched, in which case ref
// itself is returned.
func ParseTimestamp(raw string, ref time.Time) (t time.Time, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ref.UTC(), false
	}

	// Discourse markup carries data-time as epoch milliseconds.
	if epochDigits.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if len(s) == 13 {
				return time.UnixMilli(n).UTC(), true
			}
			return time.Unix(n, 0).UTC(), true
		}
	}

	for _, layout := range absoluteLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed.UTC(), true
		}
	}

	if parsed, ok := parseRelative(strings.ToLower(s), ref); ok {
		return parsed.UTC(), true
	}

	if parsed, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return parsed.UTC(), true
	}

	return ref.UTC(), false
}

func parseRelative(s string, ref time.Time) (time.Time, bool) {
	switch s {
	case "just now", "now", "moments ago", "a moment ago":
		return ref, true
	case "today":
		return ref, true
	case "yesterday":
		return ref.AddDate(0, 0, -1), true
	}

	var n int
	var unit string
	if m := relativeAgo.FindStringSubmatch(s); m != nil {
		unit = m[2]
		if m[1] == "a" || m[1] == "an" {
			n = 1
		} else {
			n, _ = strconv.Atoi(m[1])
		}
	} else if m := relativeShort.FindStringSubmatch(s); m != nil {
		n, _ = strconv.Atoi(m[1])
		unit = m[2]
	} else {
		return time.Time{}, false
	}

	switch unit {
	case "s", "second":
		return ref.Add(-time.Duration(n) * time.Second), true
	case "m", "min", "minute":
		return ref.Add(-time.Duration(n) * time.Minute), true
	case "h", "hour":
		return ref.Add(-time.Duration(n) * time.Hour), true
	case "d", "day":
		return ref.AddDate(0, 0, -n), true
	case "w", "week":
		return ref.AddDate(0, 0, -7*n), true
	case "mon", "month":
		return ref.AddDate(0, -n, 0), true
	case "y", "year":
		return ref.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

// InRange reports whether post belongs in window. Both bounds are inclusive.
// Posts with DateUnparsed set are always retained.
func InRange(post *types.Post, window types.Window) bool {
	if post.DateUnparsed {
		return true
	}
	return window.Contains(post.CreatedAt)
}
