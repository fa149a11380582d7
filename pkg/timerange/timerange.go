// Package timerange maps symbolic range tokens such as "1h" or "7d" to a
// concrete time window and the bucket width used to aggregate it.
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
)

// TimeWindow is an interval ending at End. Start is always <= End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window from explicit bounds.
func NewWindow(start, end time.Time) (TimeWindow, error) {
	if end.Before(start) {
		return TimeWindow{}, fmt.Errorf("window end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t lies in [Start, End].
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Range is one row of the resolution table.
type Range struct {
	Token       string        `json:"token"`
	Length      time.Duration `json:"-"`
	BucketWidth time.Duration `json:"-"`
}

// Resolution is the result of resolving a token at an instant.
type Resolution struct {
	Token       string
	Window      TimeWindow
	BucketWidth time.Duration
}

// table is ordered by window length. Charts stay between 12 and 168 points.
var table = []Range{
	{Token: "1min", Length: time.Minute, BucketWidth: 5 * time.Second},
	{Token: "5min", Length: 5 * time.Minute, BucketWidth: 5 * time.Second},
	{Token: "15min", Length: 15 * time.Minute, BucketWidth: 15 * time.Second},
	{Token: "30min", Length: 30 * time.Minute, BucketWidth: 30 * time.Second},
	{Token: "1h", Length: time.Hour, BucketWidth: time.Minute},
	{Token: "6h", Length: 6 * time.Hour, BucketWidth: 5 * time.Minute},
	{Token: "12h", Length: 12 * time.Hour, BucketWidth: 10 * time.Minute},
	{Token: "24h", Length: 24 * time.Hour, BucketWidth: 15 * time.Minute},
	{Token: "7d", Length: 7 * 24 * time.Hour, BucketWidth: time.Hour},
	{Token: "14d", Length: 14 * 24 * time.Hour, BucketWidth: 2 * time.Hour},
}

var aliases = map[string]string{
	"1d": "24h",
}

// Table returns a copy of the resolution table.
func Table() []Range {
	out := make([]Range, len(table))
	copy(out, table)
	return out
}

// Lookup finds the table row for token, following aliases.
func Lookup(token string) (Range, bool) {
	token = strings.TrimSpace(token)
	if canonical, ok := aliases[token]; ok {
		token = canonical
	}
	for _, r := range table {
		if r.Token == token {
			return r, true
		}
	}
	return Range{}, false
}

// Resolve maps token to the window [now - length, now] and its bucket width.
// Unknown tokens fail with apperror.ErrInvalidRangeToken; there is no
// silent default here.
func Resolve(token string, now time.Time) (Resolution, error) {
	r, ok := Lookup(token)
	if !ok {
		return Resolution{}, apperror.New(apperror.KindInvalidRangeToken,
			fmt.Sprintf("unknown range %q", token))
	}
	// Absolute duration arithmetic, so 7d is always 168h across DST changes.
	return Resolution{
		Token:       r.Token,
		Window:      TimeWindow{Start: now.Add(-r.Length), End: now},
		BucketWidth: r.BucketWidth,
	}, nil
}

// BucketWidthFor picks the bucket width of the table row whose window
// length is nearest to length. Used for explicit export windows.
func BucketWidthFor(length time.Duration) time.Duration {
	best := table[0]
	bestDiff := absDuration(length - best.Length)
	for _, r := range table[1:] {
		if d := absDuration(length - r.Length); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best.BucketWidth
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

var units = map[string]time.Duration{
	"s":   time.Second,
	"sec": time.Second,
	"m":   time.Minute,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   24 * time.Hour,
	"w":   7 * 24 * time.Hour,
}

// ParseDuration parses "<n><unit>" with unit one of s, sec, m, min, h, d
// or w. A bare integer is a number of hours, which is how retention
// settings are stored. Zero and negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid duration %q: missing number", s)
	}

	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid duration %q: must be positive", s)
	}

	unit := time.Hour
	if suffix := s[i:]; suffix != "" {
		u, ok := units[suffix]
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, suffix)
		}
		unit = u
	}

	const maxCount = int64(1<<63-1) / int64(7*24*time.Hour)
	if n > maxCount {
		return 0, fmt.Errorf("invalid duration %q: too large", s)
	}
	return time.Duration(n) * unit, nil
}

// ParseHours converts a duration string to whole hours, rounding down.
func ParseHours(s string) (int, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int(d / time.Hour), nil
}
