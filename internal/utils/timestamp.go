package utils

import (
	"fmt"
	"strconv"
	"time"
)

// JST is the local time of the monitored parking sites.
var JST = time.FixedZone("JST", 9*60*60)

const sourceLayout = "20060102150405"

// ParseTimestamp parses a detector timestamp (UTC, YYYYMMDDhhmmss followed
// by optional milliseconds) and returns it in JST.
func ParseTimestamp(ts string) (time.Time, error) {
	if len(ts) < len(sourceLayout) {
		return time.Time{}, fmt.Errorf("timestamp %q too short", ts)
	}
	t, err := time.ParseInLocation(sourceLayout, ts[:len(sourceLayout)], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	if rest := ts[len(sourceLayout):]; rest != "" {
		ms, err := strconv.Atoi(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp millis %q: %w", ts, err)
		}
		t = t.Add(time.Duration(ms) * time.Millisecond)
	}
	return t.In(JST), nil
}

// FormatJST renders t as "YYYY/MM/DD HH:MM:SS.mmm" in JST.
func FormatJST(t time.Time) string {
	return t.In(JST).Format("2006/01/02 15:04:05.000")
}

// DiffTimestamp returns the absolute time between two detector timestamps.
func DiffTimestamp(a, b string) (time.Duration, error) {
	ta, err := ParseTimestamp(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseTimestamp(b)
	if err != nil {
		return 0, err
	}
	d := tb.Sub(ta)
	if d < 0 {
		d = -d
	}
	return d, nil
}
