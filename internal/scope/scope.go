// Package scope decides which remote files belong to the current sync run.
// Remote CSV names embed a timestamp in their second underscore-delimited
// segment; that timestamp drives both the scope filter and the month
// partition a file's rows land in.
package scope

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Recognized timestamp layouts inside a file name tail:
//
//	235_20251219T170000.CSV  -> 2025-12-19 17:00:00
//	D000_20250616115008.CSV  -> 2025-06-16 11:50:08
const (
	layoutT      = "20060102T150405"
	layoutPlain  = "20060102150405"
	lenLayoutT   = 15
	lenLayoutPln = 14
)

// Timestamp derives the embedded timestamp from a remote file name.
// The second return value is false when the name carries no recognizable
// timestamp; parse failures are never fatal.
func Timestamp(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	tail := parts[1]

	if len(tail) >= lenLayoutT && tail[8] == 'T' {
		if ts, err := time.Parse(layoutT, tail[:lenLayoutT]); err == nil {
			return ts, true
		}
	}

	if len(tail) >= lenLayoutPln && allDigits(tail[:lenLayoutPln]) {
		if ts, err := time.Parse(layoutPlain, tail[:lenLayoutPln]); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Window is the inclusive lower bound of a sync run. Files whose embedded
// date is older than Start, and files with no decidable timestamp, are out
// of scope.
type Window struct {
	Start time.Time
}

// Contains reports whether the named file falls inside the window.
func (w Window) Contains(name string) bool {
	ts, ok := Timestamp(name)
	if !ok {
		return false
	}
	return !dateOf(ts).Before(dateOf(w.Start))
}

// YearMonth returns the YYYY-MM partition key for a file name. When the
// name carries no decidable timestamp the fallback time (the run's wall
// clock) supplies the key instead; undecidable names are still merged, just
// into the current month.
func YearMonth(name string, fallback time.Time) string {
	ts, ok := Timestamp(name)
	if !ok {
		ts = fallback
	}
	return fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month()))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
