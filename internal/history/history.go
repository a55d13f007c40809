// Package history keeps the ordered record of past decision cycles.
// The log is append-only within a run; the decision policy only ever sees a
// bounded recent window so unbounded growth stays out of the hot path.
package history

import (
	"fmt"

	"github.com/hochfrequenz/worksim/internal/domain"
)

// Log is an append-only record of completed decision cycles. Each worker
// owns its log exclusively; it is not safe for concurrent use.
type Log struct {
	entries []domain.HistoryEntry
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Append records a completed cycle. Entries must arrive in non-decreasing
// simulated-time order.
func (l *Log) Append(e domain.HistoryEntry) error {
	if n := len(l.entries); n > 0 && e.SimTime.Before(l.entries[n-1].SimTime) {
		return fmt.Errorf("history timestamp %v before previous %v", e.SimTime, l.entries[n-1].SimTime)
	}
	l.entries = append(l.entries, e)
	return nil
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Recent returns up to k most recent entries, oldest first. The returned
// slice is a view; callers must not modify it.
func (l *Log) Recent(k int) []domain.HistoryEntry {
	if k <= 0 || len(l.entries) == 0 {
		return nil
	}
	if k > len(l.entries) {
		k = len(l.entries)
	}
	return l.entries[len(l.entries)-k:]
}

// CountRecent returns how many of the last k entries have the given kind.
func (l *Log) CountRecent(kind domain.ActionKind, k int) int {
	count := 0
	for _, e := range l.Recent(k) {
		if e.Request.Kind == kind {
			count++
		}
	}
	return count
}

// All returns every entry, oldest first, for stats and persistence.
func (l *Log) All() []domain.HistoryEntry {
	return l.entries
}
