/*
log.go - The ordered, append-only log

PURPOSE:
  Log owns the ordered slice of entries and the ID sequence. Ordering is
  by assigned ID, which matches insertion order; recency ("the most
  recent N entries") is computed from that order, never from timestamps.

REMOVAL:
  Remove and RemoveBatch exist solely for the undo engine. Nothing else
  in the system deletes entries, and nothing ever rewrites one.
*/
package ledger

import (
	"time"

	"github.com/packhouse/stock-engine/inventory"
)

// =============================================================================
// LOG
// =============================================================================

type Log struct {
	Entries []Entry `json:"entries"`
}

func NewLog() *Log { return &Log{} }

// NextID returns max(existing ids)+1, or 1 for an empty log. IDs stay
// monotonic even after undo removes the newest entry mid-session, because
// remaining entries keep their IDs and the max moves backward only when
// the tail is removed - which is exactly the original numbering scheme.
func (l *Log) NextID() EntryID {
	var max EntryID
	for _, e := range l.Entries {
		if e.ID > max {
			max = e.ID
		}
	}
	return max + 1
}

// Append assigns the ID, stamps RecordedAt, defaults the effective date,
// and appends. Returns the assigned ID.
func (l *Log) Append(e Entry, now time.Time) (EntryID, error) {
	if !e.Kind.Valid() {
		return 0, &InvalidKindError{Kind: e.Kind}
	}
	e.ID = l.NextID()
	e.RecordedAt = now
	if e.EffectiveDate == "" {
		e.EffectiveDate = DateOf(now)
	}
	l.Entries = append(l.Entries, e)
	return e.ID, nil
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.Entries) }

// Clear drops every entry. Used only by the full system reset.
func (l *Log) Clear() { l.Entries = nil }

// =============================================================================
// QUERIES
// =============================================================================

// ByID returns the entry with the given ID.
func (l *Log) ByID(id EntryID) (Entry, bool) {
	for _, e := range l.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// ByBatch returns all entries sharing a batch ID, in insertion order.
func (l *Log) ByBatch(batchID string) []Entry {
	var out []Entry
	for _, e := range l.Entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns the most recent n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	if n <= 0 || len(l.Entries) == 0 {
		return nil
	}
	start := len(l.Entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, 0, len(l.Entries)-start)
	for i := len(l.Entries) - 1; i >= start; i-- {
		out = append(out, l.Entries[i])
	}
	return out
}

// On returns all entries for one business date, in insertion order.
func (l *Log) On(date Date) []Entry {
	var out []Entry
	for _, e := range l.Entries {
		if e.EffectiveDate == date {
			out = append(out, e)
		}
	}
	return out
}

// RecencyRank returns the 1-based rank of an entry counted from the
// newest (rank 1 = latest entry). Drives the undo recency bound.
func (l *Log) RecencyRank(id EntryID) (int, bool) {
	for i := len(l.Entries) - 1; i >= 0; i-- {
		if l.Entries[i].ID == id {
			return len(l.Entries) - i, true
		}
	}
	return 0, false
}

// LatestRecordedAt returns the newest RecordedAt among a batch's entries.
func LatestRecordedAt(entries []Entry) time.Time {
	var latest time.Time
	for _, e := range entries {
		if e.RecordedAt.After(latest) {
			latest = e.RecordedAt
		}
	}
	return latest
}

// TouchedVariants collects the distinct variant IDs a set of entries
// touches. Entries without a variant (pure loose mutations) contribute
// nothing.
func TouchedVariants(entries []Entry) map[inventory.VariantID]bool {
	touched := make(map[inventory.VariantID]bool)
	for _, e := range entries {
		if e.VariantID != "" {
			touched[e.VariantID] = true
		}
	}
	return touched
}

// =============================================================================
// REMOVAL - Undo engine only
// =============================================================================

// Remove deletes a single entry wholesale. Reserved for the undo engine.
func (l *Log) Remove(id EntryID) bool {
	for i, e := range l.Entries {
		if e.ID == id {
			l.Entries = append(l.Entries[:i], l.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveBatch deletes every entry with the given batch ID in one
// operation and returns how many were removed.
func (l *Log) RemoveBatch(batchID string) int {
	kept := l.Entries[:0]
	removed := 0
	for _, e := range l.Entries {
		if e.BatchID == batchID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.Entries = kept
	return removed
}
