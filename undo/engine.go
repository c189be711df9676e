/*
engine.go - Eligibility and reversal

PURPOSE:
  The undo engine decides whether a recently recorded entry (or batch)
  may still be reversed, and performs the reversal: replay the inverse
  effect onto the stock, then remove the entry wholesale from the ledger.

ELIGIBILITY (single entry), all must hold:
  1. The entry exists.
  2. now - RecordedAt <= Window. RecordedAt, never EffectiveDate: a
     backdated entry recorded a minute ago is still eligible.
  3. The entry is among the MaxRecent most recent by insertion order - a
     safety bound independent of the clock, so a misconfigured window
     cannot expose arbitrarily old history.

ELIGIBILITY (batch), all must hold:
  1. At least one entry carries the batch ID.
  2. now - max(RecordedAt over the batch) <= Window.
  3. No interference: no later out-of-batch entry touches any variant the
     batch touched. A sale recorded against packed stock the batch just
     created makes the batch irreversible.

ATOMICITY:
  Every failure mode (NotFound, EligibilityExpired, WouldUnderflow,
  AlreadyUndone, Interference) leaves ledger and stock untouched. Batch
  undo aggregates the net inverse first and applies it all-or-nothing.

IDEMPOTENCE:
  Undone batch IDs go into a persistent set; a second UndoBatch on the
  same ID fails with AlreadyUndone even though its entries are gone.

SEE ALSO:
  - inverse.go: the kind-to-inverse table and batch aggregation
  - tracker/service.go: persistence after a successful undo
*/
package undo

import (
	"time"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultWindow is how long after recording an entry stays undoable.
	DefaultWindow = 24 * time.Hour

	// DefaultMaxRecent bounds undo to the most recent N entries.
	DefaultMaxRecent = 50
)

// UndoneSet tracks batch IDs that have already been undone. Persisted in
// the snapshot so idempotence survives restarts.
type UndoneSet map[string]bool

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Window    time.Duration
	MaxRecent int

	// Now is the clock, injectable for eligibility-boundary tests.
	Now func() time.Time
}

// NewEngine returns an engine with the given limits; zero values fall
// back to the defaults.
func NewEngine(window time.Duration, maxRecent int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &Engine{Window: window, MaxRecent: maxRecent, Now: time.Now}
}

func (g *Engine) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// =============================================================================
// SINGLE-ENTRY UNDO
// =============================================================================

// CanUndo checks eligibility without mutating anything. A nil return
// means eligible; otherwise the error names the failed rule.
func (g *Engine) CanUndo(log *ledger.Log, id ledger.EntryID) error {
	e, ok := log.ByID(id)
	if !ok {
		return ledger.ErrEntryNotFound
	}
	if !e.Kind.Undoable() {
		return &NotUndoableError{EntryID: e.ID, Kind: e.Kind}
	}
	if e.InBatch() {
		return ErrBatchMember
	}
	if g.now().Sub(e.RecordedAt) > g.Window {
		return &ExpiredError{EntryID: id, Window: g.Window, RecordedAt: e.RecordedAt}
	}
	if rank, ok := log.RecencyRank(id); ok && rank > g.MaxRecent {
		return &ExpiredError{EntryID: id, MaxRecent: g.MaxRecent, Rank: rank}
	}
	return nil
}

// Undo reverses a single entry: re-validate eligibility, apply the
// inverse to the stock, remove the entry from the ledger. Returns the
// removed entry so the caller can report and persist.
func (g *Engine) Undo(log *ledger.Log, stock inventory.Stock, id ledger.EntryID) (ledger.Entry, error) {
	// Re-validate: eligibility may have changed between check and act.
	if err := g.CanUndo(log, id); err != nil {
		return ledger.Entry{}, err
	}
	e, _ := log.ByID(id)

	fx := make(effects)
	if err := fx.accumulate(e); err != nil {
		return ledger.Entry{}, err
	}
	if err := fx.check(stock); err != nil {
		return ledger.Entry{}, err
	}
	if err := fx.apply(stock); err != nil {
		return ledger.Entry{}, err
	}

	log.Remove(id)
	stock.Touch(e.ProductID, g.now())
	return e, nil
}

// =============================================================================
// BATCH UNDO
// =============================================================================

// CanUndoBatch checks batch eligibility: existence, window on the
// latest recorded entry, no repeat undo, and no interference from later
// out-of-batch activity on the batch's variants.
func (g *Engine) CanUndoBatch(log *ledger.Log, undone UndoneSet, batchID string) error {
	if undone[batchID] {
		return ErrAlreadyUndone
	}
	entries := log.ByBatch(batchID)
	if len(entries) == 0 {
		return ledger.ErrBatchNotFound
	}

	latest := ledger.LatestRecordedAt(entries)
	if g.now().Sub(latest) > g.Window {
		return &ExpiredError{BatchID: batchID, Window: g.Window, RecordedAt: latest}
	}

	// Interference: a later entry outside the batch touching one of the
	// batch's variants has built on the batch's resulting stock state.
	touched := ledger.TouchedVariants(entries)
	for _, e := range log.Entries {
		if e.BatchID == batchID || e.VariantID == "" {
			continue
		}
		if e.RecordedAt.After(latest) && touched[e.VariantID] {
			return &InterferenceError{BatchID: batchID, EntryID: e.ID, VariantID: e.VariantID}
		}
	}
	return nil
}

// UndoBatch reverses an entire batch atomically. The net inverse is
// aggregated per product/variant across all entries (offsetting entries
// net out), checked all-or-nothing, applied, and every batch entry is
// removed in one operation. The batch ID is then recorded as undone.
func (g *Engine) UndoBatch(log *ledger.Log, stock inventory.Stock, undone UndoneSet, batchID string) ([]ledger.Entry, error) {
	if err := g.CanUndoBatch(log, undone, batchID); err != nil {
		return nil, err
	}
	entries := log.ByBatch(batchID)

	fx := make(effects)
	for _, e := range entries {
		if err := fx.accumulate(e); err != nil {
			return nil, err
		}
	}
	if err := fx.check(stock); err != nil {
		return nil, err
	}
	if err := fx.apply(stock); err != nil {
		return nil, err
	}

	log.RemoveBatch(batchID)
	now := g.now()
	for pid := range fx {
		stock.Touch(pid, now)
	}
	undone[batchID] = true
	return entries, nil
}
