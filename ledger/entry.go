/*
Package ledger is the append-only transaction log.

PURPOSE:
  Every stock mutation is recorded here as an immutable entry carrying
  enough information to be reversed. The ledger is the system's memory:
  the undo engine reads it to compute eligibility and inverse effects,
  the reporting views aggregate it by business date.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never edited in place.
  2. ID-ORDERED: IDs are assigned as max(existing)+1 at append time, so
     insertion order and ID order always agree.
  3. REMOVAL ONLY VIA UNDO: the only deletions are whole-entry removals
     performed by the undo engine (single entry or whole batch).

TWO TIMESTAMPS:
  RecordedAt is the wall-clock moment of appending and drives undo
  eligibility. EffectiveDate is the caller-supplied business date and
  drives reporting only. An entry backdated to yesterday but recorded a
  minute ago is still undoable.

SEE ALSO:
  - log.go: the ordered log with queries and removal
  - undo/: eligibility and reversal
*/
package ledger

import (
	"time"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND - Closed set of mutation kinds
// =============================================================================

// Kind tags an entry with its mutation type. The set is closed: the undo
// engine's inverse mapping switches over it exhaustively, and anything
// outside the set is rejected at append time. Never classify entries by
// substring matching on this value.
type Kind string

const (
	StockInward Kind = "stock_inward" // loose += Weight

	Packing Kind = "packing" // loose -= Weight, packed[Variant] += Quantity

	// Outbound sale channels. Identical ledger semantics
	// (packed[Variant] -= Quantity); the kind records which channel and
	// whether the entry came from a bulk upload.
	FBASale          Kind = "fba_sale"
	FBASaleBulk      Kind = "fba_sale_bulk"
	EasyShipSale     Kind = "easy_ship_sale"
	EasyShipSaleBulk Kind = "easy_ship_sale_bulk"

	// Administrative absolute-set corrections. The entry stores the
	// signed delta (Weight for loose, Quantity for packed), which is
	// what undo reverses.
	LooseAdjustment  Kind = "loose_adjustment"
	PackedAdjustment Kind = "packed_adjustment"

	// Transfers from the good-return pool into main stock. Not
	// undoable: the pool has no reversal mechanism, so reversing the
	// transfer would strand quantity outside both pools.
	ReturnTransferLoose  Kind = "return_transfer_loose"
	ReturnTransferPacked Kind = "return_transfer_packed"

	// SystemReset is an audit marker with no stock effect, written as
	// the sole surviving entry after a full reset.
	SystemReset Kind = "system_reset"
)

func (k Kind) Valid() bool {
	switch k {
	case StockInward, Packing,
		FBASale, FBASaleBulk, EasyShipSale, EasyShipSaleBulk,
		LooseAdjustment, PackedAdjustment,
		ReturnTransferLoose, ReturnTransferPacked,
		SystemReset:
		return true
	}
	return false
}

// IsSale reports whether the kind is an outbound sale on either channel.
func (k Kind) IsSale() bool {
	switch k {
	case FBASale, FBASaleBulk, EasyShipSale, EasyShipSaleBulk:
		return true
	}
	return false
}

// Undoable reports whether the undo engine has an inverse for this kind.
func (k Kind) Undoable() bool {
	switch k {
	case ReturnTransferLoose, ReturnTransferPacked, SystemReset:
		return false
	}
	return k.Valid()
}

// =============================================================================
// DATE - Business date, day granularity
// =============================================================================

// Date is a calendar day in "2006-01-02" form. It is the reporting axis
// and never participates in undo eligibility.
type Date string

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date { return Date(t.Format(dateLayout)) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", err
	}
	return DateOf(t), nil
}

func (d Date) String() string { return string(d) }

// =============================================================================
// ENTRY - One immutable ledger record
// =============================================================================

type EntryID int64

// Entry is immutable once appended. Its only lifecycle transition is
// whole-entry removal by the undo engine.
type Entry struct {
	ID         EntryID   `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`

	// EffectiveDate is the business date the mutation belongs to,
	// defaulted to "today" at append when the caller leaves it empty.
	EffectiveDate Date `json:"effective_date"`

	Kind      Kind                `json:"kind"`
	ProductID inventory.ProductID `json:"product_id"`
	VariantID inventory.VariantID `json:"variant_id,omitempty"`

	// Quantity is a unit count; Weight is a quantity in the product's
	// unit. Which of the two is meaningful depends on Kind.
	Quantity int             `json:"quantity"`
	Weight   decimal.Decimal `json:"weight"`

	Notes string `json:"notes,omitempty"`

	// BatchID groups entries created by one bulk operation. Empty for
	// single entries. Batches do not nest.
	BatchID string `json:"batch_id,omitempty"`
}

// InBatch reports whether the entry belongs to a bulk batch.
func (e Entry) InBatch() bool { return e.BatchID != "" }
