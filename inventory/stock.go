/*
stock.go - Stock records and invariant-preserving mutators

PURPOSE:
  One StockRecord per product: a loose (bulk) quantity in the product's
  unit, plus a count of packaged units per variant.

CRITICAL INVARIANT:
  Neither loose nor packed stock is ever observably negative. Every
  decrementing mutator validates sufficiency first and fails with a
  structured insufficient-stock error instead of applying. The only
  exceptions are the administrative absolute-set operations (SetLoose,
  SetPacked) and ResetAll, which bypass sufficiency by design - they are
  corrections, not flows.

PAIRING CONTRACT:
  Mutators here know nothing about the ledger. The tracker pairs each
  successful mutation with exactly one ledger append; a failed mutation
  appends nothing. See tracker/service.go.

SEE ALSO:
  - types.go: catalog definitions
  - undo/inverse.go: the inverse deltas replayed onto these records
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STOCK RECORD - Current levels for one product
// =============================================================================

type StockRecord struct {
	Loose       decimal.Decimal   `json:"loose"`
	Packed      map[VariantID]int `json:"packed"`
	LastUpdated time.Time         `json:"last_updated"`
}

// Stock maps every product to its current record.
type Stock map[ProductID]*StockRecord

func NewStock() Stock { return make(Stock) }

// Record returns the stock record for a product, creating an empty one
// if the product has never had stock.
func (s Stock) Record(id ProductID) *StockRecord {
	rec, ok := s[id]
	if !ok {
		rec = &StockRecord{Loose: decimal.Zero, Packed: make(map[VariantID]int)}
		s[id] = rec
	}
	if rec.Packed == nil {
		rec.Packed = make(map[VariantID]int)
	}
	return rec
}

// Loose returns the loose quantity for a product (zero if untracked).
func (s Stock) LooseOf(id ProductID) decimal.Decimal {
	if rec, ok := s[id]; ok {
		return rec.Loose
	}
	return decimal.Zero
}

// PackedOf returns the packed unit count for a variant (zero if untracked).
func (s Stock) PackedOf(id ProductID, variant VariantID) int {
	if rec, ok := s[id]; ok {
		return rec.Packed[variant]
	}
	return 0
}

// Touch stamps a product's LastUpdated.
func (s Stock) Touch(id ProductID, at time.Time) {
	s.Record(id).LastUpdated = at
}

// =============================================================================
// FLOW MUTATORS - Sufficiency-checked
// =============================================================================

// AddLoose increases loose stock. The amount must be strictly positive;
// there is no upper bound.
func (s Stock) AddLoose(id ProductID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &InvalidArgumentError{Field: "amount", Reason: "amount must be positive, got " + amount.String()}
	}
	rec := s.Record(id)
	rec.Loose = rec.Loose.Add(amount)
	return nil
}

// Pack converts loose stock into packaged units: loose decreases by
// unitWeight*count, packed[variant] increases by count.
func (s Stock) Pack(id ProductID, variant VariantID, unitWeight decimal.Decimal, count int) error {
	if count <= 0 {
		return &InvalidArgumentError{Field: "count", Reason: "count must be positive"}
	}
	if !unitWeight.IsPositive() {
		return &InvalidArgumentError{Field: "unit_weight", Reason: "unit weight must be positive"}
	}
	rec := s.Record(id)
	needed := unitWeight.Mul(decimal.NewFromInt(int64(count)))
	if rec.Loose.LessThan(needed) {
		return &InsufficientLooseError{ProductID: id, Available: rec.Loose, Requested: needed}
	}
	rec.Loose = rec.Loose.Sub(needed)
	rec.Packed[variant] += count
	return nil
}

// ConsumePacked removes packaged units, e.g. for an outbound sale.
// Both sale channels use this identically.
func (s Stock) ConsumePacked(id ProductID, variant VariantID, count int) error {
	if count <= 0 {
		return &InvalidArgumentError{Field: "count", Reason: "count must be positive"}
	}
	rec := s.Record(id)
	if rec.Packed[variant] < count {
		return &InsufficientPackedError{
			ProductID: id,
			VariantID: variant,
			Available: rec.Packed[variant],
			Requested: count,
		}
	}
	rec.Packed[variant] -= count
	return nil
}

// =============================================================================
// ADMINISTRATIVE MUTATORS - Bypass sufficiency checks
// =============================================================================

// SetLoose sets loose stock to an absolute value and returns the signed
// delta, which the caller records on the ledger entry for undo.
func (s Stock) SetLoose(id ProductID, value decimal.Decimal) (delta decimal.Decimal, err error) {
	if value.IsNegative() {
		return decimal.Zero, &InvalidArgumentError{Field: "value", Reason: "stock value must not be negative, got " + value.String()}
	}
	rec := s.Record(id)
	delta = value.Sub(rec.Loose)
	rec.Loose = value
	return delta, nil
}

// SetPacked sets a variant's packed count to an absolute value and
// returns the signed delta.
func (s Stock) SetPacked(id ProductID, variant VariantID, value int) (delta int, err error) {
	if value < 0 {
		return 0, &InvalidArgumentError{Field: "value", Reason: "stock value must not be negative"}
	}
	rec := s.Record(id)
	delta = value - rec.Packed[variant]
	rec.Packed[variant] = value
	return delta, nil
}

// ResetAll zeroes every quantity while keeping the record structure.
// It does not touch the ledger; the caller owns the audit entry.
func (s Stock) ResetAll(at time.Time) {
	for _, rec := range s {
		rec.Loose = decimal.Zero
		for v := range rec.Packed {
			rec.Packed[v] = 0
		}
		rec.LastUpdated = at
	}
}

// =============================================================================
// DELTA MUTATORS - Used by the undo engine's inverse application
// =============================================================================

// ApplyLooseDelta adds a signed delta to loose stock, failing if the
// result would be negative. State is unchanged on failure.
func (s Stock) ApplyLooseDelta(id ProductID, delta decimal.Decimal) error {
	rec := s.Record(id)
	next := rec.Loose.Add(delta)
	if next.IsNegative() {
		return &InsufficientLooseError{ProductID: id, Available: rec.Loose, Requested: delta.Neg()}
	}
	rec.Loose = next
	return nil
}

// ApplyPackedDelta adds a signed delta to a variant's packed count,
// failing if the result would be negative.
func (s Stock) ApplyPackedDelta(id ProductID, variant VariantID, delta int) error {
	rec := s.Record(id)
	next := rec.Packed[variant] + delta
	if next < 0 {
		return &InsufficientPackedError{
			ProductID: id,
			VariantID: variant,
			Available: rec.Packed[variant],
			Requested: -delta,
		}
	}
	rec.Packed[variant] = next
	return nil
}

// =============================================================================
// CONSERVATION HELPER
// =============================================================================

// TotalMass returns loose plus packed-times-weight for one product, using
// the catalog for pack weights. Invariant under Pack and under any matched
// pack/unpack round trip.
func (s Stock) TotalMass(c *Catalog, id ProductID) decimal.Decimal {
	rec, ok := s[id]
	if !ok {
		return decimal.Zero
	}
	total := rec.Loose
	for variant, count := range rec.Packed {
		if _, v, ok := c.FindVariant(variant); ok {
			total = total.Add(v.PackWeight.Mul(decimal.NewFromInt(int64(count))))
		}
	}
	return total
}
