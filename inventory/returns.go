/*
returns.go - Good/bad return pool, separate from main stock

PURPOSE:
  Customer returns land in a holding pool, split by condition. Good
  returns can later be transferred back into main stock; bad returns sit
  in the pool until written off. The pool is deliberately NOT part of the
  undo ledger: a return transfer writes a ledger entry for the stock it
  adds, but the pool itself has its own transaction list and no reversal
  mechanism. Keeping returns asymmetric avoids a half-undoable flow where
  reversing the transfer would strand quantity outside both pools.
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RETURN POOL
// =============================================================================

type Condition string

const (
	ConditionGood Condition = "good"
	ConditionBad  Condition = "bad"
)

func (c Condition) Valid() bool { return c == ConditionGood || c == ConditionBad }

// ConditionSplit is a good/bad pair for one pool slot.
type ConditionSplit struct {
	Good decimal.Decimal `json:"good"`
	Bad  decimal.Decimal `json:"bad"`
}

// ProductReturns holds the pool for one product: a loose slot plus one
// slot per variant.
type ProductReturns struct {
	Loose  ConditionSplit                `json:"loose"`
	Packed map[VariantID]*ConditionSplit `json:"packed"`
}

// ReturnPool maps products to their return holdings.
type ReturnPool map[ProductID]*ProductReturns

func NewReturnPool() ReturnPool { return make(ReturnPool) }

func (p ReturnPool) record(id ProductID) *ProductReturns {
	r, ok := p[id]
	if !ok {
		r = &ProductReturns{Packed: make(map[VariantID]*ConditionSplit)}
		p[id] = r
	}
	if r.Packed == nil {
		r.Packed = make(map[VariantID]*ConditionSplit)
	}
	return r
}

func (p ReturnPool) packedSlot(id ProductID, variant VariantID) *ConditionSplit {
	r := p.record(id)
	slot, ok := r.Packed[variant]
	if !ok {
		slot = &ConditionSplit{}
		r.Packed[variant] = slot
	}
	return slot
}

// AddLoose records a loose return into the pool.
func (p ReturnPool) AddLoose(id ProductID, cond Condition, qty decimal.Decimal) error {
	if !cond.Valid() {
		return &InvalidArgumentError{Field: "condition", Reason: "condition must be good or bad"}
	}
	if !qty.IsPositive() {
		return &InvalidArgumentError{Field: "quantity", Reason: "return quantity must be positive"}
	}
	r := p.record(id)
	if cond == ConditionGood {
		r.Loose.Good = r.Loose.Good.Add(qty)
	} else {
		r.Loose.Bad = r.Loose.Bad.Add(qty)
	}
	return nil
}

// AddPacked records a packed-unit return into the pool.
func (p ReturnPool) AddPacked(id ProductID, variant VariantID, cond Condition, count int) error {
	if !cond.Valid() {
		return &InvalidArgumentError{Field: "condition", Reason: "condition must be good or bad"}
	}
	if count <= 0 {
		return &InvalidArgumentError{Field: "quantity", Reason: "return quantity must be positive"}
	}
	slot := p.packedSlot(id, variant)
	qty := decimal.NewFromInt(int64(count))
	if cond == ConditionGood {
		slot.Good = slot.Good.Add(qty)
	} else {
		slot.Bad = slot.Bad.Add(qty)
	}
	return nil
}

// DrainGoodLoose empties the good loose slot and returns the drained
// quantity. Used when transferring good returns into main stock.
func (p ReturnPool) DrainGoodLoose(id ProductID) decimal.Decimal {
	r := p.record(id)
	qty := r.Loose.Good
	r.Loose.Good = decimal.Zero
	return qty
}

// DrainGoodPacked empties the good slot for one variant and returns the
// drained unit count.
func (p ReturnPool) DrainGoodPacked(id ProductID, variant VariantID) int {
	slot := p.packedSlot(id, variant)
	count := int(slot.Good.IntPart())
	slot.Good = decimal.Zero
	return count
}

// Reset zeroes the whole pool while keeping the structure.
func (p ReturnPool) Reset() {
	for _, r := range p {
		r.Loose = ConditionSplit{}
		for v := range r.Packed {
			r.Packed[v] = &ConditionSplit{}
		}
	}
}

// Delete removes a product's pool entry (product deletion cascade).
func (p ReturnPool) Delete(id ProductID) { delete(p, id) }

// =============================================================================
// RETURN TRANSACTIONS - Separate list, not part of the undo ledger
// =============================================================================

type ReturnSlot string

const (
	ReturnLoose  ReturnSlot = "loose"
	ReturnPacked ReturnSlot = "packed"
)

// ReturnEntry records one return receipt. These live in their own list in
// the snapshot; the undo engine never sees them.
type ReturnEntry struct {
	ID         string          `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	ProductID  ProductID       `json:"product_id"`
	VariantID  VariantID       `json:"variant_id,omitempty"`
	Slot       ReturnSlot      `json:"slot"`
	Quantity   decimal.Decimal `json:"quantity"`
	Condition  Condition       `json:"condition"`
	Source     string          `json:"source"`
	Reason     string          `json:"reason"`
}
