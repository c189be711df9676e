/*
inverse.go - Exhaustive kind-to-inverse mapping

PURPOSE:
  Maps every ledger kind to the inverse effect replayed onto the stock.
  The switch is total over the closed kind set: a kind either has an
  inverse here or is rejected as not undoable. Entries are never matched
  by substring or prefix.

BATCH AGGREGATION:
  Batch undo does not replay entries one by one. It sums the net inverse
  per product/variant first, so a batch containing offsetting entries
  nets out correctly, then applies the aggregate all-or-nothing.
*/
package undo

import (
	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// NET EFFECT - Signed deltas per product
// =============================================================================

// netEffect accumulates the signed inverse deltas for one product.
type netEffect struct {
	loose  decimal.Decimal
	packed map[inventory.VariantID]int
}

// effects maps products to their accumulated inverse deltas.
type effects map[inventory.ProductID]*netEffect

func (fx effects) of(id inventory.ProductID) *netEffect {
	e, ok := fx[id]
	if !ok {
		e = &netEffect{loose: decimal.Zero, packed: make(map[inventory.VariantID]int)}
		fx[id] = e
	}
	return e
}

// accumulate adds one entry's inverse to the running net effect. The
// switch is exhaustive over undoable kinds; anything else errors.
func (fx effects) accumulate(e ledger.Entry) error {
	eff := fx.of(e.ProductID)
	switch e.Kind {
	case ledger.StockInward:
		// Forward: loose += Weight. Inverse: loose -= Weight.
		eff.loose = eff.loose.Sub(e.Weight)

	case ledger.Packing:
		// Forward: loose -= Weight, packed += Quantity. Inverse: both back.
		eff.loose = eff.loose.Add(e.Weight)
		eff.packed[e.VariantID] -= e.Quantity

	case ledger.FBASale, ledger.FBASaleBulk, ledger.EasyShipSale, ledger.EasyShipSaleBulk:
		// Forward: packed -= Quantity. Inverse: packed += Quantity.
		eff.packed[e.VariantID] += e.Quantity

	case ledger.LooseAdjustment:
		// The entry stores the signed delta in Weight; reverse it.
		eff.loose = eff.loose.Sub(e.Weight)

	case ledger.PackedAdjustment:
		// The entry stores the signed delta in Quantity; reverse it.
		eff.packed[e.VariantID] -= e.Quantity

	case ledger.ReturnTransferLoose, ledger.ReturnTransferPacked, ledger.SystemReset:
		return &NotUndoableError{EntryID: e.ID, Kind: e.Kind}

	default:
		return &NotUndoableError{EntryID: e.ID, Kind: e.Kind}
	}
	return nil
}

// =============================================================================
// VALIDATION AND APPLICATION
// =============================================================================

// check verifies that applying the net effect leaves every quantity
// non-negative, without mutating anything.
func (fx effects) check(stock inventory.Stock) error {
	for pid, eff := range fx {
		if eff.loose.IsNegative() {
			next := stock.LooseOf(pid).Add(eff.loose)
			if next.IsNegative() {
				return &UnderflowError{
					ProductID: pid,
					Cause: &inventory.InsufficientLooseError{
						ProductID: pid,
						Available: stock.LooseOf(pid),
						Requested: eff.loose.Neg(),
					},
				}
			}
		}
		for vid, delta := range eff.packed {
			if delta < 0 && stock.PackedOf(pid, vid)+delta < 0 {
				return &UnderflowError{
					ProductID: pid,
					VariantID: vid,
					Cause: &inventory.InsufficientPackedError{
						ProductID: pid,
						VariantID: vid,
						Available: stock.PackedOf(pid, vid),
						Requested: -delta,
					},
				}
			}
		}
	}
	return nil
}

// apply writes the net effect onto the stock. Must only be called after
// check passed; the delta mutators still guard against races.
func (fx effects) apply(stock inventory.Stock) error {
	for pid, eff := range fx {
		if !eff.loose.IsZero() {
			if err := stock.ApplyLooseDelta(pid, eff.loose); err != nil {
				return &UnderflowError{ProductID: pid, Cause: err}
			}
		}
		for vid, delta := range eff.packed {
			if delta == 0 {
				continue
			}
			if err := stock.ApplyPackedDelta(pid, vid, delta); err != nil {
				return &UnderflowError{ProductID: pid, VariantID: vid, Cause: err}
			}
		}
	}
	return nil
}
