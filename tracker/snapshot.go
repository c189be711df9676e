/*
Package tracker owns the combined system state and its operations.

PURPOSE:
  The tracker service is the single writer: it holds the Snapshot (catalog
  + stock + ledger + return pool + undone batches + cached daily opening
  stock) in memory, pairs every stock mutation with its ledger append, and
  flushes the whole snapshot through the Gateway after every mutating
  operation.

PAIRING INVARIANT:
  A ledger entry is appended if and only if the corresponding stock
  mutation succeeded. No entry for a failed mutation; no silent mutation
  without an entry. The one exception is ResetAll, which clears the ledger
  and writes a single synthetic audit entry.

CONCURRENCY:
  Single-process, single-writer. A mutex serializes operations so one
  mutation is fully applied (stock + ledger + persistence) before the next
  begins. There is no multi-writer coordination by design.

SEE ALSO:
  - service.go: the operations
  - ingest.go: bulk sales ingestion
  - report.go: opening stock and activity summaries
*/
package tracker

import (
	"time"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/undo"
)

// =============================================================================
// SNAPSHOT - The whole persisted state
// =============================================================================

// Snapshot is the complete state the Gateway loads and saves. It is a
// plain value: every core operation works on an explicit snapshot held by
// the owning service, never on ambient globals.
type Snapshot struct {
	Catalog       *inventory.Catalog            `json:"catalog"`
	Stock         inventory.Stock               `json:"stock"`
	Ledger        *ledger.Log                   `json:"ledger"`
	Returns       inventory.ReturnPool          `json:"returns"`
	ReturnLog     []inventory.ReturnEntry       `json:"return_log"`
	UndoneBatches undo.UndoneSet                `json:"undone_batches"`
	DailyOpening  map[ledger.Date]OpeningStock  `json:"daily_opening"`
	SavedAt       time.Time                     `json:"saved_at"`
}

// NewSnapshot returns an empty, fully initialized snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Catalog:       inventory.NewCatalog(),
		Stock:         inventory.NewStock(),
		Ledger:        ledger.NewLog(),
		Returns:       inventory.NewReturnPool(),
		UndoneBatches: make(undo.UndoneSet),
		DailyOpening:  make(map[ledger.Date]OpeningStock),
	}
}

// normalize repairs nil maps after deserialization so older or partial
// snapshots load cleanly.
func (s *Snapshot) normalize() {
	if s.Catalog == nil {
		s.Catalog = inventory.NewCatalog()
	}
	if s.Catalog.Products == nil {
		s.Catalog.Products = make(map[inventory.ProductID]*inventory.Product)
	}
	if s.Catalog.Variants == nil {
		s.Catalog.Variants = make(map[inventory.ProductID]map[inventory.VariantID]*inventory.Variant)
	}
	if s.Stock == nil {
		s.Stock = inventory.NewStock()
	}
	if s.Ledger == nil {
		s.Ledger = ledger.NewLog()
	}
	if s.Returns == nil {
		s.Returns = inventory.NewReturnPool()
	}
	if s.UndoneBatches == nil {
		s.UndoneBatches = make(undo.UndoneSet)
	}
	if s.DailyOpening == nil {
		s.DailyOpening = make(map[ledger.Date]OpeningStock)
	}
}
