/*
ingest.go - Bulk sales ingestion

PURPOSE:
  Consumes the output of an external upload parser: an ordered sequence
  of candidate sale rows (variant id + quantity + source row reference)
  for one channel. Each row is validated independently against current
  stock; failures skip the row with a reported reason, successes consume
  stock and append one ledger entry. All applied entries share one batch
  ID so the whole upload can be undone as a unit.

ROW OUTCOMES:
  applied                   stock consumed, entry appended
  skipped_not_found         variant id not in the catalog
  skipped_invalid_quantity  quantity <= 0
  skipped_insufficient      available < requested (numbers reported)

  A skipped row never stops the upload; the report carries per-row
  outcomes plus aggregate counts.
*/
package tracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INPUT / OUTPUT TYPES
// =============================================================================

// SaleRow is one candidate mutation produced by the upload parser.
type SaleRow struct {
	VariantID inventory.VariantID `json:"variant_id"`
	Quantity  int                 `json:"quantity"`

	// Row is the source row reference for error reporting.
	Row int `json:"row"`
}

type RowStatus string

const (
	RowApplied             RowStatus = "applied"
	RowSkippedNotFound     RowStatus = "skipped_not_found"
	RowSkippedInvalidQty   RowStatus = "skipped_invalid_quantity"
	RowSkippedInsufficient RowStatus = "skipped_insufficient_stock"
)

// RowResult reports the outcome of one row.
type RowResult struct {
	Row       int                 `json:"row"`
	VariantID inventory.VariantID `json:"variant_id"`
	Quantity  int                 `json:"quantity"`
	Status    RowStatus           `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	EntryID   ledger.EntryID      `json:"entry_id,omitempty"`
}

// UploadReport summarizes one bulk ingestion run.
type UploadReport struct {
	BatchID             string      `json:"batch_id"`
	Applied             int         `json:"applied"`
	SkippedNotFound     int         `json:"skipped_not_found"`
	SkippedInvalidQty   int         `json:"skipped_invalid_quantity"`
	SkippedInsufficient int         `json:"skipped_insufficient_stock"`
	Rows                []RowResult `json:"rows"`
}

// =============================================================================
// INGESTION
// =============================================================================

// batchID generates a channel-tagged batch identifier.
func batchID(channel Channel) string {
	prefix := "BULK_EASYSHIP_"
	if channel == ChannelFBA {
		prefix = "BULK_FBA_"
	}
	return prefix + uuid.NewString()
}

// ProcessSalesUpload applies a parsed bulk sales upload. Every applied
// row consumes packed stock and appends one ledger entry; all entries
// share the returned batch ID. The snapshot is persisted once at the end
// of the run.
func (s *Service) ProcessSalesUpload(ctx context.Context, channel Channel, rows []SaleRow, date ledger.Date) (UploadReport, error) {
	if !channel.Valid() {
		return UploadReport{}, &inventory.InvalidArgumentError{Field: "channel", Reason: "unknown sale channel " + string(channel)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := UploadReport{BatchID: batchID(channel)}
	kind := channel.kind(true)

	for _, row := range rows {
		result := RowResult{Row: row.Row, VariantID: row.VariantID, Quantity: row.Quantity}

		productID, variant, ok := s.snap.Catalog.FindVariant(row.VariantID)
		if !ok {
			result.Status = RowSkippedNotFound
			result.Reason = fmt.Sprintf("variant %s not found in catalog", row.VariantID)
			report.SkippedNotFound++
			report.Rows = append(report.Rows, result)
			continue
		}
		if row.Quantity <= 0 {
			result.Status = RowSkippedInvalidQty
			result.Reason = fmt.Sprintf("quantity must be positive, got %d", row.Quantity)
			report.SkippedInvalidQty++
			report.Rows = append(report.Rows, result)
			continue
		}

		if err := s.snap.Stock.ConsumePacked(productID, row.VariantID, row.Quantity); err != nil {
			result.Status = RowSkippedInsufficient
			result.Reason = err.Error()
			report.SkippedInsufficient++
			report.Rows = append(report.Rows, result)
			continue
		}
		s.snap.Stock.Touch(productID, s.clock())

		id, err := s.append(ledger.Entry{
			Kind:          kind,
			ProductID:     productID,
			VariantID:     row.VariantID,
			Quantity:      row.Quantity,
			Weight:        variant.PackWeight.Mul(decimal.NewFromInt(int64(row.Quantity))),
			Notes:         fmt.Sprintf("bulk upload row %d", row.Row),
			BatchID:       report.BatchID,
			EffectiveDate: date,
		})
		if err != nil {
			return report, err
		}
		result.Status = RowApplied
		result.EntryID = id
		report.Applied++
		report.Rows = append(report.Rows, result)
	}

	s.log.Info("bulk upload processed",
		zap.String("batch", report.BatchID),
		zap.String("channel", string(channel)),
		zap.Int("applied", report.Applied),
		zap.Int("skipped_not_found", report.SkippedNotFound),
		zap.Int("skipped_invalid", report.SkippedInvalidQty),
		zap.Int("skipped_insufficient", report.SkippedInsufficient))

	return report, s.persist(ctx)
}
