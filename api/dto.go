/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validate struct tags; handlers run them through a
  shared validator instance before touching the service.

SEE ALSO:
  - handlers.go: Uses these types
  - tracker/service.go: The domain operations behind them
*/
package api

import (
	"time"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/tracker"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Category     string          `json:"category,omitempty"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// CreateProductRequest is the request to register a product.
type CreateProductRequest struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Unit         string          `json:"unit" validate:"required"`
	Category     string          `json:"category"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// VariantDTO represents a packaged variant in API responses.
type VariantDTO struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	PackWeight  decimal.Decimal `json:"pack_weight"`
	Description string          `json:"description,omitempty"`
	ListPrice   decimal.Decimal `json:"list_price"`
}

// CreateVariantRequest is the request to register a variant.
type CreateVariantRequest struct {
	ID          string          `json:"id" validate:"required"`
	ProductID   string          `json:"product_id" validate:"required"`
	PackWeight  decimal.Decimal `json:"pack_weight"`
	Description string          `json:"description"`
	ListPrice   decimal.Decimal `json:"list_price"`
}

// SetReorderLevelRequest updates a product's low-stock threshold.
type SetReorderLevelRequest struct {
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// =============================================================================
// STOCK TYPES
// =============================================================================

// StockDTO represents one product's current levels.
type StockDTO struct {
	ProductID   string          `json:"product_id"`
	Loose       decimal.Decimal `json:"loose"`
	Packed      map[string]int  `json:"packed"`
	LastUpdated string          `json:"last_updated,omitempty"`
}

// InwardRequest receives loose stock.
type InwardRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Weight    decimal.Decimal `json:"weight"`
	Notes     string          `json:"notes"`
	Date      string          `json:"date"` // YYYY-MM-DD, today if empty
}

// PackRequest converts loose stock into packaged units.
type PackRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Count     int    `json:"count" validate:"gt=0"`
	Notes     string `json:"notes"`
	Date      string `json:"date"`
}

// AdjustLooseRequest sets loose stock to an absolute value.
type AdjustLooseRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Value     decimal.Decimal `json:"value"`
	Reason    string          `json:"reason" validate:"required"`
	Date      string          `json:"date"`
}

// AdjustPackedRequest sets a variant's packed count to an absolute value.
type AdjustPackedRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Value     int    `json:"value" validate:"gte=0"`
	Reason    string `json:"reason" validate:"required"`
	Date      string `json:"date"`
}

// =============================================================================
// SALES TYPES
// =============================================================================

// SaleRequest records one outbound sale.
type SaleRequest struct {
	Channel   string `json:"channel" validate:"required,oneof=fba easy_ship"`
	VariantID string `json:"variant_id" validate:"required"`
	Count     int    `json:"count" validate:"gt=0"`
	Notes     string `json:"notes"`
	Date      string `json:"date"`
}

// BulkSaleRequest applies a parsed sales upload as one batch.
type BulkSaleRequest struct {
	Channel string            `json:"channel" validate:"required,oneof=fba easy_ship"`
	Rows    []tracker.SaleRow `json:"rows" validate:"required,min=1"`
	Date    string            `json:"date"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// EntryDTO represents one ledger entry.
type EntryDTO struct {
	ID            int64           `json:"id"`
	RecordedAt    string          `json:"recorded_at"`
	EffectiveDate string          `json:"effective_date"`
	Kind          string          `json:"kind"`
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id,omitempty"`
	Quantity      int             `json:"quantity"`
	Weight        decimal.Decimal `json:"weight"`
	Notes         string          `json:"notes,omitempty"`
	BatchID       string          `json:"batch_id,omitempty"`
}

// EntryCreatedDTO is the response after a mutating stock operation.
type EntryCreatedDTO struct {
	EntryID int64 `json:"entry_id"`
}

// EligibilityDTO reports undo eligibility for an entry or batch.
type EligibilityDTO struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// UndoneDTO is the response after a successful undo.
type UndoneDTO struct {
	Removed []EntryDTO `json:"removed"`
}

// =============================================================================
// RETURNS TYPES
// =============================================================================

// RecordReturnRequest places a customer return into the pool.
type RecordReturnRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	VariantID string          `json:"variant_id"` // empty for a loose return
	Quantity  decimal.Decimal `json:"quantity"`
	Condition string          `json:"condition" validate:"required,oneof=good bad"`
	Source    string          `json:"source"`
	Reason    string          `json:"reason"`
}

// TransferReturnsRequest moves good returns back into main stock.
type TransferReturnsRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id"` // empty transfers the loose slot
}

// ReturnEntryDTO represents one return receipt.
type ReturnEntryDTO struct {
	ID         string          `json:"id"`
	RecordedAt string          `json:"recorded_at"`
	ProductID  string          `json:"product_id"`
	VariantID  string          `json:"variant_id,omitempty"`
	Slot       string          `json:"slot"`
	Quantity   decimal.Decimal `json:"quantity"`
	Condition  string          `json:"condition"`
	Source     string          `json:"source,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// ResetRequest wipes all stock and history. Confirm must be the literal
// word RESET, spelled out to prevent accidental resets.
type ResetRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Confirm string `json:"confirm" validate:"required,eq=RESET"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:            int64(e.ID),
		RecordedAt:    e.RecordedAt.Format(time.RFC3339),
		EffectiveDate: string(e.EffectiveDate),
		Kind:          string(e.Kind),
		ProductID:     string(e.ProductID),
		VariantID:     string(e.VariantID),
		Quantity:      e.Quantity,
		Weight:        e.Weight,
		Notes:         e.Notes,
		BatchID:       e.BatchID,
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toProductDTO(p inventory.Product) ProductDTO {
	return ProductDTO{
		ID:           string(p.ID),
		Name:         p.Name,
		Unit:         p.Unit,
		Category:     p.Category,
		ReorderLevel: p.ReorderLevel,
	}
}

func toVariantDTO(v inventory.Variant) VariantDTO {
	return VariantDTO{
		ID:          string(v.ID),
		ProductID:   string(v.ProductID),
		PackWeight:  v.PackWeight,
		Description: v.Description,
		ListPrice:   v.ListPrice,
	}
}

func toReturnEntryDTO(e inventory.ReturnEntry) ReturnEntryDTO {
	return ReturnEntryDTO{
		ID:         e.ID,
		RecordedAt: e.RecordedAt.Format(time.RFC3339),
		ProductID:  string(e.ProductID),
		VariantID:  string(e.VariantID),
		Slot:       string(e.Slot),
		Quantity:   e.Quantity,
		Condition:  string(e.Condition),
		Source:     e.Source,
		Reason:     e.Reason,
	}
}
