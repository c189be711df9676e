/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the tracker service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET    /api/products                 List products
    POST   /api/products                 Create product
    DELETE /api/products/{id}            Delete product (cascades)
    PUT    /api/products/{id}/reorder-level
    GET    /api/products/{id}/variants   List variants
    GET    /api/products/{id}/stock      Current levels
    POST   /api/variants                 Create variant
    DELETE /api/variants/{id}            Delete variant

  Stock:
    POST   /api/stock/inward             Receive loose stock
    POST   /api/stock/pack               Pack loose into units
    POST   /api/stock/adjust-loose       Absolute-set correction
    POST   /api/stock/adjust-packed      Absolute-set correction

  Sales:
    POST   /api/sales                    Single sale (either channel)
    POST   /api/sales/bulk               Batch upload ingestion

  Ledger and undo:
    GET    /api/ledger                   Recent entries (?limit, ?date)
    GET    /api/ledger/{id}              Single entry
    GET    /api/ledger/{id}/eligibility  Undo eligibility
    DELETE /api/ledger/{id}              Undo one entry
    GET    /api/batches/{id}/eligibility Batch undo eligibility
    DELETE /api/batches/{id}             Undo a whole batch

  Returns:
    GET    /api/returns                  Return receipt log
    POST   /api/returns                  Record a return
    POST   /api/returns/transfer         Good returns back to stock

  Reports:
    GET    /api/reports/daily            Full daily report (?date)
    GET    /api/reports/daily.csv        CSV export
    GET    /api/reports/low-stock        Products below reorder level

  Admin:
    POST   /api/admin/reset              Full reset (confirmation word)

ERROR HANDLING:
  Domain errors map to HTTP status by sentinel:
  - 400: invalid arguments, malformed bodies, failed validation
  - 404: unknown product, variant, entry, or batch
  - 409: insufficient stock, undo conflicts (expired, interference,
         already undone, underflow, batch membership)
  - 500: persistence failures (mutation applied; client may retry the
         save by repeating an idempotent read or the undo)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/tracker"
	"github.com/packhouse/stock-engine/undo"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Svc *tracker.Service
	Log *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler around the tracker service.
func NewHandler(svc *tracker.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Svc:      svc,
		Log:      log,
		validate: validator.New(),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// parseDate turns an optional YYYY-MM-DD string into a ledger date.
// Empty stays empty; the ledger defaults it to today at append time.
func parseDate(w http.ResponseWriter, s string) (ledger.Date, bool) {
	if s == "" {
		return "", true
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return "", false
	}
	return d, true
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListProducts returns all catalog products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.Svc.Products()
	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct registers a new product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Svc.CreateProduct(r.Context(), inventory.Product{
		ID:           inventory.ProductID(req.ID),
		Name:         req.Name,
		Unit:         req.Unit,
		Category:     req.Category,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProductDTO{
		ID: req.ID, Name: req.Name, Unit: req.Unit,
		Category: req.Category, ReorderLevel: req.ReorderLevel,
	})
}

// DeleteProduct removes a product, its variants, stock, and returns.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	if err := h.Svc.DeleteProduct(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetReorderLevel updates a product's low-stock threshold.
func (h *Handler) SetReorderLevel(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	var req SetReorderLevelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Svc.SetReorderLevel(r.Context(), id, req.ReorderLevel); err != nil {
		writeDomainError(w, "Failed to set reorder level", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVariants returns one product's variants.
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	variants := h.Svc.VariantsOf(id)
	dtos := make([]VariantDTO, 0, len(variants))
	for _, v := range variants {
		dtos = append(dtos, toVariantDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVariant registers a packaged variant.
func (h *Handler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req CreateVariantRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Svc.AddVariant(r.Context(), inventory.Variant{
		ID:          inventory.VariantID(req.ID),
		ProductID:   inventory.ProductID(req.ProductID),
		PackWeight:  req.PackWeight,
		Description: req.Description,
		ListPrice:   req.ListPrice,
	})
	if err != nil {
		writeDomainError(w, "Failed to create variant", err)
		return
	}
	writeJSON(w, http.StatusCreated, VariantDTO{
		ID: req.ID, ProductID: req.ProductID, PackWeight: req.PackWeight,
		Description: req.Description, ListPrice: req.ListPrice,
	})
}

// DeleteVariant removes a variant from the catalog.
func (h *Handler) DeleteVariant(w http.ResponseWriter, r *http.Request) {
	id := inventory.VariantID(chi.URLParam(r, "id"))
	if err := h.Svc.DeleteVariant(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete variant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStock returns one product's current levels.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	rec, ok := h.Svc.StockOf(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Product has no stock record", nil)
		return
	}
	packed := make(map[string]int, len(rec.Packed))
	for v, c := range rec.Packed {
		packed[string(v)] = c
	}
	dto := StockDTO{ProductID: string(id), Loose: rec.Loose, Packed: packed}
	if !rec.LastUpdated.IsZero() {
		dto.LastUpdated = rec.LastUpdated.Format("2006-01-02 15:04:05")
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// StockInward receives loose stock.
func (h *Handler) StockInward(w http.ResponseWriter, r *http.Request) {
	var req InwardRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	id, err := h.Svc.AddLoose(r.Context(), inventory.ProductID(req.ProductID), req.Weight, req.Notes, date)
	if err != nil {
		writeDomainError(w, "Failed to record stock inward", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// Pack converts loose stock into packaged units.
func (h *Handler) Pack(w http.ResponseWriter, r *http.Request) {
	var req PackRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	id, err := h.Svc.Pack(r.Context(), inventory.VariantID(req.VariantID), req.Count, req.Notes, date)
	if err != nil {
		writeDomainError(w, "Failed to pack", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// AdjustLoose sets loose stock to an absolute value.
func (h *Handler) AdjustLoose(w http.ResponseWriter, r *http.Request) {
	var req AdjustLooseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	id, err := h.Svc.AdjustLoose(r.Context(), inventory.ProductID(req.ProductID), req.Value, req.Reason, date)
	if err != nil {
		writeDomainError(w, "Failed to adjust loose stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// AdjustPacked sets a variant's packed count to an absolute value.
func (h *Handler) AdjustPacked(w http.ResponseWriter, r *http.Request) {
	var req AdjustPackedRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	id, err := h.Svc.AdjustPacked(r.Context(), inventory.VariantID(req.VariantID), req.Value, req.Reason, date)
	if err != nil {
		writeDomainError(w, "Failed to adjust packed stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

// RecordSale records a single outbound sale.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	id, err := h.Svc.RecordSale(r.Context(), tracker.Channel(req.Channel),
		inventory.VariantID(req.VariantID), req.Count, req.Notes, date)
	if err != nil {
		writeDomainError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// BulkSale applies a parsed sales upload as one undoable batch.
func (h *Handler) BulkSale(w http.ResponseWriter, r *http.Request) {
	var req BulkSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}
	report, err := h.Svc.ProcessSalesUpload(r.Context(), tracker.Channel(req.Channel), req.Rows, date)
	if err != nil {
		writeDomainError(w, "Failed to process bulk upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// =============================================================================
// LEDGER AND UNDO HANDLERS
// =============================================================================

// ListEntries returns recent ledger entries, or one date's entries when
// ?date= is given. ?limit= caps the recent listing (default 50).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, ok := parseDate(w, dateStr)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toEntryDTOs(h.Svc.EntriesOn(date)))
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(h.Svc.RecentEntries(limit)))
}

// GetEntry returns one ledger entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	e, found := h.Svc.EntryByID(id)
	if !found {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// EntryEligibility reports whether one entry can currently be undone.
func (h *Handler) EntryEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.CanUndo(id); err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "Entry not found", err)
			return
		}
		writeJSON(w, http.StatusOK, EligibilityDTO{Eligible: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, EligibilityDTO{Eligible: true})
}

// UndoEntry reverses one ledger entry.
func (h *Handler) UndoEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	removed, err := h.Svc.Undo(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to undo entry", err)
		return
	}
	writeJSON(w, http.StatusOK, UndoneDTO{Removed: []EntryDTO{toEntryDTO(removed)}})
}

// BatchEligibility reports whether a whole batch can currently be undone.
func (h *Handler) BatchEligibility(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if err := h.Svc.CanUndoBatch(batchID); err != nil {
		if errors.Is(err, ledger.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "Batch not found", err)
			return
		}
		writeJSON(w, http.StatusOK, EligibilityDTO{Eligible: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, EligibilityDTO{Eligible: true})
}

// UndoBatch reverses an entire bulk batch atomically.
func (h *Handler) UndoBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	removed, err := h.Svc.UndoBatch(r.Context(), batchID)
	if err != nil {
		writeDomainError(w, "Failed to undo batch", err)
		return
	}
	writeJSON(w, http.StatusOK, UndoneDTO{Removed: toEntryDTOs(removed)})
}

func entryID(w http.ResponseWriter, r *http.Request) (ledger.EntryID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Entry id must be an integer", err)
		return 0, false
	}
	return ledger.EntryID(n), true
}

// =============================================================================
// RETURNS HANDLERS
// =============================================================================

// ListReturns returns the return receipt log.
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	entries := h.Svc.ReturnLog()
	dtos := make([]ReturnEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toReturnEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordReturn places a customer return into the good/bad pool.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req RecordReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Svc.RecordReturn(r.Context(), tracker.ReturnInput{
		ProductID: inventory.ProductID(req.ProductID),
		VariantID: inventory.VariantID(req.VariantID),
		Quantity:  req.Quantity,
		Condition: inventory.Condition(req.Condition),
		Source:    req.Source,
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(w, "Failed to record return", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReturnEntryDTO(entry))
}

// TransferReturns drains good returns back into main stock.
func (h *Handler) TransferReturns(w http.ResponseWriter, r *http.Request) {
	var req TransferReturnsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Svc.TransferGoodReturns(r.Context(),
		inventory.ProductID(req.ProductID), inventory.VariantID(req.VariantID))
	if err != nil {
		writeDomainError(w, "Failed to transfer returns", err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{EntryID: int64(id)})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// reportDate resolves the ?date= query parameter, defaulting to today.
func (h *Handler) reportDate(w http.ResponseWriter, r *http.Request) (ledger.Date, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return ledger.DateOf(h.Svc.Today()), true
	}
	return parseDate(w, s)
}

// DailyReport returns the full report for one business date.
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	date, ok := h.reportDate(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.DailyReport(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to build daily report", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// DailyReportCSV streams the daily report as a CSV download.
func (h *Handler) DailyReportCSV(w http.ResponseWriter, r *http.Request) {
	date, ok := h.reportDate(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.DailyReport(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to build daily report", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "daily-report-"+string(date)+".csv"))

	cw := csv.NewWriter(w)
	defer cw.Flush()
	cw.Write([]string{
		"product_id", "product", "unit",
		"opening_loose", "inward", "packed_out", "other_change",
		"closing_loose", "net_change",
	})
	for _, row := range rows {
		cw.Write([]string{
			string(row.Product.ID),
			row.Product.Name,
			row.Product.Unit,
			row.Opening.Loose.String(),
			row.Activity.StockInward.String(),
			row.Activity.PackingOut.String(),
			row.Activity.OtherLooseChange.String(),
			row.Loose.String(),
			row.NetLoose.String(),
		})
	}
}

// LowStock returns products at or below their reorder level.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	items := h.Svc.LowStock()
	if items == nil {
		items = []inventory.LowStockItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetSystem wipes all stock and history, leaving one audit entry.
func (h *Handler) ResetSystem(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Svc.ResetAll(r.Context(), req.Reason); err != nil {
		writeDomainError(w, "Failed to reset", err)
		return
	}
	h.Log.Warn("system reset requested via API", zap.String("reason", req.Reason))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ledger.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, undo.ErrEligibilityExpired),
		errors.Is(err, undo.ErrWouldUnderflow),
		errors.Is(err, undo.ErrAlreadyUndone),
		errors.Is(err, undo.ErrInterference),
		errors.Is(err, undo.ErrNotUndoable),
		errors.Is(err, undo.ErrBatchMember):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
