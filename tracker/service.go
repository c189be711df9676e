/*
service.go - The owning service with exclusive mutation rights

PURPOSE:
  Every core operation lives here: stock flows, administrative
  corrections, returns, catalog management, undo, and the full reset.
  Each mutating operation follows the same shape:

    1. validate against the current snapshot
    2. mutate the stock (fails atomically)
    3. append the paired ledger entry
    4. persist the snapshot through the Gateway

  A failed validation or mutation stops before step 3: no entry is ever
  appended for a mutation that did not happen.
*/
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/undo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// SALE CHANNELS
// =============================================================================

// Channel names an outbound sale channel. Both channels consume packed
// stock identically; they differ only in the ledger kind recorded.
type Channel string

const (
	ChannelFBA      Channel = "fba"
	ChannelEasyShip Channel = "easy_ship"
)

func (c Channel) Valid() bool { return c == ChannelFBA || c == ChannelEasyShip }

// kind maps the channel to its ledger kind, bulk or single.
func (c Channel) kind(bulk bool) ledger.Kind {
	switch {
	case c == ChannelFBA && bulk:
		return ledger.FBASaleBulk
	case c == ChannelFBA:
		return ledger.FBASale
	case bulk:
		return ledger.EasyShipSaleBulk
	default:
		return ledger.EasyShipSale
	}
}

// =============================================================================
// SERVICE
// =============================================================================

type Options struct {
	// UndoWindow and MaxRecent configure undo eligibility; zero values
	// use the undo package defaults (24h, 50 entries).
	UndoWindow time.Duration
	MaxRecent  int

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time

	Logger *zap.Logger
}

type Service struct {
	mu    sync.Mutex
	snap  *Snapshot
	gw    Gateway
	undo  *undo.Engine
	clock func() time.Time
	log   *zap.Logger
}

// NewService loads the snapshot from the gateway (starting empty if none
// exists) and returns the owning service.
func NewService(ctx context.Context, gw Gateway, opts Options) (*Service, error) {
	snap, err := gw.Load(ctx)
	switch {
	case err == nil:
		snap.normalize()
	case errors.Is(err, ErrNoSnapshot):
		snap = NewSnapshot()
	default:
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := undo.NewEngine(opts.UndoWindow, opts.MaxRecent)
	engine.Now = clock

	return &Service{snap: snap, gw: gw, undo: engine, clock: clock, log: logger}, nil
}

// persist flushes the snapshot. Called after every mutating operation;
// on failure the in-memory state stays applied and the caller gets a
// retryable SaveError.
func (s *Service) persist(ctx context.Context) error {
	s.snap.SavedAt = s.clock()
	if err := s.gw.Save(ctx, s.snap); err != nil {
		s.log.Error("snapshot save failed", zap.Error(err))
		return &SaveError{Err: err}
	}
	return nil
}

func (s *Service) append(e ledger.Entry) (ledger.EntryID, error) {
	return s.snap.Ledger.Append(e, s.clock())
}

// Today returns the current wall-clock time from the injected clock, so
// callers derive "today" consistently with ledger timestamps.
func (s *Service) Today() time.Time { return s.clock() }

// =============================================================================
// STOCK FLOWS
// =============================================================================

// AddLoose receives bulk stock for a product.
func (s *Service) AddLoose(ctx context.Context, productID inventory.ProductID, weight decimal.Decimal, notes string, date ledger.Date) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Catalog.Product(productID); !ok {
		return 0, &inventory.NotFoundError{Kind: "product", ID: string(productID)}
	}
	if err := s.snap.Stock.AddLoose(productID, weight); err != nil {
		return 0, err
	}
	s.snap.Stock.Touch(productID, s.clock())

	id, err := s.append(ledger.Entry{
		Kind:          ledger.StockInward,
		ProductID:     productID,
		Weight:        weight,
		Notes:         notes,
		EffectiveDate: date,
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("stock inward", zap.String("product", string(productID)), zap.String("weight", weight.String()))
	return id, s.persist(ctx)
}

// Pack converts loose stock into packaged units of a variant.
func (s *Service) Pack(ctx context.Context, variantID inventory.VariantID, count int, notes string, date ledger.Date) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	productID, variant, ok := s.snap.Catalog.FindVariant(variantID)
	if !ok {
		return 0, &inventory.NotFoundError{Kind: "variant", ID: string(variantID)}
	}
	if err := s.snap.Stock.Pack(productID, variantID, variant.PackWeight, count); err != nil {
		return 0, err
	}
	s.snap.Stock.Touch(productID, s.clock())

	weight := variant.PackWeight.Mul(decimal.NewFromInt(int64(count)))
	id, err := s.append(ledger.Entry{
		Kind:          ledger.Packing,
		ProductID:     productID,
		VariantID:     variantID,
		Quantity:      count,
		Weight:        weight,
		Notes:         notes,
		EffectiveDate: date,
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("packed", zap.String("variant", string(variantID)), zap.Int("count", count))
	return id, s.persist(ctx)
}

// RecordSale consumes packed units through one of the outbound channels.
func (s *Service) RecordSale(ctx context.Context, channel Channel, variantID inventory.VariantID, count int, notes string, date ledger.Date) (ledger.EntryID, error) {
	if !channel.Valid() {
		return 0, &inventory.InvalidArgumentError{Field: "channel", Reason: "unknown sale channel " + string(channel)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	productID, variant, ok := s.snap.Catalog.FindVariant(variantID)
	if !ok {
		return 0, &inventory.NotFoundError{Kind: "variant", ID: string(variantID)}
	}
	if err := s.snap.Stock.ConsumePacked(productID, variantID, count); err != nil {
		return 0, err
	}
	s.snap.Stock.Touch(productID, s.clock())

	id, err := s.append(ledger.Entry{
		Kind:          channel.kind(false),
		ProductID:     productID,
		VariantID:     variantID,
		Quantity:      count,
		Weight:        variant.PackWeight.Mul(decimal.NewFromInt(int64(count))),
		Notes:         notes,
		EffectiveDate: date,
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("sale recorded",
		zap.String("channel", string(channel)),
		zap.String("variant", string(variantID)),
		zap.Int("count", count))
	return id, s.persist(ctx)
}

// =============================================================================
// ADMINISTRATIVE CORRECTIONS
// =============================================================================

// AdjustLoose sets loose stock to an absolute value, bypassing
// sufficiency checks, and records the signed delta for undo.
func (s *Service) AdjustLoose(ctx context.Context, productID inventory.ProductID, value decimal.Decimal, reason string, date ledger.Date) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Catalog.Product(productID); !ok {
		return 0, &inventory.NotFoundError{Kind: "product", ID: string(productID)}
	}
	before := s.snap.Stock.LooseOf(productID)
	delta, err := s.snap.Stock.SetLoose(productID, value)
	if err != nil {
		return 0, err
	}
	s.snap.Stock.Touch(productID, s.clock())

	id, err := s.append(ledger.Entry{
		Kind:          ledger.LooseAdjustment,
		ProductID:     productID,
		Weight:        delta,
		Notes:         fmt.Sprintf("loose stock set from %s to %s | %s", before, value, reason),
		EffectiveDate: date,
	})
	if err != nil {
		return 0, err
	}
	return id, s.persist(ctx)
}

// AdjustPacked sets a variant's packed count to an absolute value and
// records the signed delta.
func (s *Service) AdjustPacked(ctx context.Context, variantID inventory.VariantID, value int, reason string, date ledger.Date) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	productID, _, ok := s.snap.Catalog.FindVariant(variantID)
	if !ok {
		return 0, &inventory.NotFoundError{Kind: "variant", ID: string(variantID)}
	}
	before := s.snap.Stock.PackedOf(productID, variantID)
	delta, err := s.snap.Stock.SetPacked(productID, variantID, value)
	if err != nil {
		return 0, err
	}
	s.snap.Stock.Touch(productID, s.clock())

	id, err := s.append(ledger.Entry{
		Kind:          ledger.PackedAdjustment,
		ProductID:     productID,
		VariantID:     variantID,
		Quantity:      delta,
		Notes:         fmt.Sprintf("packed stock set from %d to %d | %s", before, value, reason),
		EffectiveDate: date,
	})
	if err != nil {
		return 0, err
	}
	return id, s.persist(ctx)
}

// ResetAll zeroes every quantity, clears the ledger and return data, and
// leaves a single system-reset audit entry as the whole history.
func (s *Service) ResetAll(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var totalLoose decimal.Decimal
	var totalPacked int
	for _, rec := range s.snap.Stock {
		totalLoose = totalLoose.Add(rec.Loose)
		for _, c := range rec.Packed {
			totalPacked += c
		}
	}
	cleared := s.snap.Ledger.Len()

	s.snap.Stock.ResetAll(now)
	s.snap.Returns.Reset()
	s.snap.ReturnLog = nil
	s.snap.Ledger.Clear()
	s.snap.UndoneBatches = make(undo.UndoneSet)
	s.snap.DailyOpening = make(map[ledger.Date]OpeningStock)

	// The audit marker is the only entry that survives, with id 1.
	_, err := s.append(ledger.Entry{
		Kind: ledger.SystemReset,
		Notes: fmt.Sprintf("system reset | reason: %s | entries cleared: %d | loose cleared: %s | packed cleared: %d",
			reason, cleared, totalLoose, totalPacked),
	})
	if err != nil {
		return err
	}
	s.log.Warn("system reset", zap.String("reason", reason), zap.Int("entries_cleared", cleared))
	return s.persist(ctx)
}

// =============================================================================
// RETURNS
// =============================================================================

// ReturnInput describes one customer return receipt.
type ReturnInput struct {
	ProductID inventory.ProductID
	VariantID inventory.VariantID // empty for a loose return
	Quantity  decimal.Decimal     // whole units for packed returns
	Condition inventory.Condition
	Source    string
	Reason    string
}

// RecordReturn places a return into the good/bad pool. Returns never
// touch the undo ledger; they live in their own transaction list.
func (s *Service) RecordReturn(ctx context.Context, in ReturnInput) (inventory.ReturnEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Catalog.Product(in.ProductID); !ok {
		return inventory.ReturnEntry{}, &inventory.NotFoundError{Kind: "product", ID: string(in.ProductID)}
	}

	slot := inventory.ReturnLoose
	if in.VariantID != "" {
		owner, _, ok := s.snap.Catalog.FindVariant(in.VariantID)
		if !ok || owner != in.ProductID {
			return inventory.ReturnEntry{}, &inventory.NotFoundError{Kind: "variant", ID: string(in.VariantID)}
		}
		slot = inventory.ReturnPacked
		if err := s.snap.Returns.AddPacked(in.ProductID, in.VariantID, in.Condition, int(in.Quantity.IntPart())); err != nil {
			return inventory.ReturnEntry{}, err
		}
	} else {
		if err := s.snap.Returns.AddLoose(in.ProductID, in.Condition, in.Quantity); err != nil {
			return inventory.ReturnEntry{}, err
		}
	}

	entry := inventory.ReturnEntry{
		ID:         "RET-" + uuid.NewString(),
		RecordedAt: s.clock(),
		ProductID:  in.ProductID,
		VariantID:  in.VariantID,
		Slot:       slot,
		Quantity:   in.Quantity,
		Condition:  in.Condition,
		Source:     in.Source,
		Reason:     in.Reason,
	}
	s.snap.ReturnLog = append(s.snap.ReturnLog, entry)
	return entry, s.persist(ctx)
}

// TransferGoodReturns drains the good-return slot into main stock and
// records a return-transfer ledger entry. The entry is not undoable.
func (s *Service) TransferGoodReturns(ctx context.Context, productID inventory.ProductID, variantID inventory.VariantID) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Catalog.Product(productID); !ok {
		return 0, &inventory.NotFoundError{Kind: "product", ID: string(productID)}
	}

	entry := ledger.Entry{ProductID: productID}
	if variantID == "" {
		qty := s.snap.Returns.DrainGoodLoose(productID)
		if !qty.IsPositive() {
			return 0, &inventory.InvalidArgumentError{Field: "returns", Reason: "no good loose returns to transfer"}
		}
		if err := s.snap.Stock.AddLoose(productID, qty); err != nil {
			return 0, err
		}
		entry.Kind = ledger.ReturnTransferLoose
		entry.Weight = qty
		entry.Notes = fmt.Sprintf("transferred %s good loose returns to main stock", qty)
	} else {
		owner, _, ok := s.snap.Catalog.FindVariant(variantID)
		if !ok || owner != productID {
			return 0, &inventory.NotFoundError{Kind: "variant", ID: string(variantID)}
		}
		count := s.snap.Returns.DrainGoodPacked(productID, variantID)
		if count <= 0 {
			return 0, &inventory.InvalidArgumentError{Field: "returns", Reason: "no good packed returns to transfer"}
		}
		if err := s.snap.Stock.ApplyPackedDelta(productID, variantID, count); err != nil {
			return 0, err
		}
		entry.Kind = ledger.ReturnTransferPacked
		entry.VariantID = variantID
		entry.Quantity = count
		entry.Notes = fmt.Sprintf("transferred %d good packed returns to main stock", count)
	}
	s.snap.Stock.Touch(productID, s.clock())

	id, err := s.append(entry)
	if err != nil {
		return 0, err
	}
	return id, s.persist(ctx)
}

// =============================================================================
// UNDO
// =============================================================================

// CanUndo reports single-entry undo eligibility. Nil means eligible.
func (s *Service) CanUndo(id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.CanUndo(s.snap.Ledger, id)
}

// Undo reverses one entry and persists.
func (s *Service) Undo(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.undo.Undo(s.snap.Ledger, s.snap.Stock, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	s.log.Info("entry undone", zap.Int64("id", int64(id)), zap.String("kind", string(removed.Kind)))
	return removed, s.persist(ctx)
}

// CanUndoBatch reports batch undo eligibility. Nil means eligible.
func (s *Service) CanUndoBatch(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.CanUndoBatch(s.snap.Ledger, s.snap.UndoneBatches, batchID)
}

// UndoBatch reverses an entire batch atomically and persists.
func (s *Service) UndoBatch(ctx context.Context, batchID string) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.undo.UndoBatch(s.snap.Ledger, s.snap.Stock, s.snap.UndoneBatches, batchID)
	if err != nil {
		return nil, err
	}
	s.log.Info("batch undone", zap.String("batch", batchID), zap.Int("entries", len(removed)))
	return removed, s.persist(ctx)
}

// =============================================================================
// CATALOG MANAGEMENT
// =============================================================================

func (s *Service) CreateProduct(ctx context.Context, p inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snap.Catalog.AddProduct(p); err != nil {
		return err
	}
	s.snap.Stock.Record(p.ID)
	return s.persist(ctx)
}

func (s *Service) AddVariant(ctx context.Context, v inventory.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snap.Catalog.AddVariant(v); err != nil {
		return err
	}
	rec := s.snap.Stock.Record(v.ProductID)
	if _, ok := rec.Packed[v.ID]; !ok {
		rec.Packed[v.ID] = 0
	}
	return s.persist(ctx)
}

func (s *Service) DeleteVariant(ctx context.Context, id inventory.VariantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	productID, _, ok := s.snap.Catalog.FindVariant(id)
	if !ok {
		return &inventory.NotFoundError{Kind: "variant", ID: string(id)}
	}
	if err := s.snap.Catalog.DeleteVariant(id); err != nil {
		return err
	}
	if rec, ok := s.snap.Stock[productID]; ok {
		delete(rec.Packed, id)
	}
	return s.persist(ctx)
}

// DeleteProduct removes a product and cascades to variants, stock, and
// returns. Ledger history for the product is kept as-is.
func (s *Service) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snap.Catalog.DeleteProduct(id); err != nil {
		return err
	}
	delete(s.snap.Stock, id)
	s.snap.Returns.Delete(id)
	return s.persist(ctx)
}

func (s *Service) SetReorderLevel(ctx context.Context, id inventory.ProductID, level decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snap.Catalog.SetReorderLevel(id, level); err != nil {
		return err
	}
	return s.persist(ctx)
}

// =============================================================================
// READ-ONLY VIEWS
// =============================================================================

// Products returns the catalog products keyed by ID.
func (s *Service) Products() map[inventory.ProductID]inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[inventory.ProductID]inventory.Product, len(s.snap.Catalog.Products))
	for id, p := range s.snap.Catalog.Products {
		out[id] = *p
	}
	return out
}

// VariantsOf returns the variants of one product keyed by variant ID.
func (s *Service) VariantsOf(id inventory.ProductID) map[inventory.VariantID]inventory.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[inventory.VariantID]inventory.Variant)
	for vid, v := range s.snap.Catalog.VariantsOf(id) {
		out[vid] = *v
	}
	return out
}

// StockOf returns a copy of one product's stock record.
func (s *Service) StockOf(id inventory.ProductID) (inventory.StockRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.snap.Stock[id]
	if !ok {
		return inventory.StockRecord{}, false
	}
	packed := make(map[inventory.VariantID]int, len(rec.Packed))
	for v, c := range rec.Packed {
		packed[v] = c
	}
	return inventory.StockRecord{Loose: rec.Loose, Packed: packed, LastUpdated: rec.LastUpdated}, true
}

// RecentEntries returns the most recent n ledger entries, newest first.
func (s *Service) RecentEntries(n int) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Ledger.Recent(n)
}

// EntriesOn returns all ledger entries for one business date.
func (s *Service) EntriesOn(date ledger.Date) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Ledger.On(date)
}

// EntryByID fetches a single ledger entry.
func (s *Service) EntryByID(id ledger.EntryID) (ledger.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Ledger.ByID(id)
}

// LowStock returns products at or below their reorder threshold.
func (s *Service) LowStock() []inventory.LowStockItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Catalog.LowStock(s.snap.Stock)
}

// ReturnLog returns the recorded return receipts, newest last.
func (s *Service) ReturnLog() []inventory.ReturnEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.ReturnEntry, len(s.snap.ReturnLog))
	copy(out, s.snap.ReturnLog)
	return out
}
