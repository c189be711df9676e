package tracker_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/store/memory"
	"github.com/packhouse/stock-engine/tracker"
	"github.com/packhouse/stock-engine/undo"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var base = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestService(t *testing.T) (*tracker.Service, *memory.Gateway, *fakeClock) {
	t.Helper()
	gw := memory.New()
	clk := &fakeClock{now: base}
	svc, err := tracker.NewService(context.Background(), gw, tracker.Options{Clock: clk.Now})
	require.NoError(t, err)
	return svc, gw, clk
}

func seedCatalog(t *testing.T, svc *tracker.Service) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.CreateProduct(ctx, inventory.Product{ID: "rice", Name: "Basmati Rice", Unit: "kg"}))
	require.NoError(t, svc.AddVariant(ctx, inventory.Variant{ID: "RICE-1KG", ProductID: "rice", PackWeight: d("1")}))
	require.NoError(t, svc.AddVariant(ctx, inventory.Variant{ID: "RICE-5KG", ProductID: "rice", PackWeight: d("5")}))
}

// =============================================================================
// PAIRING CONTRACT TESTS
// =============================================================================

func TestService_FailedMutation_AppendsNothing(t *testing.T) {
	// GIVEN: 2 kg loose rice
	// WHEN: Packing a 5 kg unit (insufficient)
	// THEN: No ledger entry and no save for the failed call

	svc, gw, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("2"), "", "")
	require.NoError(t, err)
	savesBefore := gw.Saves()
	entriesBefore := len(svc.RecentEntries(100))

	_, err = svc.Pack(ctx, "RICE-5KG", 1, "", "")
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	assert.Equal(t, savesBefore, gw.Saves())
	assert.Len(t, svc.RecentEntries(100), entriesBefore)
}

func TestService_EveryMutationPersists(t *testing.T) {
	// GIVEN: A fresh service
	// WHEN: Running inward, pack, and sale
	// THEN: Each operation triggers exactly one save

	svc, gw, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()
	savesAfterSeed := gw.Saves()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "supplier A", "")
	require.NoError(t, err)
	_, err = svc.Pack(ctx, "RICE-1KG", 5, "", "")
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, tracker.ChannelFBA, "RICE-1KG", 2, "", "")
	require.NoError(t, err)

	assert.Equal(t, savesAfterSeed+3, gw.Saves())
}

func TestService_SaveFailure_KeepsMutationApplied(t *testing.T) {
	// GIVEN: A gateway that fails the next save
	// WHEN: Adding loose stock
	// THEN: A retryable SaveError; the in-memory mutation stays applied
	//       and the next mutation persists everything

	svc, gw, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	gw.FailNextSave = true
	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	assert.ErrorIs(t, err, tracker.ErrSaveFailed)

	rec, ok := svc.StockOf("rice")
	require.True(t, ok)
	assert.True(t, rec.Loose.Equal(d("10")), "mutation stays applied despite save failure")

	// The next successful save carries the earlier mutation with it.
	_, err = svc.AddLoose(ctx, "rice", d("1"), "", "")
	require.NoError(t, err)

	reloaded, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded.Stock.LooseOf("rice").Equal(d("11")))
}

// =============================================================================
// FLOW TESTS
// =============================================================================

func TestService_PackAndSale_Flow(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	_, err = svc.Pack(ctx, "RICE-1KG", 4, "", "")
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, tracker.ChannelEasyShip, "RICE-1KG", 3, "", "")
	require.NoError(t, err)

	rec, ok := svc.StockOf("rice")
	require.True(t, ok)
	assert.True(t, rec.Loose.Equal(d("6")))
	assert.Equal(t, 1, rec.Packed["RICE-1KG"])

	recent := svc.RecentEntries(1)
	require.Len(t, recent, 1)
	assert.Equal(t, ledger.EasyShipSale, recent[0].Kind)
}

func TestService_RecordSale_UnknownChannel(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	_, err := svc.RecordSale(context.Background(), "amazon", "RICE-1KG", 1, "", "")
	assert.ErrorIs(t, err, inventory.ErrInvalidArgument)
}

func TestService_Adjustments_RecordSignedDelta(t *testing.T) {
	// GIVEN: 10 kg loose
	// WHEN: Adjusting down to 4
	// THEN: The entry stores -6 and undoing it restores 10

	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	id, err := svc.AdjustLoose(ctx, "rice", d("4"), "stocktake", "")
	require.NoError(t, err)

	e, ok := svc.EntryByID(id)
	require.True(t, ok)
	assert.Equal(t, ledger.LooseAdjustment, e.Kind)
	assert.True(t, e.Weight.Equal(d("-6")))

	_, err = svc.Undo(ctx, id)
	require.NoError(t, err)
	rec, _ := svc.StockOf("rice")
	assert.True(t, rec.Loose.Equal(d("10")))
}

// =============================================================================
// UNDO INTEGRATION TESTS
// =============================================================================

func TestService_Undo_SurvivesRestart(t *testing.T) {
	// GIVEN: An undone batch persisted through the gateway
	// WHEN: A fresh service loads the same snapshot
	// THEN: Re-undoing the batch still fails with AlreadyUndone

	svc, gw, clk := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	_, err = svc.Pack(ctx, "RICE-1KG", 5, "", "")
	require.NoError(t, err)

	report, err := svc.ProcessSalesUpload(ctx, tracker.ChannelFBA, []tracker.SaleRow{
		{VariantID: "RICE-1KG", Quantity: 2, Row: 1},
	}, "")
	require.NoError(t, err)
	_, err = svc.UndoBatch(ctx, report.BatchID)
	require.NoError(t, err)

	svc2, err := tracker.NewService(ctx, gw, tracker.Options{Clock: clk.Now})
	require.NoError(t, err)
	assert.ErrorIs(t, svc2.CanUndoBatch(report.BatchID), undo.ErrAlreadyUndone)
}

func TestService_Undo_WindowConfigurable(t *testing.T) {
	// GIVEN: A 1 hour undo window
	// WHEN: 2 hours pass
	// THEN: The entry is no longer eligible

	gw := memory.New()
	clk := &fakeClock{now: base}
	svc, err := tracker.NewService(context.Background(), gw, tracker.Options{
		Clock:      clk.Now,
		UndoWindow: time.Hour,
	})
	require.NoError(t, err)
	seedCatalog(t, svc)

	id, err := svc.AddLoose(context.Background(), "rice", d("10"), "", "")
	require.NoError(t, err)

	clk.now = base.Add(2 * time.Hour)
	assert.ErrorIs(t, svc.CanUndo(id), undo.ErrEligibilityExpired)
}

// =============================================================================
// RESET TESTS
// =============================================================================

func TestService_ResetAll_LeavesSingleAuditEntry(t *testing.T) {
	// GIVEN: Stock, ledger history, and returns
	// WHEN: Resetting the system
	// THEN: Everything is zeroed and one system_reset entry with id 1
	//       carries the cleared totals

	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	_, err = svc.Pack(ctx, "RICE-1KG", 3, "", "")
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, tracker.ReturnInput{
		ProductID: "rice", Quantity: d("1"), Condition: inventory.ConditionGood,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ResetAll(ctx, "migration test"))

	entries := svc.RecentEntries(100)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID(1), entries[0].ID)
	assert.Equal(t, ledger.SystemReset, entries[0].Kind)
	assert.Contains(t, entries[0].Notes, "migration test")

	rec, ok := svc.StockOf("rice")
	require.True(t, ok)
	assert.True(t, rec.Loose.IsZero())
	assert.Equal(t, 0, rec.Packed["RICE-1KG"])
	assert.Empty(t, svc.ReturnLog())

	// The audit marker itself is not undoable.
	assert.ErrorIs(t, svc.CanUndo(1), undo.ErrNotUndoable)
}

// =============================================================================
// RETURNS TESTS
// =============================================================================

func TestService_ReturnTransfer_NotUndoable(t *testing.T) {
	// GIVEN: Good loose returns transferred into main stock
	// WHEN: Attempting to undo the transfer entry
	// THEN: Rejected - the pool has no reversal mechanism

	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.RecordReturn(ctx, tracker.ReturnInput{
		ProductID: "rice", Quantity: d("2.5"), Condition: inventory.ConditionGood, Source: "FBA removal",
	})
	require.NoError(t, err)

	id, err := svc.TransferGoodReturns(ctx, "rice", "")
	require.NoError(t, err)

	rec, _ := svc.StockOf("rice")
	assert.True(t, rec.Loose.Equal(d("2.5")))
	assert.ErrorIs(t, svc.CanUndo(id), undo.ErrNotUndoable)

	// A second transfer finds nothing to move.
	_, err = svc.TransferGoodReturns(ctx, "rice", "")
	assert.ErrorIs(t, err, inventory.ErrInvalidArgument)
}

func TestService_BadReturns_StayInPool(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.RecordReturn(ctx, tracker.ReturnInput{
		ProductID: "rice", Quantity: d("3"), Condition: inventory.ConditionBad, Reason: "water damage",
	})
	require.NoError(t, err)

	_, err = svc.TransferGoodReturns(ctx, "rice", "")
	assert.Error(t, err, "bad returns never transfer")

	log := svc.ReturnLog()
	require.Len(t, log, 1)
	assert.Equal(t, inventory.ConditionBad, log[0].Condition)
}

// =============================================================================
// CATALOG CASCADE TESTS
// =============================================================================

func TestService_DeleteProduct_Cascades(t *testing.T) {
	// GIVEN: A product with stock, returns, and ledger history
	// WHEN: Deleting the product
	// THEN: Stock and returns go; ledger history stays

	svc, _, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, tracker.ReturnInput{
		ProductID: "rice", Quantity: d("1"), Condition: inventory.ConditionGood,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, "rice"))

	_, ok := svc.StockOf("rice")
	assert.False(t, ok)
	assert.Empty(t, svc.Products())
	assert.Len(t, svc.RecentEntries(100), 1, "ledger history survives product deletion")
}

// =============================================================================
// REPORTING TESTS
// =============================================================================

func TestService_OpeningStock_CapturedOncePerDate(t *testing.T) {
	// GIVEN: Opening stock read at 10 kg
	// WHEN: Stock changes and the opening is read again for the same date
	// THEN: The frozen 10 kg copy is returned

	svc, _, clk := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	_, err := svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)

	date := ledger.DateOf(clk.now)
	opening, err := svc.OpeningStock(ctx, date)
	require.NoError(t, err)
	assert.True(t, opening["rice"].Loose.Equal(d("10")))

	_, err = svc.AddLoose(ctx, "rice", d("5"), "", "")
	require.NoError(t, err)

	opening, err = svc.OpeningStock(ctx, date)
	require.NoError(t, err)
	assert.True(t, opening["rice"].Loose.Equal(d("10")), "opening stays frozen for the date")
}

func TestService_DailyReport_AggregatesByKind(t *testing.T) {
	svc, _, clk := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()
	date := ledger.DateOf(clk.now)

	_, err := svc.OpeningStock(ctx, date) // freeze opening at zero
	require.NoError(t, err)
	_, err = svc.AddLoose(ctx, "rice", d("10"), "", "")
	require.NoError(t, err)
	_, err = svc.Pack(ctx, "RICE-1KG", 4, "", "")
	require.NoError(t, err)
	_, err = svc.RecordSale(ctx, tracker.ChannelFBA, "RICE-1KG", 2, "", "")
	require.NoError(t, err)

	rows, err := svc.DailyReport(ctx, date)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.True(t, row.Opening.Loose.IsZero())
	assert.True(t, row.Activity.StockInward.Equal(d("10")))
	assert.True(t, row.Activity.PackingOut.Equal(d("4")))
	assert.Equal(t, 4, row.Activity.PackedIn["RICE-1KG"])
	assert.Equal(t, 2, row.Activity.FBASales["RICE-1KG"])
	assert.True(t, row.Loose.Equal(d("6")))
	assert.True(t, row.NetLoose.Equal(d("6")))
}
