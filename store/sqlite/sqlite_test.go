package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/store/sqlite"
	"github.com/packhouse/stock-engine/tracker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestGateway(t *testing.T) *sqlite.Gateway {
	t.Helper()
	gw, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func fullSnapshot(t *testing.T) *tracker.Snapshot {
	t.Helper()
	now := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	snap := tracker.NewSnapshot()

	require.NoError(t, snap.Catalog.AddProduct(inventory.Product{
		ID: "rice", Name: "Basmati Rice", Unit: "kg", Category: "grains",
		ReorderLevel: decimal.NewFromInt(5),
	}))
	require.NoError(t, snap.Catalog.AddVariant(inventory.Variant{
		ID: "RICE-1KG", ProductID: "rice",
		PackWeight: decimal.NewFromInt(1), Description: "1 kg pouch",
		ListPrice: decimal.RequireFromString("129.50"),
	}))

	require.NoError(t, snap.Stock.AddLoose("rice", decimal.RequireFromString("7.25")))
	require.NoError(t, snap.Stock.Pack("rice", "RICE-1KG", decimal.NewFromInt(1), 3))
	snap.Stock.Touch("rice", now)

	_, err := snap.Ledger.Append(ledger.Entry{
		Kind: ledger.StockInward, ProductID: "rice",
		Weight: decimal.RequireFromString("10.25"), Notes: "supplier A",
	}, now)
	require.NoError(t, err)
	_, err = snap.Ledger.Append(ledger.Entry{
		Kind: ledger.FBASaleBulk, ProductID: "rice", VariantID: "RICE-1KG",
		Quantity: 2, Weight: decimal.NewFromInt(2), BatchID: "BULK_FBA_x",
	}, now.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, snap.Returns.AddLoose("rice", inventory.ConditionGood, decimal.RequireFromString("1.5")))
	require.NoError(t, snap.Returns.AddPacked("rice", "RICE-1KG", inventory.ConditionBad, 2))
	snap.ReturnLog = append(snap.ReturnLog, inventory.ReturnEntry{
		ID: "RET-1", RecordedAt: now, ProductID: "rice",
		Slot: inventory.ReturnLoose, Quantity: decimal.RequireFromString("1.5"),
		Condition: inventory.ConditionGood, Source: "FBA removal",
	})

	snap.UndoneBatches["BULK_ES_old"] = true
	snap.DailyOpening["2025-06-01"] = tracker.OpeningStock{
		"rice": {Loose: decimal.NewFromInt(4), Packed: map[inventory.VariantID]int{"RICE-1KG": 1}},
	}
	snap.SavedAt = now
	return snap
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestSQLiteGateway_LoadEmpty_ReturnsNoSnapshot(t *testing.T) {
	gw := newTestGateway(t)
	_, err := gw.Load(context.Background())
	assert.ErrorIs(t, err, tracker.ErrNoSnapshot)
}

func TestSQLiteGateway_RoundTrip(t *testing.T) {
	// GIVEN: A snapshot touching every table
	// WHEN: Saving and loading it back
	// THEN: All state survives with exact decimal precision

	gw := newTestGateway(t)
	ctx := context.Background()
	snap := fullSnapshot(t)

	require.NoError(t, gw.Save(ctx, snap))
	loaded, err := gw.Load(ctx)
	require.NoError(t, err)

	// Catalog
	p, ok := loaded.Catalog.Product("rice")
	require.True(t, ok)
	assert.Equal(t, "Basmati Rice", p.Name)
	assert.True(t, p.ReorderLevel.Equal(decimal.NewFromInt(5)))
	pid, v, ok := loaded.Catalog.FindVariant("RICE-1KG")
	require.True(t, ok)
	assert.Equal(t, inventory.ProductID("rice"), pid)
	assert.True(t, v.ListPrice.Equal(decimal.RequireFromString("129.50")))

	// Stock
	assert.True(t, loaded.Stock.LooseOf("rice").Equal(decimal.RequireFromString("4.25")))
	assert.Equal(t, 3, loaded.Stock.PackedOf("rice", "RICE-1KG"))

	// Ledger, order and IDs preserved
	require.Equal(t, 2, loaded.Ledger.Len())
	e, ok := loaded.Ledger.ByID(1)
	require.True(t, ok)
	assert.Equal(t, ledger.StockInward, e.Kind)
	assert.True(t, e.Weight.Equal(decimal.RequireFromString("10.25")))
	batch := loaded.Ledger.ByBatch("BULK_FBA_x")
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Quantity)

	// Returns
	assert.True(t, loaded.Returns["rice"].Loose.Good.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, loaded.Returns["rice"].Packed["RICE-1KG"].Bad.Equal(decimal.NewFromInt(2)))
	require.Len(t, loaded.ReturnLog, 1)
	assert.Equal(t, "RET-1", loaded.ReturnLog[0].ID)

	// Undo state and opening cache
	assert.True(t, loaded.UndoneBatches["BULK_ES_old"])
	opening := loaded.DailyOpening["2025-06-01"]
	require.NotNil(t, opening)
	assert.True(t, opening["rice"].Loose.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 1, opening["rice"].Packed["RICE-1KG"])

	assert.True(t, loaded.SavedAt.Equal(snap.SavedAt))
}

func TestSQLiteGateway_Save_IsFullOverwrite(t *testing.T) {
	// GIVEN: A saved snapshot with two ledger entries
	// WHEN: Saving a reduced snapshot (one entry undone)
	// THEN: Load reflects only the latest state

	gw := newTestGateway(t)
	ctx := context.Background()
	snap := fullSnapshot(t)
	require.NoError(t, gw.Save(ctx, snap))

	snap.Ledger.RemoveBatch("BULK_FBA_x")
	snap.UndoneBatches["BULK_FBA_x"] = true
	require.NoError(t, gw.Save(ctx, snap))

	loaded, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Ledger.Len())
	assert.Empty(t, loaded.Ledger.ByBatch("BULK_FBA_x"))
	assert.True(t, loaded.UndoneBatches["BULK_FBA_x"])
}

func TestSQLiteGateway_EmptySavedSnapshot_IsNotMissing(t *testing.T) {
	// GIVEN: An empty snapshot explicitly saved
	// THEN: Load returns it rather than ErrNoSnapshot

	gw := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.Save(ctx, tracker.NewSnapshot()))
	loaded, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Ledger.Len())
}
