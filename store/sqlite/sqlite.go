/*
Package sqlite provides a SQLite-backed snapshot Gateway.

PURPOSE:
  Durable persistence for production runs. The gateway keeps the snapshot
  contract of the other stores: Save is a full overwrite of every table
  inside one transaction, so a crash mid-save rolls back to the prior
  snapshot. There is no incremental update path; the snapshot model is
  whole-state, and SQLite's transaction gives the required atomicity.

KEY TABLES:
  products, variants:  the catalog
  stock_records:       loose level plus last-updated per product
  packed_stock:        unit counts per (product, variant)
  ledger_entries:      the transaction log, entry IDs preserved exactly
  return_pool:         good/bad holdings (variant_id '' marks the loose slot)
  return_entries:      the separate return receipt list
  undone_batches:      batch IDs already undone
  opening_stock:       cached start-of-date levels, one JSON blob per date
  meta:                saved_at marker; distinguishes an empty saved
                       snapshot from a never-saved database

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better crash
  recovery. There is only ever one writer process.

USAGE:
  gw, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer gw.Close()

SEE ALSO:
  - tracker/gateway.go: the Gateway contract
  - store/file: JSON file implementation with the same semantics
  - store/memory: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/packhouse/stock-engine/tracker"
	"github.com/shopspring/decimal"
)

// Gateway implements tracker.Gateway over SQLite.
type Gateway struct {
	db *sql.DB
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Gateway, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	g := &Gateway{db: db}
	if err := g.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return g, nil
}

func (g *Gateway) Close() error { return g.db.Close() }

func (g *Gateway) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		category TEXT,
		reorder_level TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		pack_weight TEXT NOT NULL,
		description TEXT,
		list_price TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_variants_product ON variants(product_id);

	CREATE TABLE IF NOT EXISTS stock_records (
		product_id TEXT PRIMARY KEY,
		loose TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS packed_stock (
		product_id TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (product_id, variant_id)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY,
		recorded_at TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		kind TEXT NOT NULL,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		quantity INTEGER NOT NULL,
		weight TEXT NOT NULL,
		notes TEXT,
		batch_id TEXT,
		position INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_batch ON ledger_entries(batch_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger_entries(effective_date);

	CREATE TABLE IF NOT EXISTS return_pool (
		product_id TEXT NOT NULL,
		variant_id TEXT NOT NULL DEFAULT '',
		good TEXT NOT NULL,
		bad TEXT NOT NULL,
		PRIMARY KEY (product_id, variant_id)
	);

	CREATE TABLE IF NOT EXISTS return_entries (
		id TEXT PRIMARY KEY,
		recorded_at TEXT NOT NULL,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		slot TEXT NOT NULL,
		quantity TEXT NOT NULL,
		condition TEXT NOT NULL,
		source TEXT,
		reason TEXT,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS undone_batches (
		batch_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS opening_stock (
		date TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := g.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE - Full overwrite in one transaction
// =============================================================================

func (g *Gateway) Save(ctx context.Context, snap *tracker.Snapshot) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"products", "variants", "stock_records", "packed_stock",
		"ledger_entries", "return_pool", "return_entries",
		"undone_batches", "opening_stock", "meta",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, p := range snap.Catalog.Products {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, unit, category, reorder_level) VALUES (?, ?, ?, ?, ?)`,
			string(p.ID), p.Name, p.Unit, p.Category, p.ReorderLevel.String(),
		); err != nil {
			return fmt.Errorf("saving product %s: %w", p.ID, err)
		}
	}
	for _, variants := range snap.Catalog.Variants {
		for _, v := range variants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO variants (id, product_id, pack_weight, description, list_price) VALUES (?, ?, ?, ?, ?)`,
				string(v.ID), string(v.ProductID), v.PackWeight.String(), v.Description, v.ListPrice.String(),
			); err != nil {
				return fmt.Errorf("saving variant %s: %w", v.ID, err)
			}
		}
	}

	for pid, rec := range snap.Stock {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stock_records (product_id, loose, last_updated) VALUES (?, ?, ?)`,
			string(pid), rec.Loose.String(), rec.LastUpdated.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("saving stock for %s: %w", pid, err)
		}
		for vid, count := range rec.Packed {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO packed_stock (product_id, variant_id, count) VALUES (?, ?, ?)`,
				string(pid), string(vid), count,
			); err != nil {
				return fmt.Errorf("saving packed stock for %s/%s: %w", pid, vid, err)
			}
		}
	}

	for i, e := range snap.Ledger.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries
			 (id, recorded_at, effective_date, kind, product_id, variant_id, quantity, weight, notes, batch_id, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(e.ID), e.RecordedAt.Format(time.RFC3339Nano), string(e.EffectiveDate), string(e.Kind),
			string(e.ProductID), nullable(string(e.VariantID)), e.Quantity, e.Weight.String(),
			e.Notes, nullable(e.BatchID), i,
		); err != nil {
			return fmt.Errorf("saving ledger entry %d: %w", e.ID, err)
		}
	}

	for pid, r := range snap.Returns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO return_pool (product_id, variant_id, good, bad) VALUES (?, '', ?, ?)`,
			string(pid), r.Loose.Good.String(), r.Loose.Bad.String(),
		); err != nil {
			return fmt.Errorf("saving loose returns for %s: %w", pid, err)
		}
		for vid, slot := range r.Packed {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO return_pool (product_id, variant_id, good, bad) VALUES (?, ?, ?, ?)`,
				string(pid), string(vid), slot.Good.String(), slot.Bad.String(),
			); err != nil {
				return fmt.Errorf("saving packed returns for %s/%s: %w", pid, vid, err)
			}
		}
	}

	for i, e := range snap.ReturnLog {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO return_entries
			 (id, recorded_at, product_id, variant_id, slot, quantity, condition, source, reason, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.RecordedAt.Format(time.RFC3339Nano), string(e.ProductID), nullable(string(e.VariantID)),
			string(e.Slot), e.Quantity.String(), string(e.Condition), e.Source, e.Reason, i,
		); err != nil {
			return fmt.Errorf("saving return entry %s: %w", e.ID, err)
		}
	}

	for batchID := range snap.UndoneBatches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO undone_batches (batch_id) VALUES (?)`, batchID,
		); err != nil {
			return fmt.Errorf("saving undone batch %s: %w", batchID, err)
		}
	}

	for date, opening := range snap.DailyOpening {
		blob, err := json.Marshal(opening)
		if err != nil {
			return fmt.Errorf("encoding opening stock for %s: %w", date, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO opening_stock (date, snapshot_json) VALUES (?, ?)`,
			string(date), string(blob),
		); err != nil {
			return fmt.Errorf("saving opening stock for %s: %w", date, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('saved_at', ?)`,
		snap.SavedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("saving meta: %w", err)
	}

	return tx.Commit()
}

// =============================================================================
// LOAD - Reconstruct the snapshot
// =============================================================================

func (g *Gateway) Load(ctx context.Context) (*tracker.Snapshot, error) {
	var savedAt string
	err := g.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'saved_at'`).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, tracker.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("loading meta: %w", err)
	}

	snap := tracker.NewSnapshot()
	if snap.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("parsing saved_at: %w", err)
	}

	if err := g.loadCatalog(ctx, snap); err != nil {
		return nil, err
	}
	if err := g.loadStock(ctx, snap); err != nil {
		return nil, err
	}
	if err := g.loadLedger(ctx, snap); err != nil {
		return nil, err
	}
	if err := g.loadReturns(ctx, snap); err != nil {
		return nil, err
	}
	if err := g.loadUndoState(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (g *Gateway) loadCatalog(ctx context.Context, snap *tracker.Snapshot) error {
	rows, err := g.db.QueryContext(ctx, `SELECT id, name, unit, category, reorder_level FROM products`)
	if err != nil {
		return fmt.Errorf("loading products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name, unit, category, reorder string
		if err := rows.Scan(&id, &name, &unit, &category, &reorder); err != nil {
			return err
		}
		level, err := decimal.NewFromString(reorder)
		if err != nil {
			return fmt.Errorf("parsing reorder level for %s: %w", id, err)
		}
		p := &inventory.Product{
			ID:           inventory.ProductID(id),
			Name:         name,
			Unit:         unit,
			Category:     category,
			ReorderLevel: level,
		}
		snap.Catalog.Products[p.ID] = p
		if snap.Catalog.Variants[p.ID] == nil {
			snap.Catalog.Variants[p.ID] = make(map[inventory.VariantID]*inventory.Variant)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	vrows, err := g.db.QueryContext(ctx, `SELECT id, product_id, pack_weight, description, list_price FROM variants`)
	if err != nil {
		return fmt.Errorf("loading variants: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var id, productID, weight, description, price string
		if err := vrows.Scan(&id, &productID, &weight, &description, &price); err != nil {
			return err
		}
		packWeight, err := decimal.NewFromString(weight)
		if err != nil {
			return fmt.Errorf("parsing pack weight for %s: %w", id, err)
		}
		listPrice, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("parsing list price for %s: %w", id, err)
		}
		v := &inventory.Variant{
			ID:          inventory.VariantID(id),
			ProductID:   inventory.ProductID(productID),
			PackWeight:  packWeight,
			Description: description,
			ListPrice:   listPrice,
		}
		if snap.Catalog.Variants[v.ProductID] == nil {
			snap.Catalog.Variants[v.ProductID] = make(map[inventory.VariantID]*inventory.Variant)
		}
		snap.Catalog.Variants[v.ProductID][v.ID] = v
	}
	return vrows.Err()
}

func (g *Gateway) loadStock(ctx context.Context, snap *tracker.Snapshot) error {
	rows, err := g.db.QueryContext(ctx, `SELECT product_id, loose, last_updated FROM stock_records`)
	if err != nil {
		return fmt.Errorf("loading stock: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, loose, updated string
		if err := rows.Scan(&productID, &loose, &updated); err != nil {
			return err
		}
		rec := snap.Stock.Record(inventory.ProductID(productID))
		if rec.Loose, err = decimal.NewFromString(loose); err != nil {
			return fmt.Errorf("parsing loose stock for %s: %w", productID, err)
		}
		if rec.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return fmt.Errorf("parsing last_updated for %s: %w", productID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	prows, err := g.db.QueryContext(ctx, `SELECT product_id, variant_id, count FROM packed_stock`)
	if err != nil {
		return fmt.Errorf("loading packed stock: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var productID, variantID string
		var count int
		if err := prows.Scan(&productID, &variantID, &count); err != nil {
			return err
		}
		snap.Stock.Record(inventory.ProductID(productID)).Packed[inventory.VariantID(variantID)] = count
	}
	return prows.Err()
}

func (g *Gateway) loadLedger(ctx context.Context, snap *tracker.Snapshot) error {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, recorded_at, effective_date, kind, product_id, variant_id, quantity, weight, notes, batch_id
		 FROM ledger_entries ORDER BY position`)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id                 int64
			recordedAt, date   string
			kind, productID    string
			variantID, batchID sql.NullString
			quantity           int
			weight, notes      string
		)
		if err := rows.Scan(&id, &recordedAt, &date, &kind, &productID, &variantID, &quantity, &weight, &notes, &batchID); err != nil {
			return err
		}
		e := ledger.Entry{
			ID:            ledger.EntryID(id),
			EffectiveDate: ledger.Date(date),
			Kind:          ledger.Kind(kind),
			ProductID:     inventory.ProductID(productID),
			VariantID:     inventory.VariantID(variantID.String),
			Quantity:      quantity,
			Notes:         notes,
			BatchID:       batchID.String,
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return fmt.Errorf("parsing recorded_at for entry %d: %w", id, err)
		}
		if e.Weight, err = decimal.NewFromString(weight); err != nil {
			return fmt.Errorf("parsing weight for entry %d: %w", id, err)
		}
		snap.Ledger.Entries = append(snap.Ledger.Entries, e)
	}
	return rows.Err()
}

func (g *Gateway) loadReturns(ctx context.Context, snap *tracker.Snapshot) error {
	rows, err := g.db.QueryContext(ctx, `SELECT product_id, variant_id, good, bad FROM return_pool`)
	if err != nil {
		return fmt.Errorf("loading return pool: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, variantID, goodStr, badStr string
		if err := rows.Scan(&productID, &variantID, &goodStr, &badStr); err != nil {
			return err
		}
		good, err := decimal.NewFromString(goodStr)
		if err != nil {
			return fmt.Errorf("parsing good returns for %s: %w", productID, err)
		}
		bad, err := decimal.NewFromString(badStr)
		if err != nil {
			return fmt.Errorf("parsing bad returns for %s: %w", productID, err)
		}
		pid := inventory.ProductID(productID)
		r, ok := snap.Returns[pid]
		if !ok {
			r = &inventory.ProductReturns{Packed: make(map[inventory.VariantID]*inventory.ConditionSplit)}
			snap.Returns[pid] = r
		}
		if variantID == "" {
			r.Loose = inventory.ConditionSplit{Good: good, Bad: bad}
		} else {
			r.Packed[inventory.VariantID(variantID)] = &inventory.ConditionSplit{Good: good, Bad: bad}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	erows, err := g.db.QueryContext(ctx,
		`SELECT id, recorded_at, product_id, variant_id, slot, quantity, condition, source, reason
		 FROM return_entries ORDER BY position`)
	if err != nil {
		return fmt.Errorf("loading return entries: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var (
			id, recordedAt, productID string
			variantID                 sql.NullString
			slot, qty, condition      string
			source, reason            string
		)
		if err := erows.Scan(&id, &recordedAt, &productID, &variantID, &slot, &qty, &condition, &source, &reason); err != nil {
			return err
		}
		e := inventory.ReturnEntry{
			ID:        id,
			ProductID: inventory.ProductID(productID),
			VariantID: inventory.VariantID(variantID.String),
			Slot:      inventory.ReturnSlot(slot),
			Condition: inventory.Condition(condition),
			Source:    source,
			Reason:    reason,
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return fmt.Errorf("parsing recorded_at for return %s: %w", id, err)
		}
		if e.Quantity, err = decimal.NewFromString(qty); err != nil {
			return fmt.Errorf("parsing quantity for return %s: %w", id, err)
		}
		snap.ReturnLog = append(snap.ReturnLog, e)
	}
	return erows.Err()
}

func (g *Gateway) loadUndoState(ctx context.Context, snap *tracker.Snapshot) error {
	rows, err := g.db.QueryContext(ctx, `SELECT batch_id FROM undone_batches`)
	if err != nil {
		return fmt.Errorf("loading undone batches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var batchID string
		if err := rows.Scan(&batchID); err != nil {
			return err
		}
		snap.UndoneBatches[batchID] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	orows, err := g.db.QueryContext(ctx, `SELECT date, snapshot_json FROM opening_stock`)
	if err != nil {
		return fmt.Errorf("loading opening stock: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var date, blob string
		if err := orows.Scan(&date, &blob); err != nil {
			return err
		}
		var opening tracker.OpeningStock
		if err := json.Unmarshal([]byte(blob), &opening); err != nil {
			return fmt.Errorf("decoding opening stock for %s: %w", date, err)
		}
		snap.DailyOpening[ledger.Date(date)] = opening
	}
	return orows.Err()
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
