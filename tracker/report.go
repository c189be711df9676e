/*
report.go - Read-only derived views for daily reporting

PURPOSE:
  Two views per business date: the opening stock (a frozen copy of stock
  levels, captured once per date on first access and cached in the
  snapshot) and the activity summary (ledger entries for that date,
  bucketed by kind and variant). Neither view ever mutates the ledger.
*/
package tracker

import (
	"context"
	"sort"

	"github.com/packhouse/stock-engine/inventory"
	"github.com/packhouse/stock-engine/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// OPENING STOCK
// =============================================================================

// ProductOpening freezes one product's levels at the start of a date.
type ProductOpening struct {
	Loose  decimal.Decimal             `json:"loose"`
	Packed map[inventory.VariantID]int `json:"packed"`
}

// OpeningStock maps products to their frozen start-of-date levels.
type OpeningStock map[inventory.ProductID]ProductOpening

// captureOpening copies current stock levels into an OpeningStock value.
func captureOpening(stock inventory.Stock) OpeningStock {
	opening := make(OpeningStock, len(stock))
	for pid, rec := range stock {
		packed := make(map[inventory.VariantID]int, len(rec.Packed))
		for v, c := range rec.Packed {
			packed[v] = c
		}
		opening[pid] = ProductOpening{Loose: rec.Loose, Packed: packed}
	}
	return opening
}

// OpeningStock returns the opening stock for a date, capturing and
// persisting it on first access. The first access on a new day freezes
// whatever the levels are at that moment.
func (s *Service) OpeningStock(ctx context.Context, date ledger.Date) (OpeningStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opening, ok := s.snap.DailyOpening[date]; ok {
		return opening, nil
	}
	opening := captureOpening(s.snap.Stock)
	s.snap.DailyOpening[date] = opening
	if err := s.persist(ctx); err != nil {
		return opening, err
	}
	return opening, nil
}

// =============================================================================
// ACTIVITY SUMMARY
// =============================================================================

// ActivityLine is one ledger entry rendered for the report.
type ActivityLine struct {
	At        string              `json:"at"` // HH:MM of RecordedAt
	Kind      ledger.Kind         `json:"kind"`
	VariantID inventory.VariantID `json:"variant_id,omitempty"`
	Quantity  int                 `json:"quantity"`
	Weight    decimal.Decimal     `json:"weight"`
	Notes     string              `json:"notes,omitempty"`
}

// ActivitySummary aggregates one product's ledger entries for a date.
type ActivitySummary struct {
	ProductID inventory.ProductID `json:"product_id"`
	Date      ledger.Date         `json:"date"`

	StockInward decimal.Decimal `json:"stock_inward"` // loose received
	PackingOut  decimal.Decimal `json:"packing_out"`  // loose consumed by packing

	PackedIn      map[inventory.VariantID]int `json:"packed_in"`       // units created by packing
	FBASales      map[inventory.VariantID]int `json:"fba_sales"`       // units sold, FBA channel
	EasyShipSales map[inventory.VariantID]int `json:"easy_ship_sales"` // units sold, Easy Ship channel

	OtherLooseChange decimal.Decimal `json:"other_loose_change"` // adjustments, transfers

	Lines []ActivityLine `json:"lines"`
}

// ActivitySummary aggregates the ledger entries of one product on one
// business date, bucketed by kind and variant.
func (s *Service) ActivitySummary(productID inventory.ProductID, date ledger.Date) ActivitySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summarize(s.snap.Ledger, productID, date)
}

func summarize(log *ledger.Log, productID inventory.ProductID, date ledger.Date) ActivitySummary {
	summary := ActivitySummary{
		ProductID:        productID,
		Date:             date,
		StockInward:      decimal.Zero,
		PackingOut:       decimal.Zero,
		OtherLooseChange: decimal.Zero,
		PackedIn:         make(map[inventory.VariantID]int),
		FBASales:         make(map[inventory.VariantID]int),
		EasyShipSales:    make(map[inventory.VariantID]int),
	}

	for _, e := range log.On(date) {
		if e.ProductID != productID {
			continue
		}
		line := ActivityLine{
			At:        e.RecordedAt.Format("15:04"),
			Kind:      e.Kind,
			VariantID: e.VariantID,
			Quantity:  e.Quantity,
			Weight:    e.Weight,
			Notes:     e.Notes,
		}
		switch e.Kind {
		case ledger.StockInward:
			summary.StockInward = summary.StockInward.Add(e.Weight)
		case ledger.Packing:
			summary.PackingOut = summary.PackingOut.Add(e.Weight)
			summary.PackedIn[e.VariantID] += e.Quantity
		case ledger.FBASale, ledger.FBASaleBulk:
			summary.FBASales[e.VariantID] += e.Quantity
		case ledger.EasyShipSale, ledger.EasyShipSaleBulk:
			summary.EasyShipSales[e.VariantID] += e.Quantity
		default:
			summary.OtherLooseChange = summary.OtherLooseChange.Add(e.Weight)
		}
		summary.Lines = append(summary.Lines, line)
	}
	return summary
}

// =============================================================================
// DAILY REPORT
// =============================================================================

// DailyReportRow is one product's full line in the daily report.
type DailyReportRow struct {
	Product  inventory.Product `json:"product"`
	Opening  ProductOpening    `json:"opening"`
	Activity ActivitySummary   `json:"activity"`
	Loose    decimal.Decimal   `json:"loose"`
	NetLoose decimal.Decimal   `json:"net_loose_change"`
}

// DailyReport assembles opening stock, activity, and current levels for
// every product on a date, sorted by product name.
func (s *Service) DailyReport(ctx context.Context, date ledger.Date) ([]DailyReportRow, error) {
	opening, err := s.OpeningStock(ctx, date)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]DailyReportRow, 0, len(s.snap.Catalog.Products))
	for pid, p := range s.snap.Catalog.Products {
		open := opening[pid]
		if open.Packed == nil {
			open = ProductOpening{Loose: decimal.Zero, Packed: map[inventory.VariantID]int{}}
		}
		loose := s.snap.Stock.LooseOf(pid)
		rows = append(rows, DailyReportRow{
			Product:  *p,
			Opening:  open,
			Activity: summarize(s.snap.Ledger, pid, date),
			Loose:    loose,
			NetLoose: loose.Sub(open.Loose),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Product.Name < rows[j].Product.Name })
	return rows, nil
}
