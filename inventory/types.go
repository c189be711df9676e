/*
Package inventory holds the product catalog and current stock levels.

PURPOSE:
  The inventory is the mutable half of the system state: how much loose
  (bulk) material each product has, and how many packaged units of each
  variant. The immutable half - the record of how it got that way - lives
  in the ledger package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: a parent item tracked in a bulk unit (e.g. rice, in kg)
  - Variant: a packaged form of a product (fixed pack weight, catalog code)
  - Catalog: products + variants, with global variant-ID uniqueness

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all weights, never float64
  2. Validation at the boundary: mutators reject rather than go negative
  3. No hidden state: everything here serializes into the snapshot

SEE ALSO:
  - stock.go: stock records and invariant-preserving mutators
  - returns.go: the separate good/bad return pool
  - ledger/: the append-only record of every mutation
*/
package inventory

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string

// VariantID is a catalog code for a packaged variant (e.g. an ASIN).
// Unique across the entire catalog, not just within one product.
type VariantID string

// =============================================================================
// PRODUCT - Parent item tracked in bulk
// =============================================================================

type Product struct {
	ID       ProductID `json:"id"`
	Name     string    `json:"name"`
	Unit     string    `json:"unit"` // base unit for loose stock, e.g. "kg"
	Category string    `json:"category"`

	// ReorderLevel flags the product as low when loose stock falls below it.
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// Variant is a packaged form of a product: a fixed weight of the parent
// item sold as a discrete unit.
type Variant struct {
	ID          VariantID       `json:"id"`
	ProductID   ProductID       `json:"product_id"`
	PackWeight  decimal.Decimal `json:"pack_weight"` // in the product's unit
	Description string          `json:"description"`
	ListPrice   decimal.Decimal `json:"list_price"`
}

// =============================================================================
// CATALOG - Products and their variants
// =============================================================================

// Catalog holds every product and packaged variant.
//
// INVARIANT: a variant ID is unique across the whole catalog. Two products
// may never share one - sales uploads identify rows by variant ID alone.
type Catalog struct {
	Products map[ProductID]*Product               `json:"products"`
	Variants map[ProductID]map[VariantID]*Variant `json:"variants"`
}

func NewCatalog() *Catalog {
	return &Catalog{
		Products: make(map[ProductID]*Product),
		Variants: make(map[ProductID]map[VariantID]*Variant),
	}
}

// AddProduct registers a new product.
func (c *Catalog) AddProduct(p Product) error {
	if p.ID == "" || p.Name == "" {
		return &InvalidArgumentError{Field: "product", Reason: "id and name are required"}
	}
	if _, exists := c.Products[p.ID]; exists {
		return &InvalidArgumentError{Field: "product", Reason: "product " + string(p.ID) + " already exists"}
	}
	cp := p
	c.Products[p.ID] = &cp
	if c.Variants[p.ID] == nil {
		c.Variants[p.ID] = make(map[VariantID]*Variant)
	}
	return nil
}

// AddVariant registers a packaged variant under an existing product.
// Enforces catalog-wide variant ID uniqueness.
func (c *Catalog) AddVariant(v Variant) error {
	if _, ok := c.Products[v.ProductID]; !ok {
		return &NotFoundError{Kind: "product", ID: string(v.ProductID)}
	}
	if v.ID == "" {
		return &InvalidArgumentError{Field: "variant_id", Reason: "variant id is required"}
	}
	if !v.PackWeight.IsPositive() {
		return &InvalidArgumentError{Field: "pack_weight", Reason: "pack weight must be positive"}
	}
	if owner, _, ok := c.FindVariant(v.ID); ok {
		return &InvalidArgumentError{
			Field:  "variant_id",
			Reason: "variant " + string(v.ID) + " already belongs to product " + string(owner),
		}
	}
	if c.Variants[v.ProductID] == nil {
		c.Variants[v.ProductID] = make(map[VariantID]*Variant)
	}
	cp := v
	c.Variants[v.ProductID][v.ID] = &cp
	return nil
}

// FindVariant resolves a variant ID to its owning product.
// This is the lookup bulk sales ingestion uses for every row.
func (c *Catalog) FindVariant(id VariantID) (ProductID, *Variant, bool) {
	for pid, variants := range c.Variants {
		if v, ok := variants[id]; ok {
			return pid, v, true
		}
	}
	return "", nil, false
}

// Product returns a product by ID.
func (c *Catalog) Product(id ProductID) (*Product, bool) {
	p, ok := c.Products[id]
	return p, ok
}

// VariantsOf returns the variants of one product.
func (c *Catalog) VariantsOf(id ProductID) map[VariantID]*Variant {
	return c.Variants[id]
}

// DeleteVariant removes a variant from the catalog.
func (c *Catalog) DeleteVariant(id VariantID) error {
	pid, _, ok := c.FindVariant(id)
	if !ok {
		return &NotFoundError{Kind: "variant", ID: string(id)}
	}
	delete(c.Variants[pid], id)
	return nil
}

// DeleteProduct removes a product and all its variants.
// The caller cascades the deletion to stock and return records.
func (c *Catalog) DeleteProduct(id ProductID) error {
	if _, ok := c.Products[id]; !ok {
		return &NotFoundError{Kind: "product", ID: string(id)}
	}
	delete(c.Products, id)
	delete(c.Variants, id)
	return nil
}

// SetReorderLevel updates the low-stock threshold for a product.
func (c *Catalog) SetReorderLevel(id ProductID, level decimal.Decimal) error {
	p, ok := c.Products[id]
	if !ok {
		return &NotFoundError{Kind: "product", ID: string(id)}
	}
	if level.IsNegative() {
		return &InvalidArgumentError{Field: "reorder_level", Reason: "reorder level must not be negative"}
	}
	p.ReorderLevel = level
	return nil
}

// =============================================================================
// LOW STOCK
// =============================================================================

// LowStockItem flags a product whose loose stock is at or below its
// reorder level.
type LowStockItem struct {
	ProductID    ProductID       `json:"product_id"`
	Name         string          `json:"name"`
	Loose        decimal.Decimal `json:"loose"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// LowStock returns every product below its reorder threshold.
func (c *Catalog) LowStock(stock Stock) []LowStockItem {
	var low []LowStockItem
	for id, p := range c.Products {
		rec := stock[id]
		loose := decimal.Zero
		if rec != nil {
			loose = rec.Loose
		}
		if p.ReorderLevel.IsPositive() && loose.LessThanOrEqual(p.ReorderLevel) {
			low = append(low, LowStockItem{
				ProductID:    id,
				Name:         p.Name,
				Loose:        loose,
				ReorderLevel: p.ReorderLevel,
			})
		}
	}
	return low
}
