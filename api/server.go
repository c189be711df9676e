/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*   Catalog management
  /api/variants/*   Variant management
  /api/stock/*      Stock flows and corrections
  /api/sales/*      Single and bulk sales
  /api/ledger/*     Transaction log and single-entry undo
  /api/batches/*    Batch undo
  /api/returns/*    Return pool
  /api/reports/*    Daily report, CSV export, low-stock
  /api/admin/*      Full reset

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Put("/{id}/reorder-level", h.SetReorderLevel)
			r.Get("/{id}/variants", h.ListVariants)
			r.Get("/{id}/stock", h.GetStock)
		})
		r.Route("/variants", func(r chi.Router) {
			r.Post("/", h.CreateVariant)
			r.Delete("/{id}", h.DeleteVariant)
		})

		// Stock routes
		r.Route("/stock", func(r chi.Router) {
			r.Post("/inward", h.StockInward)
			r.Post("/pack", h.Pack)
			r.Post("/adjust-loose", h.AdjustLoose)
			r.Post("/adjust-packed", h.AdjustPacked)
		})

		// Sales routes
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Post("/bulk", h.BulkSale)
		})

		// Ledger and undo routes
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Get("/{id}", h.GetEntry)
			r.Get("/{id}/eligibility", h.EntryEligibility)
			r.Delete("/{id}", h.UndoEntry)
		})
		r.Route("/batches", func(r chi.Router) {
			r.Get("/{id}/eligibility", h.BatchEligibility)
			r.Delete("/{id}", h.UndoBatch)
		})

		// Returns routes
		r.Route("/returns", func(r chi.Router) {
			r.Get("/", h.ListReturns)
			r.Post("/", h.RecordReturn)
			r.Post("/transfer", h.TransferReturns)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", h.DailyReport)
			r.Get("/daily.csv", h.DailyReportCSV)
			r.Get("/low-stock", h.LowStock)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.ResetSystem)
		})
	})

	return r
}
