package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
		r.Route("/holdings", func(r chi.Router) {
			r.Get("/", h.HandleListHoldings)
			r.Post("/", h.HandleCreateHolding)
			r.Delete("/{holdingID}", h.HandleDeleteHolding)
			r.Patch("/{holdingID}/price", h.HandleUpdateManualPrice)
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.HandleListTransactions)
			r.Post("/", h.HandleRecordTransaction)
		})
	})
}
