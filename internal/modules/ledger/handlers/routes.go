package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/account", h.HandleGetAccount)
	r.Get("/positions", h.HandleGetPositions)

	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Get("/summary", h.HandleGetTradesSummary)
	})
}
