package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market/prices", func(r chi.Router) {
		r.Post("/", h.HandleRecordPrices)
		r.Get("/", h.HandleListPrices)
		r.Get("/{symbol}", h.HandleGetPrice)
	})
}
