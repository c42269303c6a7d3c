package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all order routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.HandleCreateOrder)
		r.Get("/", h.HandleListOrders)
		r.Get("/{orderID}", h.HandleGetOrder)
		r.Post("/{orderID}/cancel", h.HandleCancelOrder)
	})
}
