package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)
		r.Get("/concentration", h.HandleGetConcentration)
		r.Post("/revalue", h.HandleRevalue)
	})
}
