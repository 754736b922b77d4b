package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/risk", h.HandleGetPortfolioRisk)
		r.Get("/allocation", h.HandleGetAllocation)
	})
}
