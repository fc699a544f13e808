package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the compare routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/compare", h.HandleCompare)
}
