package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts credits endpoints on the authenticated API router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/credits", h.HandleSummary)
}
