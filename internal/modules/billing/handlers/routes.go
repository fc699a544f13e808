package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the purchase endpoints on the authenticated API
// router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/credit-packs", h.HandleListPacks)
		r.Post("/credit-packs/checkout", h.HandleCheckout)
	})
}

// RegisterWebhookRoutes mounts the webhook intake outside the auth gate;
// it authenticates by signature instead.
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/stripe/webhook", h.HandleWebhook)
}
