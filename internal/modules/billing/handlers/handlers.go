// Package handlers provides HTTP handlers for credit pack purchases and
// the Stripe webhook intake.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/clients/stripe"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/billing"
)

// Handler handles billing HTTP requests.
type Handler struct {
	service       *billing.Service
	webhookSecret string
	freeCredits   int
	log           zerolog.Logger
}

// NewHandler creates a new billing handler. webhookSecret signs inbound
// Stripe events; freeCredits is echoed in the pack listing.
func NewHandler(service *billing.Service, webhookSecret string, freeCredits int, log zerolog.Logger) *Handler {
	return &Handler{
		service:       service,
		webhookSecret: webhookSecret,
		freeCredits:   freeCredits,
		log:           log.With().Str("handler", "billing").Logger(),
	}
}

// HandleListPacks handles GET /api/billing/credit-packs.
func (h *Handler) HandleListPacks(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"packs":         billing.Packs(),
		"freeCredits":   h.freeCredits,
		"cacheHitsFree": true,
	})
}

type checkoutRequest struct {
	PackID string `json:"packId"`
}

// HandleCheckout handles POST /api/billing/credit-packs/checkout and
// returns the hosted payment URL.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.PackID == "" {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "packId is required")
		return
	}

	url, err := h.service.CreateCheckout(r.Context(), userID, req.PackID)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPack) {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "unknown credit pack")
			return
		}
		h.log.Error().Err(err).
			Str("user_id", userID).
			Str("pack_id", req.PackID).
			Msg("Checkout creation failed")
		api.Error(w, http.StatusInternalServerError, domain.ErrCodeAPIError, "failed to create checkout session")
		return
	}

	api.JSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleWebhook handles POST /api/stripe/webhook. Signature failures are
// rejected with 400. A handler error is logged but still acknowledged:
// the event's dedup row rolled back with its transaction, so a later
// redelivery can apply it.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "failed to read request body")
		return
	}

	event, err := stripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.log.Warn().Err(err).Msg("Webhook signature rejected")
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid signature")
		return
	}

	if err := h.service.HandleEvent(event); err != nil {
		h.log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", event.Type).
			Msg("Webhook handler failed")
	}

	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
