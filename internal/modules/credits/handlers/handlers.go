package handlers

import (
	"net/http"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/credits"
	"github.com/rs/zerolog"
)

type Handler struct {
	service *credits.Service
	log     zerolog.Logger
}

func NewHandler(service *credits.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "credits").Logger(),
	}
}

// HandleSummary returns the caller's balance and lifetime totals.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "authentication required")
		return
	}

	summary, err := h.service.Summary(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load credits summary")
		api.Error(w, http.StatusInternalServerError, domain.ErrCodeAPIError, "failed to load credits")
		return
	}

	api.JSON(w, http.StatusOK, summary)
}
