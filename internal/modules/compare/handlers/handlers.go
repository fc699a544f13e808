// Package handlers provides HTTP handlers for the compare endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/compare"
	"github.com/lotwise/lotwise/internal/ratelimit"
)

// Handler handles compare HTTP requests.
type Handler struct {
	service *compare.Service
	limiter *ratelimit.Service
	log     zerolog.Logger
}

// NewHandler creates a new compare handler.
func NewHandler(service *compare.Service, limiter *ratelimit.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		limiter: limiter,
		log:     log.With().Str("handler", "compare").Logger(),
	}
}

// HandleCompare handles POST /api/compare.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing or invalid credentials")
		return
	}

	// Both windows are checked; the caller waits for the larger one.
	userOK, userWait := h.limiter.AllowUser(userID)
	ipOK, ipWait := h.limiter.AllowIP(clientIP(r))
	if !userOK || !ipOK {
		wait := userWait
		if ipWait > wait {
			wait = ipWait
		}
		api.RateLimited(w, wait)
		return
	}

	var req domain.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, err.Error())
		return
	}

	resp, err := h.service.Compare(r.Context(), userID, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var quotaErr *compare.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		api.QuotaError(w, quotaErr.Code, "not enough credits for a fresh comparison", quotaErr.Usage)
	case errors.Is(err, compare.ErrNoResults):
		api.Error(w, http.StatusNotFound, domain.ErrCodeNoResults, "no comparable listings found")
	default:
		h.log.Error().Err(err).Msg("Compare failed")
		api.Error(w, http.StatusInternalServerError, domain.ErrCodeAPIError, "comparison failed")
	}
}

// clientIP extracts the caller address. RealIP middleware has already
// folded X-Forwarded-For into RemoteAddr, which may or may not carry a
// port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
