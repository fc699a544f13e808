// Package handlers provides HTTP handlers for the search history listing.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/lotwise/lotwise/internal/modules/auth"
	"github.com/lotwise/lotwise/internal/modules/history"
	"github.com/lotwise/lotwise/internal/utils"
	"github.com/rs/zerolog"
)

// Handler handles history HTTP requests.
type Handler struct {
	repo *history.Repository
	log  zerolog.Logger
}

// NewHandler creates a new history handler.
func NewHandler(repo *history.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "history").Logger(),
	}
}

// HandleList handles GET /api/history.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing or invalid credentials")
		return
	}

	q := r.URL.Query()
	filter := history.ListFilter{
		Domain:    q.Get("domain"),
		Source:    domain.CompareSource(q.Get("compareSource")),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	}

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "page must be a positive integer")
			return
		}
		filter.Page = page
	}
	if sizeStr := q.Get("pageSize"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size < 1 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "pageSize must be a positive integer")
			return
		}
		filter.PageSize = size
	}

	switch filter.Source {
	case "", domain.SourceCacheStrict, domain.SourceCacheLoose, domain.SourceFreshFetch:
	default:
		api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "unknown compareSource")
		return
	}

	if filter.StartDate != "" {
		if _, err := utils.DayStartMillis(filter.StartDate); err != nil {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "startDate must be YYYY-MM-DD")
			return
		}
	}
	if filter.EndDate != "" {
		if _, err := utils.DayEndMillis(filter.EndDate); err != nil {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeInvalidRequest, "endDate must be YYYY-MM-DD")
			return
		}
	}

	page, err := h.repo.List(userID, filter)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to list history")
		api.Error(w, http.StatusInternalServerError, domain.ErrCodeAPIError, "failed to list history")
		return
	}

	api.JSON(w, http.StatusOK, page)
}
