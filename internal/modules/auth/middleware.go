package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/domain"
	"github.com/rs/zerolog"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "lotwise_session"

type contextKey struct{}

var userIDKey contextKey

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext reads the authenticated user id set by the middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Middleware authenticates requests via bearer token or session cookie.
type Middleware struct {
	repo *Repository
	log  zerolog.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(repo *Repository, log zerolog.Logger) *Middleware {
	return &Middleware{
		repo: repo,
		log:  log.With().Str("component", "auth").Logger(),
	}
}

// Authenticate admits requests carrying a valid bearer token or session
// cookie and rejects everything else with 401. The user id is placed on
// the request context for handlers.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := m.resolveUser(r)
		if userID == "" {
			api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing or invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) resolveUser(r *http.Request) string {
	now := time.Now().UnixMilli()

	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return ""
		}

		hash := HashToken(token)
		userID, err := m.repo.UserIDForTokenHash(hash, now)
		if err != nil {
			m.log.Error().Err(err).Msg("Token lookup failed")
			return ""
		}
		if userID == "" {
			return ""
		}

		if err := m.repo.TouchToken(hash, now); err != nil {
			m.log.Warn().Err(err).Msg("Failed to update token last_used_at")
		}
		return userID
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		userID, err := m.repo.UserIDForSession(cookie.Value, now)
		if err != nil {
			m.log.Error().Err(err).Msg("Session lookup failed")
			return ""
		}
		return userID
	}

	return ""
}
