package server

import (
	"net/http"

	"github.com/lotwise/lotwise/internal/api"
)

// handleHealth handles health check requests. It pings every database so
// load balancers stop routing to an instance with a wedged store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, db := range s.container.Databases() {
		if err := db.QuickCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Health check failed")
			api.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}

	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
