package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/middleware"
)

// ReloadHandler reloads settings, networks and scripts from Postgres and
// drops the zone cache.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	if err := s.Reload(r.Context()); err != nil {
		logger.Error("reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	if s.Zones != nil {
		s.Zones.Invalidate()
	}
	w.WriteHeader(http.StatusNoContent)
}
