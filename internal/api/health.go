package api

import (
	"net/http"
)

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	zonesLoaded := s.Zones != nil && s.Zones.Loaded()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"zonesCached": zonesLoaded,
	})
}
