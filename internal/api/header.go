package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/logic/render"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
)

// HeaderResponse carries the site wide header scripts.
type HeaderResponse struct {
	Enabled bool   `json:"enabled"`
	HTML    string `json:"html,omitempty"`
}

// HeaderHandler returns the header scripts when ads are enabled for the
// caller. Settings are read fresh on every request.
func (s *Server) HeaderHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Engine.Settings(r.Context())
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("header settings", zap.Error(err))
		writeJSON(w, http.StatusOK, HeaderResponse{})
		return
	}
	enabled := settings.MasterEnabled && (!settings.TestMode || s.Engine.Gate().IsAdmin(r.Context()))
	if !enabled {
		writeJSON(w, http.StatusOK, HeaderResponse{})
		return
	}
	writeJSON(w, http.StatusOK, HeaderResponse{Enabled: true, HTML: render.HeaderScripts(settings.HeaderScripts)})
}
