package api

import (
	"net/http"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// ZoneResponse is the public view of an enabled zone. Placements read it to
// pick their component and popup trigger before loading.
type ZoneResponse struct {
	Position string         `json:"position"`
	AdType   models.AdType  `json:"adType"`
	LazyLoad bool           `json:"lazyLoad"`
	Trigger  models.Trigger `json:"trigger,omitempty"`
	Delay    int            `json:"delay,omitempty"`
}

// ZoneHandler resolves ?position= through the shared zone cache. Missing and
// disabled zones are both 404.
func (s *Server) ZoneHandler(w http.ResponseWriter, r *http.Request) {
	position := r.URL.Query().Get("position")
	if position == "" {
		writeError(w, http.StatusBadRequest, "position query parameter is required")
		return
	}
	zone, reason := s.Engine.LookupZone(r.Context(), position)
	switch reason {
	case logic.ReasonNone:
	case logic.ReasonNoZone:
		writeError(w, http.StatusNotFound, "zone not found")
		return
	default:
		writeError(w, http.StatusServiceUnavailable, "zone lookup unavailable")
		return
	}
	resp := ZoneResponse{Position: zone.Position, AdType: zone.AdType, LazyLoad: zone.LazyLoad}
	if zone.AdType == models.AdTypePopup {
		resp.Trigger = zone.EffectiveTrigger()
		resp.Delay = zone.Delay
	}
	writeJSON(w, http.StatusOK, resp)
}
