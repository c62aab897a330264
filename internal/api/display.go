package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/token"
)

// DisplayResponse is the data of a successful POST /ads/display.
type DisplayResponse struct {
	Counted bool `json:"counted"`
}

// DisplayHandler redeems the display token of a served popup and counts the
// display against the visitor's frequency cap. Each token counts once.
func (s *Server) DisplayHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	tok := r.URL.Query().Get("t")
	if tok == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	receipt, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			writeError(w, http.StatusGone, "token expired")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	visitorID := middleware.VisitorIDFromContext(r.Context())
	if visitorID != receipt.VisitorID {
		writeError(w, http.StatusForbidden, "token issued to another visitor")
		return
	}

	if s.Store == nil || s.Store.Client == nil {
		writeError(w, http.StatusServiceUnavailable, "display counting unavailable")
		return
	}
	first, err := s.Store.ClaimDisplay(r.Context(), receipt.Nonce, s.TokenTTL)
	if err != nil {
		logger.Error("claim display", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "display counting unavailable")
		return
	}
	if !first {
		writeData(w, http.StatusOK, DisplayResponse{Counted: false})
		return
	}

	d := placement.Decision{
		Show:   true,
		Kind:   placement.KindFor(models.AdType(receipt.AdType)),
		AdType: models.AdType(receipt.AdType),
		Script: s.AdConfig.GetScript(receipt.ScriptID),
	}
	if d.Script == nil {
		d.Script = &models.AdScript{ID: receipt.ScriptID, AdType: d.AdType}
	}
	if receipt.Position != "" {
		if z, reason := s.Engine.LookupZone(r.Context(), receipt.Position); reason == logic.ReasonNone {
			d.Zone = z
		}
	}

	viewer := logic.ResolveViewer(r, s.GeoIP, visitorID)
	if err := s.Engine.RecordDisplay(r.Context(), viewer, d); err != nil {
		logger.Error("record display", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "display counting unavailable")
		return
	}
	writeData(w, http.StatusOK, DisplayResponse{Counted: true})
}
