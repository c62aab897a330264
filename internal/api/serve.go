package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/token"
)

// ServeRequest is the body of POST /ads/serve.
type ServeRequest struct {
	Kind     string `json:"kind"`
	AdType   string `json:"adType,omitempty"`
	Position string `json:"position,omitempty"`
	// VisibleRatio is the viewport intersection of lazy placements.
	VisibleRatio *float64 `json:"visibleRatio,omitempty"`
}

// ServeResponse describes what the placement should render.
type ServeResponse struct {
	Show         bool                  `json:"show"`
	State        placement.State       `json:"state"`
	Reason       string                `json:"reason,omitempty"`
	AdType       models.AdType         `json:"adType,omitempty"`
	HTML         string                `json:"html,omitempty"`
	ScriptID     string                `json:"scriptId,omitempty"`
	Trigger      models.Trigger        `json:"trigger,omitempty"`
	Delay        int                   `json:"delay,omitempty"`
	DisplayToken string                `json:"displayToken,omitempty"`
	Trace        *logic.SelectionTrace `json:"trace,omitempty"`
}

var errVisitorRequired = errors.New("visitor id missing")

func (s *Server) placementRequest(r *http.Request, body ServeRequest) (placement.Request, error) {
	kind := placement.Kind(body.Kind)
	if !kind.Valid() {
		return placement.Request{}, errors.New("invalid kind")
	}
	req := placement.Request{Kind: kind, Position: body.Position}
	if body.AdType != "" {
		t, err := models.ParseAdType(body.AdType)
		if err != nil {
			return placement.Request{}, err
		}
		req.AdType = t
	}
	if req.AdType == "" && req.Position == "" {
		return placement.Request{}, errors.New("adType or position is required")
	}
	visitorID := middleware.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		return placement.Request{}, errVisitorRequired
	}
	req.Viewer = logic.ResolveViewer(r, s.GeoIP, visitorID)
	return req, nil
}

// ServeHandler resolves one placement for the calling visitor.
func (s *Server) ServeHandler(w http.ResponseWriter, r *http.Request) {
	var body ServeRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req, err := s.placementRequest(r, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Kind.Lazy() && body.VisibleRatio != nil && *body.VisibleRatio < placement.VisibilityThreshold {
		writeJSON(w, http.StatusOK, ServeResponse{State: placement.StateIdle})
		return
	}

	if s.DebugTrace && r.URL.Query().Get("debug") == "1" {
		req.Trace = &logic.SelectionTrace{}
	}
	d := s.Engine.Resolve(r.Context(), req)

	resp := ServeResponse{
		Show:   d.Show,
		State:  placement.StateSuppressed,
		Reason: string(d.Reason),
		AdType: d.AdType,
		Trace:  req.Trace,
	}
	if d.Show {
		resp.State = placement.StateDisplayed
		resp.HTML = d.HTML()
		resp.ScriptID = d.Script.ID
		if d.Kind == placement.KindPopup {
			resp.Trigger = d.Trigger
			resp.Delay = int(d.Delay / time.Second)
			resp.DisplayToken = s.displayToken(r, req, d)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// displayToken signs the receipt the client redeems once the popup shows.
// An empty token means the display is not counted.
func (s *Server) displayToken(r *http.Request, req placement.Request, d placement.Decision) string {
	receipt := token.Receipt{
		VisitorID: req.Viewer.VisitorID,
		ScriptID:  d.Script.ID,
		AdType:    string(d.AdType),
		Position:  req.Position,
	}
	if d.Zone != nil {
		receipt.Position = d.Zone.Position
	}
	tok, err := token.Generate(receipt, s.TokenSecret)
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("display token", zap.Error(err))
		return ""
	}
	return tok
}
