package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/analytics"
	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// PreviewResponse reports a dry-run decision with its full trace.
type PreviewResponse struct {
	Show     bool                  `json:"show"`
	Reason   string                `json:"reason,omitempty"`
	AdType   models.AdType         `json:"adType,omitempty"`
	ScriptID string                `json:"scriptId,omitempty"`
	HTML     string                `json:"html,omitempty"`
	Trace    *logic.SelectionTrace `json:"trace"`
}

// PreviewHandler runs the placement pipeline as the calling admin without
// emitting events or counting displays.
func (s *Server) PreviewHandler(w http.ResponseWriter, r *http.Request) {
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
	d, trace := s.Engine.Preview(r.Context(), req)
	resp := PreviewResponse{
		Show:   d.Show,
		Reason: string(d.Reason),
		AdType: d.AdType,
		HTML:   d.HTML(),
		Trace:  trace,
	}
	if d.Script != nil {
		resp.ScriptID = d.Script.ID
	}
	writeData(w, http.StatusOK, resp)
}

// EventsResponse lists recent ad events and suppression counts.
type EventsResponse struct {
	Events   []models.AdEvent `json:"events"`
	ByReason map[string]int   `json:"byReason"`
}

// EventsHandler queries stored ad events. Filters: visitorId, type, adType,
// since (RFC 3339 or a duration such as 1h) and limit.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, analytics.ErrUnavailable.Error())
		return
	}
	q := r.URL.Query()
	f := analytics.EventFilter{
		VisitorID: q.Get("visitorId"),
		EventType: models.AdEventType(q.Get("type")),
		AdType:    models.AdType(q.Get("adType")),
		Since:     time.Now().Add(-24 * time.Hour),
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	logger := middleware.LoggerFromRequest(r, s.Logger)
	events, err := s.Analytics.QueryEvents(r.Context(), f)
	if err != nil {
		logger.Error("query events", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to query events")
		return
	}
	byReason, err := s.Analytics.CountByReason(r.Context(), f.Since)
	if err != nil {
		logger.Error("count by reason", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to query events")
		return
	}
	if events == nil {
		events = []models.AdEvent{}
	}
	writeData(w, http.StatusOK, EventsResponse{Events: events, ByReason: byReason})
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, v)
}
