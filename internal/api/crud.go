package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// envelope is the body of every admin API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id query parameter is required")
		return "", false
	}
	return id, true
}

// storeError maps a persistence error to a response.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, db.ErrDuplicatePosition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errRepositoryUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("persist "+what, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist "+what)
	}
}

// stamp fills ID and creation time for entities created without Postgres.
func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = time.Now().UTC()
	}
}

// ===== Settings =====

func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.AdConfig.FetchSettings(r.Context())
	if err != nil {
		s.storeError(w, r, "settings", err)
		return
	}
	writeData(w, http.StatusOK, settings)
}

func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.AdSettings
	if err := decode(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.saveSettings(r.Context(), settings); err != nil {
		s.storeError(w, r, "settings", err)
		return
	}
	writeData(w, http.StatusOK, settings)
}

// saveSettings persists settings to Postgres first, then swaps them into the
// config store and tells the other instances.
func (s *Server) saveSettings(ctx context.Context, settings models.AdSettings) error {
	if s.Repo != nil {
		if err := s.Repo.SaveSettings(ctx, settings); err != nil {
			return err
		}
	}
	if err := s.AdConfig.SetSettings(settings); err != nil {
		return err
	}
	s.notifyUpdate("settings", "update", "")
	return nil
}

// ===== Networks =====

func (s *Server) ListNetworks(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.AdConfig.GetAllNetworks())
}

func (s *Server) CreateNetwork(w http.ResponseWriter, r *http.Request) {
	var n models.AdNetwork
	if err := decode(r, &n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	n.ID = ""
	if err := n.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// First persist to PostgreSQL to get the ID
	if s.Repo != nil {
		if err := s.Repo.InsertNetwork(r.Context(), &n); err != nil {
			s.storeError(w, r, "network", err)
			return
		}
	} else {
		stamp(&n.ID, &n.CreatedAt)
	}
	if err := s.AdConfig.InsertNetwork(n); err != nil {
		s.storeError(w, r, "network", err)
		return
	}

	s.notifyUpdate("network", "create", n.ID)
	writeData(w, http.StatusCreated, n)
}

func (s *Server) UpdateNetwork(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	var n models.AdNetwork
	if err := decode(r, &n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	n.ID = id
	if err := n.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.AdConfig.GetNetwork(id) == nil {
		writeError(w, http.StatusNotFound, "network not found")
		return
	}

	if s.Repo != nil {
		if err := s.Repo.UpdateNetwork(r.Context(), n); err != nil {
			s.storeError(w, r, "network", err)
			return
		}
	}
	if err := s.AdConfig.UpdateNetwork(n); err != nil {
		s.storeError(w, r, "network", err)
		return
	}

	s.notifyUpdate("network", "update", id)
	writeData(w, http.StatusOK, s.AdConfig.GetNetwork(id))
}

func (s *Server) DeleteNetwork(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if s.Repo != nil {
		if err := s.Repo.DeleteNetwork(r.Context(), id); err != nil {
			s.storeError(w, r, "network", err)
			return
		}
	}
	if err := s.AdConfig.DeleteNetwork(id); err != nil {
		s.storeError(w, r, "network", err)
		return
	}

	s.notifyUpdate("network", "delete", id)
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// ===== Scripts =====

func (s *Server) ListScripts(w http.ResponseWriter, r *http.Request) {
	var scripts []models.AdScript
	if networkID := r.URL.Query().Get("networkId"); networkID != "" {
		scripts = s.AdConfig.GetScriptsByNetwork(networkID)
	} else {
		scripts = s.AdConfig.GetAllScripts()
	}
	if scripts == nil {
		scripts = []models.AdScript{}
	}
	models.SortScriptsByCreated(scripts)
	writeData(w, http.StatusOK, scripts)
}

func (s *Server) validScript(w http.ResponseWriter, sc models.AdScript) bool {
	if err := sc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if s.AdConfig.GetNetwork(sc.NetworkID) == nil {
		writeError(w, http.StatusBadRequest, "unknown networkId")
		return false
	}
	return true
}

func (s *Server) CreateScript(w http.ResponseWriter, r *http.Request) {
	var sc models.AdScript
	if err := decode(r, &sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sc.ID = ""
	if !s.validScript(w, sc) {
		return
	}

	if s.Repo != nil {
		if err := s.Repo.InsertScript(r.Context(), &sc); err != nil {
			s.storeError(w, r, "script", err)
			return
		}
	} else {
		stamp(&sc.ID, &sc.CreatedAt)
	}
	if err := s.AdConfig.InsertScript(sc); err != nil {
		s.storeError(w, r, "script", err)
		return
	}

	s.notifyUpdate("script", "create", sc.ID)
	writeData(w, http.StatusCreated, sc)
}

func (s *Server) UpdateScript(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	var sc models.AdScript
	if err := decode(r, &sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sc.ID = id
	if s.AdConfig.GetScript(id) == nil {
		writeError(w, http.StatusNotFound, "script not found")
		return
	}
	if !s.validScript(w, sc) {
		return
	}

	if s.Repo != nil {
		if err := s.Repo.UpdateScript(r.Context(), sc); err != nil {
			s.storeError(w, r, "script", err)
			return
		}
	}
	if err := s.AdConfig.UpdateScript(sc); err != nil {
		s.storeError(w, r, "script", err)
		return
	}

	s.notifyUpdate("script", "update", id)
	writeData(w, http.StatusOK, s.AdConfig.GetScript(id))
}

func (s *Server) DeleteScript(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if s.Repo != nil {
		if err := s.Repo.DeleteScript(r.Context(), id); err != nil {
			s.storeError(w, r, "script", err)
			return
		}
	}
	if err := s.AdConfig.DeleteScript(id); err != nil {
		s.storeError(w, r, "script", err)
		return
	}

	s.notifyUpdate("script", "delete", id)
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// ===== Zones =====
//
// Zones live only in Postgres and are read through the zone cache, so every
// write invalidates it locally and broadcasts the change.

func (s *Server) zoneWritten(action, id string) {
	if s.Zones != nil {
		s.Zones.Invalidate()
	}
	s.notifyUpdate("zone", action, id)
}

func (s *Server) ListZones(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		s.storeError(w, r, "zone", errRepositoryUnavailable)
		return
	}
	var page models.Page
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := models.ParsePage(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		page = parsed
	}
	zs, err := s.Repo.LoadZones(r.Context(), page)
	if err != nil {
		s.storeError(w, r, "zone", err)
		return
	}
	if zs == nil {
		zs = []models.AdZone{}
	}
	writeData(w, http.StatusOK, zs)
}

func (s *Server) CreateZone(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		s.storeError(w, r, "zone", errRepositoryUnavailable)
		return
	}
	var z models.AdZone
	if err := decode(r, &z); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	z.ID = ""
	if err := z.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Repo.InsertZone(r.Context(), &z); err != nil {
		s.storeError(w, r, "zone", err)
		return
	}

	s.zoneWritten("create", z.ID)
	writeData(w, http.StatusCreated, z)
}

func (s *Server) UpdateZone(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		s.storeError(w, r, "zone", errRepositoryUnavailable)
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	var z models.AdZone
	if err := decode(r, &z); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	z.ID = id
	if err := z.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Repo.UpdateZone(r.Context(), z); err != nil {
		s.storeError(w, r, "zone", err)
		return
	}

	s.zoneWritten("update", id)
	writeData(w, http.StatusOK, z)
}

func (s *Server) DeleteZone(w http.ResponseWriter, r *http.Request) {
	if s.Repo == nil {
		s.storeError(w, r, "zone", errRepositoryUnavailable)
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.Repo.DeleteZone(r.Context(), id); err != nil {
		s.storeError(w, r, "zone", err)
		return
	}

	s.zoneWritten("delete", id)
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// InvalidateZones drops the zone cache on every instance.
func (s *Server) InvalidateZones(w http.ResponseWriter, r *http.Request) {
	s.zoneWritten("invalidate", "")
	writeData(w, http.StatusOK, map[string]bool{"invalidated": true})
}
