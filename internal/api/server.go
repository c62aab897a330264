package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/analytics"
	"github.com/patrickwarner/moovie-ads/internal/auth"
	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/geoip"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/logic/zones"
	"github.com/patrickwarner/moovie-ads/internal/middleware"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

// errRepositoryUnavailable is returned for writes that need Postgres when it
// is not configured.
var errRepositoryUnavailable = errors.New("postgres unavailable")

// Repository persists ad configuration. *db.Postgres implements it.
type Repository interface {
	db.ConfigLoader
	SaveSettings(ctx context.Context, s models.AdSettings) error
	InsertNetwork(ctx context.Context, n *models.AdNetwork) error
	UpdateNetwork(ctx context.Context, n models.AdNetwork) error
	DeleteNetwork(ctx context.Context, id string) error
	InsertScript(ctx context.Context, s *models.AdScript) error
	UpdateScript(ctx context.Context, s models.AdScript) error
	DeleteScript(ctx context.Context, id string) error
	LoadZones(ctx context.Context, page models.Page) ([]models.AdZone, error)
	InsertZone(ctx context.Context, z *models.AdZone) error
	UpdateZone(ctx context.Context, z models.AdZone) error
	DeleteZone(ctx context.Context, id string) error
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Store       *db.RedisStore
	Repo        Repository
	AdConfig    models.AdConfigStore
	Zones       *zones.Cache
	Engine      *placement.Engine
	Auth        *auth.Authenticator
	Analytics   analytics.AnalyticsService
	GeoIP       *geoip.GeoIP
	DebugTrace  bool
	TokenSecret []byte
	TokenTTL    time.Duration
	Metrics     observability.MetricsRegistry
	Config      config.Config
	reloadMu    sync.Mutex
}

// NewServer constructs a Server. repo, store, ch and geo may be nil; the
// matching features then degrade instead of failing requests.
func NewServer(logger *zap.Logger, store *db.RedisStore, repo Repository, adConfig models.AdConfigStore, zoneCache *zones.Cache, engine *placement.Engine, authn *auth.Authenticator, ch analytics.AnalyticsService, geo *geoip.GeoIP, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.L()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if authn == nil {
		authn = auth.New(cfg.AdminJWTSecret, cfg.AdminCookieName, cfg.AdminSessionTTL)
	}
	return &Server{
		Logger:      logger,
		Store:       store,
		Repo:        repo,
		AdConfig:    adConfig,
		Zones:       zoneCache,
		Engine:      engine,
		Auth:        authn,
		Analytics:   ch,
		GeoIP:       geo,
		DebugTrace:  cfg.DebugTrace,
		TokenSecret: []byte(cfg.TokenSecret),
		TokenTTL:    cfg.TokenTTL,
		Metrics:     metrics,
		Config:      cfg,
	}
}

// Router registers every route on a new mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Visitor(s.Config.VisitorCookie, s.Config.VisitorCookieTTL))
	r.Use(s.Auth.Session)
	r.Use(middleware.WithRequestLogger(s.Logger))

	r.HandleFunc("/health", s.instrument("health", s.HealthHandler)).Methods(http.MethodGet)
	r.HandleFunc("/reload", s.instrument("reload", s.ReloadHandler)).Methods(http.MethodPost)

	ads := r.PathPrefix("/ads").Subrouter()
	ads.HandleFunc("/serve", s.instrument("serve", s.ServeHandler)).Methods(http.MethodPost)
	ads.HandleFunc("/display", s.instrument("display", s.DisplayHandler)).Methods(http.MethodPost)
	ads.HandleFunc("/header", s.instrument("header", s.HeaderHandler)).Methods(http.MethodGet)
	ads.HandleFunc("/zone", s.instrument("zone", s.ZoneHandler)).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/ads").Subrouter()
	admin.Use(s.Auth.RequireAdmin)
	admin.HandleFunc("/settings", s.instrument("settings", s.GetSettings)).Methods(http.MethodGet)
	admin.HandleFunc("/settings", s.instrument("settings", s.UpdateSettings)).Methods(http.MethodPut)

	admin.HandleFunc("/networks", s.instrument("networks", s.ListNetworks)).Methods(http.MethodGet)
	admin.HandleFunc("/networks", s.instrument("networks", s.CreateNetwork)).Methods(http.MethodPost)
	admin.HandleFunc("/networks", s.instrument("networks", s.UpdateNetwork)).Methods(http.MethodPut)
	admin.HandleFunc("/networks", s.instrument("networks", s.DeleteNetwork)).Methods(http.MethodDelete)

	admin.HandleFunc("/scripts", s.instrument("scripts", s.ListScripts)).Methods(http.MethodGet)
	admin.HandleFunc("/scripts", s.instrument("scripts", s.CreateScript)).Methods(http.MethodPost)
	admin.HandleFunc("/scripts", s.instrument("scripts", s.UpdateScript)).Methods(http.MethodPut)
	admin.HandleFunc("/scripts", s.instrument("scripts", s.DeleteScript)).Methods(http.MethodDelete)

	admin.HandleFunc("/zones/invalidate", s.instrument("zones_invalidate", s.InvalidateZones)).Methods(http.MethodPost)
	admin.HandleFunc("/zones", s.instrument("zones", s.ListZones)).Methods(http.MethodGet)
	admin.HandleFunc("/zones", s.instrument("zones", s.CreateZone)).Methods(http.MethodPost)
	admin.HandleFunc("/zones", s.instrument("zones", s.UpdateZone)).Methods(http.MethodPut)
	admin.HandleFunc("/zones", s.instrument("zones", s.DeleteZone)).Methods(http.MethodDelete)

	admin.HandleFunc("/preview", s.instrument("preview", s.PreviewHandler)).Methods(http.MethodPost)
	admin.HandleFunc("/events", s.instrument("events", s.EventsHandler)).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and latency for endpoint.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.Metrics.IncrementRequests(endpoint, r.Method, fmt.Sprint(rec.status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}
}

func (s *Server) notifyUpdate(entity, action, id string) {
	if s.Store == nil || s.Store.Client == nil {
		s.Logger.Warn("redis store not available, skipping update notification")
		return
	}
	msg := db.UpdateMessage{Entity: entity, Action: action, ID: id}
	if err := s.Store.PublishUpdate(context.Background(), msg); err != nil {
		s.Logger.Error("failed to publish update message", zap.Error(err))
	}
}

// HandleUpdate applies an update broadcast by any instance. Zone writes only
// drop the zone cache; other writes reload the config store from Postgres.
func (s *Server) HandleUpdate(ctx context.Context, msg db.UpdateMessage) {
	s.Logger.Debug("config update received",
		zap.String("entity", msg.Entity), zap.String("action", msg.Action), zap.String("id", msg.ID))
	if msg.Entity == "zone" {
		if s.Zones != nil {
			s.Zones.Invalidate()
		}
		return
	}
	if s.Repo == nil {
		return
	}
	if err := s.Reload(ctx); err != nil {
		s.Logger.Error("reload after update failed", zap.String("entity", msg.Entity), zap.Error(err))
	}
}

// Reload refreshes settings, networks and scripts from Postgres. The zone
// cache is left alone.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Repo == nil {
		s.Metrics.IncrementConfigReloads("error")
		return errRepositoryUnavailable
	}
	if err := db.LoadConfig(ctx, s.Repo, s.AdConfig); err != nil {
		s.Metrics.IncrementConfigReloads("error")
		return fmt.Errorf("load config: %w", err)
	}
	s.Metrics.IncrementConfigReloads("ok")
	return nil
}
