package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/analytics"
	"github.com/patrickwarner/moovie-ads/internal/api"
	"github.com/patrickwarner/moovie-ads/internal/auth"
	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/geoip"
	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/logic/selectors"
	"github.com/patrickwarner/moovie-ads/internal/logic/zones"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}
	if cfg.TokenSecret == "" {
		logger.Warn("TOKEN_SECRET is empty, popup display receipts are signed with an empty key")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is empty, admin sessions are disabled")
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	// Populate the config store in one atomic step before serving.
	adConfig := models.NewInMemoryAdConfigStore()
	if err := db.LoadConfig(ctx, pg, adConfig); err != nil {
		return fmt.Errorf("load ad config: %w", err)
	}

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, analytics.PoolConfig{
		MaxOpenConns:    cfg.CHMaxOpenConns,
		MaxIdleConns:    cfg.CHMaxIdleConns,
		ConnMaxLifetime: cfg.CHConnMaxLifetime,
		ConnMaxIdleTime: cfg.CHConnMaxIdleTime,
	}, metricsRegistry)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	var geoSvc *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geoSvc, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("geoip disabled", zap.String("path", cfg.GeoIPDB), zap.Error(err))
			geoSvc = nil
		}
		defer func() { _ = geoSvc.Close() }()
	}

	authn := auth.New(cfg.AdminJWTSecret, cfg.AdminCookieName, cfg.AdminSessionTTL)
	zoneCache := zones.NewCache(pg, metricsRegistry, logger)
	zoneCache.SetFetchTimeout(cfg.ZoneFetchTimeout)
	freq := logic.NewFrequencyStore(store, cfg.FrequencyWindow, metricsRegistry, logger)
	engine := placement.NewEngine(placement.Config{
		Settings: adConfig,
		Zones:    zoneCache,
		Gate:     logic.NewGate(freq, authn),
		Scripts:  selectors.NewCatalog(adConfig, adConfig),
		Selector: selectors.NewRandomSelector(),
		Counter:  freq,
		Events:   analyticsSvc,
		Metrics:  metricsRegistry,
		Logger:   logger,
	})

	srvDeps := api.NewServer(logger, store, pg, adConfig, zoneCache, engine, authn, analyticsSvc, geoSvc, metricsRegistry, cfg)
	r := srvDeps.Router()

	// metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "moovie-ads"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad engine running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	// Admin writes on any instance arrive here.
	go func() {
		if err := store.SubscribeUpdates(ctx, func(msg db.UpdateMessage) {
			srvDeps.HandleUpdate(ctx, msg)
		}); err != nil && ctx.Err() == nil {
			logger.Error("config update subscription stopped", zap.Error(err))
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
