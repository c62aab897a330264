package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/auth"
	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

var (
	networkCount = flag.Int("networks", 2, "number of ad networks")
	scriptsPer   = flag.Int("scripts", 2, "scripts per network and ad type")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload   = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
	adminToken   = flag.String("admin-token", "", "print an admin session token for this user ID and exit")
)

var networkNames = []string{"Adsterra", "PropellerAds", "HilltopAds", "MonetagX", "ExoClick", "PopCash"}

// demoZones is the standard site layout.
func demoZones() []models.AdZone {
	return []models.AdZone{
		{Name: "Home hero", Page: models.PageHome, Position: "homepage_hero", AdType: models.AdTypeBanner728x90, IsEnabled: true, Rotation: true, LazyLoad: true},
		{Name: "Home sidebar", Page: models.PageHome, Position: "homepage_sidebar", AdType: models.AdTypeBanner300x250, IsEnabled: true, Rotation: true, LazyLoad: true},
		{Name: "Watch below player", Page: models.PageWatch, Position: "watch_below_player", AdType: models.AdTypeBanner468x60, IsEnabled: true, Rotation: true, LazyLoad: true},
		{Name: "Watch native", Page: models.PageWatch, Position: "watch_native", AdType: models.AdTypeNative, IsEnabled: true, Rotation: true, LazyLoad: true},
		{Name: "Watch popup", Page: models.PageWatch, Position: "watch_popup", AdType: models.AdTypePopup, IsEnabled: true, Rotation: true, Trigger: models.TriggerTime, Delay: 30},
		{Name: "Download popup", Page: models.PageDownload, Position: "download_popup", AdType: models.AdTypePopup, IsEnabled: true, Rotation: true, Trigger: models.TriggerClick, Frequency: 1},
		{Name: "Live TV mobile", Page: models.PageLiveTV, Position: "livetv_mobile", AdType: models.AdTypeBanner320x50, IsEnabled: true, Rotation: true, LazyLoad: true},
		{Name: "Browse exit", Page: models.PageBrowse, Position: "browse_exit", AdType: models.AdTypePopup, IsEnabled: false, Rotation: true, Trigger: models.TriggerExitIntent},
		{Name: "Social bar", Page: models.PageAll, Position: "social_bar", AdType: models.AdTypeSocialBar, IsEnabled: true, Rotation: true},
	}
}

var scriptTypes = []models.AdType{
	models.AdTypeBanner728x90,
	models.AdTypeBanner468x60,
	models.AdTypeBanner300x250,
	models.AdTypeBanner320x50,
	models.AdTypeNative,
	models.AdTypeSocialBar,
	models.AdTypePopup,
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	if *adminToken != "" {
		tok, err := auth.New(cfg.AdminJWTSecret, cfg.AdminCookieName, cfg.AdminSessionTTL).GenerateToken(*adminToken, auth.RoleAdmin)
		if err != nil {
			logger.Fatal("generate admin token", zap.Error(err))
		}
		fmt.Println(tok)
		return
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))

	if err := pg.SaveSettings(ctx, models.DefaultAdSettings()); err != nil {
		logger.Fatal("save settings", zap.Error(err))
	}

	for i := 0; i < *networkCount; i++ {
		n := models.AdNetwork{Name: networkNames[i%len(networkNames)], IsEnabled: true}
		if err := pg.InsertNetwork(ctx, &n); err != nil {
			logger.Fatal("insert network", zap.Error(err))
		}
		for _, t := range scriptTypes {
			for x := 0; x < *scriptsPer; x++ {
				s := models.AdScript{NetworkID: n.ID, AdType: t, Script: fakeScript(r, n.Name, t), IsEnabled: true}
				if err := pg.InsertScript(ctx, &s); err != nil {
					logger.Fatal("insert script", zap.Error(err))
				}
			}
		}
	}

	inserted := 0
	for _, z := range demoZones() {
		z := z
		err := pg.InsertZone(ctx, &z)
		if errors.Is(err, db.ErrDuplicatePosition) {
			continue
		}
		if err != nil {
			logger.Fatal("insert zone", zap.String("position", z.Position), zap.Error(err))
		}
		inserted++
	}

	fmt.Printf("fake data inserted: %d networks, %d zones\n", *networkCount, inserted)

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

func fakeScript(r *rand.Rand, network string, t models.AdType) string {
	id := r.Intn(1_000_000)
	switch t {
	case models.AdTypePopup:
		return fmt.Sprintf("<script data-network=%q>window.open('https://ads.example.com/pop/%d');</script>", network, id)
	case models.AdTypeSocialBar:
		return fmt.Sprintf("<script async data-network=%q src=\"https://ads.example.com/bar/%d.js\"></script>", network, id)
	default:
		return fmt.Sprintf("<div class=\"demo-ad\" data-network=%q>%s #%d</div>", network, t, id)
	}
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
