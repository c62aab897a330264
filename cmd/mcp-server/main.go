package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/config"
	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/logic/selectors"
	"github.com/patrickwarner/moovie-ads/internal/logic/zones"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// ZoneRepository is the part of Postgres the ad ops tools need.
type ZoneRepository interface {
	LoadZones(ctx context.Context, page models.Page) ([]models.AdZone, error)
	SaveSettings(ctx context.Context, s models.AdSettings) error
}

// UpdatePublisher broadcasts config writes to running ad engines.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, msg db.UpdateMessage) error
}

type ListZonesInput struct {
	Page string `json:"page,omitempty"`
}

type ZoneSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Page     models.Page    `json:"page"`
	Position string         `json:"position"`
	AdType   models.AdType  `json:"ad_type"`
	Enabled  bool           `json:"enabled"`
	Trigger  models.Trigger `json:"trigger,omitempty"`
	Delay    int            `json:"delay,omitempty"`
}

type ListZonesOutput struct {
	Zones []ZoneSummary `json:"zones"`
}

type GetSettingsInput struct{}

type SettingsOutput struct {
	MasterEnabled     bool `json:"master_enabled"`
	TestMode          bool `json:"test_mode"`
	PopupFrequencyCap int  `json:"popup_frequency_cap"`
	Networks          int  `json:"networks"`
	Scripts           int  `json:"scripts"`
}

type SetMasterSwitchInput struct {
	Enabled bool `json:"enabled"`
}

type PreviewInput struct {
	Kind     string `json:"kind"`
	Position string `json:"position,omitempty"`
	AdType   string `json:"ad_type,omitempty"`
}

type PreviewOutput struct {
	Show     bool              `json:"show"`
	Reason   string            `json:"reason,omitempty"`
	AdType   models.AdType     `json:"ad_type,omitempty"`
	ScriptID string            `json:"script_id,omitempty"`
	Steps    []logic.TraceStep `json:"steps"`
}

// AdOpsServer exposes ad configuration to operators over MCP.
type AdOpsServer struct {
	repo      ZoneRepository
	store     models.AdConfigStore
	engine    *placement.Engine
	publisher UpdatePublisher
	logger    *zap.Logger
}

// ListZones implements the list_ad_zones tool.
func (s *AdOpsServer) ListZones(ctx context.Context, req *mcp.CallToolRequest, input ListZonesInput) (*mcp.CallToolResult, ListZonesOutput, error) {
	var page models.Page
	if input.Page != "" {
		p, err := models.ParsePage(input.Page)
		if err != nil {
			return nil, ListZonesOutput{}, err
		}
		page = p
	}
	zs, err := s.repo.LoadZones(ctx, page)
	if err != nil {
		return nil, ListZonesOutput{}, fmt.Errorf("failed to load zones: %w", err)
	}
	out := ListZonesOutput{Zones: make([]ZoneSummary, 0, len(zs))}
	for _, z := range zs {
		out.Zones = append(out.Zones, ZoneSummary{
			ID:       z.ID,
			Name:     z.Name,
			Page:     z.Page,
			Position: z.Position,
			AdType:   z.AdType,
			Enabled:  z.IsEnabled,
			Trigger:  z.Trigger,
			Delay:    z.Delay,
		})
	}
	s.logger.Info("listed zones", zap.String("page", string(page)), zap.Int("count", len(out.Zones)))
	return nil, out, nil
}

func (s *AdOpsServer) settingsOutput() SettingsOutput {
	st := s.store.GetSettings()
	return SettingsOutput{
		MasterEnabled:     st.MasterEnabled,
		TestMode:          st.TestMode,
		PopupFrequencyCap: st.PopupFrequencyCap,
		Networks:          len(s.store.GetAllNetworks()),
		Scripts:           len(s.store.GetAllScripts()),
	}
}

// GetSettings implements the get_ad_settings tool.
func (s *AdOpsServer) GetSettings(ctx context.Context, req *mcp.CallToolRequest, input GetSettingsInput) (*mcp.CallToolResult, SettingsOutput, error) {
	return nil, s.settingsOutput(), nil
}

// SetMasterSwitch implements the set_ad_master_switch tool. The change is
// persisted and broadcast so every running engine picks it up.
func (s *AdOpsServer) SetMasterSwitch(ctx context.Context, req *mcp.CallToolRequest, input SetMasterSwitchInput) (*mcp.CallToolResult, SettingsOutput, error) {
	st := s.store.GetSettings()
	st.MasterEnabled = input.Enabled
	if err := s.repo.SaveSettings(ctx, st); err != nil {
		return nil, SettingsOutput{}, fmt.Errorf("failed to save settings: %w", err)
	}
	if err := s.store.SetSettings(st); err != nil {
		return nil, SettingsOutput{}, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishUpdate(ctx, db.UpdateMessage{Entity: "settings", Action: "update"}); err != nil {
			s.logger.Warn("failed to publish settings update", zap.Error(err))
		}
	}
	s.logger.Info("master switch changed", zap.Bool("enabled", input.Enabled))
	return nil, s.settingsOutput(), nil
}

// Preview implements the preview_placement tool.
func (s *AdOpsServer) Preview(ctx context.Context, req *mcp.CallToolRequest, input PreviewInput) (*mcp.CallToolResult, PreviewOutput, error) {
	kind := placement.Kind(input.Kind)
	if !kind.Valid() {
		return nil, PreviewOutput{}, fmt.Errorf("invalid kind %q", input.Kind)
	}
	preq := placement.Request{Kind: kind, Position: input.Position}
	if input.AdType != "" {
		t, err := models.ParseAdType(input.AdType)
		if err != nil {
			return nil, PreviewOutput{}, err
		}
		preq.AdType = t
	}
	if preq.AdType == "" && preq.Position == "" {
		return nil, PreviewOutput{}, errors.New("position or ad_type is required")
	}
	preq.Viewer = models.Viewer{VisitorID: "mcp-preview", DeviceType: "other"}

	d, trace := s.engine.Preview(ctx, preq)
	out := PreviewOutput{
		Show:   d.Show,
		Reason: string(d.Reason),
		AdType: d.AdType,
		Steps:  trace.Steps,
	}
	if d.Script != nil {
		out.ScriptID = d.Script.ID
	}
	return nil, out, nil
}

func newServer(ops *AdOpsServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "moovie-ads",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_ad_zones",
		Description: "List configured ad zones, optionally for one page",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"page": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"home", "watch", "download", "live-tv", "browse", "all"},
					"description": "Page to list zones for (optional)",
				},
			},
		},
	}, ops.ListZones)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_ad_settings",
		Description: "Show the global ad switches and catalog size",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, ops.GetSettings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_ad_master_switch",
		Description: "Turn every ad on the site on or off",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"enabled": map[string]interface{}{
					"type":        "boolean",
					"description": "New master switch state",
				},
			},
			"required": []string{"enabled"},
		},
	}, ops.SetMasterSwitch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_placement",
		Description: "Dry-run the placement pipeline for a zone or ad type and show each stage",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"banner", "native", "social_bar", "popup"},
					"description": "Placement kind",
				},
				"position": map[string]interface{}{
					"type":        "string",
					"description": "Zone position (optional when ad_type is given)",
				},
				"ad_type": map[string]interface{}{
					"type":        "string",
					"description": "Ad type (optional when position is given)",
				},
			},
			"required": []string{"kind"},
		},
	}, ops.Preview)

	return server
}

func main() {
	// Initialize logger for MCP server - use stderr to avoid stdio conflicts
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"

	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("moovie-ads-mcp").With(zap.String("service", "moovie-ads-mcp"))
	zap.ReplaceGlobals(logger)

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, 10, 5, 30*time.Minute, time.Minute)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	var publisher UpdatePublisher
	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Warn("Redis unavailable, config writes will not be broadcast", zap.Error(err))
	} else {
		defer store.Close()
		publisher = store
	}

	ctx := context.Background()
	adConfig := models.NewInMemoryAdConfigStore()
	if err := db.LoadConfig(ctx, pg, adConfig); err != nil {
		logger.Fatal("Failed to load ad config", zap.Error(err))
	}

	// Previews never count displays or record events.
	engine := placement.NewEngine(placement.Config{
		Settings: adConfig,
		Zones:    zones.NewCache(pg, nil, logger),
		Gate:     logic.NewGate(nil, nil),
		Scripts:  selectors.NewCatalog(adConfig, adConfig),
		Logger:   logger,
	})

	ops := &AdOpsServer{repo: pg, store: adConfig, engine: engine, publisher: publisher, logger: logger}

	logger.Info("MCP Server running via stdio")
	if err := newServer(ops).Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
