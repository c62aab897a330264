// Package placement resolves ad placements and models their client side
// lifecycle.
package placement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/render"
	"github.com/patrickwarner/moovie-ads/internal/logic/selectors"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

// SettingsSource reads the current ad settings. It is called on every
// decision.
type SettingsSource interface {
	FetchSettings(ctx context.Context) (models.AdSettings, error)
}

// ZoneResolver looks up the enabled zone for a position. *zones.Cache
// implements it.
type ZoneResolver interface {
	GetZoneConfig(ctx context.Context, position string) (*models.AdZone, error)
}

// ScriptFinder lists the eligible scripts of an ad type. *selectors.Catalog
// implements it.
type ScriptFinder interface {
	GetAdScriptsByType(ctx context.Context, adType models.AdType) ([]models.AdScript, error)
}

// DisplayCounter records popup displays. *logic.FrequencyStore implements
// it.
type DisplayCounter interface {
	IncrementAdCount(ctx context.Context, visitorID string, adType models.AdType) error
}

// EventRecorder stores analytics events. A nil recorder drops them.
type EventRecorder interface {
	RecordAdEvent(ctx context.Context, ev models.AdEvent) error
}

// Request asks for one placement decision.
type Request struct {
	Kind     Kind
	AdType   models.AdType
	Position string
	Viewer   models.Viewer
	// Zone skips the zone lookup when the caller has already resolved it.
	Zone *models.AdZone
	// DryRun resolves without emitting events or counting displays.
	DryRun bool
	Trace  *logic.SelectionTrace
}

// Decision is the outcome of Resolve.
type Decision struct {
	Show    bool
	Reason  logic.Reason
	Kind    Kind
	AdType  models.AdType
	Zone    *models.AdZone
	Script  *models.AdScript
	Trigger models.Trigger
	Delay   time.Duration
	// Token redeems a popup display with a remote engine. The in-process
	// engine leaves it empty.
	Token string
}

// HTML returns the selected payload wrapped in its container, or "" when
// nothing is shown.
func (d Decision) HTML() string {
	if !d.Show || d.Script == nil {
		return ""
	}
	c := render.Container{
		Kind:        string(d.Kind),
		AdType:      string(d.AdType),
		ScriptID:    d.Script.ID,
		Dismissible: d.Kind == KindSocialBar,
	}
	if d.Zone != nil {
		c.Position = d.Zone.Position
	}
	if d.Kind == KindPopup {
		c.Trigger = string(d.Trigger)
		c.Delay = int(d.Delay / time.Second)
	}
	return render.Wrap(c, d.Script.Script)
}

// Engine runs the placement pipeline: settings, zone, eligibility, script
// list and selection, strictly in that order. The first negative stage
// suppresses the placement.
type Engine struct {
	settings SettingsSource
	zones    ZoneResolver
	gate     *logic.Gate
	scripts  ScriptFinder
	selector selectors.Selector
	counter  DisplayCounter
	events   EventRecorder
	metrics  observability.MetricsRegistry
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Config carries the Engine dependencies. Settings, Zones, Gate and Scripts
// are required.
type Config struct {
	Settings SettingsSource
	Zones    ZoneResolver
	Gate     *logic.Gate
	Scripts  ScriptFinder
	Selector selectors.Selector
	Counter  DisplayCounter
	Events   EventRecorder
	Metrics  observability.MetricsRegistry
	Logger   *zap.Logger
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		settings: cfg.Settings,
		zones:    cfg.Zones,
		gate:     cfg.Gate,
		scripts:  cfg.Scripts,
		selector: cfg.Selector,
		counter:  cfg.Counter,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		tracer:   observability.Tracer("placement"),
		now:      time.Now,
	}
	if e.gate == nil {
		e.gate = logic.NewGate(nil, nil)
	}
	if e.selector == nil {
		e.selector = selectors.NewRandomSelector()
	}
	if e.metrics == nil {
		e.metrics = observability.NewNoOpRegistry()
	}
	if e.logger == nil {
		e.logger = zap.L()
	}
	return e
}

// Gate returns the eligibility gate the engine decides with.
func (e *Engine) Gate() *logic.Gate {
	return e.gate
}

// Settings reads the current settings through the engine's source.
func (e *Engine) Settings(ctx context.Context) (models.AdSettings, error) {
	return e.settings.FetchSettings(ctx)
}

// LookupZone resolves the zone for position. A missing or disabled zone
// yields ReasonNoZone.
func (e *Engine) LookupZone(ctx context.Context, position string) (*models.AdZone, logic.Reason) {
	zone, err := e.zones.GetZoneConfig(ctx, position)
	if err != nil {
		if ctx.Err() != nil {
			return nil, logic.ReasonCancelled
		}
		e.logger.Warn("zone lookup failed", zap.String("position", position), zap.Error(err))
		return nil, logic.ReasonZoneError
	}
	if zone == nil {
		return nil, logic.ReasonNoZone
	}
	return zone, logic.ReasonNone
}

// Resolve runs the pipeline for req. Infrastructure failures never surface
// as errors; they suppress the placement with a matching reason.
func (e *Engine) Resolve(ctx context.Context, req Request) Decision {
	ctx, span := e.tracer.Start(ctx, "placement.Resolve")
	defer span.End()

	d := e.resolve(ctx, req)
	span.SetAttributes(
		attribute.String("ad.kind", string(d.Kind)),
		attribute.String("ad.type", string(d.AdType)),
		attribute.Bool("ad.show", d.Show),
		attribute.String("ad.reason", string(d.Reason)),
	)

	outcome := "shown"
	if !d.Show {
		outcome = "suppressed"
	}
	e.metrics.IncrementAdDecision(string(d.AdType), outcome, string(d.Reason))
	if !req.DryRun {
		e.emit(ctx, req, d)
	}
	if observability.ShouldSample(observability.GetSamplingRate()) {
		e.logger.Info("placement resolved",
			zap.String("kind", string(d.Kind)),
			zap.String("ad_type", string(d.AdType)),
			zap.String("position", req.Position),
			zap.Bool("show", d.Show),
			zap.String("reason", string(d.Reason)),
			zap.Bool("dry_run", req.DryRun))
	}
	return d
}

func (e *Engine) resolve(ctx context.Context, req Request) Decision {
	d := Decision{Kind: req.Kind, AdType: req.AdType}
	suppress := func(stage string, r logic.Reason) Decision {
		req.Trace.AddStep(stage, string(r))
		d.Show = false
		d.Reason = r
		return d
	}

	if ctx.Err() != nil {
		return suppress("settings", logic.ReasonCancelled)
	}
	settings, err := e.settings.FetchSettings(ctx)
	if err != nil {
		e.logger.Warn("settings fetch failed", zap.Error(err))
		return suppress("settings", logic.ReasonSettingsError)
	}
	req.Trace.AddStep("settings", "ok")

	zone := req.Zone
	if zone == nil && req.Position != "" {
		var reason logic.Reason
		zone, reason = e.LookupZone(ctx, req.Position)
		if reason != logic.ReasonNone {
			return suppress("zone", reason)
		}
	}
	if zone != nil {
		d.Zone = zone
		d.AdType = zone.AdType
		req.Trace.AddStepWithDetails("zone", "ok", map[string]string{"position": zone.Position, "ad_type": string(zone.AdType)})
	}
	if d.Kind == "" {
		d.Kind = KindFor(d.AdType)
	} else if d.AdType != "" && !d.Kind.Renders(d.AdType) {
		// A component never renders an ad type it cannot count or trigger.
		return suppress("kind", logic.ReasonKindMismatch)
	}
	if d.Kind == KindPopup {
		d.Trigger = models.TriggerLoad
		if zone != nil {
			d.Trigger = zone.EffectiveTrigger()
			d.Delay = time.Duration(zone.Delay) * time.Second
		}
	}

	freqCap := settings.PopupFrequencyCap
	if zone != nil && zone.Frequency > 0 {
		freqCap = zone.Frequency
	}
	if ctx.Err() != nil {
		return suppress("eligibility", logic.ReasonCancelled)
	}
	ok, reason := e.gate.Evaluate(ctx, logic.Eligibility{
		VisitorID:     req.Viewer.VisitorID,
		AdType:        d.AdType,
		Frequency:     &freqCap,
		TestMode:      &settings.TestMode,
		MasterEnabled: &settings.MasterEnabled,
	})
	if !ok {
		return suppress("eligibility", reason)
	}
	req.Trace.AddStep("eligibility", "ok")

	if ctx.Err() != nil {
		return suppress("scripts", logic.ReasonCancelled)
	}
	scripts, err := e.scripts.GetAdScriptsByType(ctx, d.AdType)
	if err != nil {
		e.logger.Warn("script list failed", zap.String("ad_type", string(d.AdType)), zap.Error(err))
		return suppress("scripts", logic.ReasonScriptsError)
	}
	if len(scripts) == 0 {
		return suppress("scripts", logic.ReasonNoScripts)
	}
	req.Trace.AddStepWithDetails("scripts", "ok", map[string]string{"count": fmt.Sprint(len(scripts))})

	script := e.selector.SelectScript(scripts, zone, req.Trace)
	if script == nil {
		return suppress("select", logic.ReasonNoScripts)
	}
	d.Script = script
	d.Show = true
	return d
}

// RecordDisplay counts one popup display for the viewer. Other kinds are not
// counted.
func (e *Engine) RecordDisplay(ctx context.Context, viewer models.Viewer, d Decision) error {
	if d.AdType != models.AdTypePopup {
		return nil
	}
	if e.counter == nil {
		e.metrics.IncrementDisplays(string(d.AdType), "error")
		return logic.ErrNilRedisStore
	}
	if err := e.counter.IncrementAdCount(ctx, viewer.VisitorID, d.AdType); err != nil {
		e.metrics.IncrementDisplays(string(d.AdType), "error")
		return fmt.Errorf("record display: %w", err)
	}
	e.metrics.IncrementDisplays(string(d.AdType), "counted")
	ev := e.event(models.AdEventDisplayed, viewer, d)
	e.record(ctx, ev)
	return nil
}

func (e *Engine) emit(ctx context.Context, req Request, d Decision) {
	typ := models.AdEventServed
	if !d.Show {
		typ = models.AdEventSuppressed
	}
	ev := e.event(typ, req.Viewer, d)
	if ev.Position == "" {
		ev.Position = req.Position
	}
	e.record(ctx, ev)
}

func (e *Engine) event(typ models.AdEventType, viewer models.Viewer, d Decision) models.AdEvent {
	ev := models.AdEvent{
		Timestamp:  e.now(),
		Type:       typ,
		VisitorID:  viewer.VisitorID,
		AdType:     d.AdType,
		Reason:     string(d.Reason),
		DeviceType: viewer.DeviceType,
		Country:    viewer.Country,
	}
	if d.Zone != nil {
		ev.Position = d.Zone.Position
	}
	if d.Script != nil {
		ev.ScriptID = d.Script.ID
		ev.NetworkID = d.Script.NetworkID
	}
	return ev
}

func (e *Engine) record(ctx context.Context, ev models.AdEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.RecordAdEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.metrics.IncrementAnalyticsErrors()
		e.logger.Debug("ad event dropped", zap.String("event_type", string(ev.Type)), zap.Error(err))
		return
	}
	e.metrics.IncrementAdEvent(string(ev.Type))
}

// Preview runs the full pipeline as a dry run and always returns a trace of
// the stages it went through.
func (e *Engine) Preview(ctx context.Context, req Request) (Decision, *logic.SelectionTrace) {
	req.DryRun = true
	if req.Trace == nil {
		req.Trace = &logic.SelectionTrace{}
	}
	return e.Resolve(ctx, req), req.Trace
}
