package placement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/moovie-ads/internal/db"
	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/selectors"
	"github.com/patrickwarner/moovie-ads/internal/logic/zones"
	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []models.AdEvent
}

func (r *recordedEvents) RecordAdEvent(_ context.Context, ev models.AdEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) types() []models.AdEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AdEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store   *models.InMemoryAdConfigStore
	cache   *zones.Cache
	redis   *db.RedisStore
	freq    *logic.FrequencyStore
	events  *recordedEvents
	metrics *observability.MockMetricsRegistry
	engine  *Engine
	fetches atomic.Int32
}

func testZones() []models.AdZone {
	return []models.AdZone{
		{ID: "z1", Name: "Hero", Page: models.PageHome, Position: "homepage_hero", AdType: models.AdTypeBanner728x90, ScriptID: models.ScriptIDRotate, IsEnabled: true, Rotation: true, LazyLoad: true},
		{ID: "z2", Name: "Popup", Page: models.PageAll, Position: "global_popup", AdType: models.AdTypePopup, IsEnabled: true, Trigger: models.TriggerLoad},
		{ID: "z3", Name: "Timed", Page: models.PageWatch, Position: "watch_popup", AdType: models.AdTypePopup, IsEnabled: true, Trigger: models.TriggerTime, Delay: 5},
		{ID: "z4", Name: "Exit", Page: models.PageDownload, Position: "exit_popup", AdType: models.AdTypePopup, IsEnabled: true, Trigger: models.TriggerExitIntent},
		{ID: "z5", Name: "Bar", Page: models.PageAll, Position: "social_bar", AdType: models.AdTypeSocialBar, IsEnabled: true},
		{ID: "z6", Name: "Off", Page: models.PageBrowse, Position: "browse_top", AdType: models.AdTypeBanner728x90, IsEnabled: false},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	f := &fixture{
		store: models.NewTestAdConfigStore(
			[]models.AdNetwork{{ID: "n1", Name: "Adsterra", IsEnabled: true}},
			[]models.AdScript{
				{ID: "b1", NetworkID: "n1", AdType: models.AdTypeBanner728x90, Script: "<div>b1</div>", IsEnabled: true},
				{ID: "b2", NetworkID: "n1", AdType: models.AdTypeBanner728x90, Script: "<div>b2</div>", IsEnabled: true},
				{ID: "p1", NetworkID: "n1", AdType: models.AdTypePopup, Script: "<script>p1()</script>", IsEnabled: true},
				{ID: "s1", NetworkID: "n1", AdType: models.AdTypeSocialBar, Script: "<script>bar()</script>", IsEnabled: true},
			}),
		redis:   &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}), Ctx: context.Background()},
		events:  &recordedEvents{},
		metrics: observability.NewMockMetricsRegistry(),
	}
	logger := zaptest.NewLogger(t)
	f.cache = zones.NewCache(zones.SourceFunc(func(context.Context) ([]models.AdZone, error) {
		f.fetches.Add(1)
		return testZones(), nil
	}), f.metrics, logger)
	f.freq = logic.NewFrequencyStore(f.redis, 0, f.metrics, logger)
	f.engine = NewEngine(Config{
		Settings: f.store,
		Zones:    f.cache,
		Gate:     logic.NewGate(f.freq, nil),
		Scripts:  selectors.NewCatalog(f.store, f.store),
		Counter:  f.freq,
		Events:   f.events,
		Metrics:  f.metrics,
		Logger:   logger,
	})
	return f
}

func (f *fixture) setSettings(t *testing.T, s models.AdSettings) {
	t.Helper()
	require.NoError(t, f.store.SetSettings(s))
}

func (f *fixture) popupCount(t *testing.T, visitorID string) int {
	t.Helper()
	m, err := f.redis.LoadFrequencyMap(context.Background(), visitorID)
	require.NoError(t, err)
	return m[models.AdTypePopup].Count
}

func wait(t *testing.T, p *Placement) Decision {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := p.Wait(ctx)
	require.NoError(t, err, "placement never reached a terminal state (state %s)", p.State())
	return d
}

// countingResolver wraps a Resolver and counts pipeline runs.
type countingResolver struct {
	Resolver
	resolves atomic.Int32
}

func (c *countingResolver) Resolve(ctx context.Context, req Request) Decision {
	c.resolves.Add(1)
	return c.Resolver.Resolve(ctx, req)
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	stopped bool
}

func (ft *fakeTimer) after(d time.Duration, fn func()) Stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.delay = d
	ft.fn = fn
	return ft
}

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.stopped = true
	return true
}

func (ft *fakeTimer) fire() {
	ft.mu.Lock()
	fn := ft.fn
	ft.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (ft *fakeTimer) scheduled() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.fn != nil
}

func TestKinds(t *testing.T) {
	assert.True(t, KindBanner.Lazy())
	assert.True(t, KindNative.Lazy())
	assert.False(t, KindSocialBar.Lazy())
	assert.False(t, KindPopup.Lazy())
	assert.Equal(t, KindPopup, KindFor(models.AdTypePopup))
	assert.Equal(t, KindSocialBar, KindFor(models.AdTypeSocialBar))
	assert.Equal(t, KindNative, KindFor(models.AdTypeNative))
	assert.Equal(t, KindBanner, KindFor(models.AdTypeBanner300x250))
	assert.False(t, Kind("video").Valid())
}

func TestBanner_WaitsForVisibility(t *testing.T) {
	f := newFixture(t)
	r := &countingResolver{Resolver: f.engine}
	p := New(r, Request{Position: "homepage_hero", AdType: models.AdTypeBanner728x90, Viewer: models.Viewer{VisitorID: "v1"}})

	p.Mount(context.Background())
	p.Visible(0.05)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.State())
	assert.Zero(t, r.resolves.Load())

	p.Visible(0.1)
	d := wait(t, p)
	assert.Equal(t, StateDisplayed, p.State())
	require.NotNil(t, d.Script)
	assert.Contains(t, []string{"b1", "b2"}, d.Script.ID)
	assert.Contains(t, d.HTML(), d.Script.Script)

	p.Visible(1)
	p.Visible(1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), r.resolves.Load(), "visibility fires at most once")
}

func TestBanner_VisibilityBeforeMountIgnored(t *testing.T) {
	f := newFixture(t)
	r := &countingResolver{Resolver: f.engine}
	p := New(r, Request{Position: "homepage_hero"})
	p.Visible(1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.State())
	assert.Zero(t, r.resolves.Load())
}

func TestBanner_DisabledZoneSuppressed(t *testing.T) {
	f := newFixture(t)
	p := New(f.engine, Request{Kind: KindBanner, Position: "browse_top"})
	p.Mount(context.Background())
	p.Visible(1)
	d := wait(t, p)
	assert.Equal(t, StateSuppressed, p.State())
	assert.Equal(t, logic.ReasonNoZone, d.Reason)
	assert.Empty(t, d.HTML())
}

func TestSocialBar_EagerAndDismissible(t *testing.T) {
	f := newFixture(t)
	p := New(f.engine, Request{Position: "social_bar", AdType: models.AdTypeSocialBar})
	assert.False(t, p.Dismiss(), "nothing to dismiss before display")

	p.Mount(context.Background())
	d := wait(t, p)
	assert.Equal(t, StateDisplayed, p.State())
	assert.Contains(t, d.HTML(), "data-ad-dismiss")

	assert.True(t, p.Dismiss())
	assert.True(t, p.Hidden())
	assert.Equal(t, StateDisplayed, p.State(), "dismiss is local hidden state only")

	banner := New(f.engine, Request{Position: "homepage_hero"})
	banner.Mount(context.Background())
	banner.Visible(1)
	wait(t, banner)
	assert.False(t, banner.Dismiss())
}

func TestPopup_LoadTriggerCountsOnce(t *testing.T) {
	f := newFixture(t)
	f.setSettings(t, models.AdSettings{MasterEnabled: true, PopupFrequencyCap: 1})
	viewer := models.Viewer{VisitorID: "v1"}

	p := New(f.engine, Request{Position: "global_popup", Viewer: viewer})
	p.Mount(context.Background())
	d := wait(t, p)
	assert.True(t, d.Show)
	assert.Equal(t, models.TriggerLoad, d.Trigger)
	p.Trigger(models.TriggerLoad)
	p.Trigger(models.TriggerClick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.popupCount(t, "v1"))
	assert.NoError(t, p.DisplayError())

	second := New(f.engine, Request{Position: "global_popup", Viewer: viewer})
	second.Mount(context.Background())
	d = wait(t, second)
	assert.False(t, d.Show)
	assert.Equal(t, logic.ReasonFrequencyCap, d.Reason)
	assert.Equal(t, 1, f.popupCount(t, "v1"))

	other := New(f.engine, Request{Position: "global_popup", Viewer: models.Viewer{VisitorID: "v2"}})
	other.Mount(context.Background())
	assert.True(t, wait(t, other).Show)

	assert.Equal(t, []models.AdEventType{
		models.AdEventServed, models.AdEventDisplayed,
		models.AdEventSuppressed,
		models.AdEventServed, models.AdEventDisplayed,
	}, f.events.types())
}

func TestPopup_TimeTrigger(t *testing.T) {
	f := newFixture(t)
	ft := &fakeTimer{}
	p := New(f.engine, Request{Position: "watch_popup", Viewer: models.Viewer{VisitorID: "v1"}}, WithAfterFunc(ft.after))
	p.Mount(context.Background())

	require.Eventually(t, ft.scheduled, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5*time.Second, ft.delay)
	assert.Equal(t, StateIdle, p.State())

	ft.fire()
	d := wait(t, p)
	assert.True(t, d.Show)
	assert.Equal(t, 5*time.Second, d.Delay)
	assert.Contains(t, d.HTML(), `data-delay="5"`)
	assert.Equal(t, 1, f.popupCount(t, "v1"))
}

func TestPopup_UnmountCancelsTimer(t *testing.T) {
	f := newFixture(t)
	ft := &fakeTimer{}
	p := New(f.engine, Request{Position: "watch_popup", Viewer: models.Viewer{VisitorID: "v1"}}, WithAfterFunc(ft.after))
	p.Mount(context.Background())
	require.Eventually(t, ft.scheduled, time.Second, 5*time.Millisecond)

	p.Unmount()
	assert.True(t, ft.stopped)

	ft.fire()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.State())
	assert.Zero(t, f.popupCount(t, "v1"))
}

func TestPopup_ExitIntentOnlyFromTop(t *testing.T) {
	f := newFixture(t)
	r := &countingResolver{Resolver: f.engine}
	p := New(r, Request{Position: "exit_popup", Viewer: models.Viewer{VisitorID: "v1"}})
	p.Mount(context.Background())

	// The zone lookup arms the trigger asynchronously.
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.armed
	}, time.Second, 5*time.Millisecond)

	p.MouseLeave(120)
	p.Trigger(models.TriggerScroll)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.State())

	p.MouseLeave(0)
	p.MouseLeave(-3)
	assert.True(t, wait(t, p).Show)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), r.resolves.Load(), "listener detaches after the first exit intent")
	assert.Equal(t, 1, f.popupCount(t, "v1"))
}

func TestPopup_TriggerWithoutZone(t *testing.T) {
	f := newFixture(t)
	p := New(f.engine, Request{AdType: models.AdTypePopup, Viewer: models.Viewer{VisitorID: "v9"}}, WithTrigger(models.TriggerClick, 0))
	p.Mount(context.Background())
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.armed
	}, time.Second, 5*time.Millisecond)

	p.Trigger(models.TriggerClick)
	d := wait(t, p)
	assert.True(t, d.Show)
	assert.Equal(t, "p1", d.Script.ID)
}

func TestPopup_MissingZoneSuppressedBeforeTrigger(t *testing.T) {
	f := newFixture(t)
	p := New(f.engine, Request{Position: "nowhere", AdType: models.AdTypePopup})
	p.Mount(context.Background())
	d := wait(t, p)
	assert.Equal(t, logic.ReasonNoZone, d.Reason)
	assert.Equal(t, StateSuppressed, p.State())
}

// gatedSettings blocks FetchSettings until release is closed.
type gatedSettings struct {
	inner   SettingsSource
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSettings) FetchSettings(ctx context.Context) (models.AdSettings, error) {
	close(g.entered)
	<-g.release
	return g.inner.FetchSettings(ctx)
}

func TestUnmountWhileLoadingIgnoresLateResult(t *testing.T) {
	f := newFixture(t)
	gs := &gatedSettings{inner: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewEngine(Config{
		Settings: gs,
		Zones:    f.cache,
		Gate:     logic.NewGate(f.freq, nil),
		Scripts:  selectors.NewCatalog(f.store, f.store),
		Counter:  f.freq,
		Logger:   zaptest.NewLogger(t),
	})

	p := New(engine, Request{AdType: models.AdTypePopup, Viewer: models.Viewer{VisitorID: "v1"}})
	p.Mount(context.Background())
	<-gs.entered
	assert.Equal(t, StateLoading, p.State())

	p.Unmount()
	close(gs.release)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateLoading, p.State())
	select {
	case <-p.Done():
		t.Fatal("unmounted placement must not complete")
	default:
	}
	assert.Zero(t, f.popupCount(t, "v1"), "late result is not counted")
}

func TestMasterSwitchFlipAfterCachesWarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.engine.Resolve(ctx, Request{Kind: KindBanner, Position: "homepage_hero"})
	require.True(t, d.Show)
	require.True(t, f.cache.Loaded())

	f.setSettings(t, models.AdSettings{MasterEnabled: false, PopupFrequencyCap: 3})

	p := New(f.engine, Request{Position: "homepage_hero"})
	p.Mount(ctx)
	p.Visible(1)
	d = wait(t, p)
	assert.Equal(t, StateSuppressed, p.State())
	assert.Equal(t, logic.ReasonMasterDisabled, d.Reason)
	assert.Equal(t, int32(1), f.fetches.Load(), "zone list stays cached")
}

func TestEngine_StageOrder(t *testing.T) {
	f := newFixture(t)
	trace := &logic.SelectionTrace{}
	d := f.engine.Resolve(context.Background(), Request{Position: "homepage_hero", Trace: trace})
	require.True(t, d.Show)
	assert.Equal(t, []string{"settings", "zone", "eligibility", "scripts", "select"}, trace.Stages())
	assert.Equal(t, models.AdTypeBanner728x90, d.AdType, "ad type comes from the zone")
	assert.Equal(t, KindBanner, d.Kind)
}

func TestEngine_ShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trace := &logic.SelectionTrace{}
	d := f.engine.Resolve(ctx, Request{Position: "missing", Trace: trace})
	assert.Equal(t, logic.ReasonNoZone, d.Reason)
	assert.Equal(t, []string{"settings", "zone"}, trace.Stages())

	d = f.engine.Resolve(ctx, Request{Kind: KindNative, AdType: models.AdTypeNative})
	assert.False(t, d.Show)
	assert.Equal(t, logic.ReasonNoScripts, d.Reason)

	f.setSettings(t, models.AdSettings{MasterEnabled: true, TestMode: true})
	d = f.engine.Resolve(ctx, Request{AdType: models.AdTypeSocialBar})
	assert.Equal(t, logic.ReasonTestMode, d.Reason)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	d = f.engine.Resolve(cancelled, Request{AdType: models.AdTypeSocialBar})
	assert.Equal(t, logic.ReasonCancelled, d.Reason)

	assert.Equal(t, 1, f.metrics.Count("decision", string(models.AdTypeNative), "suppressed", string(logic.ReasonNoScripts)))
}

type failingSettings struct{}

func (failingSettings) FetchSettings(context.Context) (models.AdSettings, error) {
	return models.AdSettings{}, errors.New("db down")
}

type failingZones struct{}

func (failingZones) GetZoneConfig(context.Context, string) (*models.AdZone, error) {
	return nil, errors.New("timeout")
}

func TestEngine_InfraFailuresSuppress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := NewEngine(Config{Settings: failingSettings{}, Zones: f.cache, Scripts: selectors.NewCatalog(f.store, f.store)})
	assert.Equal(t, logic.ReasonSettingsError, e.Resolve(ctx, Request{AdType: models.AdTypeSocialBar}).Reason)

	e = NewEngine(Config{Settings: f.store, Zones: failingZones{}, Scripts: selectors.NewCatalog(f.store, f.store)})
	assert.Equal(t, logic.ReasonZoneError, e.Resolve(ctx, Request{Position: "homepage_hero"}).Reason)
}

func TestEngine_PreviewRecordsNothing(t *testing.T) {
	f := newFixture(t)
	d, trace := f.engine.Preview(context.Background(), Request{Position: "global_popup", Viewer: models.Viewer{VisitorID: "admin"}})
	assert.True(t, d.Show)
	assert.NotEmpty(t, trace.Steps)
	assert.Empty(t, f.events.types())

	p := New(f.engine, Request{Position: "global_popup", Viewer: models.Viewer{VisitorID: "admin"}, DryRun: true})
	p.Mount(context.Background())
	assert.True(t, wait(t, p).Show)
	assert.Zero(t, f.popupCount(t, "admin"))
	assert.Empty(t, f.events.types())
}

func TestEngine_RecordDisplayOnlyCountsPopups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := models.Viewer{VisitorID: "v1"}

	require.NoError(t, f.engine.RecordDisplay(ctx, viewer, Decision{Show: true, AdType: models.AdTypeSocialBar}))
	assert.Zero(t, f.popupCount(t, "v1"))

	require.NoError(t, f.engine.RecordDisplay(ctx, viewer, Decision{Show: true, AdType: models.AdTypePopup}))
	assert.Equal(t, 1, f.popupCount(t, "v1"))
	assert.Equal(t, 1, f.metrics.Count("display", string(models.AdTypePopup), "counted"))

	noCounter := NewEngine(Config{Settings: f.store, Zones: f.cache, Scripts: selectors.NewCatalog(f.store, f.store)})
	assert.ErrorIs(t, noCounter.RecordDisplay(ctx, viewer, Decision{AdType: models.AdTypePopup}), logic.ErrNilRedisStore)
}

// slowZones holds LookupZone until release is closed.
type slowZones struct {
	Resolver
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowZones(r Resolver) *slowZones {
	return &slowZones{Resolver: r, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *slowZones) LookupZone(ctx context.Context, position string) (*models.AdZone, logic.Reason) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Resolver.LookupZone(ctx, position)
}

func TestPopup_EventBeforeArmingIsReplayed(t *testing.T) {
	f := newFixture(t)
	slow := newSlowZones(f.engine)
	p := New(slow, Request{Kind: KindPopup, Position: "exit_popup", Viewer: models.Viewer{VisitorID: "v1"}})
	p.Mount(context.Background())
	<-slow.entered

	p.Trigger(models.TriggerScroll)
	p.MouseLeave(0)
	assert.Equal(t, StateIdle, p.State())

	close(slow.release)
	d := wait(t, p)
	assert.True(t, d.Show)
	assert.Equal(t, models.TriggerExitIntent, d.Trigger)
	assert.Equal(t, 1, f.popupCount(t, "v1"))
}

func TestPopup_UnrelatedEventBeforeArmingDoesNotFire(t *testing.T) {
	f := newFixture(t)
	slow := newSlowZones(f.engine)
	p := New(slow, Request{Kind: KindPopup, Position: "exit_popup", Viewer: models.Viewer{VisitorID: "v1"}})
	p.Mount(context.Background())
	<-slow.entered

	p.Trigger(models.TriggerClick)
	close(slow.release)
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.armed
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, p.State())

	p.MouseLeave(0)
	assert.True(t, wait(t, p).Show)
}

func TestPositionOnly_KindFromZone(t *testing.T) {
	f := newFixture(t)
	slow := newSlowZones(f.engine)
	p := New(slow, Request{Position: "homepage_hero", Viewer: models.Viewer{VisitorID: "v1"}})
	assert.Equal(t, Kind(""), p.Kind())
	p.Mount(context.Background())
	<-slow.entered

	p.Visible(0.5)
	close(slow.release)
	d := wait(t, p)
	assert.True(t, d.Show)
	assert.Equal(t, KindBanner, p.Kind())

	popup := New(f.engine, Request{Position: "global_popup", Viewer: models.Viewer{VisitorID: "v2"}})
	popup.Mount(context.Background())
	d = wait(t, popup)
	assert.Equal(t, KindPopup, popup.Kind())
	assert.Equal(t, KindPopup, d.Kind)
	assert.Equal(t, 1, f.popupCount(t, "v2"))
}

func TestEngine_KindMismatchSuppressed(t *testing.T) {
	f := newFixture(t)
	f.setSettings(t, models.AdSettings{MasterEnabled: true, PopupFrequencyCap: 1})
	ctx := context.Background()
	viewer := models.Viewer{VisitorID: "v1"}

	for i := 0; i < 3; i++ {
		trace := &logic.SelectionTrace{}
		d := f.engine.Resolve(ctx, Request{Kind: KindBanner, Position: "global_popup", Viewer: viewer, Trace: trace})
		assert.False(t, d.Show)
		assert.Equal(t, logic.ReasonKindMismatch, d.Reason)
		assert.Equal(t, []string{"settings", "zone", "kind"}, trace.Stages())
	}

	d := f.engine.Resolve(ctx, Request{Kind: KindPopup, AdType: models.AdTypeBanner728x90, Viewer: viewer})
	assert.False(t, d.Show)
	assert.Equal(t, logic.ReasonKindMismatch, d.Reason)
	assert.Empty(t, d.HTML())

	d = f.engine.Resolve(ctx, Request{Kind: KindBanner, AdType: models.AdTypeBanner300x250, Viewer: viewer})
	assert.NotEqual(t, logic.ReasonKindMismatch, d.Reason, "every banner size renders in a banner")

	p := New(f.engine, Request{Kind: KindPopup, Position: "homepage_hero", Viewer: viewer})
	p.Mount(context.Background())
	assert.Equal(t, logic.ReasonKindMismatch, wait(t, p).Reason)
	assert.Zero(t, f.popupCount(t, "v1"))
}
