package placement

import (
	"context"
	"sync"
	"time"

	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// Kind is the placement component type.
type Kind string

const (
	KindBanner    Kind = "banner"
	KindNative    Kind = "native"
	KindSocialBar Kind = "social_bar"
	KindPopup     Kind = "popup"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBanner, KindNative, KindSocialBar, KindPopup:
		return true
	}
	return false
}

// Lazy reports whether the kind waits for viewport visibility before
// loading.
func (k Kind) Lazy() bool {
	return k == KindBanner || k == KindNative
}

// KindFor maps an ad type to the component that renders it.
func KindFor(t models.AdType) Kind {
	switch t {
	case models.AdTypePopup:
		return KindPopup
	case models.AdTypeSocialBar:
		return KindSocialBar
	case models.AdTypeNative:
		return KindNative
	}
	return KindBanner
}

// Renders reports whether a component of kind k displays ad type t.
func (k Kind) Renders(t models.AdType) bool {
	return KindFor(t) == k
}

// VisibilityThreshold is the intersection ratio that starts a lazy
// placement.
const VisibilityThreshold = 0.1

// State is a placement lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateDisplayed  State = "displayed"
	StateSuppressed State = "suppressed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDisplayed || s == StateSuppressed
}

// Resolver is the part of Engine a placement drives.
type Resolver interface {
	Resolve(ctx context.Context, req Request) Decision
	LookupZone(ctx context.Context, position string) (*models.AdZone, logic.Reason)
	RecordDisplay(ctx context.Context, viewer models.Viewer, d Decision) error
}

// Stopper cancels a pending timer.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// DefaultAfterFunc.
type AfterFunc func(d time.Duration, f func()) Stopper

// DefaultAfterFunc wraps time.AfterFunc.
func DefaultAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Option configures a Placement.
type Option func(*Placement)

// WithAfterFunc replaces the timer used for time triggered popups.
func WithAfterFunc(fn AfterFunc) Option {
	return func(p *Placement) { p.afterFunc = fn }
}

// WithTrigger sets the popup trigger and delay used when the placement has
// no zone to take them from.
func WithTrigger(t models.Trigger, delay time.Duration) Option {
	return func(p *Placement) {
		p.trigger = t
		p.delay = delay
	}
}

// Placement is one mounted ad component. It is safe for concurrent use: DOM
// style events may arrive from any goroutine.
type Placement struct {
	resolver  Resolver
	req       Request
	afterFunc AfterFunc

	mu         sync.Mutex
	state      State
	decision   Decision
	ctx        context.Context
	cancel     context.CancelFunc
	mounted    bool
	unmounted  bool
	ready      bool
	started    bool
	armed      bool
	visible    bool
	pending    map[models.Trigger]bool
	trigger    models.Trigger
	delay      time.Duration
	timer      Stopper
	counted    bool
	hidden     bool
	displayErr error
	done       chan struct{}
}

// New creates an idle placement for req. When req.Kind is empty it comes
// from req.AdType, or from the zone at req.Position once mounted.
func New(resolver Resolver, req Request, opts ...Option) *Placement {
	if req.Kind == "" && req.AdType != "" {
		req.Kind = KindFor(req.AdType)
	}
	p := &Placement{
		resolver:  resolver,
		req:       req,
		afterFunc: DefaultAfterFunc,
		state:     StateIdle,
		trigger:   models.TriggerLoad,
		pending:   map[models.Trigger]bool{},
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Kind returns the placement kind. It is empty until a placement created
// with only a position has resolved its zone.
func (p *Placement) Kind() Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req.Kind
}

// Mount attaches the placement. Eager kinds start loading at once, lazy kinds
// wait for Visible and popups wait for their trigger. Work started by the
// placement is bound to ctx and to Unmount.
func (p *Placement) Mount(ctx context.Context) {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	if p.req.Kind == "" && p.req.Position == "" {
		p.req.Kind = KindBanner
	}
	kind := p.req.Kind
	p.ready = kind != "" && kind != KindPopup
	p.mu.Unlock()

	switch {
	case kind == "" || kind == KindPopup:
		go p.prepare()
	case !kind.Lazy():
		go p.start()
	}
}

// Visible reports the current viewport intersection ratio. The first report
// at or above VisibilityThreshold starts a lazy placement; later reports are
// ignored. A report that arrives while the zone is still being resolved is
// held until the kind is known.
func (p *Placement) Visible(ratio float64) {
	if ratio < VisibilityThreshold {
		return
	}
	p.mu.Lock()
	if !p.mounted || p.unmounted {
		p.mu.Unlock()
		return
	}
	if !p.ready {
		p.visible = true
		p.mu.Unlock()
		return
	}
	lazy := p.req.Kind.Lazy()
	p.mu.Unlock()
	if lazy {
		go p.start()
	}
}

// prepare resolves the zone to learn the kind and, for popups, the trigger,
// then replays any events that arrived in the meantime.
func (p *Placement) prepare() {
	p.mu.Lock()
	ctx := p.ctx
	zone := p.req.Zone
	position := p.req.Position
	p.mu.Unlock()

	if zone == nil && position != "" {
		z, reason := p.resolver.LookupZone(ctx, position)
		if reason != logic.ReasonNone {
			p.finish(Decision{Kind: p.Kind(), AdType: p.req.AdType, Reason: reason})
			return
		}
		zone = z
	}

	p.mu.Lock()
	if p.unmounted {
		p.mu.Unlock()
		return
	}
	if zone != nil {
		p.req.Zone = zone
		if p.req.Kind == "" {
			p.req.Kind = KindFor(zone.AdType)
		}
	}
	kind := p.req.Kind
	p.ready = true

	var fire bool
	switch {
	case kind == KindPopup:
		if zone != nil {
			p.trigger = zone.EffectiveTrigger()
			p.delay = time.Duration(zone.Delay) * time.Second
		}
		p.armed = true
		switch p.trigger {
		case models.TriggerLoad:
			fire = true
		case models.TriggerTime:
			p.timer = p.afterFunc(p.delay, p.start)
		default:
			fire = p.pending[p.trigger]
		}
	case kind.Lazy():
		fire = p.visible
	default:
		fire = true
	}
	p.pending = nil
	p.mu.Unlock()

	if fire {
		p.start()
	}
}

// Trigger delivers a page event to a popup. Only the first event matching
// the armed trigger fires; the rest are ignored. Events that arrive before
// the trigger is known are remembered and replayed once it is.
func (p *Placement) Trigger(ev models.Trigger) {
	if ev == models.TriggerLoad || ev == models.TriggerTime {
		return
	}
	p.mu.Lock()
	if !p.mounted || p.unmounted || p.started {
		p.mu.Unlock()
		return
	}
	if !p.ready {
		p.pending[ev] = true
		p.mu.Unlock()
		return
	}
	fire := p.armed && ev == p.trigger
	p.mu.Unlock()
	if fire {
		go p.start()
	}
}

// MouseLeave reports the cursor leaving the viewport at clientY. Leaving
// through the top edge is an exit intent.
func (p *Placement) MouseLeave(clientY int) {
	if clientY <= 0 {
		p.Trigger(models.TriggerExitIntent)
	}
}

// start moves an idle placement to loading and runs the pipeline. Only the
// first call does anything.
func (p *Placement) start() {
	p.mu.Lock()
	if !p.mounted || p.unmounted || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.state = StateLoading
	ctx := p.ctx
	req := p.req
	p.mu.Unlock()

	d := p.resolver.Resolve(ctx, req)
	if d.Show && d.Kind == KindPopup && !req.DryRun {
		if !p.claimCount() {
			return
		}
		if err := p.resolver.RecordDisplay(ctx, req.Viewer, d); err != nil {
			p.mu.Lock()
			p.displayErr = err
			p.mu.Unlock()
		}
	}
	p.finish(d)
}

// claimCount marks the display as counted. It fails after Unmount so a late
// result does not count.
func (p *Placement) claimCount() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unmounted || p.counted {
		return false
	}
	p.counted = true
	return true
}

func (p *Placement) finish(d Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unmounted || p.state.Terminal() {
		return
	}
	p.decision = d
	if d.Show {
		p.state = StateDisplayed
	} else {
		p.state = StateSuppressed
	}
	close(p.done)
}

// Unmount detaches the placement. In-flight work is cancelled, pending
// timers are stopped and results arriving afterwards are discarded.
func (p *Placement) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unmounted {
		return
	}
	p.unmounted = true
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Dismiss hides a displayed social bar. It changes local state only and
// reports whether the bar was hidden.
func (p *Placement) Dismiss() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.req.Kind != KindSocialBar || p.state != StateDisplayed {
		return false
	}
	p.hidden = true
	return true
}

// Hidden reports whether the placement was dismissed.
func (p *Placement) Hidden() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hidden
}

// State returns the current state.
func (p *Placement) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Decision returns the final decision once the placement is terminal.
func (p *Placement) Decision() (Decision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decision, p.state.Terminal()
}

// DisplayError returns the error from counting a popup display, if any.
func (p *Placement) DisplayError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayErr
}

// Done is closed when the placement reaches a terminal state. It is never
// closed for a placement unmounted before that.
func (p *Placement) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the placement is terminal or ctx ends.
func (p *Placement) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-p.done:
		d, _ := p.Decision()
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}
