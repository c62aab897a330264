package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickwarner/moovie-ads/internal/api"
	"github.com/patrickwarner/moovie-ads/internal/logic"
	"github.com/patrickwarner/moovie-ads/internal/logic/placement"
	"github.com/patrickwarner/moovie-ads/internal/models"
)

// reasonRequestFailed marks placements the simulator could not resolve
// because the engine was unreachable or answered unexpectedly.
const reasonRequestFailed logic.Reason = "request_failed"

// visitor is one simulated browser.
type visitor struct {
	ID        string
	UserAgent string
	IP        string
}

// remoteEngine implements placement.Resolver against a running ad engine so
// simulated pages drive the same placement lifecycle a browser would.
type remoteEngine struct {
	base        string
	client      *http.Client
	visitor     visitor
	displayRate float64
	rnd         interface{ Float64() float64 }
	onError     func(op string, err error)
	onDisplay   func(counted bool)
}

var _ placement.Resolver = (*remoteEngine)(nil)

func (e *remoteEngine) fail(op string, err error) {
	if e.onError != nil {
		e.onError(op, err)
	}
}

func (e *remoteEngine) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.base+target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", e.visitor.UserAgent)
	req.Header.Set("X-Forwarded-For", e.visitor.IP)
	req.AddCookie(&http.Cookie{Name: "moovie_vid", Value: e.visitor.ID})
	return req, nil
}

// do sends req and returns the body of a response with the wanted status.
func (e *remoteEngine) do(req *http.Request, want ...int) (int, []byte, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	for _, code := range want {
		if resp.StatusCode == code {
			return resp.StatusCode, body, nil
		}
	}
	return resp.StatusCode, body, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// LookupZone implements placement.Resolver via GET /ads/zone.
func (e *remoteEngine) LookupZone(ctx context.Context, position string) (*models.AdZone, logic.Reason) {
	req, err := e.newRequest(ctx, http.MethodGet, "/ads/zone?position="+url.QueryEscape(position), nil)
	if err != nil {
		e.fail("zone", err)
		return nil, reasonRequestFailed
	}
	status, body, err := e.do(req, http.StatusOK, http.StatusNotFound)
	if err != nil {
		if ctx.Err() != nil {
			return nil, logic.ReasonCancelled
		}
		e.fail("zone", err)
		return nil, logic.ReasonZoneError
	}
	if status == http.StatusNotFound {
		return nil, logic.ReasonNoZone
	}
	var zr api.ZoneResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		e.fail("zone", err)
		return nil, logic.ReasonZoneError
	}
	return &models.AdZone{
		Position:  zr.Position,
		AdType:    zr.AdType,
		IsEnabled: true,
		LazyLoad:  zr.LazyLoad,
		Trigger:   zr.Trigger,
		Delay:     zr.Delay,
	}, logic.ReasonNone
}

// Resolve implements placement.Resolver via POST /ads/serve.
func (e *remoteEngine) Resolve(ctx context.Context, req placement.Request) placement.Decision {
	d := placement.Decision{Kind: req.Kind, AdType: req.AdType, Zone: req.Zone}
	blob, err := json.Marshal(api.ServeRequest{Kind: string(req.Kind), AdType: string(req.AdType), Position: req.Position})
	if err != nil {
		e.fail("serve", err)
		d.Reason = reasonRequestFailed
		return d
	}
	hreq, err := e.newRequest(ctx, http.MethodPost, "/ads/serve", bytes.NewReader(blob))
	if err != nil {
		e.fail("serve", err)
		d.Reason = reasonRequestFailed
		return d
	}
	_, body, err := e.do(hreq, http.StatusOK)
	if err != nil {
		if ctx.Err() != nil {
			d.Reason = logic.ReasonCancelled
			return d
		}
		e.fail("serve", err)
		d.Reason = reasonRequestFailed
		return d
	}
	var out api.ServeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		e.fail("serve", err)
		d.Reason = reasonRequestFailed
		return d
	}

	d.Show = out.Show
	d.Reason = logic.Reason(out.Reason)
	if out.AdType != "" {
		d.AdType = out.AdType
	}
	if out.Show {
		d.Script = &models.AdScript{ID: out.ScriptID, AdType: d.AdType, Script: out.HTML}
		d.Trigger = out.Trigger
		d.Delay = time.Duration(out.Delay) * time.Second
		d.Token = out.DisplayToken
	}
	return d
}

// RecordDisplay implements placement.Resolver via POST /ads/display. A
// popup the simulated browser blocks, chosen with 1-displayRate, is never
// reported.
func (e *remoteEngine) RecordDisplay(ctx context.Context, _ models.Viewer, d placement.Decision) error {
	if d.Token == "" {
		return nil
	}
	if e.rnd != nil && e.rnd.Float64() >= e.displayRate {
		return nil
	}
	req, err := e.newRequest(ctx, http.MethodPost, "/ads/display?t="+url.QueryEscape(d.Token), nil)
	if err != nil {
		return err
	}
	_, body, err := e.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	var env struct {
		Success bool                `json:"success"`
		Data    api.DisplayResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if !env.Success {
		return errors.New("display not accepted")
	}
	if e.onDisplay != nil {
		e.onDisplay(env.Data.Counted)
	}
	return nil
}

// page mounts one placement the way a browser page would and reports its
// final decision. Lazy kinds are scrolled into view, popups receive every
// user gesture, and the placement is unmounted when the page is left.
// abandoned is true when the visitor left before the placement finished.
func page(ctx context.Context, res placement.Resolver, v visitor, t target, leaveEarly bool, opts ...placement.Option) (d placement.Decision, abandoned bool, err error) {
	p := placement.New(res, placement.Request{
		Kind:     placement.Kind(t.Kind),
		Position: t.Position,
		Viewer:   models.Viewer{VisitorID: v.ID},
	}, opts...)
	p.Mount(ctx)
	defer p.Unmount()

	if leaveEarly {
		return placement.Decision{}, true, nil
	}

	p.Visible(0.05)
	p.Visible(0.6)
	p.Trigger(models.TriggerScroll)
	p.Trigger(models.TriggerClick)
	p.MouseLeave(0)

	d, err = p.Wait(ctx)
	if err != nil {
		return placement.Decision{}, false, err
	}
	if derr := p.DisplayError(); derr != nil {
		return d, false, fmt.Errorf("record display: %w", derr)
	}
	if d.Show && p.Kind() == placement.KindSocialBar {
		p.Dismiss()
	}
	return d, false, nil
}
