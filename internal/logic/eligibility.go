package logic

import (
	"context"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

// AdminDetector reports whether the viewer behind ctx holds an admin session.
type AdminDetector interface {
	IsAdmin(ctx context.Context) bool
}

// AdminDetectorFunc adapts a function to AdminDetector.
type AdminDetectorFunc func(ctx context.Context) bool

// IsAdmin calls f(ctx).
func (f AdminDetectorFunc) IsAdmin(ctx context.Context) bool { return f(ctx) }

// FrequencyChecker is the part of FrequencyStore the gate depends on.
type FrequencyChecker interface {
	CheckFrequencyCap(ctx context.Context, visitorID string, adType models.AdType, maxPerDay int) bool
}

// Eligibility is the input to one show/no-show decision. Nil pointers mean
// the caller has no value for that setting.
type Eligibility struct {
	VisitorID     string
	AdType        models.AdType
	Frequency     *int
	TestMode      *bool
	MasterEnabled *bool
}

// Gate composes the master switch, test mode and the popup frequency cap.
type Gate struct {
	freq  FrequencyChecker
	admin AdminDetector
}

// NewGate creates a Gate. A nil admin detector treats every viewer as a
// regular visitor; a nil frequency checker disables capping.
func NewGate(freq FrequencyChecker, admin AdminDetector) *Gate {
	if admin == nil {
		admin = AdminDetectorFunc(func(context.Context) bool { return false })
	}
	return &Gate{freq: freq, admin: admin}
}

// Evaluate decides whether an ad may be shown and, if not, why. The master
// switch is checked first, then test mode, then the popup frequency cap.
// Only popups are frequency capped.
func (g *Gate) Evaluate(ctx context.Context, e Eligibility) (bool, Reason) {
	if e.MasterEnabled != nil && !*e.MasterEnabled {
		return false, ReasonMasterDisabled
	}
	if e.TestMode != nil && *e.TestMode && !g.admin.IsAdmin(ctx) {
		return false, ReasonTestMode
	}
	if e.AdType == models.AdTypePopup && e.Frequency != nil && g.freq != nil {
		if !g.freq.CheckFrequencyCap(ctx, e.VisitorID, e.AdType, *e.Frequency) {
			return false, ReasonFrequencyCap
		}
	}
	return true, ReasonNone
}

// ShouldShowAd reports whether an ad may be shown.
func (g *Gate) ShouldShowAd(ctx context.Context, e Eligibility) bool {
	ok, _ := g.Evaluate(ctx, e)
	return ok
}

// IsAdmin exposes the gate's admin detector to callers that need the same
// answer, such as header script delivery.
func (g *Gate) IsAdmin(ctx context.Context) bool {
	return g.admin.IsAdmin(ctx)
}
