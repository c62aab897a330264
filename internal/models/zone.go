package models

import (
	"errors"
	"strings"
	"time"
)

// ScriptIDRotate is the sentinel scriptId meaning "no pinned script".
const ScriptIDRotate = "none"

// AdZone configures one placement slot on the site. Position is the key
// placements use to look the zone up and is unique per page.
type AdZone struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Page     Page   `json:"page"`
	Position string `json:"position"`
	AdType   AdType `json:"adType"`
	// ScriptID pins a script when Rotation is false. Empty or "none" rotates.
	ScriptID  string `json:"scriptId,omitempty"`
	IsEnabled bool   `json:"isEnabled"`
	Rotation  bool   `json:"rotation"`
	LazyLoad  bool   `json:"lazyLoad"`
	// Trigger and Delay only apply to popup zones.
	Trigger Trigger `json:"trigger,omitempty"`
	Delay   int     `json:"delay"`
	// Frequency overrides the global popup cap when positive.
	Frequency int       `json:"frequency"`
	CreatedAt time.Time `json:"createdAt"`
}

// PinnedScriptID returns the script the zone is pinned to, or "" when the
// zone rotates among all eligible scripts.
func (z AdZone) PinnedScriptID() string {
	if z.Rotation || z.ScriptID == "" || z.ScriptID == ScriptIDRotate {
		return ""
	}
	return z.ScriptID
}

// EffectiveTrigger defaults an unset trigger to TriggerLoad.
func (z AdZone) EffectiveTrigger() Trigger {
	if z.Trigger == "" {
		return TriggerLoad
	}
	return z.Trigger
}

// Validate checks the fields an admin must provide.
func (z AdZone) Validate() error {
	if strings.TrimSpace(z.Name) == "" {
		return errors.New("zone name is required")
	}
	if strings.TrimSpace(z.Position) == "" {
		return errors.New("zone position is required")
	}
	if !z.Page.Valid() {
		return ErrInvalidPage
	}
	if !z.AdType.Valid() {
		return ErrInvalidAdType
	}
	if z.Trigger != "" && !z.Trigger.Valid() {
		return ErrInvalidTrigger
	}
	if z.Delay < 0 {
		return errors.New("delay must not be negative")
	}
	if z.Frequency < 0 {
		return errors.New("frequency must not be negative")
	}
	return nil
}
