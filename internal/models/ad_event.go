package models

import "time"

// AdEventType classifies an analytics event emitted by the placement engine.
type AdEventType string

const (
	// AdEventServed is emitted when a placement resolves to a script.
	AdEventServed AdEventType = "served"
	// AdEventSuppressed is emitted when a placement resolves to no ad.
	AdEventSuppressed AdEventType = "suppressed"
	// AdEventDisplayed is emitted when a popup display is recorded.
	AdEventDisplayed AdEventType = "displayed"
)

// AdEvent is one row of the ad analytics stream.
type AdEvent struct {
	Timestamp  time.Time   `json:"timestamp"`
	Type       AdEventType `json:"eventType"`
	VisitorID  string      `json:"visitorId"`
	AdType     AdType      `json:"adType"`
	Position   string      `json:"position,omitempty"`
	ScriptID   string      `json:"scriptId,omitempty"`
	NetworkID  string      `json:"networkId,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	DeviceType string      `json:"deviceType,omitempty"`
	Country    string      `json:"country,omitempty"`
}
