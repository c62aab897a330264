package models

import (
	"errors"
	"time"
)

// AdScript is an opaque markup/code payload supplied by an ad network.
// The payload is injected verbatim and never parsed by the engine.
type AdScript struct {
	ID        string    `json:"id"`
	NetworkID string    `json:"networkId"`
	AdType    AdType    `json:"adType"`
	Script    string    `json:"script"`
	IsEnabled bool      `json:"isEnabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields an admin must provide.
func (s AdScript) Validate() error {
	if s.NetworkID == "" {
		return errors.New("networkId is required")
	}
	if !s.AdType.Valid() {
		return ErrInvalidAdType
	}
	if s.Script == "" {
		return errors.New("script is required")
	}
	return nil
}
