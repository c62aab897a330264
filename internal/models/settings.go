package models

import "errors"

// DefaultPopupFrequencyCap is used until an admin saves settings.
const DefaultPopupFrequencyCap = 3

// AdSettings is the singleton switchboard for the whole ad engine.
type AdSettings struct {
	// MasterEnabled=false suppresses every ad type.
	MasterEnabled bool `json:"masterEnabled"`
	// TestMode=true suppresses ads for everyone except admins.
	TestMode          bool   `json:"testMode"`
	PopupFrequencyCap int    `json:"popupFrequencyCap"`
	HeaderScripts     string `json:"headerScripts"`
}

// DefaultAdSettings returns the settings used before any are persisted.
func DefaultAdSettings() AdSettings {
	return AdSettings{
		MasterEnabled:     true,
		PopupFrequencyCap: DefaultPopupFrequencyCap,
	}
}

// Validate checks admin supplied settings.
func (s AdSettings) Validate() error {
	if s.PopupFrequencyCap < 0 {
		return errors.New("popupFrequencyCap must not be negative")
	}
	return nil
}
