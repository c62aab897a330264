package logic

import "errors"

// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

// Reason explains why a placement ended suppressed. The empty Reason means
// the ad was shown.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonMasterDisabled Reason = "master_disabled"
	ReasonTestMode       Reason = "test_mode"
	ReasonFrequencyCap   Reason = "frequency_cap"
	ReasonNoZone         Reason = "no_zone"
	ReasonKindMismatch   Reason = "kind_mismatch"
	ReasonNoScripts      Reason = "no_scripts"
	ReasonSettingsError  Reason = "settings_error"
	ReasonZoneError      Reason = "zone_error"
	ReasonScriptsError   Reason = "scripts_error"
	ReasonCancelled      Reason = "cancelled"
)
