package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdType(t *testing.T) {
	for _, s := range []string{"banner_728x90", "banner_468x60", "banner_300x250", "banner_320x50", "native", "social_bar", "popup"} {
		got, err := ParseAdType(s)
		require.NoError(t, err, s)
		assert.Equal(t, AdType(s), got)
	}
	_, err := ParseAdType("interstitial")
	assert.True(t, errors.Is(err, ErrInvalidAdType))
}

func TestParsePage(t *testing.T) {
	_, err := ParsePage("live-tv")
	assert.NoError(t, err)
	_, err = ParsePage("live_tv")
	assert.True(t, errors.Is(err, ErrInvalidPage))
}

func TestZonePinnedScriptID(t *testing.T) {
	cases := []struct {
		name string
		zone AdZone
		want string
	}{
		{"pinned", AdZone{ScriptID: "S1"}, "S1"},
		{"rotation wins over pin", AdZone{ScriptID: "S1", Rotation: true}, ""},
		{"none sentinel", AdZone{ScriptID: ScriptIDRotate}, ""},
		{"empty", AdZone{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.zone.PinnedScriptID())
		})
	}
}

func TestZoneValidate(t *testing.T) {
	valid := AdZone{Name: "Hero", Page: PageHome, Position: "homepage_hero", AdType: AdTypeBanner728x90}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, TriggerLoad, valid.EffectiveTrigger())

	bad := valid
	bad.Page = "sidebar"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPage)

	bad = valid
	bad.Trigger = "hover"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTrigger)

	bad = valid
	bad.Position = " "
	assert.Error(t, bad.Validate())
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultAdSettings().Validate())
	assert.Error(t, AdSettings{PopupFrequencyCap: -1}.Validate())
}

func TestFrequencyRecordExpired(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	window := 24 * time.Hour

	assert.False(t, FrequencyRecord{Timestamp: now.Add(-window).UnixMilli()}.Expired(now, window), "exactly at the boundary is still live")
	assert.True(t, FrequencyRecord{Timestamp: now.Add(-window - time.Millisecond).UnixMilli()}.Expired(now, window))
}

func TestFrequencyMapJSONShape(t *testing.T) {
	m := FrequencyMap{AdTypePopup: {Count: 1, Timestamp: 42}}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"popup":{"count":1,"timestamp":42}}`, string(raw))
}
