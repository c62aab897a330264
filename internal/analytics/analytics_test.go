package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

func TestUnconfiguredAnalytics(t *testing.T) {
	var a *Analytics
	ctx := context.Background()
	assert.ErrorIs(t, a.RecordAdEvent(ctx, models.AdEvent{}), ErrUnavailable)
	_, err := a.QueryEvents(ctx, EventFilter{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = (&Analytics{}).CountByReason(ctx, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
	a.Close()
}

func TestBuildEventQuery(t *testing.T) {
	q, args := buildEventQuery(EventFilter{})
	assert.True(t, strings.HasSuffix(q, "FROM ad_events ORDER BY timestamp DESC LIMIT 100"), q)
	assert.Empty(t, args)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args = buildEventQuery(EventFilter{VisitorID: "v1", EventType: models.AdEventSuppressed, AdType: models.AdTypePopup, Since: since, Limit: 5})
	assert.Contains(t, q, "WHERE visitor_id = ? AND event_type = ? AND ad_type = ? AND timestamp >= ?")
	assert.True(t, strings.HasSuffix(q, "LIMIT 5"))
	assert.Equal(t, []any{"v1", "suppressed", "popup", since}, args)
}

func TestMockAnalytics(t *testing.T) {
	m := NewMockAnalytics()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.RecordAdEvent(ctx, models.AdEvent{Timestamp: base, Type: models.AdEventServed, VisitorID: "v1", AdType: models.AdTypePopup}))
	require.NoError(t, m.RecordAdEvent(ctx, models.AdEvent{Timestamp: base.Add(time.Minute), Type: models.AdEventSuppressed, VisitorID: "v1", AdType: models.AdTypePopup, Reason: "frequency_cap"}))
	require.NoError(t, m.RecordAdEvent(ctx, models.AdEvent{Timestamp: base.Add(2 * time.Minute), Type: models.AdEventSuppressed, VisitorID: "v2", AdType: models.AdTypeBanner728x90, Reason: "test_mode"}))

	got, err := m.QueryEvents(ctx, EventFilter{VisitorID: "v1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.AdEventSuppressed, got[0].Type, "newest first")

	counts, err := m.CountByReason(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"frequency_cap": 1, "test_mode": 1}, counts)

	m.Err = errors.New("down")
	assert.Error(t, m.RecordAdEvent(ctx, models.AdEvent{}))
}
