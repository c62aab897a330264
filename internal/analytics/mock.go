package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics keeps events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []models.AdEvent
	// Err, when set, is returned from every call.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordAdEvent appends ev.
func (m *MockAnalytics) RecordAdEvent(ctx context.Context, ev models.AdEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}

// QueryEvents filters the recorded events the way the ClickHouse query does.
func (m *MockAnalytics) QueryEvents(ctx context.Context, f EventFilter) ([]models.AdEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.AdEvent
	for _, ev := range m.Events {
		if f.VisitorID != "" && ev.VisitorID != f.VisitorID {
			continue
		}
		if f.EventType != "" && ev.Type != f.EventType {
			continue
		}
		if f.AdType != "" && ev.AdType != f.AdType {
			continue
		}
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByReason aggregates recorded suppressed events.
func (m *MockAnalytics) CountByReason(ctx context.Context, since time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]int)
	for _, ev := range m.Events {
		if ev.Type == models.AdEventSuppressed && !ev.Timestamp.Before(since) {
			out[ev.Reason]++
		}
	}
	return out, nil
}
