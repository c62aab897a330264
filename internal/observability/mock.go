package observability

import (
	"strings"
	"sync"
	"time"
)

// MockMetricsRegistry records metric calls so tests can assert on them.
// Keys are the metric name followed by its labels joined with ":".
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

func (m *MockMetricsRegistry) inc(parts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[strings.Join(parts, ":")]++
}

// Count returns how often the metric with the given name and labels was recorded.
func (m *MockMetricsRegistry) Count(parts ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[strings.Join(parts, ":")]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests", endpoint, method, status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementAdDecision(adType, outcome, reason string) {
	m.inc("decision", adType, outcome, reason)
}
func (m *MockMetricsRegistry) IncrementDisplays(adType, status string) {
	m.inc("display", adType, status)
}
func (m *MockMetricsRegistry) IncrementZoneCacheFetch(result string) {
	m.inc("zone_fetch", result)
}
func (m *MockMetricsRegistry) IncrementZoneCacheInvalidations() { m.inc("zone_invalidate") }
func (m *MockMetricsRegistry) IncrementFrequencyStoreErrors(op string) {
	m.inc("frequency_error", op)
}
func (m *MockMetricsRegistry) IncrementConfigReloads(result string) { m.inc("reload", result) }
func (m *MockMetricsRegistry) IncrementAdEvent(eventType string)    { m.inc("event", eventType) }
func (m *MockMetricsRegistry) IncrementAnalyticsErrors()            { m.inc("analytics_error") }
