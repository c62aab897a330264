package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the Prometheus
// globals directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Placement metrics
	IncrementAdDecision(adType, outcome, reason string)
	IncrementDisplays(adType, status string)

	// Zone cache metrics
	IncrementZoneCacheFetch(result string)
	IncrementZoneCacheInvalidations()

	// Frequency store metrics
	IncrementFrequencyStoreErrors(op string)

	// Config reload metrics
	IncrementConfigReloads(result string)

	// Analytics metrics
	IncrementAdEvent(eventType string)
	IncrementAnalyticsErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAdDecision(adType, outcome, reason string) {
	AdDecisionCount.WithLabelValues(adType, outcome, reason).Inc()
}

func (r *PrometheusRegistry) IncrementDisplays(adType, status string) {
	DisplayCount.WithLabelValues(adType, status).Inc()
}

func (r *PrometheusRegistry) IncrementZoneCacheFetch(result string) {
	ZoneCacheFetches.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementZoneCacheInvalidations() {
	ZoneCacheInvalidations.Inc()
}

func (r *PrometheusRegistry) IncrementFrequencyStoreErrors(op string) {
	FrequencyStoreErrors.WithLabelValues(op).Inc()
}

func (r *PrometheusRegistry) IncrementConfigReloads(result string) {
	ConfigReloads.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementAdEvent(eventType string) {
	AdEventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) IncrementAnalyticsErrors() {
	AnalyticsErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementAdDecision(adType, outcome, reason string)                   {}
func (r *NoOpRegistry) IncrementDisplays(adType, status string)                              {}
func (r *NoOpRegistry) IncrementZoneCacheFetch(result string)                                {}
func (r *NoOpRegistry) IncrementZoneCacheInvalidations()                                     {}
func (r *NoOpRegistry) IncrementFrequencyStoreErrors(op string)                              {}
func (r *NoOpRegistry) IncrementConfigReloads(result string)                                 {}
func (r *NoOpRegistry) IncrementAdEvent(eventType string)                                    {}
func (r *NoOpRegistry) IncrementAnalyticsErrors()                                            {}
