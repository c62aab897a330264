package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moovie_ads_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// placement decisions labelled by ad type, outcome and suppression reason
	AdDecisionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_decisions_total",
			Help: "Total placement decisions",
		},
		[]string{"ad_type", "outcome", "reason"},
	)

	// popup displays recorded against the frequency store
	DisplayCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_displays_total",
			Help: "Total display receipts processed",
		},
		[]string{"ad_type", "status"},
	)

	// zone list fetches performed by the zone cache
	ZoneCacheFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_zone_cache_fetches_total",
			Help: "Total zone list fetches",
		},
		[]string{"result"},
	)

	ZoneCacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moovie_ads_zone_cache_invalidations_total",
			Help: "Total zone cache invalidations",
		},
	)

	// frequency store failures; checks fail open when these occur
	FrequencyStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_frequency_store_errors_total",
			Help: "Total frequency store errors",
		},
		[]string{"op"},
	)

	// configuration reloads from Postgres
	ConfigReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_config_reloads_total",
			Help: "Total configuration reloads",
		},
		[]string{"result"},
	)

	// ad events written to analytics, labelled by type
	AdEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moovie_ads_events_total",
			Help: "Total ad events recorded",
		},
		[]string{"type"},
	)

	AnalyticsErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moovie_ads_analytics_errors_total",
			Help: "Total analytics write errors",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		AdDecisionCount,
		DisplayCount,
		ZoneCacheFetches,
		ZoneCacheInvalidations,
		FrequencyStoreErrors,
		ConfigReloads,
		AdEventCount,
		AnalyticsErrors,
	)
}
