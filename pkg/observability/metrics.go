package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors the weather core reports into.
// A single instance is created by the composition root and shared.
type Metrics struct {
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	ProviderQueryCost prometheus.Counter
	ProviderLatency   prometheus.Histogram
	ArchiveHits       prometheus.Counter
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meteo_cache_hits_total",
			Help: "Cache-aside hits by source.",
		}, []string{"source"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meteo_cache_misses_total",
			Help: "Cache-aside misses by source.",
		}, []string{"source"}),
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meteo_provider_requests_total",
			Help: "Outbound weather provider requests by outcome.",
		}, []string{"outcome"}),
		ProviderQueryCost: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteo_provider_query_cost_total",
			Help: "Cumulative query cost reported by the metered provider.",
		}),
		ProviderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meteo_provider_request_duration_seconds",
			Help:    "Latency of outbound provider requests.",
			Buckets: prometheus.DefBuckets,
		}),
		ArchiveHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteo_archive_hits_total",
			Help: "Historical requests served from the observation archive at zero provider cost.",
		}),
	}
}
