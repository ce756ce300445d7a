// Package metrics exposes the Prometheus counters and gauges this
// core reports through the admin HTTP interface (spec §6, ambient
// observability carried regardless of the distilled spec's Non-goals).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups every metric this resolver reports, trimmed from
// the teacher's infrastructure/metrics set down to what a single-node
// in-memory resolver can actually report (no DB pool, no BGP).
type Registry struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	CacheOperations *prometheus.CounterVec
	ActiveWorkers   prometheus.Gauge
	UpstreamQueries *prometheus.CounterVec
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermesdns_queries_total",
			Help: "Total DNS queries handled, by query type and response code.",
		}, []string{"qtype", "rcode"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hermesdns_query_duration_seconds",
			Help:    "Time to answer a query end to end.",
			Buckets: prometheus.DefBuckets,
		}, []string{"qtype"}),
		CacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermesdns_cache_operations_total",
			Help: "Cache lookups, partitioned by hit or miss.",
		}, []string{"result"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermesdns_active_workers",
			Help: "Number of UDP worker goroutines currently running.",
		}),
		UpstreamQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermesdns_upstream_queries_total",
			Help: "Outbound queries sent to root/delegated servers or a forwarder, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.QueriesTotal, m.QueryDuration, m.CacheOperations, m.ActiveWorkers, m.UpstreamQueries)
	return m
}
