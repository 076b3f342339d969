package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Artifact cache lookups, labeled by key kind and hit/miss.",
	},
	[]string{"kind", "result"},
)

func IncCacheRequest(kind, result string) {
	cacheRequestsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
