package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "progress_notifications_total",
		Help: "Progress event deliveries, labeled by outcome.",
	},
	[]string{"outcome"}, // 'delivered', 'dropped'
)

func IncNotification(outcome string) {
	notificationsTotal.WithLabelValues(norm(outcome)).Inc()
}
