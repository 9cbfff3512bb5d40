package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crewclock",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	queueUnsynced = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crewclock",
			Name:      "queue_unsynced_actions",
			Help:      "Attendance actions awaiting replay to the server.",
		},
	)

	syncActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crewclock",
			Name:      "sync_actions_total",
			Help:      "Replayed actions by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crewclock",
			Name:      "sync_passes_total",
			Help:      "Sync passes by trigger.",
		},
		[]string{"trigger"},
	)

	complianceAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crewclock",
			Name:      "compliance_alerts_computed_total",
			Help:      "Alerts produced by report computations, by type.",
		},
		[]string{"alert_type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, queueUnsynced, syncActions, syncPasses, complianceAlerts)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// SetQueueUnsynced records the current unsynced queue depth.
func SetQueueUnsynced(n int) {
	queueUnsynced.Set(float64(n))
}

// IncSyncAction counts one replayed action outcome ("success"/"failure").
func IncSyncAction(kind, outcome string) {
	syncActions.WithLabelValues(kind, outcome).Inc()
}

// IncSyncPass counts a sync pass by its trigger ("startup", "online", "timer", "manual").
func IncSyncPass(trigger string) {
	syncPasses.WithLabelValues(trigger).Inc()
}

// IncComplianceAlert counts one computed alert by type.
func IncComplianceAlert(alertType string) {
	complianceAlerts.WithLabelValues(alertType).Inc()
}
