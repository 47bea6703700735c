package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lingmo_menu"

// Metrics holds the worker's prometheus collectors.
type Metrics struct {
	EventsApplied   *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	RequestsSent    *prometheus.CounterVec
	RequestsFailed  *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Records         prometheus.Gauge
	Favorites       prometheus.Gauge
	DatabaseHealthy prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "events_applied_total",
			Help:      "Backing database events that changed the cache.",
		}, []string{"type"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "entries_dropped_total",
			Help:      "Event entries skipped during translation, by reason.",
		}, []string{"reason"}),
		RequestsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "requests_sent_total",
			Help:      "Mutation requests forwarded to the backing database.",
		}, []string{"kind"}),
		RequestsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "requests_failed_total",
			Help:      "Mutation requests the backing database rejected.",
		}, []string{"kind"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "notifications_total",
			Help:      "Outward notifications published.",
		}, []string{"kind"}),
		Records: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "records",
			Help:      "Records in the cache.",
		}),
		Favorites: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "favorites",
			Help:      "Records in the favorites projection.",
		}),
		DatabaseHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "worker",
			Name:      "database_available",
			Help:      "1 while the backing database is reachable.",
		}),
	}
}

// drop reasons
const (
	dropDuplicate = "duplicate"
	dropFiltered  = "filtered"
	dropStale     = "stale"
	dropNoChange  = "no_change"
	dropFetch     = "fetch_failed"
	dropOffline   = "unavailable"
)
