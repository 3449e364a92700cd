package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wactl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wactl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	engineEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wactl",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Protocol engine events consumed by the session coordinator.",
		},
		[]string{"node", "kind"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wactl",
			Subsystem: "session",
			Name:      "registrations_total",
			Help:      "Session registration attempts by outcome.",
		},
		[]string{"node", "outcome"},
	)
	registrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wactl",
			Subsystem: "session",
			Name:      "registration_duration_seconds",
			Help:      "Time from registration request to first handshake or failure.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "outcome"},
	)
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wactl",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in the registry.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			engineEvents,
			registrations,
			registrationDuration,
			activeSessions,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEngineEvent(node, kind string) {
	RegisterMetrics()
	engineEvents.WithLabelValues(node, kind).Inc()
}

func RecordRegistration(node, outcome string, duration time.Duration) {
	RegisterMetrics()
	registrations.WithLabelValues(node, outcome).Inc()
	registrationDuration.WithLabelValues(node, outcome).Observe(duration.Seconds())
}

func SetActiveSessions(node string, count int) {
	RegisterMetrics()
	activeSessions.WithLabelValues(node).Set(float64(count))
}
