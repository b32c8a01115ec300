package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	realtimeConnectionsActive prometheus.Gauge
	realtimeConnectionsTotal  *prometheus.CounterVec
	realtimeEventsTotal       *prometheus.CounterVec
	realtimeDeliveriesTotal   *prometheus.CounterVec
	notificationsPublished    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		realtimeConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of authenticated realtime sessions currently open.",
		})

		realtimeConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Realtime connection attempts by outcome.",
		}, []string{"outcome"})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Inbound realtime events handled, by event and outcome.",
		}, []string{"event", "outcome"})

		realtimeDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Per-session deliveries attempted by the router, by outcome.",
		}, []string{"outcome"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications persisted, by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			realtimeConnectionsActive,
			realtimeConnectionsTotal,
			realtimeEventsTotal,
			realtimeDeliveriesTotal,
			notificationsPublished,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// RealtimeConnectionsActive tracks open authenticated sessions.
func RealtimeConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnectionsActive
}

// RealtimeConnections counts connection attempts labelled accepted or rejected.
func RealtimeConnections() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeConnectionsTotal
}

// RealtimeEvents counts inbound socket events.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// RealtimeDeliveries counts router deliveries labelled delivered or dropped.
func RealtimeDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDeliveriesTotal
}

// NotificationsPublishedTotal counts persisted notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}
