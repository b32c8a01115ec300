package observability

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PresenceSnapshot reports live presence totals at scrape time.
type PresenceSnapshot func() (users, sessions int)

// PresenceCollectors builds gauges that read snapshot on every scrape.
func PresenceCollectors(snapshot PresenceSnapshot) []prometheus.Collector {
	if snapshot == nil {
		return nil
	}

	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Users with at least one authenticated realtime session.",
		}, func() float64 {
			users, _ := snapshot()
			return float64(users)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "presence_sessions",
			Help: "Authenticated realtime sessions across all users.",
		}, func() float64 {
			_, sessions := snapshot()
			return float64(sessions)
		}),
	}
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber. Extra collectors are
// registered on the default registry; one that is already registered keeps its first source.
func MetricsHandler(extra ...prometheus.Collector) fiber.Handler {
	RegisterMetrics()

	for _, collector := range extra {
		if err := prometheus.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return adaptor.HTTPHandler(promhttp.Handler())
}
