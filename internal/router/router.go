package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/gema-social-api/internal/config"
	"github.com/noah-isme/gema-social-api/internal/handler"
	"github.com/noah-isme/gema-social-api/internal/observability"
	"github.com/noah-isme/gema-social-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	ConversationHandler *handler.ConversationHandler
	NotificationHandler *handler.NotificationHandler
	Presence            *service.PresenceRegistry
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	var collectors []prometheus.Collector
	if deps.Presence != nil {
		collectors = observability.PresenceCollectors(func() (int, int) {
			stats := deps.Presence.Stats()
			return stats.Users, stats.Sessions
		})
	}
	app.Get("/metrics", observability.MetricsHandler(collectors...))

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Presence))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// The socket authenticates itself before upgrading.
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterRealtime(app.Group("/api/v2/realtime"))
		deps.ChatHandler.RegisterPresence(app.Group("/api/v2/presence", jwtMiddleware))
	}

	if deps.ConversationHandler != nil {
		deps.ConversationHandler.Register(app.Group("/api/v2/conversations", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(app.Group("/api/v2/notifications", jwtMiddleware))
	}
}
