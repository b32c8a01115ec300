package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-social-api/internal/config"
	"github.com/noah-isme/gema-social-api/internal/service"
	"github.com/noah-isme/gema-social-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Service     string                 `json:"service"`
	Environment string                 `json:"environment"`
	Presence    *service.PresenceStats `json:"presence,omitempty"`
}

// HealthCheck returns a handler that reports application health and presence totals.
func HealthCheck(cfg config.Config, presence *service.PresenceRegistry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}
		if presence != nil {
			stats := presence.Stats()
			payload.Presence = &stats
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
