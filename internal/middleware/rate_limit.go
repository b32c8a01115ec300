package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-social-api/internal/utils"
)

// RateLimit creates a per-caller rate limiter keyed by user id, falling back to the client IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := c.IP()
			if userID := userIDLocal(c); userID != 0 {
				caller = fmt.Sprintf("user:%d", userID)
			} else if role := normalizeRoleValue(c.Locals("user_role")); role != "" {
				caller = role + ":" + caller
			}
			return fmt.Sprintf("%s:%s", identifier, caller)
		},
	})
}
