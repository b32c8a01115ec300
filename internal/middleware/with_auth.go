package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-social-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleService = "service"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with authentication/authorization guards.
// Service callers are identified by role and need not carry a user id.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser

	return func(c *fiber.Ctx) error {
		hasUser := userIDLocal(c) != 0

		if role == AuthRoleAny {
			if requireUser && !hasUser {
				return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
			}
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		if currentRole == "" && !hasUser {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if currentRole != role {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		if requireUser && !hasUser {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		return handler(c)
	}
}

func userIDLocal(c *fiber.Ctx) uint {
	switch v := c.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
