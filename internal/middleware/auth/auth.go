package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Authenticator checks the X-API-Key header against a static key-to-role
// map. Admin routes additionally require the admin role.
type Authenticator struct {
	keys   map[string]string
	logger *zap.Logger
}

func New(keys map[string]string, logger *zap.Logger) *Authenticator {
	return &Authenticator{keys: keys, logger: logger}
}

// RequireRole rejects requests whose API key is missing, unknown, or
// mapped to a different role. An empty role accepts any valid key.
func (a *Authenticator) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key required",
			})
		}

		keyRole, ok := a.keys[key]
		if !ok {
			a.logger.Warn("Rejected unknown API key",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		if role != "" && keyRole != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		c.Locals("role", keyRole)
		return c.Next()
	}
}
