package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ScopeKey is the fiber.Ctx local holding the caller scope
const ScopeKey = "scope"

// ScopeMiddleware takes the caller token from the Authorization header and stores it as the
// request scope. Both "Bearer <token>" and a bare token are accepted.
func ScopeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":  "unauthorized",
				"detail": "Authorization header required",
			})
		}
		c.Locals(ScopeKey, token)
		return c.Next()
	}
}

// ExtractToken strips an optional Bearer prefix from an Authorization header value
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// Scope returns the caller scope set by ScopeMiddleware
func Scope(c *fiber.Ctx) string {
	scope, _ := c.Locals(ScopeKey).(string)
	return scope
}
