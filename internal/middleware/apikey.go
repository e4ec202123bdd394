package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKeyMiddleware protects automation endpoints (the n8n abandoned-cart
// poller) with a shared X-API-Key header.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "api key not configured")
		}

		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing api key")
		}

		return c.Next()
	}
}
