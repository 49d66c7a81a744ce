package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware authenticates the event-stream endpoint. Browsers
// cannot set headers on EventSource, so the gateway token and player
// address arrive as query params instead.
//
// Usage:
//
//	app.Get("/sessions/:id/events/stream", middleware.SSEAuthMiddleware(), eventHub.StreamSessionEvents)
func SSEAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("SESSION_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ SESSION_SERVICE_TOKEN is not set — service cannot authenticate Gateway")
	}

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		userID := strings.TrimSpace(c.Query("user_id"))

		if token == "" || userID == "" {
			log.Printf("[SSEAuth] ❌ Missing query params on %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token or user_id in query",
			})
		}
		if token != expectedToken {
			log.Printf("[SSEAuth] ❌ Invalid token for %s (prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}
