package handlers

import (
	"naval-session-engine/middleware"
	"naval-session-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchPoolRoutes(app *fiber.App, pool *services.MatchPoolService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/matchpool/join", pool.JoinMatchPool)
	secured.Post("/matchpool/leave", pool.LeaveMatchPool)
	secured.Get("/matchpool/status", pool.MatchPoolStatus)
}
