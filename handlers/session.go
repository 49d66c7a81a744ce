package handlers

import (
	"naval-session-engine/middleware"
	"naval-session-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(app *fiber.App, sessionService *services.SessionService, settlement *services.SettlementService, events *services.EventHub) {
	// 🔓 Gateway-authenticated, no user context needed
	app.Get("/sessions/:id", sessionService.GetSession)
	app.Get("/sessions/:id/score", settlement.GetScoreRecordEndpoint)
	app.Get("/standings/:address", settlement.GetStandingEndpoint)

	// SSE stream authenticates via query params (EventSource cannot set headers)
	app.Get("/sessions/:id/events/stream", middleware.SSEAuthMiddleware(), events.StreamSessionEvents)

	// 🔐 Secured routes — require user context (player address), enforced via middleware
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/sessions/:id/contract", sessionService.RegisterGameContract)
	secured.Post("/sessions/:id/board", sessionService.SubmitBoard)
	secured.Post("/sessions/:id/shots", sessionService.FireShot)
	secured.Post("/sessions/:id/forfeit", sessionService.Forfeit)
	secured.Post("/sessions/:id/rematch/request", sessionService.RequestRematch)
	secured.Post("/sessions/:id/rematch/accept", sessionService.AcceptRematch)
}
