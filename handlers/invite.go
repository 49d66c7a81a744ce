package handlers

import (
	"naval-session-engine/middleware"
	"naval-session-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupInviteRoutes(app *fiber.App, invites *services.InviteService) {
	// 🔓 Invite lookup needs no user context — codes are capability tokens
	app.Get("/invites/:code", invites.GetInvite)

	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/invites", invites.CreateInvite)
	secured.Post("/invites/accept", invites.AcceptInvite)

	// Staked invites share the lifecycle but freeze pool/fee/payout
	secured.Post("/betting/invites", invites.CreateBettingInvite)
	secured.Post("/betting/invites/accept", invites.AcceptBettingInvite)
}
