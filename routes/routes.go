package routes

import (
	"github.com/gofiber/fiber/v2"

	"syncledger-backend/controllers"
	"syncledger-backend/middlewares"
)

// Register wires all HTTP routes.
func Register(app *fiber.App, approvals *controllers.ApprovalController) {
	api := app.Group("/api")

	// Public auth endpoint
	api.Post("/login", controllers.Login)

	// Reads are public
	api.Get("/approvals", approvals.SearchApprovals)
	api.Get("/approvals/_count", approvals.CountApprovals)
	api.Get("/approvals/:approvalId", approvals.GetApproval)

	// Mutations require a bearer token (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard absorbs client retries before the ledger is hit
	protected.Use(middlewares.Idempotency())

	protected.Post("/approvals", approvals.CreateApproval)
	protected.Post("/approvals/:approvalId/deactivate", approvals.DeactivateApproval)
}
