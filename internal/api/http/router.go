package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-conversation/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health       *handlers.HealthHandler
	Conversation *handlers.ConversationHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/tickets/:id/view", cfg.Conversation.OpenView)

	view := app.Group("/view/:session")
	view.Get("", cfg.Conversation.GetSnapshot)
	view.Delete("", cfg.Conversation.ReleaseView)
	view.Post("/messages", cfg.Conversation.SendMessage)
	view.Post("/uploads", cfg.Conversation.UploadsComplete)
	view.Post("/close", cfg.Conversation.CloseTicket)
	view.Post("/reopen", cfg.Conversation.ReopenTicket)
	view.Post("/feedback", cfg.Conversation.SubmitFeedback)
	view.Get("/files/:fileID/url", cfg.Conversation.FileURL)
}
