package api

import (
	"github.com/gofiber/fiber/v2"
)

// NewApp builds the HTTP application. Every /api/v1 route requires a bearer
// token signed with secret.
func NewApp(svc ChatService, secret []byte, bodyLimit int) *fiber.App {
	cfg := fiber.Config{
		ErrorHandler: ErrorHandler,
	}
	if bodyLimit > 0 {
		cfg.BodyLimit = bodyLimit
	}
	var (
		app     = fiber.New(cfg)
		handler = NewRequestHandler(svc)
		apiv1   = app.Group("/api/v1", RequireOwner(secret))
	)

	app.Get("/healthz", handler.HandleHealthy)

	apiv1.Post("/files", handler.HandleUpload)
	apiv1.Get("/files", handler.HandleListFiles)
	apiv1.Delete("/files/:id", handler.HandleDeleteFile)

	apiv1.Post("/chats/ask", handler.HandleAsk)
	apiv1.Get("/chats", handler.HandleListChats)
	apiv1.Get("/chats/latest", handler.HandleLatestChat)
	apiv1.Get("/chats/:id/messages", handler.HandleChatMessages)
	apiv1.Delete("/chats/:id", handler.HandleDeleteChat)

	return app
}
