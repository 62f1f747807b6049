package router

import (
	"context"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/app"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the gateway, the messaging HTTP API and the
// operational endpoints
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, messageHandler *app.MessageHandler) {
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// handshake auth runs before the upgrade
	r.Use("/ws", middlewares.SocketAuth(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	messages := r.Group("/api/messages", middlewares.JWTMiddleware())
	messages.Get("/token", messageHandler.SocketToken)
	messages.Get("/conversations", messageHandler.Conversations)
	messages.Get("/:otherUserId", messageHandler.Messages)
	messages.Put("/:otherUserId/read", messageHandler.MarkConversationRead)
}
