package router

import (
	"social_chat_service/internal/chat/app"
	"social_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes 注册聊天相关的路由
func RegisterRoutes(r *fiber.App, h *app.ChatHandler) {
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	conv := r.Group("/conversations", middlewares.JWTMiddleware())
	conv.Get("/", h.ListInbox)
	conv.Post("/", h.ResolveConversation)
	conv.Post("/:id/read", h.MarkRead)
	conv.Get("/:id/messages", h.ListMessages)
	conv.Post("/:id/messages", h.SendMessage)
}
