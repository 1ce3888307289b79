package router

import (
	"github.com/labstack/echo/v4"

	"homeconnect/internal/adapter/api/handler"
	"homeconnect/internal/adapter/api/middleware"
)

// SetupChatRouter registers the REST chat endpoints. All of them require
// authentication.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chat")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.GET("/conversations", chatHandler.GetConversations) // GET /v1/chat/conversations
	chatGroup.GET("/:userId", chatHandler.GetChatHistory)         // GET /v1/chat/:userId
	chatGroup.POST("", chatHandler.SendMessage)                   // POST /v1/chat
	chatGroup.PUT("/:userId/read", chatHandler.MarkConversationRead)
}
