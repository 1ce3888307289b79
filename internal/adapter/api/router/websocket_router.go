package router

import (
	"github.com/labstack/echo/v4"

	"homeconnect/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the live-channel endpoint. Auth happens
// inside the handler, against the token query parameter, because
// browsers cannot set headers on WebSocket upgrades.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
