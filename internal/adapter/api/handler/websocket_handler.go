package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"homeconnect/internal/adapter/api/middleware"
	ws "homeconnect/internal/infrastructure/websocket"
	"homeconnect/pkg/errors"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
	wsRouter  *ws.Router
	verifier  middleware.TokenVerifier
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the frontend origin before exposing publicly
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, wsRouter *ws.Router, verifier middleware.TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		wsRouter:  wsRouter,
		verifier:  verifier,
	}
}

// HandleWebSocket authenticates the handshake, upgrades the connection
// and registers it in the user's room. Room membership comes from the
// verified token, never from anything the client sends later.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	userID, err := h.verifier.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := ws.NewClient(userID, conn)
	h.wsManager.Register <- client

	go client.ReadPump(h.wsManager, h.wsRouter)
	go client.WritePump()

	return nil
}
