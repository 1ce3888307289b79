package websocket

import (
	"context"
	"encoding/json"

	"homeconnect/internal/domain/entity"
	"homeconnect/pkg/logger"
)

// Live-channel event names. Client to server: join, sendMessage,
// typing. Server to client: receiveMessage, messageSent, messageError,
// userTyping.
const (
	EventJoin           = "join"
	EventSendMessage    = "sendMessage"
	EventTyping         = "typing"
	EventReceiveMessage = "receiveMessage"
	EventMessageSent    = "messageSent"
	EventMessageError   = "messageError"
	EventUserTyping     = "userTyping"
)

// Frame is the wire envelope for every live-channel event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	UserID string `json:"userId"`
}

type sendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	ListingID  string `json:"listingId,omitempty"`

	// TempID is echoed back in messageSent/messageError so the client
	// can reconcile its optimistic local echo.
	TempID string `json:"tempId,omitempty"`
}

type typingPayload struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

type messageSentPayload struct {
	Success bool            `json:"success"`
	Message *entity.Message `json:"message"`
	TempID  string          `json:"tempId,omitempty"`
}

type messageErrorPayload struct {
	Error  string `json:"error"`
	TempID string `json:"tempId,omitempty"`
}

// ChatService is the slice of the chat use case the live channel needs.
type ChatService interface {
	SendMessage(ctx context.Context, senderID, receiverID, body, listingID string) (*entity.Message, error)
	HandleTyping(ctx context.Context, senderID, receiverID string, isTyping bool) error
}

// Router dispatches incoming frames to the chat service. Sender
// identity always comes from the connection's authenticated user, never
// from frame payloads.
type Router struct {
	manager *Manager
	chat    ChatService
}

func NewRouter(manager *Manager, chat ChatService) *Router {
	return &Router{
		manager: manager,
		chat:    chat,
	}
}

func (r *Router) HandleFrame(client *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Debug("WebSocket: malformed frame from room %s: %v", client.UserID, err)
		r.sendError(client, "Invalid frame format", "")
		return
	}

	switch frame.Event {
	case EventJoin:
		r.handleJoin(client, frame.Data)
	case EventSendMessage:
		r.handleSendMessage(client, frame.Data)
	case EventTyping:
		r.handleTyping(client, frame.Data)
	default:
		r.sendError(client, "Unknown event: "+frame.Event, "")
	}
}

// handleJoin exists for wire compatibility. Room membership was already
// bound to the authenticated user at handshake time, so the only thing
// to do here is reject a client asserting someone else's identity.
func (r *Router) handleJoin(client *Client, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.sendError(client, "Invalid join payload", "")
		return
	}

	if payload.UserID != "" && payload.UserID != client.UserID {
		logger.Warn("WebSocket: join identity mismatch, connection=%s asserted=%s", client.UserID, payload.UserID)
		r.sendError(client, "Join does not match authenticated user", "")
	}
}

func (r *Router) handleSendMessage(client *Client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.sendError(client, "Invalid sendMessage payload", "")
		return
	}

	message, err := r.chat.SendMessage(context.Background(), client.UserID, payload.ReceiverID, payload.Message, payload.ListingID)
	if err != nil {
		r.sendError(client, err.Error(), payload.TempID)
		return
	}

	// The receiver's room already got receiveMessage from the use case;
	// the ack goes only to the originating connection.
	r.sendToClient(client, Frame{Event: EventMessageSent}, messageSentPayload{
		Success: true,
		Message: message,
		TempID:  payload.TempID,
	})
}

func (r *Router) handleTyping(client *Client, data json.RawMessage) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.sendError(client, "Invalid typing payload", "")
		return
	}

	if err := r.chat.HandleTyping(context.Background(), client.UserID, payload.ReceiverID, payload.IsTyping); err != nil {
		logger.Debug("WebSocket: typing relay from %s rejected: %v", client.UserID, err)
	}
}

func (r *Router) sendError(client *Client, message, tempID string) {
	r.sendToClient(client, Frame{Event: EventMessageError}, messageErrorPayload{
		Error:  message,
		TempID: tempID,
	})
}

func (r *Router) sendToClient(client *Client, frame Frame, data interface{}) {
	encoded, err := json.Marshal(data)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s payload: %v", frame.Event, err)
		return
	}
	frame.Data = encoded

	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s frame: %v", frame.Event, err)
		return
	}

	select {
	case client.Send <- payload:
	default:
		logger.Warn("WebSocket: send buffer full for room %s, dropping ack", client.UserID)
	}
}
