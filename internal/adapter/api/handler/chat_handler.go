package handler

import (
	"github.com/labstack/echo/v4"

	"homeconnect/internal/usecase"
	"homeconnect/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Message    string `json:"message" validate:"required"`
	ListingID  string `json:"listingId,omitempty"`
}

// GetConversations returns the caller's conversation list, most recent
// activity first.
func (h *ChatHandler) GetConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.chatUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversations": conversations,
	})
}

// GetChatHistory returns the full thread between the caller and the
// counterpart, oldest first.
func (h *ChatHandler) GetChatHistory(c echo.Context) error {
	userID := c.Get("uid").(string)
	counterpartID := c.Param("userId")

	messages, err := h.chatUseCase.History(c.Request().Context(), userID, counterpartID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"messages": messages,
	})
}

// SendMessage persists a new message and returns it. The live push to
// the receiver happens inside the use case.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, req.ReceiverID, req.Message, req.ListingID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// MarkConversationRead flips the read flag on everything the
// counterpart has sent to the caller.
func (h *ChatHandler) MarkConversationRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	counterpartID := c.Param("userId")

	if err := h.chatUseCase.MarkConversationRead(c.Request().Context(), userID, counterpartID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"read": true})
}
