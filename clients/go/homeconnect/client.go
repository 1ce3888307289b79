// Package homeconnect provides a Go client for the HomeConnect
// messaging API: the REST surface, the live WebSocket channel and a
// local chat state machine that reconciles the two.
package homeconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message mirrors the server's message shape.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"body"`
	ListingID  string    `json:"listingId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`

	// Pending marks an optimistic local echo that the server has not
	// acknowledged yet. Never set on server-sourced messages.
	Pending bool `json:"-"`
}

// Conversation mirrors one row of the server's conversation list.
type Conversation struct {
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	UserEmail     string    `json:"userEmail,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	Unread        int       `json:"unread"`
}

// Client is a HomeConnect API client scoped to one authenticated user.
type Client struct {
	BaseURL    string
	Token      string
	UserID     string
	HTTPClient *http.Client
}

func NewClient(baseURL, token, userID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		UserID:     userID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Conversations fetches the caller's conversation list.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var data struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/chat/conversations", nil, &data); err != nil {
		return nil, err
	}
	return data.Conversations, nil
}

// History fetches the full thread with one counterpart, oldest first.
// The result is authoritative: callers replace local state with it
// rather than merging.
func (c *Client) History(ctx context.Context, counterpartID string) ([]Message, error) {
	var data struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/chat/"+counterpartID, nil, &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// Send persists a message over REST and returns the stored copy.
func (c *Client) Send(ctx context.Context, receiverID, body, listingID string) (*Message, error) {
	req := map[string]string{
		"receiverId": receiverID,
		"message":    body,
	}
	if listingID != "" {
		req["listingId"] = listingID
	}

	var message Message
	if err := c.do(ctx, http.MethodPost, "/v1/chat", req, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// MarkRead marks everything the counterpart sent to the caller as read.
func (c *Client) MarkRead(ctx context.Context, counterpartID string) error {
	return c.do(ctx, http.MethodPut, "/v1/chat/"+counterpartID+"/read", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("homeconnect: invalid response (%d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("homeconnect: %s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("homeconnect: request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
