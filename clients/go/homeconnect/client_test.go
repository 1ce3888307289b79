package homeconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClientConversations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/chat/conversations", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		respond(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"conversations": []Conversation{
					{UserID: "bob", UserName: "Bob", LastMessage: "hi", Unread: 2},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", "alice")
	conversations, err := client.Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "bob", conversations[0].UserID)
	assert.Equal(t, 2, conversations[0].Unread)
}

func TestClientHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/bob", r.URL.Path)

		respond(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"messages": []Message{
					{ID: "m1", SenderID: "bob", ReceiverID: "alice", Body: "hi", Timestamp: time.Now()},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", "alice")
	messages, err := client.History(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
}

func TestClientSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bob", req["receiverId"])
		assert.Equal(t, "hello", req["message"])

		respond(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"data":    Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: "hello"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", "alice")
	message, err := client.Send(context.Background(), "bob", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "m1", message.ID)
}

func TestClientMarkRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/chat/bob/read", r.URL.Path)

		respond(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]bool{"read": true},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", "alice")
	require.NoError(t, client.MarkRead(context.Background(), "bob"))
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error": map[string]string{
				"code":    "VALIDATION_ERROR",
				"message": "Message cannot be empty",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", "alice")
	_, err := client.Send(context.Background(), "bob", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "Message cannot be empty")
}
