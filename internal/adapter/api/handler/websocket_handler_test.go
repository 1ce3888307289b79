package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeconnect/internal/domain/entity"
	ws "homeconnect/internal/infrastructure/websocket"
)

func dialSocket(t *testing.T, server *httptest.Server, token string) *gorillaws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSocketFrame(t *testing.T, conn *gorillaws.Conn) ws.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame ws.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func waitRegistered(t *testing.T, app *testApp, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return app.manager.RoomSize(userID) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebSocketHandshakeRejectsBadToken(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)

	_, _, err = gorillaws.DefaultDialer.Dial(url+"?token=forged", nil)
	assert.Error(t, err)
}

func TestWebSocketMessageDelivery(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	alice := dialSocket(t, server, "alice-token")
	waitRegistered(t, app, "alice")
	bob := dialSocket(t, server, "bob-token")
	waitRegistered(t, app, "bob")

	send := `{"event":"sendMessage","data":{"receiverId":"bob","message":"Hello","tempId":"tmp-1"}}`
	require.NoError(t, alice.WriteMessage(gorillaws.TextMessage, []byte(send)))

	// Bob's room gets exactly one receiveMessage.
	frame := readSocketFrame(t, bob)
	require.Equal(t, ws.EventReceiveMessage, frame.Event)

	var received entity.Message
	require.NoError(t, json.Unmarshal(frame.Data, &received))
	assert.Equal(t, "alice", received.SenderID)
	assert.Equal(t, "Hello", received.Body)
	assert.NotEmpty(t, received.ID)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "no duplicate delivery expected")

	// Alice's connection gets the ack with her temp id.
	ack := readSocketFrame(t, alice)
	require.Equal(t, ws.EventMessageSent, ack.Event)

	var ackData struct {
		Success bool            `json:"success"`
		Message *entity.Message `json:"message"`
		TempID  string          `json:"tempId"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &ackData))
	assert.True(t, ackData.Success)
	assert.Equal(t, "tmp-1", ackData.TempID)
	assert.Equal(t, received.ID, ackData.Message.ID)
}

func TestWebSocketSendErrorFrame(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	alice := dialSocket(t, server, "alice-token")
	waitRegistered(t, app, "alice")

	send := `{"event":"sendMessage","data":{"receiverId":"alice","message":"hi","tempId":"tmp-7"}}`
	require.NoError(t, alice.WriteMessage(gorillaws.TextMessage, []byte(send)))

	frame := readSocketFrame(t, alice)
	require.Equal(t, ws.EventMessageError, frame.Event)

	var errData struct {
		Error  string `json:"error"`
		TempID string `json:"tempId"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &errData))
	assert.NotEmpty(t, errData.Error)
	assert.Equal(t, "tmp-7", errData.TempID)
}

func TestWebSocketJoinIdentityMismatch(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	alice := dialSocket(t, server, "alice-token")
	waitRegistered(t, app, "alice")

	require.NoError(t, alice.WriteMessage(gorillaws.TextMessage,
		[]byte(`{"event":"join","data":{"userId":"bob"}}`)))

	frame := readSocketFrame(t, alice)
	assert.Equal(t, ws.EventMessageError, frame.Event)
}

func TestWebSocketDroppedDeliveryRecoversViaHistory(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	alice := dialSocket(t, server, "alice-token")
	waitRegistered(t, app, "alice")

	// Bob is offline; the live push is dropped but the message persists.
	send := `{"event":"sendMessage","data":{"receiverId":"bob","message":"missed you","tempId":"tmp-2"}}`
	require.NoError(t, alice.WriteMessage(gorillaws.TextMessage, []byte(send)))

	ack := readSocketFrame(t, alice)
	require.Equal(t, ws.EventMessageSent, ack.Event)

	rec, env := app.request(http.MethodGet, "/v1/chat/alice", "bob-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var thread struct {
		Messages []*entity.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &thread))
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "missed you", thread.Messages[0].Body)

	// The conversation list shows it as unread until bob opens it.
	rec, env = app.request(http.MethodGet, "/v1/chat/conversations", "bob-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var convList struct {
		Conversations []*entity.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &convList))
	require.Len(t, convList.Conversations, 1)
	assert.Equal(t, 1, convList.Conversations[0].Unread)
}

func TestWebSocketTypingRelay(t *testing.T) {
	app := newTestApp(t)
	server := httptest.NewServer(app.echo)
	defer server.Close()

	alice := dialSocket(t, server, "alice-token")
	waitRegistered(t, app, "alice")
	bob := dialSocket(t, server, "bob-token")
	waitRegistered(t, app, "bob")

	require.NoError(t, alice.WriteMessage(gorillaws.TextMessage,
		[]byte(`{"event":"typing","data":{"receiverId":"bob","isTyping":true}}`)))

	frame := readSocketFrame(t, bob)
	require.Equal(t, ws.EventUserTyping, frame.Event)

	var typing struct {
		SenderID string `json:"senderId"`
		IsTyping bool   `json:"isTyping"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &typing))
	assert.Equal(t, "alice", typing.SenderID)
	assert.True(t, typing.IsTyping)
}
