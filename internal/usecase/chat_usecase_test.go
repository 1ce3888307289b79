package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeconnect/internal/adapter/repository"
	"homeconnect/internal/domain/entity"
	"homeconnect/pkg/errors"
)

type fakePublisher struct {
	mu     sync.Mutex
	byUser map[string][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{byUser: make(map[string][][]byte)}
}

func (p *fakePublisher) SendToUser(userID string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byUser[userID] = append(p.byUser[userID], payload)
}

func (p *fakePublisher) sentTo(userID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.byUser[userID]))
	copy(out, p.byUser[userID])
	return out
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string // "receiverEmail|senderName"
}

func (d *fakeDispatcher) NotifyNewMessage(receiverEmail, senderName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, receiverEmail+"|"+senderName)
	return nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTestUseCase() (*ChatUseCase, *fakePublisher, *fakeDispatcher) {
	users := repository.NewMemoryUserRepository(
		&entity.User{ID: "alice", Name: "Alice", Email: "alice@example.com", Role: "tenant"},
		&entity.User{ID: "bob", Name: "Bob", Email: "bob@example.com", Role: "landlord"},
		&entity.User{ID: "carol", Name: "Carol", Email: "carol@example.com", Role: "landlord"},
	)
	listings := repository.NewMemoryListingRepository(
		&entity.Listing{ID: "lst-1", LandlordID: "bob", Title: "Sunny 2BR"},
	)

	publisher := newFakePublisher()
	dispatcher := &fakeDispatcher{}
	uc := NewChatUseCase(repository.NewMemoryMessageRepository(), users, listings, publisher, dispatcher)
	return uc, publisher, dispatcher
}

func TestSendMessageAppendsToHistory(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	message, err := uc.SendMessage(ctx, "alice", "bob", "Hello", "lst-1")
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.Equal(t, "alice", message.SenderID)
	assert.Equal(t, "bob", message.ReceiverID)
	assert.Equal(t, "Hello", message.Body)
	assert.Equal(t, "lst-1", message.ListingID)
	assert.False(t, message.Read)
	assert.False(t, message.Timestamp.IsZero())

	history, err := uc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, message.ID, history[0].ID)
	assert.Equal(t, "Hello", history[0].Body)
}

func TestHistoryIsSymmetric(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "alice", "bob", "one", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "bob", "alice", "two", "")
	require.NoError(t, err)

	forward, err := uc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	backward, err := uc.History(ctx, "bob", "alice")
	require.NoError(t, err)

	require.Len(t, forward, 2)
	require.Len(t, backward, 2)
	for i := range forward {
		assert.Equal(t, forward[i].ID, backward[i].ID)
	}
}

func TestHistoryOrderedOldestFirst(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	bodies := []string{"first", "second", "third"}
	for _, body := range bodies {
		_, err := uc.SendMessage(ctx, "alice", "bob", body, "")
		require.NoError(t, err)
	}

	history, err := uc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, body := range bodies {
		assert.Equal(t, body, history[i].Body)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
}

func TestSendMessageValidation(t *testing.T) {
	uc, publisher, _ := newTestUseCase()
	ctx := context.Background()

	cases := []struct {
		name     string
		sender   string
		receiver string
		body     string
		code     string
	}{
		{"empty body", "alice", "bob", "", "VALIDATION_ERROR"},
		{"whitespace body", "alice", "bob", "   ", "VALIDATION_ERROR"},
		{"too long body", "alice", "bob", strings.Repeat("x", 4001), "VALIDATION_ERROR"},
		{"missing receiver", "alice", "", "hi", "VALIDATION_ERROR"},
		{"self message", "alice", "alice", "hi", "VALIDATION_ERROR"},
		{"unknown receiver", "alice", "nobody", "hi", "NOT_FOUND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.SendMessage(ctx, tc.sender, tc.receiver, tc.body, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}

	// Nothing persisted, nothing pushed.
	history, err := uc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, publisher.sentTo("bob"))
}

func TestSendMessageTrimsBody(t *testing.T) {
	uc, _, _ := newTestUseCase()

	message, err := uc.SendMessage(context.Background(), "alice", "bob", "  hello there  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello there", message.Body)
}

func TestSendMessageBroadcastsToReceiverRoom(t *testing.T) {
	uc, publisher, _ := newTestUseCase()

	message, err := uc.SendMessage(context.Background(), "alice", "bob", "Hello", "")
	require.NoError(t, err)

	pushes := publisher.sentTo("bob")
	require.Len(t, pushes, 1)

	var frame struct {
		Event string          `json:"event"`
		Data  *entity.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pushes[0], &frame))
	assert.Equal(t, "receiveMessage", frame.Event)
	assert.Equal(t, message.ID, frame.Data.ID)
	assert.Equal(t, "Hello", frame.Data.Body)
	assert.Equal(t, "alice", frame.Data.SenderID)

	// The sender's room gets nothing; the ack path is the channel layer's.
	assert.Empty(t, publisher.sentTo("alice"))
}

func TestSendMessageNotifiesReceiver(t *testing.T) {
	uc, _, dispatcher := newTestUseCase()

	_, err := uc.SendMessage(context.Background(), "alice", "bob", "Hello", "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return dispatcher.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	assert.Equal(t, "bob@example.com|Alice", dispatcher.calls[0])
}

func TestSendMessageToleratesUnknownListing(t *testing.T) {
	uc, _, _ := newTestUseCase()

	message, err := uc.SendMessage(context.Background(), "alice", "bob", "about the flat", "lst-gone")
	require.NoError(t, err)
	assert.Equal(t, "lst-gone", message.ListingID)
}

func TestSendMessageRateLimited(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := uc.SendMessage(ctx, "alice", "bob", "spam", "")
		require.NoError(t, err)
	}

	_, err := uc.SendMessage(ctx, "alice", "bob", "one too many", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "TOO_MANY_REQUESTS"))
}

func TestHistoryUnknownCounterpart(t *testing.T) {
	uc, _, _ := newTestUseCase()

	_, err := uc.History(context.Background(), "alice", "nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestListConversations(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "alice", "bob", "hi bob", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "bob", "alice", "hi alice", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "carol", "alice", "about your listing", "")
	require.NoError(t, err)

	conversations, err := uc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, conversations, 2)

	// Most recent activity first: carol's message came last.
	assert.Equal(t, "carol", conversations[0].UserID)
	assert.Equal(t, "Carol", conversations[0].UserName)
	assert.Equal(t, "about your listing", conversations[0].LastMessage)
	assert.Equal(t, 1, conversations[0].Unread)

	assert.Equal(t, "bob", conversations[1].UserID)
	assert.Equal(t, "hi alice", conversations[1].LastMessage)
	assert.Equal(t, 1, conversations[1].Unread)

	// Bob only ever talked to alice.
	bobConversations, err := uc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobConversations, 1)
	assert.Equal(t, "alice", bobConversations[0].UserID)
}

func TestListConversationsUnreadCountsOwnSendsExcluded(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "alice", "bob", "one", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", "bob", "two", "")
	require.NoError(t, err)

	// Alice's own sends never count as unread for her.
	conversations, err := uc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, 0, conversations[0].Unread)

	bobConversations, err := uc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobConversations, 1)
	assert.Equal(t, 2, bobConversations[0].Unread)
}

func TestListConversationsEmpty(t *testing.T) {
	uc, _, _ := newTestUseCase()

	conversations, err := uc.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestMarkConversationRead(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "bob", "alice", "one", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "bob", "alice", "two", "")
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, "alice", "bob", "reply", "")
	require.NoError(t, err)

	require.NoError(t, uc.MarkConversationRead(ctx, "alice", "bob"))

	conversations, err := uc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, 0, conversations[0].Unread)

	// Alice's reply to bob stays unread for bob: the reader only flips
	// messages addressed to them.
	bobConversations, err := uc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobConversations, 1)
	assert.Equal(t, 1, bobConversations[0].Unread)

	// Idempotent.
	require.NoError(t, uc.MarkConversationRead(ctx, "alice", "bob"))
}

func TestEndToEndExchange(t *testing.T) {
	uc, _, _ := newTestUseCase()
	ctx := context.Background()

	_, err := uc.SendMessage(ctx, "alice", "bob", "Hello", "")
	require.NoError(t, err)

	bobConversations, err := uc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobConversations, 1)
	assert.Equal(t, "Hello", bobConversations[0].LastMessage)
	assert.Equal(t, 1, bobConversations[0].Unread)

	history, err := uc.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Hello", history[0].Body)
	assert.Equal(t, "alice", history[0].SenderID)

	_, err = uc.SendMessage(ctx, "bob", "alice", "Hi back", "")
	require.NoError(t, err)

	aliceConversations, err := uc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceConversations, 1)
	assert.Equal(t, "Hi back", aliceConversations[0].LastMessage)
}

func TestHandleTypingRelaysToReceiver(t *testing.T) {
	uc, publisher, _ := newTestUseCase()
	ctx := context.Background()

	require.NoError(t, uc.HandleTyping(ctx, "alice", "bob", true))

	pushes := publisher.sentTo("bob")
	require.Len(t, pushes, 1)

	var frame struct {
		Event string `json:"event"`
		Data  struct {
			SenderID string `json:"senderId"`
			IsTyping bool   `json:"isTyping"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pushes[0], &frame))
	assert.Equal(t, "userTyping", frame.Event)
	assert.Equal(t, "alice", frame.Data.SenderID)
	assert.True(t, frame.Data.IsTyping)

	err := uc.HandleTyping(ctx, "alice", "alice", true)
	require.Error(t, err)
}
