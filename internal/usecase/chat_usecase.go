package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"homeconnect/internal/domain/entity"
	"homeconnect/internal/domain/repository"
	"homeconnect/internal/infrastructure/ratelimit"
	"homeconnect/pkg/errors"
	"homeconnect/pkg/logger"
)

// maxMessageRunes caps message bodies. Anything longer is rejected
// before it reaches the store.
const maxMessageRunes = 4000

// Publisher pushes a payload to every open connection of a user's room.
// Best effort: delivery to a user with no open connections is a no-op.
type Publisher interface {
	SendToUser(userID string, payload []byte)
}

// Dispatcher sends the out-of-band new-message notification. Failures
// are the dispatcher's problem; callers never see them.
type Dispatcher interface {
	NotifyNewMessage(receiverEmail, senderName string) error
}

// ChatUseCase owns the messaging core: validated append to the message
// log, conversation aggregation, live broadcast and the best-effort
// email notification.
type ChatUseCase struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	listingRepo repository.ListingRepository
	publisher   Publisher
	dispatcher  Dispatcher
	rateLimiter *ratelimit.RateLimiter
}

func NewChatUseCase(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	publisher Publisher,
	dispatcher Dispatcher,
) *ChatUseCase {
	return &ChatUseCase{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		listingRepo: listingRepo,
		publisher:   publisher,
		dispatcher:  dispatcher,
		rateLimiter: ratelimit.NewRateLimiter(),
	}
}

// receiveMessageEvent is the live push sent to the receiver's room after
// a successful append.
type receiveMessageEvent struct {
	Event string          `json:"event"`
	Data  *entity.Message `json:"data"`
}

type userTypingEvent struct {
	Event string       `json:"event"`
	Data  typingSignal `json:"data"`
}

type typingSignal struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// SendMessage validates and persists a new message, then broadcasts it
// to the receiver's room and kicks off the email notification. The
// persisted message is the durable fact; broadcast and notification are
// best effort on top of it and never fail the call.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID, receiverID, body, listingID string) (*entity.Message, error) {
	if allowed, _ := uc.rateLimiter.Allow(senderID, "send_message"); !allowed {
		logger.Warn("SendMessage rate limited: user=%s", senderID)
		return nil, errors.TooManyRequests("You are sending messages too quickly. Please slow down")
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.BadRequest("Message cannot be empty", nil)
	}
	if utf8.RuneCountInString(body) > maxMessageRunes {
		return nil, errors.BadRequest("Message is too long", nil)
	}
	if receiverID == "" {
		return nil, errors.BadRequest("Receiver is required", nil)
	}
	if senderID == receiverID {
		return nil, errors.BadRequest("You cannot message yourself", nil)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, errors.NotFound("Sender", err)
	}

	receiver, err := uc.userRepo.GetByID(ctx, receiverID)
	if err != nil {
		return nil, errors.NotFound("Receiver", err)
	}

	// The listing is a context tag only. A stale id is logged and kept
	// as-is rather than failing the send.
	if listingID != "" {
		if _, err := uc.listingRepo.GetByID(ctx, listingID); err != nil {
			logger.Warn("SendMessage: listing %s not resolvable: %v", listingID, err)
		}
	}

	message := &entity.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		ListingID:  listingID,
	}

	if err := uc.messageRepo.Create(ctx, message); err != nil {
		logger.Error("SendMessage: failed to persist message from %s to %s: %v", senderID, receiverID, err)
		return nil, err
	}

	uc.broadcastMessage(message)
	go uc.notifyReceiver(receiver, sender)

	return message, nil
}

func (uc *ChatUseCase) broadcastMessage(message *entity.Message) {
	payload, err := json.Marshal(receiveMessageEvent{
		Event: "receiveMessage",
		Data:  message,
	})
	if err != nil {
		// The message is already durable, so a serialization failure
		// here must not unwind the send.
		logger.Error("broadcastMessage: failed to marshal message %s: %v", message.ID, err)
		return
	}

	uc.publisher.SendToUser(message.ReceiverID, payload)
}

func (uc *ChatUseCase) notifyReceiver(receiver, sender *entity.User) {
	if uc.dispatcher == nil || receiver.Email == "" {
		return
	}
	if err := uc.dispatcher.NotifyNewMessage(receiver.Email, sender.Name); err != nil {
		logger.Warn("notifyReceiver: email to %s failed: %v", receiver.Email, err)
	}
}

// History returns every message exchanged between the viewer and the
// counterpart, oldest first. The full thread is materialized at open
// time; there is no pagination at this scale.
func (uc *ChatUseCase) History(ctx context.Context, viewerID, counterpartID string) ([]*entity.Message, error) {
	if _, err := uc.userRepo.GetByID(ctx, counterpartID); err != nil {
		return nil, errors.NotFound("User", err)
	}

	messages, err := uc.messageRepo.ListByPair(ctx, viewerID, counterpartID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nil
}

// ListConversations computes one summary row per counterpart the user
// has exchanged messages with, most recent activity first. Recomputed
// from the log on every call; linear in the user's message count.
func (uc *ChatUseCase) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	messages, err := uc.messageRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byCounterpart := make(map[string]*entity.Conversation)
	lastID := make(map[string]string)

	for _, m := range messages {
		counterpart := m.Counterpart(userID)
		conv, ok := byCounterpart[counterpart]
		if !ok {
			conv = &entity.Conversation{UserID: counterpart}
			byCounterpart[counterpart] = conv
		}

		// Last message wins by (timestamp, id), matching history order.
		newer := m.Timestamp.After(conv.LastTimestamp) ||
			(m.Timestamp.Equal(conv.LastTimestamp) && m.ID > lastID[counterpart])
		if newer {
			conv.LastMessage = m.Body
			conv.LastTimestamp = m.Timestamp
			lastID[counterpart] = m.ID
		}

		if m.ReceiverID == userID && !m.Read {
			conv.Unread++
		}
	}

	conversations := make([]*entity.Conversation, 0, len(byCounterpart))
	for _, conv := range byCounterpart {
		uc.resolveCounterpart(ctx, conv)
		conversations = append(conversations, conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastTimestamp.Equal(conversations[j].LastTimestamp) {
			return conversations[i].UserID < conversations[j].UserID
		}
		return conversations[i].LastTimestamp.After(conversations[j].LastTimestamp)
	})

	return conversations, nil
}

// resolveCounterpart fills in display name and email. A failed lookup
// degrades to an id-only row instead of failing the whole listing.
func (uc *ChatUseCase) resolveCounterpart(ctx context.Context, conv *entity.Conversation) {
	user, err := uc.userRepo.GetByID(ctx, conv.UserID)
	if err != nil {
		logger.Warn("ListConversations: counterpart %s not resolvable: %v", conv.UserID, err)
		return
	}
	conv.UserName = user.Name
	conv.UserEmail = user.Email
}

// MarkConversationRead flips the read flag on every unread message the
// counterpart has sent to the reader. Idempotent.
func (uc *ChatUseCase) MarkConversationRead(ctx context.Context, readerID, counterpartID string) error {
	messages, err := uc.messageRepo.ListByPair(ctx, readerID, counterpartID)
	if err != nil {
		return err
	}

	var unreadIDs []string
	for _, m := range messages {
		if m.ReceiverID == readerID && !m.Read {
			unreadIDs = append(unreadIDs, m.ID)
		}
	}
	if len(unreadIDs) == 0 {
		return nil
	}

	return uc.messageRepo.MarkRead(ctx, unreadIDs, readerID)
}

// HandleTyping relays an ephemeral typing signal to the receiver's
// room. No persistence and no delivery guarantee; a missed stop signal
// expires client-side.
func (uc *ChatUseCase) HandleTyping(ctx context.Context, senderID, receiverID string, isTyping bool) error {
	if allowed, _ := uc.rateLimiter.Allow(senderID, "typing"); !allowed {
		return nil
	}
	if receiverID == "" || senderID == receiverID {
		return errors.BadRequest("Invalid typing target", nil)
	}

	payload, err := json.Marshal(userTypingEvent{
		Event: "userTyping",
		Data: typingSignal{
			SenderID: senderID,
			IsTyping: isTyping,
		},
	})
	if err != nil {
		return errors.Internal("Failed to marshal typing event", err)
	}

	uc.publisher.SendToUser(receiverID, payload)
	return nil
}
