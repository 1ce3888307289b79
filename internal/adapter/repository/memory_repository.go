package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeconnect/internal/domain/entity"
	"homeconnect/internal/domain/repository"
	"homeconnect/pkg/errors"
)

// memoryMessageRepository keeps the message log in process memory. Used
// as the dev backing store (STORE_DRIVER=memory) and throughout the
// test suites.
type memoryMessageRepository struct {
	mu       sync.RWMutex
	messages []*entity.Message
}

func NewMemoryMessageRepository() repository.MessageRepository {
	return &memoryMessageRepository{}
}

func (r *memoryMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("Failed to generate message id", err)
	}

	message.ID = id.String()
	message.Timestamp = time.Now()
	message.PairKey = entity.PairKey(message.SenderID, message.ReceiverID)
	message.Participants = []string{message.SenderID, message.ReceiverID}

	stored := *message

	r.mu.Lock()
	r.messages = append(r.messages, &stored)
	r.mu.Unlock()

	return nil
}

func (r *memoryMessageRepository) ListByPair(ctx context.Context, userA, userB string) ([]*entity.Message, error) {
	key := entity.PairKey(userA, userB)

	r.mu.RLock()
	var result []*entity.Message
	for _, m := range r.messages {
		if m.PairKey == key {
			copied := *m
			result = append(result, &copied)
		}
	}
	r.mu.RUnlock()

	sortMessages(result)
	return result, nil
}

func (r *memoryMessageRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entity.Message
	for _, m := range r.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			copied := *m
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *memoryMessageRepository) MarkRead(ctx context.Context, messageIDs []string, readerID string) error {
	ids := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if ids[m.ID] && m.ReceiverID == readerID {
			m.Read = true
		}
	}
	return nil
}

// memoryUserRepository is the in-memory counterpart of the Firestore
// user store.
type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewMemoryUserRepository(users ...*entity.User) repository.UserRepository {
	r := &memoryUserRepository{users: make(map[string]*entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	copied := *user
	return &copied, nil
}

// memoryListingRepository resolves listing context in dev and tests.
type memoryListingRepository struct {
	mu       sync.RWMutex
	listings map[string]*entity.Listing
}

func NewMemoryListingRepository(listings ...*entity.Listing) repository.ListingRepository {
	r := &memoryListingRepository{listings: make(map[string]*entity.Listing)}
	for _, l := range listings {
		r.listings[l.ID] = l
	}
	return r
}

func (r *memoryListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[id]
	if !ok {
		return nil, errors.NotFound("Listing", nil)
	}
	copied := *listing
	return &copied, nil
}
