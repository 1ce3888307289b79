package repository

import (
	"context"

	"homeconnect/internal/domain/entity"
)

// MessageRepository is the durable append-only message log. Implementations
// must make Create a single atomic write and keep ListByPair ordering
// stable: timestamp ascending, id ascending on equal timestamps.
type MessageRepository interface {
	// Create persists a new message. The id, timestamp, pair key and
	// participants are assigned by the implementation.
	Create(ctx context.Context, message *entity.Message) error

	// ListByPair returns every message exchanged between the unordered
	// pair {userA, userB}, oldest first. Symmetric in its arguments.
	ListByPair(ctx context.Context, userA, userB string) ([]*entity.Message, error)

	// ListByUser returns every message the user sent or received, in no
	// guaranteed order. Input for conversation aggregation.
	ListByUser(ctx context.Context, userID string) ([]*entity.Message, error)

	// MarkRead flips the read flag on the given messages, but only where
	// readerID is the receiver. Messages addressed to someone else are
	// silently skipped. Idempotent.
	MarkRead(ctx context.Context, messageIDs []string, readerID string) error
}
