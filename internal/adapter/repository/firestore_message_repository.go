package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"homeconnect/internal/domain/entity"
	"homeconnect/internal/domain/repository"
	"homeconnect/pkg/errors"
	"homeconnect/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	// UUIDv7 ids are time ordered, so sorting by id is the same as
	// sorting by insertion order when timestamps collide.
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("Failed to generate message id", err)
	}

	message.ID = id.String()
	message.Timestamp = time.Now()
	message.PairKey = entity.PairKey(message.SenderID, message.ReceiverID)
	message.Participants = []string{message.SenderID, message.ReceiverID}

	if _, err := r.client.Collection("messages").Doc(message.ID).Set(ctx, message); err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) ListByPair(ctx context.Context, userA, userB string) ([]*entity.Message, error) {
	query := r.client.Collection("messages").
		Where("pairKey", "==", entity.PairKey(userA, userB)).
		OrderBy("timestamp", firestore.Asc)

	messages, err := r.collect(ctx, query.Documents(ctx))
	if err != nil {
		return nil, err
	}

	sortMessages(messages)
	return messages, nil
}

func (r *firestoreMessageRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Message, error) {
	query := r.client.Collection("messages").Where("participants", "array-contains", userID)
	return r.collect(ctx, query.Documents(ctx))
}

func (r *firestoreMessageRepository) MarkRead(ctx context.Context, messageIDs []string, readerID string) error {
	for _, messageID := range messageIDs {
		docRef := r.client.Collection("messages").Doc(messageID)
		doc, err := docRef.Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				logger.Debug("MarkRead: message %s not found, skipping", messageID)
				continue
			}
			return errors.Internal("Failed to get message", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return errors.Internal("Failed to parse message data", err)
		}

		// Only the receiver may flip the flag. Messages addressed to
		// someone else are skipped without error so callers cannot probe
		// for ids outside their conversations.
		if message.ReceiverID != readerID || message.Read {
			continue
		}

		if _, err := docRef.Update(ctx, []firestore.Update{{Path: "read", Value: true}}); err != nil {
			return errors.Internal("Failed to update message read flag", err)
		}
	}

	return nil
}

func (r *firestoreMessageRepository) collect(ctx context.Context, iter *firestore.DocumentIterator) ([]*entity.Message, error) {
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages: %v", err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

// sortMessages orders by timestamp ascending with id as tie-break, the
// canonical history order.
func sortMessages(messages []*entity.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}
