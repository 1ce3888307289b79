package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"homeconnect/internal/domain/entity"
	"homeconnect/internal/domain/repository"
	"homeconnect/pkg/errors"
)

// postgresMessageRepository is the relational alternative to the
// Firestore store, selected with STORE_DRIVER=postgres.
type postgresMessageRepository struct {
	db *sql.DB
}

func NewPostgresMessageRepository(db *sql.DB) repository.MessageRepository {
	return &postgresMessageRepository{
		db: db,
	}
}

// InitMessageSchema creates the messages table and its indexes.
func InitMessageSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		body TEXT NOT NULL,
		listing_id TEXT,
		pair_key TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair_key ON messages(pair_key, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);
	`

	_, err := db.Exec(query)
	return err
}

func (r *postgresMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Internal("Failed to generate message id", err)
	}

	message.ID = id.String()
	message.Timestamp = time.Now()
	message.PairKey = entity.PairKey(message.SenderID, message.ReceiverID)
	message.Participants = []string{message.SenderID, message.ReceiverID}

	query := `
	INSERT INTO messages (id, sender_id, receiver_id, body, listing_id, pair_key, sent_at, read)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, FALSE)
	`

	_, err = r.db.ExecContext(ctx, query,
		message.ID, message.SenderID, message.ReceiverID, message.Body,
		message.ListingID, message.PairKey, message.Timestamp,
	)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *postgresMessageRepository) ListByPair(ctx context.Context, userA, userB string) ([]*entity.Message, error) {
	query := `
	SELECT id, sender_id, receiver_id, body, listing_id, pair_key, sent_at, read
	FROM messages
	WHERE pair_key = $1
	ORDER BY sent_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PairKey(userA, userB))
	if err != nil {
		return nil, errors.Internal("Failed to query messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *postgresMessageRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Message, error) {
	query := `
	SELECT id, sender_id, receiver_id, body, listing_id, pair_key, sent_at, read
	FROM messages
	WHERE sender_id = $1 OR receiver_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Internal("Failed to query messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *postgresMessageRepository) MarkRead(ctx context.Context, messageIDs []string, readerID string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	// The receiver guard lives in the WHERE clause, so ids addressed to
	// other users are skipped without surfacing an error.
	query := `
	UPDATE messages SET read = TRUE
	WHERE id = ANY($1) AND receiver_id = $2 AND read = FALSE
	`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(messageIDs), readerID); err != nil {
		return errors.Internal("Failed to update message read flag", err)
	}

	return nil
}

func scanMessages(rows *sql.Rows) ([]*entity.Message, error) {
	var messages []*entity.Message
	for rows.Next() {
		var message entity.Message
		var listingID sql.NullString

		err := rows.Scan(
			&message.ID, &message.SenderID, &message.ReceiverID, &message.Body,
			&listingID, &message.PairKey, &message.Timestamp, &message.Read,
		)
		if err != nil {
			return nil, errors.Internal("Failed to scan message row", err)
		}

		message.ListingID = listingID.String
		message.Participants = []string{message.SenderID, message.ReceiverID}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to iterate message rows", err)
	}

	return messages, nil
}
