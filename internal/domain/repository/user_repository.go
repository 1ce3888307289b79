package repository

import (
	"context"

	"homeconnect/internal/domain/entity"
)

// UserRepository resolves user identities. Account creation and profile
// management are owned by the auth service; the messaging core only reads.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
