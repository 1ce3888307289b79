package repository

import (
	"context"

	"homeconnect/internal/domain/entity"
)

// ListingRepository resolves listing context for messages. Read-only here;
// listing CRUD belongs to the listings service.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Listing, error)
}
