package repository

import (
	"context"

	"incident-command-plane/internal/identity/domain"
)

// Repository defines persistence for user accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
