package repository

import (
	"context"
	"time"

	"incident-command-plane/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
	// OldestEvictable returns the tenant session with the oldest last-active
	// time that is both older than cutoff and not recorded as any active
	// incident's commanding session, or nil when no session qualifies.
	OldestEvictable(ctx context.Context, tenantID string, cutoff time.Time) (*domain.Session, error)
	// DeleteLastActiveBefore deletes up to limit sessions idle since before
	// cutoff, regardless of command status, and returns how many were deleted.
	DeleteLastActiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
