package repository

import (
	"context"
	"time"

	"incident-command-plane/internal/handoff/domain"
)

// Repository defines persistence for command handoff requests.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.CommandRequest, error)
	GetPendingByIncident(ctx context.Context, incidentID string) (*domain.CommandRequest, error)
	// ListPendingForCommander returns pending requests awaiting the given
	// commander's decision, oldest first.
	ListPendingForCommander(ctx context.Context, tenantID, commanderID string) ([]*domain.CommandRequest, error)
	Create(ctx context.Context, r *domain.CommandRequest) error
	// Resolve transitions the request out of pending. status must be approved or denied.
	Resolve(ctx context.Context, id string, status domain.RequestStatus, at time.Time) error
	// ExpirePendingBefore denies pending requests older than cutoff and
	// returns how many were expired.
	ExpirePendingBefore(ctx context.Context, cutoff, at time.Time) (int, error)
}
