package repository

import (
	"context"
	"time"

	"incident-command-plane/internal/incident/domain"
)

// Repository defines persistence for incidents. Commander transitions must run
// against a transaction-bound repository with the incident row locked
// (GetByIDForUpdate) so license counting and the single-incident rule cannot race.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
	// GetByIDForUpdate reads the incident with a row lock, serializing
	// concurrent command transitions on the same incident.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Incident, error)
	Create(ctx context.Context, i *domain.Incident) error
	ListActiveByTenant(ctx context.Context, tenantID string) ([]*domain.Incident, error)
	// CountCommanded returns the number of active tenant incidents with a
	// non-null commander (the consumed license slots).
	CountCommanded(ctx context.Context, tenantID string) (int, error)
	// FindCommandedByUser returns the active tenant incident the user
	// currently commands, or nil. At most one exists by invariant.
	FindCommandedByUser(ctx context.Context, tenantID, userID string) (*domain.Incident, error)
	SetCommander(ctx context.Context, id, userID, sessionID string, at time.Time) error
	// SetCommanderSession repoints only the commanding session, for
	// re-establishment after the old session died.
	SetCommanderSession(ctx context.Context, id, sessionID string, at time.Time) error
	ClearCommander(ctx context.Context, id string, at time.Time) error
	// Close marks the incident closed and clears the commander fields in one write.
	Close(ctx context.Context, id string, at time.Time) error
	// ListWithStaleCommander returns active incidents whose recorded commanding
	// session has been inactive since before cutoff.
	ListWithStaleCommander(ctx context.Context, cutoff time.Time) ([]*domain.Incident, error)
}
