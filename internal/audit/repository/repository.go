package repository

import (
	"context"

	"incident-command-plane/internal/audit/domain"
)

// Repository defines persistence for audit log entries.
type Repository interface {
	Create(ctx context.Context, e *domain.AuditLog) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditLog, error)
}
