package repository

import (
	"context"

	"incident-command-plane/internal/audit/domain"
	"incident-command-plane/internal/db"
)

type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns an audit repository bound to the given querier.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

// Create persists one audit entry.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AuditLog) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TenantID, e.UserID, e.Action, e.Resource, e.Metadata, e.CreatedAt)
	return err
}

// ListByTenant returns the tenant's most recent audit entries, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, action, resource, metadata, created_at
		FROM audit_logs WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		e := &domain.AuditLog{}
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
