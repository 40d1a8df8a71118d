package repository

import (
	"context"
	"database/sql"
	"errors"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/tenant/domain"
)

type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns a tenant repository bound to the given querier,
// which may be a plain handle or a transaction.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

// GetByID returns the tenant for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, status, max_total_sessions, max_command_licenses, created_at
		FROM tenants WHERE id = $1`, id)
	t := &domain.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.MaxTotalSessions, &t.MaxCommandLicenses, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Create persists the tenant. The tenant must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, max_total_sessions, max_command_licenses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Status, t.MaxTotalSessions, t.MaxCommandLicenses, t.CreatedAt)
	return err
}

// List returns all tenants ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, status, max_total_sessions, max_command_licenses, created_at
		FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Tenant
	for rows.Next() {
		t := &domain.Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.MaxTotalSessions, &t.MaxCommandLicenses, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
