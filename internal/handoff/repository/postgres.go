package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/handoff/domain"
)

type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns a command request repository bound to the given
// querier, which may be a plain handle or a transaction.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

const requestColumns = `id, incident_id, tenant_id, requester_user_id, requester_session_id,
	current_commander_id, status, requested_at, resolved_at`

func scanRequest(row interface{ Scan(...any) error }) (*domain.CommandRequest, error) {
	cr := &domain.CommandRequest{}
	var resolvedAt sql.NullTime
	err := row.Scan(&cr.ID, &cr.IncidentID, &cr.TenantID, &cr.RequesterUserID, &cr.RequesterSessionID,
		&cr.CurrentCommanderID, &cr.Status, &cr.RequestedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		cr.ResolvedAt = &resolvedAt.Time
	}
	return cr, nil
}

// GetByID returns the request for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.CommandRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM command_requests WHERE id = $1`, id)
	cr, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cr, nil
}

// GetPendingByIncident returns the incident's pending request, or nil. At most
// one exists, enforced by a partial unique index.
func (r *PostgresRepository) GetPendingByIncident(ctx context.Context, incidentID string) (*domain.CommandRequest, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM command_requests
		WHERE incident_id = $1 AND status = 'pending'`, incidentID)
	cr, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cr, nil
}

// ListPendingForCommander returns pending requests addressed to the commander, oldest first.
func (r *PostgresRepository) ListPendingForCommander(ctx context.Context, tenantID, commanderID string) ([]*domain.CommandRequest, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM command_requests
		WHERE tenant_id = $1 AND current_commander_id = $2 AND status = 'pending'
		ORDER BY requested_at ASC`, tenantID, commanderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.CommandRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// Create persists the request. The request must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, cr *domain.CommandRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO command_requests (id, incident_id, tenant_id, requester_user_id, requester_session_id,
			current_commander_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cr.ID, cr.IncidentID, cr.TenantID, cr.RequesterUserID, cr.RequesterSessionID,
		cr.CurrentCommanderID, cr.Status, cr.RequestedAt)
	return err
}

// Resolve transitions the request out of pending.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, status domain.RequestStatus, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE command_requests SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending'`, id, status, at)
	return err
}

// ExpirePendingBefore denies pending requests requested before cutoff.
func (r *PostgresRepository) ExpirePendingBefore(ctx context.Context, cutoff, at time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE command_requests SET status = 'denied', resolved_at = $2
		WHERE status = 'pending' AND requested_at < $1`, cutoff, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
