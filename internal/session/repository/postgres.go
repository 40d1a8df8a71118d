package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/session/domain"
)

type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns a session repository bound to the given querier,
// which may be a plain handle or a transaction.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

const sessionColumns = `id, user_id, tenant_id, COALESCE(refresh_jti, ''), COALESCE(refresh_token_hash, ''), login_at, last_active_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	s := &domain.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &s.RefreshJti, &s.RefreshTokenHash, &s.LoginAt, &s.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// CountByTenant returns the number of sessions currently held by the tenant.
func (r *PostgresRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// ListByTenant returns all tenant sessions ordered by last activity, most recent first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Session, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = $1 ORDER BY last_active_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, tenant_id, refresh_jti, refresh_token_hash, login_at, last_active_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		s.ID, s.UserID, s.TenantID, s.RefreshJti, s.RefreshTokenHash, s.LoginAt, s.LastActiveAt)
	return err
}

// Delete removes the session with the given id. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// UpdateLastActive sets the session's last-active timestamp for the given id.
func (r *PostgresRepository) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET last_active_at = $2 WHERE id = $1`, id, at)
	return err
}

// UpdateRefreshToken sets the session's current refresh token jti and hash for rotation.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET refresh_jti = NULLIF($2, ''), refresh_token_hash = NULLIF($3, '')
		WHERE id = $1`, sessionID, jti, refreshTokenHash)
	return err
}

// OldestEvictable returns the oldest tenant session idle since before cutoff
// that no active incident records as its commanding session, or nil.
func (r *PostgresRepository) OldestEvictable(ctx context.Context, tenantID string, cutoff time.Time) (*domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.tenant_id = $1
		  AND s.last_active_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM incidents i
			WHERE i.commander_session_id = s.id AND i.status = 'active'
		  )
		ORDER BY s.last_active_at ASC
		LIMIT 1`, tenantID, cutoff)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// DeleteLastActiveBefore deletes up to limit sessions idle since before cutoff
// and returns the number deleted. Command state on incidents is never touched.
func (r *PostgresRepository) DeleteLastActiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE last_active_at < $1
			ORDER BY last_active_at ASC LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
