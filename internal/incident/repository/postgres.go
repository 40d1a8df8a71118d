package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/incident/domain"
)

type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns an incident repository bound to the given
// querier, which may be a plain handle or a transaction.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

const incidentColumns = `id, tenant_id, number, name, status,
	COALESCE(commander_user_id, ''), COALESCE(commander_session_id, ''),
	created_at, updated_at, closed_at`

func scanIncident(row interface{ Scan(...any) error }) (*domain.Incident, error) {
	i := &domain.Incident{}
	var closedAt sql.NullTime
	err := row.Scan(&i.ID, &i.TenantID, &i.Number, &i.Name, &i.Status,
		&i.CommanderUserID, &i.CommanderSessionID, &i.CreatedAt, &i.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		i.ClosedAt = &closedAt.Time
	}
	return i, nil
}

// GetByID returns the incident for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return nilOnNoRows(scanIncident(row))
}

// GetByIDForUpdate reads the incident with FOR UPDATE, blocking concurrent
// command transitions on the same row until the transaction settles.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Incident, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, id)
	return nilOnNoRows(scanIncident(row))
}

func nilOnNoRows(i *domain.Incident, err error) (*domain.Incident, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return i, nil
}

// Create persists the incident. The incident must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Incident) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO incidents (id, tenant_id, number, name, status, commander_user_id, commander_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		i.ID, i.TenantID, i.Number, i.Name, i.Status, i.CommanderUserID, i.CommanderSessionID, i.CreatedAt, i.UpdatedAt)
	return err
}

// ListActiveByTenant returns the tenant's active incidents, newest first.
func (r *PostgresRepository) ListActiveByTenant(ctx context.Context, tenantID string) ([]*domain.Incident, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE tenant_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*domain.Incident, error) {
	var out []*domain.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// CountCommanded returns the number of active tenant incidents holding a license slot.
func (r *PostgresRepository) CountCommanded(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM incidents
		WHERE tenant_id = $1 AND status = 'active' AND commander_user_id IS NOT NULL`, tenantID).Scan(&n)
	return n, err
}

// FindCommandedByUser returns the active tenant incident commanded by the user, or nil.
func (r *PostgresRepository) FindCommandedByUser(ctx context.Context, tenantID, userID string) (*domain.Incident, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE tenant_id = $1 AND status = 'active' AND commander_user_id = $2
		LIMIT 1`, tenantID, userID)
	return nilOnNoRows(scanIncident(row))
}

// SetCommander records user and session as the incident's commander.
func (r *PostgresRepository) SetCommander(ctx context.Context, id, userID, sessionID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE incidents SET commander_user_id = $2, commander_session_id = $3, updated_at = $4
		WHERE id = $1`, id, userID, sessionID, at)
	return err
}

// SetCommanderSession repoints only the commanding session.
func (r *PostgresRepository) SetCommanderSession(ctx context.Context, id, sessionID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE incidents SET commander_session_id = $2, updated_at = $3
		WHERE id = $1`, id, sessionID, at)
	return err
}

// ClearCommander releases the incident's license slot.
func (r *PostgresRepository) ClearCommander(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE incidents SET commander_user_id = NULL, commander_session_id = NULL, updated_at = $2
		WHERE id = $1`, id, at)
	return err
}

// Close marks the incident closed and clears the commander fields in one write.
func (r *PostgresRepository) Close(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE incidents SET status = 'closed', commander_user_id = NULL, commander_session_id = NULL,
			closed_at = $2, updated_at = $2
		WHERE id = $1`, id, at)
	return err
}

// ListWithStaleCommander returns active incidents whose commanding session has
// been inactive since before cutoff.
func (r *PostgresRepository) ListWithStaleCommander(ctx context.Context, cutoff time.Time) ([]*domain.Incident, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+qualifiedIncidentColumns+` FROM incidents i
		JOIN sessions s ON s.id = i.commander_session_id
		WHERE i.status = 'active' AND s.last_active_at < $1
		FOR UPDATE OF i`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

const qualifiedIncidentColumns = `i.id, i.tenant_id, i.number, i.name, i.status,
	COALESCE(i.commander_user_id, ''), COALESCE(i.commander_session_id, ''),
	i.created_at, i.updated_at, i.closed_at`
