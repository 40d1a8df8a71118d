// Package service implements the command arbiter: exclusive commander
// assignment per incident under the tenant license quota and the
// one-active-incident-per-user rule. Every command transition runs inside one
// transaction with the incident row locked; the incident row is the lock.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/audit"
	"incident-command-plane/internal/db"
	"incident-command-plane/internal/incident/domain"
	incidentrepo "incident-command-plane/internal/incident/repository"
	"incident-command-plane/internal/platform/grpcerr"
	sessionrepo "incident-command-plane/internal/session/repository"
	tenantrepo "incident-command-plane/internal/tenant/repository"
)

// Service is the command arbiter.
type Service struct {
	tx        db.TxRunner
	plain     db.Querier
	incidents func(db.Querier) incidentrepo.Repository
	sessions  func(db.Querier) sessionrepo.Repository
	tenants   func(db.Querier) tenantrepo.Repository
	auditLog  audit.AuditLogger
	clock     func() time.Time
	newID     func() string
}

// NewService returns a command arbiter with default repository bindings.
func NewService(database *db.DB, auditLog audit.AuditLogger) *Service {
	return &Service{
		tx:        database,
		plain:     database.Q(),
		incidents: func(q db.Querier) incidentrepo.Repository { return incidentrepo.NewPostgresRepository(q) },
		sessions:  func(q db.Querier) sessionrepo.Repository { return sessionrepo.NewPostgresRepository(q) },
		tenants:   func(q db.Querier) tenantrepo.Repository { return tenantrepo.NewPostgresRepository(q) },
		auditLog:  auditLog,
		clock:     time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// TakeCommand grants the caller exclusive command of the incident, enforcing
// the license gate and the single-incident gate. Retaking an incident the
// caller already commands never consumes an extra license slot and is exempt
// from both gates.
func (s *Service) TakeCommand(ctx context.Context, incidentID, sessionID, userID, tenantID string) error {
	if incidentID == "" || sessionID == "" {
		return status.Error(codes.InvalidArgument, "incident id and session id are required")
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		if err := s.validateSession(ctx, q, sessionID, userID); err != nil {
			return err
		}
		incidents := s.incidents(q)
		inc, err := incidents.GetByIDForUpdate(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("load incident: %w", err)
		}
		if inc == nil {
			return status.Error(codes.NotFound, "incident not found")
		}
		if inc.TenantID != tenantID {
			return status.Error(codes.PermissionDenied, "incident belongs to a different tenant")
		}
		if inc.Status != domain.IncidentStatusActive {
			return status.Error(codes.FailedPrecondition, "incident is closed")
		}
		if inc.CommanderUserID != userID {
			if err := s.checkCommandGates(ctx, q, tenantID, userID, incidentID); err != nil {
				return err
			}
		}
		return incidents.SetCommander(ctx, incidentID, userID, sessionID, s.clock().UTC())
	})
	if err != nil {
		return grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "command.take", "incident", incidentID)
	}
	return nil
}

// StartIncident creates an incident born already commanded by its creator.
// The same two gates as TakeCommand are evaluated before creation.
func (s *Service) StartIncident(ctx context.Context, number, name, sessionID, userID, tenantID string) (*domain.Incident, error) {
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session id is required")
	}
	now := s.clock().UTC()
	inc := &domain.Incident{
		ID:                 s.newID(),
		TenantID:           tenantID,
		Number:             number,
		Name:               name,
		Status:             domain.IncidentStatusActive,
		CommanderUserID:    userID,
		CommanderSessionID: sessionID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		if err := s.validateSession(ctx, q, sessionID, userID); err != nil {
			return err
		}
		if err := s.checkCommandGates(ctx, q, tenantID, userID, ""); err != nil {
			return err
		}
		return s.incidents(q).Create(ctx, inc)
	})
	if err != nil {
		return nil, grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "incident.start", "incident", inc.ID)
	}
	return inc, nil
}

// CloseIncident marks the incident closed and releases its license slot in the
// same write. Only the recorded commander may close.
func (s *Service) CloseIncident(ctx context.Context, incidentID, userID, tenantID string) error {
	if incidentID == "" {
		return status.Error(codes.InvalidArgument, "incident id is required")
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		incidents := s.incidents(q)
		inc, err := incidents.GetByIDForUpdate(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("load incident: %w", err)
		}
		if inc == nil {
			return status.Error(codes.NotFound, "incident not found")
		}
		if inc.TenantID != tenantID {
			return status.Error(codes.PermissionDenied, "incident belongs to a different tenant")
		}
		if inc.Status != domain.IncidentStatusActive {
			return status.Error(codes.FailedPrecondition, "incident is already closed")
		}
		if inc.CommanderUserID != userID {
			return status.Error(codes.PermissionDenied, "only the recorded commander may close the incident")
		}
		return incidents.Close(ctx, incidentID, s.clock().UTC())
	})
	if err != nil {
		return grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "incident.close", "incident", incidentID)
	}
	return nil
}

// ReestablishCommand repoints the incident's commanding session at a new
// session of the same commander, for reconnects after the old session died.
// Session identity is intentionally not compared with the recorded one: the
// old session is presumed dead.
func (s *Service) ReestablishCommand(ctx context.Context, incidentID, sessionID, userID, tenantID string) error {
	if incidentID == "" || sessionID == "" {
		return status.Error(codes.InvalidArgument, "incident id and session id are required")
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		if err := s.validateSession(ctx, q, sessionID, userID); err != nil {
			return err
		}
		incidents := s.incidents(q)
		inc, err := incidents.GetByIDForUpdate(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("load incident: %w", err)
		}
		if inc == nil {
			return status.Error(codes.NotFound, "incident not found")
		}
		if inc.TenantID != tenantID {
			return status.Error(codes.PermissionDenied, "incident belongs to a different tenant")
		}
		if inc.Status != domain.IncidentStatusActive {
			return status.Error(codes.FailedPrecondition, "incident is closed")
		}
		if inc.CommanderUserID != userID {
			return status.Error(codes.PermissionDenied, "caller is not the recorded commander")
		}
		return incidents.SetCommanderSession(ctx, incidentID, sessionID, s.clock().UTC())
	})
	if err != nil {
		return grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "command.reestablish", "incident", incidentID)
	}
	return nil
}

// Get returns the incident scoped to the caller's tenant.
func (s *Service) Get(ctx context.Context, incidentID, tenantID string) (*domain.Incident, error) {
	if incidentID == "" {
		return nil, status.Error(codes.InvalidArgument, "incident id is required")
	}
	inc, err := s.incidents(s.plain).GetByID(ctx, incidentID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load incident: %v", err)
	}
	if inc == nil || inc.TenantID != tenantID {
		return nil, status.Error(codes.NotFound, "incident not found")
	}
	return inc, nil
}

// ListActive returns the tenant's active incidents.
func (s *Service) ListActive(ctx context.Context, tenantID string) ([]*domain.Incident, error) {
	list, err := s.incidents(s.plain).ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list incidents: %v", err)
	}
	return list, nil
}

// validateSession confirms the session exists and belongs to the caller.
func (s *Service) validateSession(ctx context.Context, q db.Querier, sessionID, userID string) error {
	sess, err := s.sessions(q).GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != userID {
		return status.Error(codes.PermissionDenied, "session does not belong to the caller")
	}
	return nil
}

// checkCommandGates enforces the license quota and the single-incident rule.
// targetIncidentID is the incident being taken ("" when starting a new one):
// commanding a different active incident is a failed precondition.
func (s *Service) checkCommandGates(ctx context.Context, q db.Querier, tenantID, userID, targetIncidentID string) error {
	tenant, err := s.tenants(q).GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil || tenant.MaxCommandLicenses <= 0 {
		return status.Error(codes.Internal, "tenant command license quota is not configured")
	}
	incidents := s.incidents(q)
	commandedCount, err := incidents.CountCommanded(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("count commanded incidents: %w", err)
	}
	if commandedCount >= tenant.MaxCommandLicenses {
		return status.Error(codes.PermissionDenied, "tenant command license limit reached")
	}
	other, err := incidents.FindCommandedByUser(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("find commanded incident: %w", err)
	}
	if other != nil && other.ID != targetIncidentID {
		return status.Error(codes.FailedPrecondition, "caller already commands another active incident")
	}
	return nil
}
