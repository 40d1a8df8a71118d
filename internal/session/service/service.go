// Package service implements session admission, liveness, and standing checks.
// Admission runs inside one transaction so the tenant quota holds at every
// externally observable instant.
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
	incidentrepo "incident-command-plane/internal/incident/repository"
	"incident-command-plane/internal/platform/grpcerr"
	"incident-command-plane/internal/policy/engine"
	"incident-command-plane/internal/session/domain"
	sessionrepo "incident-command-plane/internal/session/repository"
	tenantrepo "incident-command-plane/internal/tenant/repository"
)

// evictableAfter is the inactivity bar a non-commanding session must exceed
// before admission may evict it to make room.
const evictableAfter = 15 * time.Minute

// Service is the session manager.
type Service struct {
	tx        db.TxRunner
	plain     db.Querier
	sessions  func(db.Querier) sessionrepo.Repository
	incidents func(db.Querier) incidentrepo.Repository
	tenants   func(db.Querier) tenantrepo.Repository
	policy    engine.Evaluator
	auditLog  audit.AuditLogger
	clock     func() time.Time
	newID     func() string
}

// NewService returns a session manager with default repository bindings.
func NewService(database *db.DB, policy engine.Evaluator, auditLog audit.AuditLogger) *Service {
	return &Service{
		tx:        database,
		plain:     database.Q(),
		sessions:  func(q db.Querier) sessionrepo.Repository { return sessionrepo.NewPostgresRepository(q) },
		incidents: func(q db.Querier) incidentrepo.Repository { return incidentrepo.NewPostgresRepository(q) },
		tenants:   func(q db.Querier) tenantrepo.Repository { return tenantrepo.NewPostgresRepository(q) },
		policy:    policy,
		auditLog:  auditLog,
		clock:     time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Create admits a new session for the user under the tenant quota. The
// admission hierarchy, evaluated only once the tenant is at or above quota:
// commander re-entry (a commander must never be capacity-locked out of their
// own incident), then eviction of the oldest sufficiently idle non-commanding
// session, then a hard capacity failure.
func (s *Service) Create(ctx context.Context, userID, tenantID string) (*domain.Session, error) {
	if userID == "" || tenantID == "" {
		return nil, status.Error(codes.InvalidArgument, "user id and tenant id are required")
	}

	now := s.clock().UTC()
	session := &domain.Session{
		ID:           s.newID(),
		UserID:       userID,
		TenantID:     tenantID,
		LoginAt:      now,
		LastActiveAt: now,
	}

	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		sessions := s.sessions(q)
		incidents := s.incidents(q)

		tenant, err := s.tenants(q).GetByID(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("load tenant: %w", err)
		}
		if tenant == nil || tenant.MaxTotalSessions <= 0 {
			return status.Error(codes.Internal, "tenant session quota is not configured")
		}

		count, err := sessions.CountByTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}
		if count < tenant.MaxTotalSessions {
			return sessions.Create(ctx, session)
		}

		// Privileged re-entry: the caller commands an incident here and its
		// recorded commanding session occupies a slot. Replace that session
		// and repoint the incident at the new one so the commander pointer
		// never dangles.
		commanded, err := incidents.FindCommandedByUser(ctx, tenantID, userID)
		if err != nil {
			return fmt.Errorf("find commanded incident: %w", err)
		}
		if commanded != nil && commanded.CommanderSessionID != "" {
			if err := sessions.Delete(ctx, commanded.CommanderSessionID); err != nil {
				return fmt.Errorf("evict commander session: %w", err)
			}
			if err := sessions.Create(ctx, session); err != nil {
				return err
			}
			if err := incidents.SetCommanderSession(ctx, commanded.ID, session.ID, now); err != nil {
				return fmt.Errorf("repoint commander session: %w", err)
			}
			if s.auditLog != nil {
				s.auditLog.LogEvent(ctx, tenantID, userID, "session.evict", "session",
					"commander re-entry evicted "+commanded.CommanderSessionID)
			}
			return nil
		}

		// General eviction: oldest idle session not commanding anything.
		victim, err := sessions.OldestEvictable(ctx, tenantID, now.Add(-evictableAfter))
		if err != nil {
			return fmt.Errorf("find evictable session: %w", err)
		}
		if victim == nil {
			return status.Error(codes.PermissionDenied, "no session capacity available for this tenant")
		}
		if err := sessions.Delete(ctx, victim.ID); err != nil {
			return fmt.Errorf("evict session: %w", err)
		}
		if s.auditLog != nil {
			s.auditLog.LogEvent(ctx, tenantID, userID, "session.evict", "session",
				"idle eviction of "+victim.ID)
		}
		return sessions.Create(ctx, session)
	})
	if err != nil {
		return nil, grpcerr.FromTx(err)
	}

	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "session.create", "session", session.ID)
	}
	return session, nil
}

// Heartbeat verifies ownership and refreshes the session's last-active time.
// A plain single-row write: no cross-record invariant depends on it.
func (s *Service) Heartbeat(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" {
		return status.Error(codes.InvalidArgument, "session id is required")
	}
	sessions := s.sessions(s.plain)
	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		return status.Errorf(codes.Internal, "load session: %v", err)
	}
	if sess == nil || sess.UserID != userID {
		return status.Error(codes.NotFound, "session not found")
	}
	if err := sessions.UpdateLastActive(ctx, sessionID, s.clock().UTC()); err != nil {
		return status.Errorf(codes.Internal, "update session: %v", err)
	}
	return nil
}

// End deletes the caller's session. Ending an already-gone session succeeds.
func (s *Service) End(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" {
		return status.Error(codes.InvalidArgument, "session id is required")
	}
	sessions := s.sessions(s.plain)
	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		return status.Errorf(codes.Internal, "load session: %v", err)
	}
	if sess == nil {
		return nil
	}
	if sess.UserID != userID {
		return status.Error(codes.NotFound, "session not found")
	}
	if err := sessions.Delete(ctx, sessionID); err != nil {
		return status.Errorf(codes.Internal, "delete session: %v", err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, sess.TenantID, userID, "session.end", "session", sessionID)
	}
	return nil
}

// StatusResult is the outcome of a standing check.
type StatusResult struct {
	Status  domain.SessionStatus
	Message string
}

// CheckStatus reports the session's standing. When the user commands an
// incident from a different session, the lockout policy decides between a hard
// lockout and a view-only recommendation by license tier.
func (s *Service) CheckStatus(ctx context.Context, sessionID, userID, tenantID, licenseTier string) (StatusResult, error) {
	if sessionID == "" {
		return StatusResult{}, status.Error(codes.InvalidArgument, "session id is required")
	}
	commanded, err := s.incidents(s.plain).FindCommandedByUser(ctx, tenantID, userID)
	if err != nil {
		return StatusResult{}, status.Errorf(codes.Internal, "find commanded incident: %v", err)
	}
	if commanded == nil || commanded.CommanderSessionID == sessionID {
		return StatusResult{Status: domain.StatusOK}, nil
	}
	decision, err := s.policy.EvaluateLockout(ctx, engine.LockoutInput{
		LicenseTier: licenseTier,
		IncidentID:  commanded.ID,
	})
	if err != nil {
		return StatusResult{}, status.Errorf(codes.Internal, "evaluate lockout policy: %v", err)
	}
	return StatusResult{Status: domain.SessionStatus(decision.Mode), Message: decision.Message}, nil
}

// ListByTenant returns the tenant's sessions for admin views.
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Session, error) {
	list, err := s.sessions(s.plain).ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list sessions: %v", err)
	}
	return list, nil
}
