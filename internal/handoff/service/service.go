// Package service implements the command handoff workflow: a non-commander
// requests control and the recorded commander approves or denies, without the
// incident ever becoming uncommanded mid-transfer.
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
	"incident-command-plane/internal/handoff/domain"
	handoffrepo "incident-command-plane/internal/handoff/repository"
	incidentdomain "incident-command-plane/internal/incident/domain"
	incidentrepo "incident-command-plane/internal/incident/repository"
	"incident-command-plane/internal/platform/grpcerr"
	sessionrepo "incident-command-plane/internal/session/repository"
)

// Service is the handoff workflow.
type Service struct {
	tx        db.TxRunner
	plain     db.Querier
	requests  func(db.Querier) handoffrepo.Repository
	incidents func(db.Querier) incidentrepo.Repository
	sessions  func(db.Querier) sessionrepo.Repository
	auditLog  audit.AuditLogger
	clock     func() time.Time
	newID     func() string
}

// NewService returns a handoff workflow service with default repository bindings.
func NewService(database *db.DB, auditLog audit.AuditLogger) *Service {
	return &Service{
		tx:        database,
		plain:     database.Q(),
		requests:  func(q db.Querier) handoffrepo.Repository { return handoffrepo.NewPostgresRepository(q) },
		incidents: func(q db.Querier) incidentrepo.Repository { return incidentrepo.NewPostgresRepository(q) },
		sessions:  func(q db.Querier) sessionrepo.Repository { return sessionrepo.NewPostgresRepository(q) },
		auditLog:  auditLog,
		clock:     time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Request creates a pending command request from the caller to the incident's
// recorded commander. The incident row is locked so request creation serializes
// with approvals and duplicate requests.
func (s *Service) Request(ctx context.Context, incidentID, sessionID, userID, tenantID string) (*domain.CommandRequest, error) {
	if incidentID == "" || sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "incident id and session id are required")
	}
	now := s.clock().UTC()
	req := &domain.CommandRequest{
		ID:                 s.newID(),
		IncidentID:         incidentID,
		TenantID:           tenantID,
		RequesterUserID:    userID,
		RequesterSessionID: sessionID,
		Status:             domain.RequestStatusPending,
		RequestedAt:        now,
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		sess, err := s.sessions(q).GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess == nil || sess.UserID != userID {
			return status.Error(codes.PermissionDenied, "session does not belong to the caller")
		}
		inc, err := s.incidents(q).GetByIDForUpdate(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("load incident: %w", err)
		}
		if inc == nil {
			return status.Error(codes.NotFound, "incident not found")
		}
		if inc.TenantID != tenantID {
			return status.Error(codes.PermissionDenied, "incident belongs to a different tenant")
		}
		if inc.Status != incidentdomain.IncidentStatusActive {
			return status.Error(codes.FailedPrecondition, "incident is closed")
		}
		if !inc.Commanded() {
			return status.Error(codes.FailedPrecondition, "incident is uncommanded; take command directly")
		}
		if inc.CommanderUserID == userID {
			return status.Error(codes.FailedPrecondition, "caller is already the commander")
		}
		pending, err := s.requests(q).GetPendingByIncident(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("check pending request: %w", err)
		}
		if pending != nil {
			return status.Error(codes.AlreadyExists, "a command request is already pending for this incident")
		}
		req.CurrentCommanderID = inc.CommanderUserID
		return s.requests(q).Create(ctx, req)
	})
	if err != nil {
		return nil, grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, userID, "command.request", "command_request", req.ID)
	}
	return req, nil
}

// Approve transfers command to the requester. Only the commander recorded on
// the request may approve; the transfer reuses the incident's license slot.
func (s *Service) Approve(ctx context.Context, requestID, approverID, tenantID string) error {
	return s.resolve(ctx, requestID, approverID, tenantID, true)
}

// Deny marks the request denied. Only the commander recorded on the request may
// deny; the requester's client observes the flip via the change feed.
func (s *Service) Deny(ctx context.Context, requestID, approverID, tenantID string) error {
	return s.resolve(ctx, requestID, approverID, tenantID, false)
}

func (s *Service) resolve(ctx context.Context, requestID, approverID, tenantID string, approve bool) error {
	if requestID == "" {
		return status.Error(codes.InvalidArgument, "request id is required")
	}
	var incidentID string
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		requests := s.requests(q)
		req, err := requests.GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if req == nil || req.TenantID != tenantID {
			return status.Error(codes.NotFound, "command request not found")
		}
		if req.CurrentCommanderID != approverID {
			return status.Error(codes.PermissionDenied, "only the recorded commander may resolve the request")
		}
		if !req.Pending() {
			return status.Error(codes.FailedPrecondition, "command request is already resolved")
		}
		now := s.clock().UTC()
		if !approve {
			return requests.Resolve(ctx, requestID, domain.RequestStatusDenied, now)
		}

		incidents := s.incidents(q)
		inc, err := incidents.GetByIDForUpdate(ctx, req.IncidentID)
		if err != nil {
			return fmt.Errorf("load incident: %w", err)
		}
		if inc == nil || inc.Status != incidentdomain.IncidentStatusActive {
			return status.Error(codes.FailedPrecondition, "incident is no longer active")
		}
		// The command may have been reclaimed or transferred since the request
		// was filed; a transfer from anyone but the approver is stale.
		if inc.CommanderUserID != approverID {
			return status.Error(codes.FailedPrecondition, "command changed since the request was filed")
		}
		incidentID = inc.ID
		if err := incidents.SetCommander(ctx, inc.ID, req.RequesterUserID, req.RequesterSessionID, now); err != nil {
			return fmt.Errorf("transfer command: %w", err)
		}
		return requests.Resolve(ctx, requestID, domain.RequestStatusApproved, now)
	})
	if err != nil {
		return grpcerr.FromTx(err)
	}
	if s.auditLog != nil {
		if approve {
			s.auditLog.LogEvent(ctx, tenantID, approverID, "command.transfer", "incident", incidentID)
		} else {
			s.auditLog.LogEvent(ctx, tenantID, approverID, "command.deny", "command_request", requestID)
		}
	}
	return nil
}

// Cancel withdraws the caller's own pending request. Relief valve for an
// unresponsive commander; the hourly reaper expires abandoned requests too.
func (s *Service) Cancel(ctx context.Context, requestID, userID, tenantID string) error {
	if requestID == "" {
		return status.Error(codes.InvalidArgument, "request id is required")
	}
	err := s.tx.WithTx(ctx, func(q db.Querier) error {
		requests := s.requests(q)
		req, err := requests.GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if req == nil || req.TenantID != tenantID {
			return status.Error(codes.NotFound, "command request not found")
		}
		if req.RequesterUserID != userID {
			return status.Error(codes.PermissionDenied, "only the requester may cancel the request")
		}
		if !req.Pending() {
			return status.Error(codes.FailedPrecondition, "command request is already resolved")
		}
		return requests.Resolve(ctx, requestID, domain.RequestStatusDenied, s.clock().UTC())
	})
	return grpcerr.FromTx(err)
}

// ListPendingForCommander returns pending requests awaiting the caller's decision.
func (s *Service) ListPendingForCommander(ctx context.Context, tenantID, commanderID string) ([]*domain.CommandRequest, error) {
	list, err := s.requests(s.plain).ListPendingForCommander(ctx, tenantID, commanderID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list pending requests: %v", err)
	}
	return list, nil
}
