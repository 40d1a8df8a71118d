package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/handoff/domain"
	handoffrepo "incident-command-plane/internal/handoff/repository"
	incidentdomain "incident-command-plane/internal/incident/domain"
	incidentrepo "incident-command-plane/internal/incident/repository"
	sessiondomain "incident-command-plane/internal/session/domain"
	sessionrepo "incident-command-plane/internal/session/repository"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(q db.Querier) error) error {
	return fn(nil)
}

type memRequestRepo struct {
	mu sync.Mutex
	m  map[string]*domain.CommandRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{m: make(map[string]*domain.CommandRequest)}
}

var _ handoffrepo.Repository = (*memRequestRepo)(nil)

func (r *memRequestRepo) GetByID(ctx context.Context, id string) (*domain.CommandRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memRequestRepo) GetPendingByIncident(ctx context.Context, incidentID string) (*domain.CommandRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.m {
		if req.IncidentID == incidentID && req.Status == domain.RequestStatusPending {
			return req, nil
		}
	}
	return nil, nil
}

func (r *memRequestRepo) ListPendingForCommander(ctx context.Context, tenantID, commanderID string) ([]*domain.CommandRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CommandRequest
	for _, req := range r.m {
		if req.TenantID == tenantID && req.CurrentCommanderID == commanderID && req.Status == domain.RequestStatusPending {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memRequestRepo) Create(ctx context.Context, req *domain.CommandRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r2 := *req
	r.m[req.ID] = &r2
	return nil
}

func (r *memRequestRepo) Resolve(ctx context.Context, id string, st domain.RequestStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.m[id]; ok && req.Status == domain.RequestStatusPending {
		req.Status = st
		req.ResolvedAt = &at
	}
	return nil
}

func (r *memRequestRepo) ExpirePendingBefore(ctx context.Context, cutoff, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.m {
		if req.Status == domain.RequestStatusPending && req.RequestedAt.Before(cutoff) {
			req.Status = domain.RequestStatusDenied
			req.ResolvedAt = &at
			n++
		}
	}
	return n, nil
}

type memIncidentRepo struct {
	mu sync.Mutex
	m  map[string]*incidentdomain.Incident
}

var _ incidentrepo.Repository = (*memIncidentRepo)(nil)

func (r *memIncidentRepo) GetByID(ctx context.Context, id string) (*incidentdomain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memIncidentRepo) GetByIDForUpdate(ctx context.Context, id string) (*incidentdomain.Incident, error) {
	return r.GetByID(ctx, id)
}

func (r *memIncidentRepo) Create(ctx context.Context, i *incidentdomain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[i.ID] = i
	return nil
}

func (r *memIncidentRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]*incidentdomain.Incident, error) {
	return nil, nil
}

func (r *memIncidentRepo) CountCommanded(ctx context.Context, tenantID string) (int, error) {
	return 0, nil
}

func (r *memIncidentRepo) FindCommandedByUser(ctx context.Context, tenantID, userID string) (*incidentdomain.Incident, error) {
	return nil, nil
}

func (r *memIncidentRepo) SetCommander(ctx context.Context, id, userID, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.CommanderUserID = userID
		i.CommanderSessionID = sessionID
		i.UpdatedAt = at
	}
	return nil
}

func (r *memIncidentRepo) SetCommanderSession(ctx context.Context, id, sessionID string, at time.Time) error {
	return nil
}

func (r *memIncidentRepo) ClearCommander(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (r *memIncidentRepo) Close(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.Status = incidentdomain.IncidentStatusClosed
		i.CommanderUserID = ""
		i.CommanderSessionID = ""
	}
	return nil
}

func (r *memIncidentRepo) ListWithStaleCommander(ctx context.Context, cutoff time.Time) ([]*incidentdomain.Incident, error) {
	return nil, nil
}

type memSessionRepo struct {
	m map[string]*sessiondomain.Session
}

var _ sessionrepo.Repository = (*memSessionRepo)(nil)

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	return r.m[id], nil
}

func (r *memSessionRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	return 0, nil
}

func (r *memSessionRepo) ListByTenant(ctx context.Context, tenantID string) ([]*sessiondomain.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	return nil
}

func (r *memSessionRepo) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (r *memSessionRepo) UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error {
	return nil
}

func (r *memSessionRepo) OldestEvictable(ctx context.Context, tenantID string, cutoff time.Time) (*sessiondomain.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) DeleteLastActiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

type fixture struct {
	svc       *Service
	requests  *memRequestRepo
	incidents *memIncidentRepo
}

func newFixture(now time.Time) *fixture {
	requests := newMemRequestRepo()
	incidents := &memIncidentRepo{m: map[string]*incidentdomain.Incident{
		"inc1": {
			ID: "inc1", TenantID: "t1", Status: incidentdomain.IncidentStatusActive,
			CommanderUserID: "u1", CommanderSessionID: "s1",
		},
	}}
	sessions := &memSessionRepo{m: map[string]*sessiondomain.Session{
		"s1": {ID: "s1", UserID: "u1", TenantID: "t1", LastActiveAt: now},
		"s2": {ID: "s2", UserID: "u2", TenantID: "t1", LastActiveAt: now},
	}}
	svc := &Service{
		tx:        stubTx{},
		requests:  func(db.Querier) handoffrepo.Repository { return requests },
		incidents: func(db.Querier) incidentrepo.Repository { return incidents },
		sessions:  func(db.Querier) sessionrepo.Repository { return sessions },
		clock:     func() time.Time { return now },
		newID:     func() string { return "req-1" },
	}
	return &fixture{svc: svc, requests: requests, incidents: incidents}
}

func TestRequestAndApproveTransfersCommand(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)

	req, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.CurrentCommanderID != "u1" {
		t.Fatalf("CurrentCommanderID = %q, want u1", req.CurrentCommanderID)
	}

	// Incident must remain commanded by u1 while the request is pending.
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderUserID != "u1" {
		t.Fatal("command must not move before approval")
	}

	if err := f.svc.Approve(context.Background(), req.ID, "u1", "t1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	inc, _ = f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderUserID != "u2" || inc.CommanderSessionID != "s2" {
		t.Fatalf("commander after approval = %s/%s, want u2/s2", inc.CommanderUserID, inc.CommanderSessionID)
	}
	got, _ := f.requests.GetByID(context.Background(), req.ID)
	if got.Status != domain.RequestStatusApproved || got.ResolvedAt == nil {
		t.Fatalf("request after approval = %+v, want approved with ResolvedAt", got)
	}
}

func TestRequestDuplicatePending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)

	if _, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1"); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate Request = %v, want AlreadyExists", err)
	}
}

func TestRequestPreconditions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("uncommanded incident", func(t *testing.T) {
		f := newFixture(now)
		f.incidents.m["inc1"].CommanderUserID = ""
		f.incidents.m["inc1"].CommanderSessionID = ""
		if _, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1"); status.Code(err) != codes.FailedPrecondition {
			t.Fatalf("Request = %v, want FailedPrecondition", err)
		}
	})

	t.Run("requester is the commander", func(t *testing.T) {
		f := newFixture(now)
		if _, err := f.svc.Request(context.Background(), "inc1", "s1", "u1", "t1"); status.Code(err) != codes.FailedPrecondition {
			t.Fatalf("Request = %v, want FailedPrecondition", err)
		}
	})

	t.Run("closed incident", func(t *testing.T) {
		f := newFixture(now)
		f.incidents.m["inc1"].Status = incidentdomain.IncidentStatusClosed
		if _, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1"); status.Code(err) != codes.FailedPrecondition {
			t.Fatalf("Request = %v, want FailedPrecondition", err)
		}
	})

	t.Run("borrowed session", func(t *testing.T) {
		f := newFixture(now)
		if _, err := f.svc.Request(context.Background(), "inc1", "s1", "u2", "t1"); status.Code(err) != codes.PermissionDenied {
			t.Fatalf("Request = %v, want PermissionDenied", err)
		}
	})
}

func TestResolveAuthorization(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	req, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Neither the requester nor a bystander may resolve.
	if err := f.svc.Approve(context.Background(), req.ID, "u2", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Approve by requester = %v, want PermissionDenied", err)
	}
	if err := f.svc.Deny(context.Background(), req.ID, "u3", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Deny by bystander = %v, want PermissionDenied", err)
	}
	// Wrong tenant never learns the request exists.
	if err := f.svc.Approve(context.Background(), req.ID, "u1", "t2"); status.Code(err) != codes.NotFound {
		t.Fatalf("Approve from other tenant = %v, want NotFound", err)
	}
}

func TestDenyLeavesCommandInPlace(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	req, _ := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1")

	if err := f.svc.Deny(context.Background(), req.ID, "u1", "t1"); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderUserID != "u1" {
		t.Fatal("deny must not move command")
	}
	got, _ := f.requests.GetByID(context.Background(), req.ID)
	if got.Status != domain.RequestStatusDenied {
		t.Fatalf("request status = %q, want denied", got.Status)
	}

	// A resolved request cannot be resolved again.
	if err := f.svc.Approve(context.Background(), req.ID, "u1", "t1"); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("Approve after deny = %v, want FailedPrecondition", err)
	}
}

func TestApproveStaleAfterCommandChanged(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	req, _ := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1")

	// Command was reclaimed by someone else between filing and approval.
	f.incidents.m["inc1"].CommanderUserID = "u3"
	f.incidents.m["inc1"].CommanderSessionID = "s3"

	if err := f.svc.Approve(context.Background(), req.ID, "u1", "t1"); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("Approve after command change = %v, want FailedPrecondition", err)
	}
	if f.incidents.m["inc1"].CommanderUserID != "u3" {
		t.Fatal("stale approval must not move command")
	}
}

func TestCancel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	req, _ := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1")

	if err := f.svc.Cancel(context.Background(), req.ID, "u1", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Cancel by non-requester = %v, want PermissionDenied", err)
	}
	if err := f.svc.Cancel(context.Background(), req.ID, "u2", "t1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := f.requests.GetByID(context.Background(), req.ID)
	if got.Status != domain.RequestStatusDenied {
		t.Fatalf("request status after cancel = %q, want denied", got.Status)
	}
}

func TestListPendingForCommander(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	if _, err := f.svc.Request(context.Background(), "inc1", "s2", "u2", "t1"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	list, err := f.svc.ListPendingForCommander(context.Background(), "t1", "u1")
	if err != nil {
		t.Fatalf("ListPendingForCommander: %v", err)
	}
	if len(list) != 1 || list[0].RequesterUserID != "u2" {
		t.Fatalf("pending list = %+v, want one request from u2", list)
	}

	if list, _ := f.svc.ListPendingForCommander(context.Background(), "t1", "u2"); len(list) != 0 {
		t.Fatal("requester must not see the request as its approver")
	}
}
