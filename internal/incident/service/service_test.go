package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/db"
	"incident-command-plane/internal/incident/domain"
	incidentrepo "incident-command-plane/internal/incident/repository"
	sessiondomain "incident-command-plane/internal/session/domain"
	sessionrepo "incident-command-plane/internal/session/repository"
	tenantdomain "incident-command-plane/internal/tenant/domain"
	tenantrepo "incident-command-plane/internal/tenant/repository"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(q db.Querier) error) error {
	return fn(nil)
}

type memIncidentRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Incident
}

func newMemIncidentRepo() *memIncidentRepo {
	return &memIncidentRepo{m: make(map[string]*domain.Incident)}
}

var _ incidentrepo.Repository = (*memIncidentRepo)(nil)

func (r *memIncidentRepo) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memIncidentRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Incident, error) {
	return r.GetByID(ctx, id)
}

func (r *memIncidentRepo) Create(ctx context.Context, i *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i2 := *i
	r.m[i.ID] = &i2
	return nil
}

func (r *memIncidentRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Incident
	for _, i := range r.m {
		if i.TenantID == tenantID && i.Status == domain.IncidentStatusActive {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *memIncidentRepo) CountCommanded(ctx context.Context, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, i := range r.m {
		if i.TenantID == tenantID && i.Status == domain.IncidentStatusActive && i.CommanderUserID != "" {
			n++
		}
	}
	return n, nil
}

func (r *memIncidentRepo) FindCommandedByUser(ctx context.Context, tenantID, userID string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.TenantID == tenantID && i.Status == domain.IncidentStatusActive && i.CommanderUserID == userID {
			return i, nil
		}
	}
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
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.CommanderSessionID = sessionID
		i.UpdatedAt = at
	}
	return nil
}

func (r *memIncidentRepo) ClearCommander(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.CommanderUserID = ""
		i.CommanderSessionID = ""
		i.UpdatedAt = at
	}
	return nil
}

func (r *memIncidentRepo) Close(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.Status = domain.IncidentStatusClosed
		i.CommanderUserID = ""
		i.CommanderSessionID = ""
		i.ClosedAt = &at
		i.UpdatedAt = at
	}
	return nil
}

func (r *memIncidentRepo) ListWithStaleCommander(ctx context.Context, cutoff time.Time) ([]*domain.Incident, error) {
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
	return len(r.m), nil
}

func (r *memSessionRepo) ListByTenant(ctx context.Context, tenantID string) ([]*sessiondomain.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.m[s.ID] = s
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	delete(r.m, id)
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

type memTenantRepo struct {
	m map[string]*tenantdomain.Tenant
}

var _ tenantrepo.Repository = (*memTenantRepo)(nil)

func (r *memTenantRepo) GetByID(ctx context.Context, id string) (*tenantdomain.Tenant, error) {
	return r.m[id], nil
}

func (r *memTenantRepo) Create(ctx context.Context, t *tenantdomain.Tenant) error {
	return nil
}

func (r *memTenantRepo) List(ctx context.Context) ([]*tenantdomain.Tenant, error) {
	return nil, nil
}

type fixture struct {
	svc       *Service
	incidents *memIncidentRepo
	sessions  *memSessionRepo
}

func newFixture(maxLicenses int, now time.Time) *fixture {
	incidents := newMemIncidentRepo()
	sessions := &memSessionRepo{m: map[string]*sessiondomain.Session{
		"s1": {ID: "s1", UserID: "u1", TenantID: "t1", LastActiveAt: now},
		"s2": {ID: "s2", UserID: "u2", TenantID: "t1", LastActiveAt: now},
	}}
	tenants := &memTenantRepo{m: map[string]*tenantdomain.Tenant{
		"t1": {ID: "t1", Name: "Tenant One", Status: tenantdomain.TenantStatusActive,
			MaxTotalSessions: 10, MaxCommandLicenses: maxLicenses},
	}}
	svc := &Service{
		tx:        stubTx{},
		incidents: func(db.Querier) incidentrepo.Repository { return incidents },
		sessions:  func(db.Querier) sessionrepo.Repository { return sessions },
		tenants:   func(db.Querier) tenantrepo.Repository { return tenants },
		clock:     func() time.Time { return now },
		newID:     func() string { return "new-incident" },
	}
	return &fixture{svc: svc, incidents: incidents, sessions: sessions}
}

func (f *fixture) addIncident(id, commanderUser, commanderSession string) {
	f.incidents.m[id] = &domain.Incident{
		ID: id, TenantID: "t1", Status: domain.IncidentStatusActive,
		CommanderUserID: commanderUser, CommanderSessionID: commanderSession,
	}
}

func TestTakeCommand(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(2, now)
	f.addIncident("inc1", "", "")

	if err := f.svc.TakeCommand(context.Background(), "inc1", "s1", "u1", "t1"); err != nil {
		t.Fatalf("TakeCommand: %v", err)
	}
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderUserID != "u1" || inc.CommanderSessionID != "s1" {
		t.Fatalf("commander = %s/%s, want u1/s1", inc.CommanderUserID, inc.CommanderSessionID)
	}
}

func TestTakeCommandLicenseLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(1, now)
	f.addIncident("inc1", "u2", "s2")
	f.addIncident("inc2", "", "")

	err := f.svc.TakeCommand(context.Background(), "inc2", "s1", "u1", "t1")
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("TakeCommand over license limit = %v, want PermissionDenied", err)
	}
}

func TestTakeCommandSecondIncidentSameUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(5, now)
	f.addIncident("inc1", "u1", "s1")
	f.addIncident("inc2", "", "")

	err := f.svc.TakeCommand(context.Background(), "inc2", "s1", "u1", "t1")
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("TakeCommand of second incident = %v, want FailedPrecondition", err)
	}
}

func TestRetakeOwnIncidentSkipsGates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// License quota is fully consumed, entirely by the caller.
	f := newFixture(1, now)
	f.addIncident("inc1", "u1", "s1")

	// Retaking from a different session of the same user must not trip either
	// gate or consume another license slot.
	f.sessions.m["s1b"] = &sessiondomain.Session{ID: "s1b", UserID: "u1", TenantID: "t1", LastActiveAt: now}
	if err := f.svc.TakeCommand(context.Background(), "inc1", "s1b", "u1", "t1"); err != nil {
		t.Fatalf("TakeCommand (retake): %v", err)
	}
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderSessionID != "s1b" {
		t.Fatalf("commander session = %q, want s1b", inc.CommanderSessionID)
	}
	if n, _ := f.incidents.CountCommanded(context.Background(), "t1"); n != 1 {
		t.Fatalf("commanded count = %d, want 1", n)
	}
}

func TestTakeCommandClosedIncident(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(5, now)
	f.addIncident("inc1", "", "")
	f.incidents.m["inc1"].Status = domain.IncidentStatusClosed

	err := f.svc.TakeCommand(context.Background(), "inc1", "s1", "u1", "t1")
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("TakeCommand on closed incident = %v, want FailedPrecondition", err)
	}
}

func TestTakeCommandWrongSessionOwner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(5, now)
	f.addIncident("inc1", "", "")

	err := f.svc.TakeCommand(context.Background(), "inc1", "s2", "u1", "t1")
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("TakeCommand with someone else's session = %v, want PermissionDenied", err)
	}
}

func TestTakeCommandOtherTenant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(5, now)
	f.incidents.m["inc1"] = &domain.Incident{ID: "inc1", TenantID: "t2", Status: domain.IncidentStatusActive}

	err := f.svc.TakeCommand(context.Background(), "inc1", "s1", "u1", "t1")
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("TakeCommand across tenants = %v, want PermissionDenied", err)
	}
}

func TestStartIncidentBornCommanded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(2, now)

	inc, err := f.svc.StartIncident(context.Background(), "2026-0007", "Brush Fire", "s1", "u1", "t1")
	if err != nil {
		t.Fatalf("StartIncident: %v", err)
	}
	if inc.CommanderUserID != "u1" || inc.CommanderSessionID != "s1" {
		t.Fatalf("commander = %s/%s, want u1/s1", inc.CommanderUserID, inc.CommanderSessionID)
	}
	if inc.Status != domain.IncidentStatusActive {
		t.Fatalf("status = %q, want active", inc.Status)
	}
}

func TestStartIncidentGated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(1, now)
	f.addIncident("inc1", "u2", "s2")

	if _, err := f.svc.StartIncident(context.Background(), "n", "x", "s1", "u1", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("StartIncident over license limit = %v, want PermissionDenied", err)
	}
}

func TestCloseIncident(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(1, now)
	f.addIncident("inc1", "u1", "s1")

	// Only the recorded commander may close.
	if err := f.svc.CloseIncident(context.Background(), "inc1", "u2", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("CloseIncident by non-commander = %v, want PermissionDenied", err)
	}

	if err := f.svc.CloseIncident(context.Background(), "inc1", "u1", "t1"); err != nil {
		t.Fatalf("CloseIncident: %v", err)
	}
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.Status != domain.IncidentStatusClosed || inc.CommanderUserID != "" {
		t.Fatalf("close must clear the commander in the same write; got %+v", inc)
	}

	// Closing releases the license slot.
	f.addIncident("inc2", "", "")
	if err := f.svc.TakeCommand(context.Background(), "inc2", "s2", "u2", "t1"); err != nil {
		t.Fatalf("TakeCommand after close: %v", err)
	}

	if err := f.svc.CloseIncident(context.Background(), "inc1", "u1", "t1"); status.Code(err) != codes.FailedPrecondition {
		t.Fatal("closing an already-closed incident should be a failed precondition")
	}
}

func TestReestablishCommand(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(1, now)
	f.addIncident("inc1", "u1", "dead-session")
	f.sessions.m["s1-new"] = &sessiondomain.Session{ID: "s1-new", UserID: "u1", TenantID: "t1", LastActiveAt: now}

	if err := f.svc.ReestablishCommand(context.Background(), "inc1", "s1-new", "u1", "t1"); err != nil {
		t.Fatalf("ReestablishCommand: %v", err)
	}
	inc, _ := f.incidents.GetByID(context.Background(), "inc1")
	if inc.CommanderSessionID != "s1-new" {
		t.Fatalf("commander session = %q, want s1-new", inc.CommanderSessionID)
	}

	// A different user cannot reestablish someone else's command.
	if err := f.svc.ReestablishCommand(context.Background(), "inc1", "s2", "u2", "t1"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("ReestablishCommand by non-commander = %v, want PermissionDenied", err)
	}
}

func TestGetScopedToTenant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(1, now)
	f.addIncident("inc1", "", "")

	if _, err := f.svc.Get(context.Background(), "inc1", "t1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), "inc1", "t2"); status.Code(err) != codes.NotFound {
		t.Fatalf("Get from other tenant = %v, want NotFound", err)
	}
	if _, err := f.svc.Get(context.Background(), "missing", "t1"); status.Code(err) != codes.NotFound {
		t.Fatalf("Get missing = %v, want NotFound", err)
	}
}

// capturingTx records the error the transaction closure hands back, the same
// error WithTx inspects when deciding whether to retry.
type capturingTx struct {
	seen error
}

func (c *capturingTx) WithTx(ctx context.Context, fn func(q db.Querier) error) error {
	c.seen = fn(nil)
	return c.seen
}

type failingIncidentRepo struct {
	*memIncidentRepo
	err error
}

func (r *failingIncidentRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Incident, error) {
	return nil, r.err
}

func TestTakeCommandSerializationFailureStaysRetryable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(2, now)
	f.addIncident("inc1", "", "")

	pgErr := &pgconn.PgError{Code: "40001"}
	tx := &capturingTx{}
	f.svc.tx = tx
	f.svc.incidents = func(db.Querier) incidentrepo.Repository {
		return &failingIncidentRepo{memIncidentRepo: f.incidents, err: pgErr}
	}

	err := f.svc.TakeCommand(context.Background(), "inc1", "s1", "u1", "t1")
	if status.Code(err) != codes.Internal {
		t.Fatalf("TakeCommand = %v, want Internal", err)
	}
	var got *pgconn.PgError
	if !errors.As(tx.seen, &got) || got.Code != "40001" {
		t.Fatalf("transaction runner saw %v, want the serialization failure in the chain", tx.seen)
	}
}
