// Package service authenticates responders and binds credentials to sessions.
// Login runs session admission, so the tenant session quota is enforced at the
// front door.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/identity/domain"
	"incident-command-plane/internal/security"
	sessiondomain "incident-command-plane/internal/session/domain"
)

var (
	// ErrInvalidCredentials is returned when email, password, or account state is invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken is returned when a refresh token is missing, invalid, or rotated out.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// AuthResult carries the issued token pair and the resolved identity.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    string
	UserID       string
	TenantID     string
	LicenseTier  string
}

// UserRepo is the slice of the user repository the auth service needs.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// SessionManager is the slice of the session manager the auth service needs.
// Create runs the full admission hierarchy.
type SessionManager interface {
	Create(ctx context.Context, userID, tenantID string) (*sessiondomain.Session, error)
	End(ctx context.Context, sessionID, userID string) error
}

// SessionRepo covers the direct session reads and refresh-rotation writes.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
}

// AuthService implements login, refresh rotation, and logout.
type AuthService struct {
	users    UserRepo
	sessions SessionManager
	sessRepo SessionRepo
	tokens   *security.TokenProvider
	hasher   *security.Hasher
}

// NewAuthService wires the auth service.
func NewAuthService(users UserRepo, sessions SessionManager, sessRepo SessionRepo, tokens *security.TokenProvider, hasher *security.Hasher) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		sessRepo: sessRepo,
		tokens:   tokens,
		hasher:   hasher,
	}
}

// Login authenticates with email/password, admits a session, and returns tokens.
// Admission failures (tenant at capacity with nothing evictable) surface as the
// session manager's permission-denied.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != domain.UserStatusActive || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, sess.ID, user)
}

// Refresh validates the refresh token against the session record, rotates it,
// and returns a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, userID, _, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != userID || sess.RefreshJti != jti {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != domain.UserStatusActive {
		return nil, ErrInvalidRefreshToken
	}
	if err := s.sessRepo.UpdateLastActive(ctx, sessionID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.issue(ctx, sessionID, user)
}

// Logout validates the refresh token and ends its session. Ending an
// already-gone session succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}
	sessionID, _, userID, _, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	if err := s.sessions.End(ctx, sessionID, userID); err != nil {
		// An already-deleted session is a successful logout.
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, sessionID string, user *domain.User) (*AuthResult, error) {
	refreshToken, jti, _, err := s.tokens.IssueRefresh(sessionID, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(security.Identity{
		SessionID:   sessionID,
		UserID:      user.ID,
		TenantID:    user.TenantID,
		LicenseTier: string(user.LicenseTier),
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessRepo.UpdateRefreshToken(ctx, sessionID, jti, security.HashRefreshToken(refreshToken)); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		SessionID:    sessionID,
		UserID:       user.ID,
		TenantID:     user.TenantID,
		LicenseTier:  string(user.LicenseTier),
	}, nil
}
