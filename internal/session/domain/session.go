package domain

import "time"

// Session represents one authenticated device or browser instance. Created on
// login, refreshed by heartbeat, deleted on logout, eviction, or reaping.
type Session struct {
	ID               string
	UserID           string
	TenantID         string
	RefreshJti       string // current refresh token jti for rotation; empty if not set
	RefreshTokenHash string // SHA-256 hash of current refresh token
	LoginAt          time.Time
	LastActiveAt     time.Time
}

// StaleAfter reports whether the session has been inactive longer than d as of now.
func (s *Session) StaleAfter(now time.Time, d time.Duration) bool {
	return now.Sub(s.LastActiveAt) > d
}

// SessionStatus is the result of a session standing check.
type SessionStatus string

const (
	// StatusOK means the session may operate the board normally.
	StatusOK SessionStatus = "ok"
	// StatusLockedOut means another session of the same user holds command and
	// the caller's license tier forbids board access from this device.
	StatusLockedOut SessionStatus = "locked_out"
	// StatusViewOnlyRecommended means another session of the same user holds
	// command; this device should render read-only but is not blocked.
	StatusViewOnlyRecommended SessionStatus = "view_only_recommended"
)
