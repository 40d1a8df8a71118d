package domain

import "time"

// AuditLog is one immutable audit trail entry for a session or command action.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}
