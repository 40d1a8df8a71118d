package domain

import "time"

// CommandRequest is a pending handoff: a non-commander asking the recorded
// commander for control of an incident. At most one pending request exists per
// incident; resolution transitions pending → approved or denied.
type CommandRequest struct {
	ID                 string
	IncidentID         string
	TenantID           string
	RequesterUserID    string
	RequesterSessionID string
	CurrentCommanderID string
	Status             RequestStatus
	RequestedAt        time.Time
	ResolvedAt         *time.Time // nil while pending
}

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

// Pending reports whether the request is still awaiting resolution.
func (r *CommandRequest) Pending() bool {
	return r.Status == RequestStatusPending
}
