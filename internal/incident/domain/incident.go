package domain

import (
	"errors"
	"time"
)

// Incident is the shared workspace record. The commander fields are either both
// empty (uncommanded) or both set: CommanderSessionID references a live session
// owned by CommanderUserID. The incident row itself is the lock for all command
// transitions.
type Incident struct {
	ID                 string
	TenantID           string
	Number             string
	Name               string
	Status             IncidentStatus
	CommanderUserID    string
	CommanderSessionID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time // nil while the incident is active
}

type IncidentStatus string

const (
	IncidentStatusActive IncidentStatus = "active"
	IncidentStatusClosed IncidentStatus = "closed"
)

// Commanded reports whether the incident currently has a recorded commander.
func (i *Incident) Commanded() bool {
	return i.CommanderUserID != ""
}

// Validate validates the incident for persistence. Returns an error describing the first validation failure.
func (i *Incident) Validate() error {
	if i.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if i.Status == "" {
		i.Status = IncidentStatusActive
	}
	if (i.CommanderUserID == "") != (i.CommanderSessionID == "") {
		return errors.New("commander user and session must be set together")
	}
	return nil
}
