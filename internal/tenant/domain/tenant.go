package domain

import (
	"errors"
	"time"
)

// Tenant represents one customer organization and its concurrency quotas.
// MaxTotalSessions bounds concurrent device sessions across the tenant;
// MaxCommandLicenses bounds how many active incidents may be commanded at once.
type Tenant struct {
	ID                 string
	Name               string
	Status             TenantStatus
	MaxTotalSessions   int
	MaxCommandLicenses int
	CreatedAt          time.Time
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Validate validates the tenant for persistence. Returns an error describing the first validation failure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.MaxTotalSessions <= 0 {
		return errors.New("max total sessions must be positive")
	}
	if t.MaxCommandLicenses <= 0 {
		return errors.New("max command licenses must be positive")
	}
	if t.Status == "" {
		t.Status = TenantStatusActive
	}
	return nil
}
