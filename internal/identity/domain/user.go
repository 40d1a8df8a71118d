package domain

import (
	"errors"
	"time"
)

// User is a responder account. Each user belongs to exactly one tenant and
// carries a license tier that shapes lockout behavior when another of their
// sessions holds command.
type User struct {
	ID           string
	TenantID     string
	Email        string
	Name         string
	PasswordHash string
	LicenseTier  LicenseTier
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// LicenseTier is the per-user product tier.
type LicenseTier string

const (
	// TierEssentials is the restricted tier: a second device of a commanding
	// user is hard locked out of the board.
	TierEssentials LicenseTier = "essentials"
	// TierProfessional allows a second device to proceed in view-only mode.
	TierProfessional LicenseTier = "professional"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if u.LicenseTier == "" {
		u.LicenseTier = TierEssentials
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
