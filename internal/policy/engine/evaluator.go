// Package engine evaluates the lockout policy applied when a user's other
// session holds incident command: restricted tiers are hard locked out of the
// board on additional devices, higher tiers are steered to view-only.
package engine

import "context"

// LockoutMode is the policy outcome for a non-commanding session of a commanding user.
type LockoutMode string

const (
	LockoutModeLockedOut LockoutMode = "locked_out"
	LockoutModeViewOnly  LockoutMode = "view_only_recommended"
)

// LockoutInput describes the caller whose session standing is being evaluated.
type LockoutInput struct {
	LicenseTier string
	IncidentID  string
}

// LockoutDecision is the evaluated outcome plus a user-facing message.
type LockoutDecision struct {
	Mode    LockoutMode
	Message string
}

// Evaluator decides the lockout mode for a session.
type Evaluator interface {
	EvaluateLockout(ctx context.Context, in LockoutInput) (LockoutDecision, error)
}
