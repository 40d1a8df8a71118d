// Package monitor implements the client-side session monitor: the affordance
// decision table a board client applies to its own standing, and the loop that
// keeps that standing current via heartbeats and the change feed.
package monitor

// Mode is how a client should render the board.
type Mode string

const (
	// ModeFull means the board is fully interactive.
	ModeFull Mode = "full"
	// ModeViewOnly means the board should render read-only with a banner.
	ModeViewOnly Mode = "view_only"
	// ModeLockedOut means the board must be replaced with a lockout screen.
	ModeLockedOut Mode = "locked_out"
)

// Standing is the raw facts the decision table operates on, as observed for
// one incident from one session.
type Standing struct {
	Commanded   bool   // the incident has a recorded commander
	SameUser    bool   // the commander is this user
	SameSession bool   // the commander session is this session
	LicenseTier string // this user's license tier
}

// Decision is the resolved set of affordances for one incident view.
type Decision struct {
	Mode              Mode
	IsCommander       bool // this session holds command
	CanTakeCommand    bool
	CanRequestCommand bool
	CanReestablish    bool
}

// Decide resolves the affordances for a standing. The only state that locks a
// client out is its own user commanding from elsewhere on an essentials
// license; a professional license in the same position gets a view-only
// recommendation with the option to pull command back.
func Decide(s Standing) Decision {
	switch {
	case !s.Commanded:
		return Decision{Mode: ModeFull, CanTakeCommand: true}
	case s.SameUser && s.SameSession:
		return Decision{Mode: ModeFull, IsCommander: true}
	case s.SameUser:
		// Command is held by another session of the same user.
		if s.LicenseTier == "essentials" {
			return Decision{Mode: ModeLockedOut, CanReestablish: true}
		}
		return Decision{Mode: ModeViewOnly, CanReestablish: true}
	default:
		return Decision{Mode: ModeFull, CanRequestCommand: true}
	}
}
