package domain

// Actor identifies who initiated a membership transition: a user or the
// system itself (e.g. automatic waitlist promotion). The zero value is not
// valid; use UserActor or SystemActor.
type Actor struct {
	userID string
	system bool
}

// UserActor returns an Actor for the given user.
func UserActor(userID string) Actor {
	return Actor{userID: userID}
}

// SystemActor returns the Actor used for system-initiated transitions.
func SystemActor() Actor {
	return Actor{system: true}
}

// IsSystem reports whether this is a system action.
func (a Actor) IsSystem() bool {
	return a.system
}

// IsZero reports whether the actor is unset (no user and not system).
func (a Actor) IsZero() bool {
	return !a.system && a.userID == ""
}

// UserID returns the acting user's ID, or ok=false for system actions.
func (a Actor) UserID() (string, bool) {
	if a.system || a.userID == "" {
		return "", false
	}
	return a.userID, true
}
