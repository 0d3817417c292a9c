package authz

// Actor is the caller of a command, taken from verified credential claims.
// Unauthenticated callers are the Guest actor.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// Guest returns the actor used when a request carries no credential.
func Guest() Actor {
	return Actor{Role: RoleGuest}
}

// IsGuest reports whether a is unauthenticated.
func (a Actor) IsGuest() bool {
	return a.Role == RoleGuest || a.Role == ""
}
