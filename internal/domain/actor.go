package domain

// Role is the coarse permission class decided by the upstream auth layer.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleRequester Role = "requester"
)

// Actor identifies who performs an operation. Token verification happens
// upstream; the engine only records the identity and applies the role rule
// on status transitions.
type Actor struct {
	ID   string
	Role Role
}

// Anonymous is the actor recorded when the caller supplied no identity.
var Anonymous = Actor{ID: "anonymous", Role: RoleRequester}

// CanProcess reports whether the actor may drive request transitions other
// than a requester cancelling their own pending request.
func (a Actor) CanProcess() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
