package domain

// Role identifies what a viewer is allowed to see and do. Admin viewers see
// every ticket; customers see only their own.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Viewer is the authenticated identity a ticket feed or handler acts for.
type Viewer struct {
	Email string
	Role  Role
}

// IsAdmin reports whether the viewer holds the admin role.
func (v Viewer) IsAdmin() bool {
	return v.Role == RoleAdmin
}
