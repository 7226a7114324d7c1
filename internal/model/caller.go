package model

// Role is the caller's role as asserted by the authentication layer.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Caller is an already-authenticated identity.
type Caller struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller carries the administrative role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
