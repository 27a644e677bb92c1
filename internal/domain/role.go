package domain

// Role is the resolved authorization level of a connection. Connections
// without a verified auth token are guests; verified users carry the role
// stored by the account service.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleClient    Role = "client"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// IsValidRole checks if a role is one of the known levels.
func IsValidRole(r Role) bool {
	switch r {
	case RoleGuest, RoleClient, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff returns true for roles that bypass the content filter and may use
// moderation operations.
func (r Role) IsStaff() bool {
	return r == RoleModerator || r == RoleAdmin
}

// IsAdmin returns true for the admin role only.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
