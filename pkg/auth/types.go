package auth

// Role represents a platform role assigned through the identity provider
type Role string

const (
	RoleCustomer   Role = "customer"   // Default role for registered users
	RoleVendor     Role = "vendor"     // Approved sellers
	RoleAdmin      Role = "admin"      // Platform administration
	RoleSuperAdmin Role = "superadmin" // Role management and destructive operations
)

// ValidRole reports whether a role string is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Identity holds the verified caller information attached to a request.
// It is ephemeral: built per request from the token cache or a fresh
// verification, never persisted.
type Identity struct {
	SubjectID     string `json:"sub"`
	Email         string `json:"email,omitempty"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	Roles         []Role `json:"roles"`

	// RawToken is the bearer token this identity was derived from.
	// Never serialized.
	RawToken string `json:"-"`
}

// HasRole checks exact role membership. There is no implicit hierarchy:
// an admin does not satisfy a vendor check.
func (id *Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks whether the identity holds at least one of the roles.
func (id *Identity) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if id.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity holds an administrative role.
func (id *Identity) IsAdmin() bool {
	return id.HasAnyRole(RoleAdmin, RoleSuperAdmin)
}
