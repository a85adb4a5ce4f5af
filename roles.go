package auth

// UserRole is the identity's role within the role hierarchy
type UserRole string

const (
	// RoleGuest can only view
	RoleGuest UserRole = "guest"
	// RoleMember can view and edit
	RoleMember UserRole = "member"
	// RoleAdmin can view, edit and create
	RoleAdmin UserRole = "admin"
	// RoleOwner has every permission
	RoleOwner UserRole = "owner"
)

var roleHierarchy = map[UserRole]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level. Unknown
// roles never meet any level.
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleGuest,
		RoleMember,
		RoleAdmin,
		RoleOwner,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
