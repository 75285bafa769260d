package auth

// UserRole is the user's role
type UserRole string

const (
	// RoleStore is a store account (i.e. place and track its own orders)
	RoleStore UserRole = "store"
	// RoleDistributor runs delivery routes (i.e. view stores, update deliveries)
	RoleDistributor UserRole = "distributor"
	// RoleAdmin manages products, routes, payments and sessions
	RoleAdmin UserRole = "admin"
)

var roleHierarchy = map[UserRole]int{
	RoleStore:       0,
	RoleDistributor: 1,
	RoleAdmin:       2,
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
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

// In reports whether the role is in the allowed set.
// An empty set allows every valid role.
func (r UserRole) In(allowed ...UserRole) bool {
	if !r.IsValid() {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleStore,
		RoleDistributor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
