package session

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleVerifier, RoleAdmin:
		return true
	default:
		return false
	}
}

// AllRoles returns all predefined roles; a requirement built from this
// set admits any authenticated user.
func AllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleVerifier,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}

// HasRole reports whether the user holds the given role. Admin
// short-circuits every role check to granted.
func HasRole(user *User, role UserRole) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	return user.Role == role
}

// HasAnyRole reports whether the user holds any of the given roles.
// Admin is granted regardless of the set, including the empty set; for
// any other role the empty set denies.
func HasAnyRole(user *User, roles ...UserRole) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	for _, role := range roles {
		if user.Role == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user carries the given fine-grained
// permission. Admin is granted every permission.
func HasPermission(user *User, permission string) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	for _, p := range user.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
