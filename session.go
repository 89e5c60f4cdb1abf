package session

import "fmt"

// SessionState labels the machine's coarse states. AuthError is a
// sub-state of Anonymous carrying a message.
type SessionState string

const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateAuthError      SessionState = "auth_error"
)

// Snapshot is a point-in-time, read-only copy of the session. All
// mutation goes through the Manager's transitions.
type Snapshot struct {
	User            *User  `json:"user,omitempty"`
	Token           string `json:"-"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsLoading       bool   `json:"is_loading"`
	Error           string `json:"error,omitempty"`
}

// State derives the machine state from the snapshot fields.
func (s Snapshot) State() SessionState {
	switch {
	case s.IsLoading:
		return StateAuthenticating
	case s.IsAuthenticated:
		return StateAuthenticated
	case s.Error != "":
		return StateAuthError
	default:
		return StateAnonymous
	}
}

// HasRole checks if the session user has a specific role
func (s Snapshot) HasRole(role UserRole) bool {
	return HasRole(s.User, role)
}

// HasAnyRole checks if the session user has any of the given roles
func (s Snapshot) HasAnyRole(roles ...UserRole) bool {
	return HasAnyRole(s.User, roles...)
}

// HasPermission checks if the session user carries the given permission
func (s Snapshot) HasPermission(permission string) bool {
	return HasPermission(s.User, permission)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.User = s.User.Clone()
	return out
}

func (s Snapshot) String() string {
	email := "<nil>"
	role := "<nil>"
	if s.User != nil {
		email = s.User.Email
		role = string(s.User.Role)
	}
	// token stays out of logs
	return fmt.Sprintf(
		"state=%s user=%s role=%s token_set=%t err=%q",
		s.State(),
		email,
		role,
		s.Token != "",
		s.Error,
	)
}
