package session

import "time"

// UserRole is the user's portal role
type UserRole string

const (
	// RoleUser is a regular portal account (i.e. submit documents)
	RoleUser UserRole = "user"
	// RoleVerifier reviews and verifies submitted documents
	RoleVerifier UserRole = "verifier"
	// RoleAdmin subsumes every other role and every permission check
	RoleAdmin UserRole = "admin"
)

// User is the portal user record as returned by the gateway
type User struct {
	ID          int64      `json:"id,omitempty"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	Phone       string     `json:"phone_number,omitempty"`
	Role        UserRole   `json:"role,omitempty"`
	IsVerified  bool       `json:"is_verified,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Clone returns a deep copy so snapshot readers cannot mutate the
// session's user record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	out := *u
	if u.Permissions != nil {
		out.Permissions = append([]string(nil), u.Permissions...)
	}
	if u.CreatedAt != nil {
		createdAt := *u.CreatedAt
		out.CreatedAt = &createdAt
	}
	return &out
}

// RegisterUserMessage carries the registration payload sent to the
// gateway. Registration never authenticates the session; the created
// account still requires email verification.
type RegisterUserMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone_number"`
}

func (e RegisterUserMessage) Type() string { return "auth.register" }

// ProfileUpdate carries the mutable profile fields. Pointer fields are
// omitted when nil so the gateway only touches what was provided.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone_number,omitempty"`
	Email    *string `json:"email,omitempty"`
}
