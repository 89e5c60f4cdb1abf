package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Gateway is the remote authentication service consumed by the Manager.
// Implementations exchange credentials for a bearer token and keep a
// default Authorization header for subsequent calls.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*Credentials, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*Credentials, error)
	Register(ctx context.Context, msg RegisterUserMessage) (*User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*User, error)
	SetAuthToken(token string)
}

// Credentials is the successful result of a credential exchange.
type Credentials struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// TokenStore persists the bearer token and user record across restarts.
// Load returns (nil, nil) when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (*StoredCredentials, error)
	Save(ctx context.Context, creds *StoredCredentials) error
	Clear(ctx context.Context) error
}

// StoredCredentials is the persisted shape: two values, a bearer token
// and the serialized user record.
type StoredCredentials struct {
	Token string
	User  *User
}

// Config holds the guard's navigation options
type Config interface {
	GetLoginRoute() string
	GetUnauthorizedRoute() string
	GetVerifyEmailRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
