package session

import (
	"context"

	"github.com/goliatone/go-router"
)

// RouterUserKey is where the guard stores the session user in router
// locals for allowed navigations.
const RouterUserKey = "session_user"

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithUserContext sets the User in the given context
func WithUserContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// GetRouterUser extracts the session user from the router context
func GetRouterUser(ctx router.Context, key string) (*User, bool) {
	if key == "" {
		key = RouterUserKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*User)
	return user, ok && user != nil
}
