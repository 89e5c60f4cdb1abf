package session_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	session "github.com/verigov/go-portal-session"
)

// MockGateway implements session.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Login(ctx context.Context, email, password string) (*session.Credentials, error) {
	args := m.Called(ctx, email, password)
	var creds *session.Credentials
	if v := args.Get(0); v != nil {
		creds = v.(*session.Credentials)
	}
	return creds, args.Error(1)
}

func (m *MockGateway) LoginWithGoogle(ctx context.Context, idToken string) (*session.Credentials, error) {
	args := m.Called(ctx, idToken)
	var creds *session.Credentials
	if v := args.Get(0); v != nil {
		creds = v.(*session.Credentials)
	}
	return creds, args.Error(1)
}

func (m *MockGateway) Register(ctx context.Context, msg session.RegisterUserMessage) (*session.User, error) {
	args := m.Called(ctx, msg)
	var user *session.User
	if v := args.Get(0); v != nil {
		user = v.(*session.User)
	}
	return user, args.Error(1)
}

func (m *MockGateway) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGateway) CurrentUser(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	var user *session.User
	if v := args.Get(0); v != nil {
		user = v.(*session.User)
	}
	return user, args.Error(1)
}

func (m *MockGateway) SetAuthToken(token string) {
	m.Called(token)
}

// funcGateway drives concurrency tests with plain function hooks; every
// SetAuthToken call is recorded.
type funcGateway struct {
	mu     sync.Mutex
	tokens []string

	login       func(ctx context.Context, email, password string) (*session.Credentials, error)
	loginGoogle func(ctx context.Context, idToken string) (*session.Credentials, error)
	register    func(ctx context.Context, msg session.RegisterUserMessage) (*session.User, error)
	logout      func(ctx context.Context) error
	currentUser func(ctx context.Context) (*session.User, error)
}

func (g *funcGateway) Login(ctx context.Context, email, password string) (*session.Credentials, error) {
	if g.login != nil {
		return g.login(ctx, email, password)
	}
	return nil, nil
}

func (g *funcGateway) LoginWithGoogle(ctx context.Context, idToken string) (*session.Credentials, error) {
	if g.loginGoogle != nil {
		return g.loginGoogle(ctx, idToken)
	}
	return nil, nil
}

func (g *funcGateway) Register(ctx context.Context, msg session.RegisterUserMessage) (*session.User, error) {
	if g.register != nil {
		return g.register(ctx, msg)
	}
	return nil, nil
}

func (g *funcGateway) Logout(ctx context.Context) error {
	if g.logout != nil {
		return g.logout(ctx)
	}
	return nil
}

func (g *funcGateway) CurrentUser(ctx context.Context) (*session.User, error) {
	if g.currentUser != nil {
		return g.currentUser(ctx)
	}
	return nil, nil
}

func (g *funcGateway) SetAuthToken(token string) {
	g.mu.Lock()
	g.tokens = append(g.tokens, token)
	g.mu.Unlock()
}

func (g *funcGateway) lastToken() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) == 0 {
		return "", false
	}
	return g.tokens[len(g.tokens)-1], true
}

// apiError mimics a gateway rejection carrying status and detail.
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	return e.detail
}

func (e *apiError) StatusCode() int {
	return e.status
}

func (e *apiError) ErrorDetail() string {
	return e.detail
}

func testUser() *session.User {
	return &session.User{
		ID:         7,
		Email:      "amina@example.gov",
		FullName:   "Amina Diallo",
		Role:       session.RoleUser,
		IsVerified: true,
	}
}
