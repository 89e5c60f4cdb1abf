package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	session "github.com/verigov/go-portal-session"
)

func TestManagerLoginSuccess(t *testing.T) {
	ctx := context.Background()
	user := testUser()
	creds := &session.Credentials{AccessToken: "token-1", TokenType: "bearer", User: user}

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, "amina@example.gov", "secret-pass").Return(creds, nil)
	gw.On("SetAuthToken", "token-1").Once()

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	require.NoError(t, m.Login(ctx, "amina@example.gov", "secret-pass"))

	snap := m.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State())
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "token-1", snap.Token)
	assert.Equal(t, user.Email, snap.User.Email)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "token-1", stored.Token)
	assert.Equal(t, user.Email, stored.User.Email)

	gw.AssertExpectations(t)
}

func TestManagerLoginFailure(t *testing.T) {
	ctx := context.Background()

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, "amina@example.gov", "bad-pass").
		Return(nil, &apiError{status: 401, detail: "Incorrect email or password"})

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	err := m.Login(ctx, "amina@example.gov", "bad-pass")
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, session.StateAuthError, snap.State())
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Token)
	assert.Equal(t, "Incorrect email or password", snap.Error)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerLoginFallbackMessage(t *testing.T) {
	ctx := context.Background()

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	m := session.NewManager(gw, nil)

	require.Error(t, m.Login(ctx, "amina@example.gov", "secret-pass"))
	assert.Equal(t, "Login failed", m.Snapshot().Error)
}

func TestManagerLoginEmptyToken(t *testing.T) {
	ctx := context.Background()

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(&session.Credentials{User: testUser()}, nil)

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	require.Error(t, m.Login(ctx, "amina@example.gov", "secret-pass"))

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.NotEmpty(t, snap.Error)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerRegisterDoesNotAuthenticate(t *testing.T) {
	ctx := context.Background()
	msg := session.RegisterUserMessage{
		Email:    "amina@example.gov",
		Password: "secret-pass",
		FullName: "Amina Diallo",
	}

	gw := new(MockGateway)
	gw.On("Register", mock.Anything, msg).Return(testUser(), nil)

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	user, err := m.Register(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, user)

	snap := m.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State())
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Token)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerLogoutFailOpen(t *testing.T) {
	ctx := context.Background()

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(&session.Credentials{AccessToken: "token-1", User: testUser()}, nil)
	gw.On("SetAuthToken", "token-1").Once()
	gw.On("Logout", mock.Anything).Return(&apiError{status: 502, detail: "gateway unavailable"})
	gw.On("SetAuthToken", "").Once()

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	require.NoError(t, m.Login(ctx, "amina@example.gov", "secret-pass"))

	// gateway failure must not keep the session alive
	require.NoError(t, m.Logout(ctx))

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
	assert.Equal(t, "gateway unavailable", snap.Error)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	gw.AssertExpectations(t)
}

func TestManagerRejectsOverlappingRequests(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})

	gw := &funcGateway{
		login: func(ctx context.Context, email, password string) (*session.Credentials, error) {
			<-release
			return &session.Credentials{AccessToken: "token-1", User: testUser()}, nil
		},
	}

	m := session.NewManager(gw, nil)

	done := make(chan error, 1)
	go func() {
		done <- m.Login(ctx, "amina@example.gov", "secret-pass")
	}()

	require.Eventually(t, func() bool {
		return m.Snapshot().IsLoading
	}, time.Second, 5*time.Millisecond)

	err := m.Login(ctx, "amina@example.gov", "secret-pass")
	assert.ErrorIs(t, err, session.ErrAuthInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, session.StateAuthenticated, m.State())
}

func TestManagerDiscardsStaleLoginResponse(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})

	gw := &funcGateway{
		login: func(ctx context.Context, email, password string) (*session.Credentials, error) {
			<-release
			return &session.Credentials{AccessToken: "token-1", User: testUser()}, nil
		},
	}

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	done := make(chan error, 1)
	go func() {
		done <- m.Login(ctx, "amina@example.gov", "secret-pass")
	}()

	require.Eventually(t, func() bool {
		return m.Snapshot().IsLoading
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.ClearAuth(ctx))

	close(release)
	assert.ErrorIs(t, <-done, session.ErrStaleAuthResponse)

	snap := m.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State())
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	token, ok := gw.lastToken()
	require.True(t, ok)
	assert.Equal(t, "", token)
}

func TestManagerHydrate(t *testing.T) {
	ctx := context.Background()
	user := testUser()

	store := session.NewMemoryTokenStore()
	require.NoError(t, store.Save(ctx, &session.StoredCredentials{Token: "opaque-token", User: user}))

	gw := &funcGateway{}
	m := session.NewManager(gw, store)

	require.NoError(t, m.Hydrate(ctx))

	snap := m.Snapshot()
	assert.Equal(t, session.StateAuthenticated, snap.State())
	assert.Equal(t, "opaque-token", snap.Token)
	assert.Equal(t, user.Email, snap.User.Email)

	token, ok := gw.lastToken()
	require.True(t, ok)
	assert.Equal(t, "opaque-token", token)
}

func TestManagerHydrateDiscardsExpiredToken(t *testing.T) {
	ctx := context.Background()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	raw, err := expired.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	store := session.NewMemoryTokenStore()
	require.NoError(t, store.Save(ctx, &session.StoredCredentials{Token: raw, User: testUser()}))

	m := session.NewManager(&funcGateway{}, store)

	require.NoError(t, m.Hydrate(ctx))

	snap := m.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State())
	assert.False(t, snap.IsAuthenticated)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerRefreshUserRequiresAuth(t *testing.T) {
	m := session.NewManager(&funcGateway{}, nil)

	_, err := m.RefreshUser(context.Background())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestManagerRefreshUserUnauthorizedTearsDown(t *testing.T) {
	ctx := context.Background()

	gw := &funcGateway{
		currentUser: func(ctx context.Context) (*session.User, error) {
			return nil, &apiError{status: 401, detail: "token expired"}
		},
	}

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	require.NoError(t, m.SetCredentials(ctx, testUser(), "token-1"))

	_, err := m.RefreshUser(ctx)
	require.Error(t, err)

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerRefreshUserUpdatesRecord(t *testing.T) {
	ctx := context.Background()
	updated := testUser()
	updated.FullName = "Amina D. Sow"

	gw := &funcGateway{
		currentUser: func(ctx context.Context) (*session.User, error) {
			return updated, nil
		},
	}

	store := session.NewMemoryTokenStore()
	m := session.NewManager(gw, store)

	require.NoError(t, m.SetCredentials(ctx, testUser(), "token-1"))

	user, err := m.RefreshUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Amina D. Sow", user.FullName)
	assert.Equal(t, "Amina D. Sow", m.Snapshot().User.FullName)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Amina D. Sow", stored.User.FullName)
}

func TestManagerClearAuthIdempotent(t *testing.T) {
	ctx := context.Background()

	store := session.NewMemoryTokenStore()
	m := session.NewManager(&funcGateway{}, store)

	require.NoError(t, m.SetCredentials(ctx, testUser(), "token-1"))
	require.NoError(t, m.ClearAuth(ctx))
	require.NoError(t, m.ClearAuth(ctx))

	assert.Equal(t, session.StateAnonymous, m.State())
}

func TestManagerResetError(t *testing.T) {
	ctx := context.Background()

	gw := new(MockGateway)
	gw.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &apiError{status: 401, detail: "Incorrect email or password"})

	m := session.NewManager(gw, nil)

	require.Error(t, m.Login(ctx, "amina@example.gov", "bad-pass"))
	require.Equal(t, session.StateAuthError, m.State())

	m.ResetError()
	assert.Equal(t, session.StateAnonymous, m.State())
	assert.Empty(t, m.Snapshot().Error)
}

func TestManagerSnapshotIsolation(t *testing.T) {
	ctx := context.Background()

	m := session.NewManager(&funcGateway{}, nil)
	require.NoError(t, m.SetCredentials(ctx, testUser(), "token-1"))

	snap := m.Snapshot()
	snap.User.Email = "tampered@example.gov"

	assert.Equal(t, "amina@example.gov", m.Snapshot().User.Email)
}
