package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager is the session state machine. It is the single writer of the
// session snapshot: transitions dispatch a gateway request, apply the
// outcome, and mirror authenticated state into the TokenStore and the
// gateway's default bearer header.
//
// A request epoch increases on every transition start and on every
// teardown, so a network response that resolves after logout or
// ClearAuth is discarded instead of resurrecting the session.
type Manager struct {
	mu      sync.Mutex
	snap    Snapshot
	epoch   uint64
	gateway Gateway
	store   TokenStore
	logger  Logger
	now     func() time.Time
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithManagerLogger overrides the default logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerClock injects a custom clock (useful for tests).
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewManager returns a Manager in the Anonymous state. Call Hydrate to
// restore a persisted session.
func NewManager(gateway Gateway, store TokenStore, opts ...ManagerOption) *Manager {
	if gateway == nil {
		panic("Missing Gateway in session manager...")
	}

	m := &Manager{
		gateway: gateway,
		store:   store,
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewMemoryTokenStore()
	}

	return m
}

// Snapshot returns a point-in-time copy of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// State returns the current machine state.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.State()
}

// Hydrate restores the session from the TokenStore. Persisted tokens
// whose JWT expiry is already past are dropped along with the stored
// record; the token is otherwise treated as opaque.
func (m *Manager) Hydrate(ctx context.Context) error {
	creds, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("Hydrate load error", "error", err)
		return err
	}

	if creds == nil || creds.Token == "" {
		return nil
	}

	if tokenExpired(creds.Token, m.now()) {
		m.logger.Info("Hydrate discarding expired persisted token")
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn("Hydrate clear error", "error", err)
		}
		return nil
	}

	m.mu.Lock()
	m.snap = Snapshot{
		User:            creds.User.Clone(),
		Token:           creds.Token,
		IsAuthenticated: true,
	}
	m.mu.Unlock()

	m.gateway.SetAuthToken(creds.Token)
	return nil
}

// Login exchanges credentials with the gateway. Anonymous →
// Authenticating → Authenticated on success, AuthError on failure.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	epoch, err := m.beginRequest()
	if err != nil {
		return err
	}

	creds, err := m.gateway.Login(ctx, email, password)
	if err != nil {
		return m.rejectRequest(epoch, err, loginFailedMessage)
	}

	return m.fulfillLogin(ctx, epoch, creds)
}

// LoginWithGoogle exchanges a federated identity token; same contract
// as Login.
func (m *Manager) LoginWithGoogle(ctx context.Context, idToken string) error {
	epoch, err := m.beginRequest()
	if err != nil {
		return err
	}

	creds, err := m.gateway.LoginWithGoogle(ctx, idToken)
	if err != nil {
		return m.rejectRequest(epoch, err, loginFailedMessage)
	}

	return m.fulfillLogin(ctx, epoch, creds)
}

// Register creates an account through the gateway. The session is never
// authenticated by registration; the account requires separate email
// verification.
func (m *Manager) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	epoch, err := m.beginRequest()
	if err != nil {
		return nil, err
	}

	user, err := m.gateway.Register(ctx, msg)
	if err != nil {
		return nil, m.rejectRequest(epoch, err, registrationFailedMessage)
	}

	m.mu.Lock()
	if epoch == m.epoch {
		m.snap.IsLoading = false
	}
	m.mu.Unlock()

	return user, nil
}

// Logout calls the gateway logout endpoint and tears down local state.
// Teardown is fail-open: the snapshot, TokenStore, and default bearer
// header are cleared even when the gateway call fails; the failure is
// recorded in Snapshot.Error only.
func (m *Manager) Logout(ctx context.Context) error {
	epoch, err := m.beginRequest()
	if err != nil {
		return err
	}

	gwErr := m.gateway.Logout(ctx)

	m.mu.Lock()
	if epoch == m.epoch {
		m.epoch++
		msg := ""
		if gwErr != nil {
			msg = messageFromError(gwErr, logoutFailedMessage)
		}
		m.snap = Snapshot{Error: msg}
	}
	m.mu.Unlock()

	m.gateway.SetAuthToken("")
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("Logout token store clear error", "error", err)
	}

	if gwErr != nil {
		m.logger.Warn("Logout gateway error, local teardown completed", "error", gwErr)
	}

	return nil
}

// SetCredentials injects credentials out-of-band, e.g. after a
// federated callback handled outside the normal login transition.
func (m *Manager) SetCredentials(ctx context.Context, user *User, token string) error {
	m.mu.Lock()
	m.epoch++
	m.snap = Snapshot{
		User:            user.Clone(),
		Token:           token,
		IsAuthenticated: token != "",
	}
	m.mu.Unlock()

	m.gateway.SetAuthToken(token)
	return m.store.Save(ctx, &StoredCredentials{Token: token, User: user})
}

// ClearAuth forces the session back to Anonymous, e.g. after a 401.
// Idempotent.
func (m *Manager) ClearAuth(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.snap = Snapshot{}
	m.mu.Unlock()

	m.gateway.SetAuthToken("")
	return m.store.Clear(ctx)
}

// ResetError clears the error without touching other fields.
func (m *Manager) ResetError() {
	m.mu.Lock()
	m.snap.Error = ""
	m.mu.Unlock()
}

// RefreshUser fetches the current user record for the held token. A 401
// tears the session down; other failures leave it untouched.
func (m *Manager) RefreshUser(ctx context.Context) (*User, error) {
	m.mu.Lock()
	if !m.snap.IsAuthenticated {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	epoch := m.epoch
	token := m.snap.Token
	m.mu.Unlock()

	user, err := m.gateway.CurrentUser(ctx)
	if err != nil {
		if IsUnauthorizedError(err) {
			if cerr := m.ClearAuth(ctx); cerr != nil {
				m.logger.Warn("ClearAuth after gateway 401", "error", cerr)
			}
		}
		return nil, err
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Info("RefreshUser discarding stale response")
		return nil, ErrStaleAuthResponse
	}
	m.snap.User = user.Clone()
	m.mu.Unlock()

	if err := m.store.Save(ctx, &StoredCredentials{Token: token, User: user}); err != nil {
		m.logger.Warn("RefreshUser token store save error", "error", err)
	}

	return user, nil
}

// beginRequest marks the pending phase: loading set, error cleared, a
// fresh epoch. Rejects overlapping authentication requests.
func (m *Manager) beginRequest() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snap.IsLoading {
		return 0, ErrAuthInFlight
	}

	m.epoch++
	m.snap.IsLoading = true
	m.snap.Error = ""

	return m.epoch, nil
}

// rejectRequest applies a failed outcome unless the epoch moved on, in
// which case the failure is discarded.
func (m *Manager) rejectRequest(epoch uint64, cause error, fallback string) error {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Info("discarding stale auth failure", "error", cause)
		return ErrStaleAuthResponse
	}

	m.snap.IsLoading = false
	m.snap.Error = messageFromError(cause, fallback)
	m.mu.Unlock()

	return cause
}

// fulfillLogin applies a successful credential exchange. A response
// whose epoch is no longer current is discarded.
func (m *Manager) fulfillLogin(ctx context.Context, epoch uint64, creds *Credentials) error {
	if creds == nil || creds.AccessToken == "" {
		return m.rejectRequest(epoch, ErrNotAuthenticated, loginFailedMessage)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Info("discarding stale login response")
		return ErrStaleAuthResponse
	}

	m.snap = Snapshot{
		User:            creds.User.Clone(),
		Token:           creds.AccessToken,
		IsAuthenticated: true,
	}
	m.mu.Unlock()

	m.gateway.SetAuthToken(creds.AccessToken)

	if err := m.store.Save(ctx, &StoredCredentials{Token: creds.AccessToken, User: creds.User}); err != nil {
		// the store mirrors the session; a write failure must not undo login
		m.logger.Warn("token store save error", "error", err)
	}

	return nil
}

// tokenExpired peeks at the JWT exp claim without verifying the
// signature; verification is the gateway's job. Tokens that do not
// parse as JWTs are kept, the format is opaque to this client.
func tokenExpired(raw string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Time.Before(now)
}
