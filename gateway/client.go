package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/verigov/go-portal-session"
)

const (
	loginPath            = "/auth/login/access-token"
	googleLoginPath      = "/auth/google"
	registerPath         = "/auth/register"
	logoutPath           = "/auth/logout"
	currentUserPath      = "/users/me"
	changePasswordPath   = "/users/me/password"
	passwordRecoveryPath = "/auth/password-recovery"
	resetPasswordPath    = "/auth/reset-password"
	verifyEmailPath      = "/auth/verify-email"
)

// Client talks to the portal's auth gateway over HTTP. It keeps a
// default bearer token that is attached to every request once set, the
// HTTP analogue of an axios default Authorization header.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     session.Logger

	mu        sync.RWMutex
	authToken string
}

var _ session.Gateway = (*Client)(nil)

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger session.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerrors.New("gateway client requires a base URL", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = noopLogger{}
	}

	return c, nil
}

// SetAuthToken sets the default bearer token. An empty token clears it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// Login exchanges email and password for a bearer token. The gateway
// speaks the OAuth2 password grant shape, so the email travels in the
// username form field. When the token response omits the user record
// the client fetches it from the current-user endpoint; a failure
// there still yields token-only credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Credentials, error) {
	form := url.Values{
		"username": {email},
		"password": {password},
	}

	creds := &session.Credentials{}
	if err := c.doForm(ctx, loginPath, form, creds); err != nil {
		return nil, err
	}

	if creds.AccessToken == "" {
		return nil, newAPIError(http.StatusBadGateway, nil)
	}

	if creds.User == nil {
		user, err := c.currentUser(ctx, creds.AccessToken)
		if err != nil {
			c.logger.Warn("login token accepted but user fetch failed", "error", err)
			return creds, nil
		}
		creds.User = user
	}

	return creds, nil
}

// LoginWithGoogle exchanges a Google ID token for a bearer token.
func (c *Client) LoginWithGoogle(ctx context.Context, idToken string) (*session.Credentials, error) {
	body := map[string]string{"id_token": idToken}

	creds := &session.Credentials{}
	if err := c.doJSON(ctx, http.MethodPost, googleLoginPath, body, creds); err != nil {
		return nil, err
	}

	if creds.AccessToken == "" {
		return nil, newAPIError(http.StatusBadGateway, nil)
	}

	if creds.User == nil {
		user, err := c.currentUser(ctx, creds.AccessToken)
		if err != nil {
			c.logger.Warn("google login token accepted but user fetch failed", "error", err)
			return creds, nil
		}
		creds.User = user
	}

	return creds, nil
}

// Register creates an account. The response never carries a token, the
// new account stays unauthenticated until its email is verified.
func (c *Client) Register(ctx context.Context, msg session.RegisterUserMessage) (*session.User, error) {
	user := &session.User{}
	if err := c.doJSON(ctx, http.MethodPost, registerPath, msg, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout invalidates the server-side session for the held token.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, logoutPath, nil, nil)
}

// CurrentUser fetches the user record the held token resolves to.
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	return c.currentUser(ctx, c.token())
}

// UpdateProfile updates the authenticated user's profile fields and
// returns the updated record.
func (c *Client) UpdateProfile(ctx context.Context, update session.ProfileUpdate) (*session.User, error) {
	user := &session.User{}
	if err := c.doJSON(ctx, http.MethodPut, currentUserPath, update, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword changes the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{
		"current_password": current,
		"new_password":     next,
	}
	return c.doJSON(ctx, http.MethodPost, changePasswordPath, body, nil)
}

// RequestPasswordReset asks the gateway to email a recovery token. The
// gateway answers 2xx whether or not the address exists.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, passwordRecoveryPath+"/"+url.PathEscape(email), nil, nil)
}

// ResetPassword redeems a recovery token for a new password.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{
		"token":        token,
		"new_password": newPassword,
	}
	return c.doJSON(ctx, http.MethodPost, resetPasswordPath, body, nil)
}

// VerifyEmail redeems an email verification token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	body := map[string]string{"token": token}
	return c.doJSON(ctx, http.MethodPost, verifyEmailPath, body, nil)
}

func (c *Client) currentUser(ctx context.Context, token string) (*session.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, currentUserPath, nil, "")
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	user := &session.User{}
	if err := c.send(req, user); err != nil {
		return nil, err
	}
	return user, nil
}

// doForm posts an urlencoded form and decodes the JSON response.
func (c *Client) doForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// doJSON sends an optional JSON body and decodes the JSON response.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build gateway request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "auth gateway unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read gateway response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newAPIError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode gateway response")
	}

	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
