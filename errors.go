package session

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeAuthInFlight      = "AUTH_REQUEST_IN_FLIGHT"
	textCodeStaleAuthResponse = "STALE_AUTH_RESPONSE"
	textCodeNotAuthenticated  = "NOT_AUTHENTICATED"
)

// ErrAuthInFlight is returned when a transition is requested while an
// authentication request is already in flight. Overlapping requests are
// rejected rather than interleaved.
var ErrAuthInFlight = goerrors.New("authentication request already in flight", goerrors.CategoryConflict).
	WithTextCode(textCodeAuthInFlight).
	WithCode(goerrors.CodeConflict)

// ErrStaleAuthResponse is returned when a response resolves after the
// session it belongs to was torn down; the response is discarded.
var ErrStaleAuthResponse = goerrors.New("stale authentication response discarded", goerrors.CategoryConflict).
	WithTextCode(textCodeStaleAuthResponse).
	WithCode(goerrors.CodeConflict)

// ErrNotAuthenticated is returned by operations that require an
// authenticated session.
var ErrNotAuthenticated = goerrors.New("session is not authenticated", goerrors.CategoryAuth).
	WithTextCode(textCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// Fallback messages surfaced in Snapshot.Error when the gateway's
// response body carried no detail.
const (
	loginFailedMessage        = "Login failed"
	registrationFailedMessage = "Registration failed"
	logoutFailedMessage       = "Logout failed"
)

// statusCoder is implemented by gateway errors that carry the HTTP
// status of the rejected request.
type statusCoder interface {
	StatusCode() int
}

// detailer is implemented by gateway errors that extracted a human
// readable detail from the response body.
type detailer interface {
	ErrorDetail() string
}

// IsUnauthorizedError will check for gateway 401 rejections
func IsUnauthorizedError(err error) bool {
	if err == nil {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == http.StatusUnauthorized
	}
	return false
}

// messageFromError maps a transition failure to the message stored in
// Snapshot.Error: the gateway-provided detail when present, otherwise
// the generic fallback. Transport failures take the same path as
// gateway rejections.
func messageFromError(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var d detailer
	if errors.As(err, &d) {
		if detail := d.ErrorDetail(); detail != "" {
			return detail
		}
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}

	return fallback
}
