package session

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Outcome is the verdict of a navigation attempt.
type Outcome string

const (
	DecisionPending Outcome = "pending"
	DecisionAllow   Outcome = "allow"
	DecisionDeny    Outcome = "deny"
)

// DenyReason qualifies a deny outcome. Precedence is fixed:
// unauthenticated first, then role, then verification.
type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenyRole            DenyReason = "role"
	DenyVerification    DenyReason = "verification"
)

// Requirement describes what a guarded route demands. A nil Roles slice
// means the default requirement (any authenticated user); an empty
// non-nil slice is an explicit empty set that only admin satisfies.
type Requirement struct {
	Roles           []UserRole
	RequireVerified bool
}

// DefaultRequirement admits any authenticated user.
func DefaultRequirement() Requirement {
	return Requirement{Roles: AllRoles()}
}

// Decision is the evaluated outcome for one navigation attempt.
type Decision struct {
	Outcome Outcome
	Reason  DenyReason
}

// Evaluate decides a navigation attempt from a snapshot. Pure: no I/O,
// no mutation, identical inputs yield identical output.
func Evaluate(snap Snapshot, req Requirement) Decision {
	if snap.IsLoading {
		return Decision{Outcome: DecisionPending}
	}

	if !snap.IsAuthenticated {
		return Decision{Outcome: DecisionDeny, Reason: DenyUnauthenticated}
	}

	roles := req.Roles
	if roles == nil {
		roles = AllRoles()
	}

	if !snap.HasAnyRole(roles...) {
		return Decision{Outcome: DecisionDeny, Reason: DenyRole}
	}

	if req.RequireVerified && (snap.User == nil || !snap.User.IsVerified) {
		return Decision{Outcome: DecisionDeny, Reason: DenyVerification}
	}

	return Decision{Outcome: DecisionAllow}
}

// RouteGuard applies Evaluate to incoming navigations and turns denials
// into redirects, preserving the originally requested URL so a
// successful login can send the user back.
type RouteGuard struct {
	manager        *Manager
	cfg            Config
	Logger         Logger
	ErrorHandler   func(c router.Context, err error) error
	PendingHandler func(c router.Context) error
}

// NewRouteGuard returns a guard bound to the given manager. A nil cfg
// falls back to DefaultConfig.
func NewRouteGuard(manager *Manager, cfg Config) (*RouteGuard, error) {
	if manager == nil {
		return nil, errors.New("route guard requires a session manager", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}

	g := &RouteGuard{
		manager: manager,
		cfg:     cfg,
		Logger:  defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler
	g.PendingHandler = defaultPendingHandler

	return g, nil
}

// Protected guards a route with the given requirement. Allowed
// navigations carry the session user in router locals and in the
// request context for downstream handlers.
func (g *RouteGuard) Protected(req Requirement) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := g.manager.Snapshot()

			decision := Evaluate(snap, req)
			switch decision.Outcome {
			case DecisionPending:
				return g.PendingHandler(ctx)
			case DecisionAllow:
				ctx.Locals(RouterUserKey, snap.User)
				ctx.SetContext(WithUserContext(ctx.Context(), snap.User))
				return next(ctx)
			default:
				return g.deny(ctx, decision)
			}
		}
	}
}

// RedirectTarget maps a deny decision to its destination route. Allow
// and pending decisions have no destination.
func (g *RouteGuard) RedirectTarget(d Decision) string {
	if d.Outcome != DecisionDeny {
		return ""
	}

	switch d.Reason {
	case DenyUnauthenticated:
		return g.cfg.GetLoginRoute()
	case DenyRole:
		return g.cfg.GetUnauthorizedRoute()
	default:
		return g.cfg.GetVerifyEmailRoute()
	}
}

func (g *RouteGuard) deny(ctx router.Context, d Decision) error {
	dest := g.RedirectTarget(d)

	if d.Reason == DenyUnauthenticated {
		g.Logger.Info("Unauthenticated navigation, redirecting to login", "path", ctx.OriginalURL())
		g.SetRedirect(ctx)
	} else {
		g.Logger.Info("Navigation denied", "reason", d.Reason, "path", ctx.OriginalURL())
	}

	statusCode := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return ctx.Redirect(dest, statusCode)
}

// SetRedirect remembers the rejected destination in a short-lived
// cookie for the post-login redirect back.
func (g *RouteGuard) SetRedirect(ctx router.Context) {
	rejectedRoute := g.cfg.GetRejectedRouteKey()

	g.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect consumes the remembered destination, falling back to def.
func (g *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return def[0]
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

// GetRedirectOrDefault consumes the remembered destination, falling
// back to the referer and then the configured default.
func (g *RouteGuard) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = g.cfg.GetRejectedRouteDefault()
	}
	g.cookieDel(ctx, rejectedRoute)
	return r
}

func (g *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info(
		"Guard error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		g.SetRedirect(c)
		return c.Redirect(g.cfg.GetLoginRoute(), http.StatusSeeOther)
	default:
		return c.Status(richErr.Code).SendString(richErr.Message)
	}
}

// authorization is deferred, not denied, while a request is in flight
func defaultPendingHandler(ctx router.Context) error {
	return ctx.Status(http.StatusAccepted).SendString("authenticating")
}
