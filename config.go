package session

// ConfigDefault is a plain Config implementation with sensible zero
// value fallbacks.
type ConfigDefault struct {
	LoginRoute           string
	UnauthorizedRoute    string
	VerifyEmailRoute     string
	RejectedRouteKey     string
	RejectedRouteDefault string
}

// DefaultConfig returns the portal's default navigation options.
func DefaultConfig() *ConfigDefault {
	return &ConfigDefault{
		LoginRoute:           "/login",
		UnauthorizedRoute:    "/unauthorized",
		VerifyEmailRoute:     "/verify-email",
		RejectedRouteKey:     "rejected_route",
		RejectedRouteDefault: "/",
	}
}

func (c *ConfigDefault) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

func (c *ConfigDefault) GetUnauthorizedRoute() string {
	if c.UnauthorizedRoute == "" {
		return "/unauthorized"
	}
	return c.UnauthorizedRoute
}

func (c *ConfigDefault) GetVerifyEmailRoute() string {
	if c.VerifyEmailRoute == "" {
		return "/verify-email"
	}
	return c.VerifyEmailRoute
}

func (c *ConfigDefault) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c *ConfigDefault) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}
