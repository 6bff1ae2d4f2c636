package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/model"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

const principalKey = "principal"

// ServiceHeader carries the pre-shared caller secret on
// service-to-service requests.
const ServiceHeader = "X-Service-Secret"

// Principal is the single tagged result of capability resolution.
// Every gateway handler consumes this one shape instead of re-deriving
// caller identity per endpoint.
type Principal struct {
	// Service is the resolved caller name when the request carried a
	// valid pre-shared secret; empty for user principals.
	Service string
	// Claims holds the user identity when the request carried a valid
	// bearer token instead.
	Claims utils.AccessClaims
	// apps the principal may provision or query.
	apps map[string]struct{}
	// all marks the sso super-admin, who may act on every app.
	all bool
}

// IsService reports whether the caller is a dependent-app backend.
func (p Principal) IsService() bool { return p.Service != "" }

// AllowedApp reports whether the principal may act on the app scope.
func (p Principal) AllowedApp(app string) bool {
	if p.all {
		return true
	}
	_, ok := p.apps[app]
	return ok
}

// callerApps is the static capability table: which app scopes each
// service caller owns. The bot provisions nothing but reads traffic
// identities on behalf of teachers.
var callerApps = map[string][]string{
	"services": {model.AppServices},
	"traffic":  {model.AppTraffic},
	"bot":      {model.AppTraffic},
}

// Capability resolves the caller of a gateway request to a Principal:
// a service via its pre-shared secret (matched against static config,
// never the database), or the sso super-admin via bearer token.
// Anything else is denied outright, and every denial is audited so a
// secret-guessing run leaves a trail.
func Capability(jwtSecret string, serviceSecrets map[string]string, sink *audit.Sink) echo.MiddlewareFunc {
	deny := func(c echo.Context, reason string) error {
		sink.Event("gateway_denied", audit.Merge(audit.RequestContext(c),
			map[string]any{"path": c.Request().URL.Path, "reason": reason}))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret := c.Request().Header.Get(ServiceHeader); secret != "" {
				if caller, ok := serviceSecrets[secret]; ok {
					apps := make(map[string]struct{})
					for _, app := range callerApps[caller] {
						apps[app] = struct{}{}
					}
					c.Set(principalKey, Principal{Service: caller, apps: apps})
					return next(c)
				}
				return deny(c, "unknown_secret")
			}
			if claims, err := BearerClaims(c, jwtSecret); err == nil {
				if claims.App == model.AppSSO && claims.Role == "admin" {
					c.Set(principalKey, Principal{Claims: claims, all: true})
					return next(c)
				}
				return deny(c, "not_superuser")
			}
			return deny(c, "no_credentials")
		}
	}
}

// PrincipalFrom returns the principal stored by Capability.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}
