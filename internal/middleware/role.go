package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/utils"
)

// RequireAppRole enforces that the authenticated user belongs to the
// given app with one of the listed roles. The sso super-admin passes
// every gate. Assumes JWTAuth ran earlier in the chain; every denial
// is audited.
func RequireAppRole(sink *audit.Sink, app string, roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok {
				sink.Event("access_denied", audit.Merge(audit.RequestContext(c),
					map[string]any{"path": c.Request().URL.Path, "required_app": app, "reason": "no_claims"}))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if claims.App == "sso" && claims.Role == "admin" {
				return next(c)
			}
			if claims.App != app {
				return denyRole(c, sink, claims, app, "wrong_app")
			}
			if _, ok := allowed[claims.Role]; !ok {
				return denyRole(c, sink, claims, app, "wrong_role")
			}
			return next(c)
		}
	}
}

func denyRole(c echo.Context, sink *audit.Sink, claims utils.AccessClaims, app, reason string) error {
	sink.Event("access_denied", audit.Merge(audit.RequestContext(c), audit.TokenActor(claims),
		map[string]any{"path": c.Request().URL.Path, "required_app": app, "reason": reason}))
	return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
}
