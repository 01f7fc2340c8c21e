package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
	"github.com/iliyamo/segregate/internal/policy"
)

// RequirePermission enforces that the verified caller's role holds at least
// one of perms. It must run after the gate; a request without an identity is
// rejected as unauthenticated.
func RequirePermission(p *policy.Policy, perms ...policy.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := identity.FromContext(c.Request().Context())
			if !ok {
				return apperr.MissingToken()
			}
			if !p.HasAny(id.Role, perms...) {
				return apperr.Forbidden("")
			}
			return next(c)
		}
	}
}
