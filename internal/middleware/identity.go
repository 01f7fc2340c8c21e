package middleware

// identity.go bridges the verified identity into handlers. Handlers that need
// a caller are written as AuthedHandlerFunc, which cannot be registered on a
// route without going through Authed; Authed refuses to run one unless the
// gate attached an identity.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/identity"
)

// AuthedHandlerFunc is a handler that runs only with a verified identity.
type AuthedHandlerFunc func(c echo.Context, id identity.Identity) error

// Authed adapts h to an echo.HandlerFunc. If no identity is attached (the
// route was not classified as protected) the request fails with
// MISSING_TOKEN rather than running h anonymously.
func Authed(h AuthedHandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := identity.FromContext(c.Request().Context())
		if !ok {
			return apperr.MissingToken()
		}
		return h(c, id)
	}
}

// userID returns the verified caller id for keys and logs, or "anon".
func userID(c echo.Context) string {
	if id, ok := identity.FromContext(c.Request().Context()); ok {
		return id.IDString()
	}
	return "anon"
}
