package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/handler"
	mw "github.com/iliyamo/segregate/internal/middleware"
	"github.com/iliyamo/segregate/internal/policy"
)

// RegisterUsers registers /api/users for any verified caller and the
// /api/admin routes, which the gate already limits to role admin.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, pol *policy.Policy) {
	u := e.Group("/api/users")
	u.GET("/me", mw.Authed(h.Me))
	u.GET("/:id", mw.Authed(h.Get), mw.RequirePermission(pol, policy.ReadUser))

	a := e.Group("/api/admin")
	a.GET("/users", mw.Authed(h.List), mw.RequirePermission(pol, policy.ReadUser))
	a.POST("/users", mw.Authed(h.Create), mw.RequirePermission(pol, policy.CreateUser))
	a.PATCH("/users/:id/role", mw.Authed(h.AssignRole), mw.RequirePermission(pol, policy.ManageRoles))
	a.GET("/stats", mw.Authed(h.Stats), mw.RequirePermission(pol, policy.AccessAnalytics))
}
