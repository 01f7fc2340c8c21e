// Package router registers the HTTP routes. Authentication is not wired
// here: the request gate runs on every request and decides by path prefix.
// Handlers that need the caller are wrapped in middleware.Authed, which
// refuses to run them without the gate's identity.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/handler"
	"github.com/iliyamo/segregate/internal/repository"
)

// RegisterRoutes registers liveness, readiness and the public stats.
// cache wraps the stats endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB, reports *repository.ReportRepo, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/api/stats", handler.PublicStats(reports), cache)
}

// RegisterAuth registers the credential endpoints under /api/auth. They are
// public; limiter throttles them per client.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth", limiter)
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}
