package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/handler"
	mw "github.com/iliyamo/segregate/internal/middleware"
	"github.com/iliyamo/segregate/internal/policy"
)

// RegisterReports registers /api/reports and /api/upload. Both prefixes are
// protected by the gate; permissions are checked per route.
func RegisterReports(e *echo.Echo, r *handler.ReportHandler, u *handler.UploadHandler, pol *policy.Policy) {
	g := e.Group("/api/reports")
	g.GET("", mw.Authed(r.List), mw.RequirePermission(pol, policy.ReadReport))
	g.POST("", mw.Authed(r.Create), mw.RequirePermission(pol, policy.CreateReport))
	g.GET("/:id", mw.Authed(r.Get), mw.RequirePermission(pol, policy.ReadReport))
	g.PUT("/:id", mw.Authed(r.Update), mw.RequirePermission(pol, policy.UpdateReport))
	g.POST("/:id/verify", mw.Authed(r.Verify), mw.RequirePermission(pol, policy.VerifyReport))
	g.DELETE("/:id", mw.Authed(r.Delete), mw.RequirePermission(pol, policy.DeleteReport))

	e.POST("/api/upload", mw.Authed(u.Presign), mw.RequirePermission(pol, policy.CreateReport))
}
