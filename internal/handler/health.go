package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/response"
)

// Health is the liveness probe for load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports whether the database answers.
func Ready(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return apperr.Internal(err)
		}
		return response.OK(c, "ready", nil)
	}
}

// PublicStats serves the anonymous report counters shown on the landing
// page. It sits behind the response cache.
func PublicStats(reports *repository.ReportRepo) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := reports.Stats(c.Request().Context())
		if err != nil {
			return apperr.Internal(err)
		}
		return response.OK(c, "Stats fetched successfully", st)
	}
}
